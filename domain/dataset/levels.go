package dataset

import (
	"sort"
	"strconv"
	"strings"
)

// SortLevels orders factor levels by their leading number, then lexically,
// so "0a" < "0b" < "10" < "50" < "200".
func SortLevels(levels []string) {
	sort.SliceStable(levels, func(i, j int) bool {
		return LevelLess(levels[i], levels[j])
	})
}

// LevelLess reports whether level a sorts before level b
func LevelLess(a, b string) bool {
	na, oka := leadingNumber(a)
	nb, okb := leadingNumber(b)
	switch {
	case oka && okb && na != nb:
		return na < nb
	case oka != okb:
		return oka
	}
	return a < b
}

// DistinctLevels returns the non-missing distinct values of a label column in level order
func DistinctLevels(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	SortLevels(out)
	return out
}

func leadingNumber(s string) (float64, bool) {
	end := 0
	for end < len(s) && strings.ContainsRune("+-.0123456789eE", rune(s[end])) {
		end++
	}
	for end > 0 {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v, true
		}
		end--
	}
	return 0, false
}
