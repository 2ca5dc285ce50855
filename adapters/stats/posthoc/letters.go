package posthoc

import (
	"sort"
	"strings"

	"perchmp/domain/stats"
)

// Letters computes a compact letter display with the insert-and-absorb algorithm: levels
// sharing a letter are not significantly different. Letters run from the highest mean,
// and the result follows the comparison's level order.
func Letters(cmp *stats.PairwiseComparison) []stats.GroupLetters {
	k := len(cmp.Means)
	if k == 0 {
		return nil
	}

	// positions in descending-mean order
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cmp.Means[order[a]].Mean > cmp.Means[order[b]].Mean
	})
	rank := make(map[string]int, k)
	for r, idx := range order {
		rank[cmp.Means[idx].Level] = r
	}

	all := make([]bool, k)
	for i := range all {
		all[i] = true
	}
	columns := [][]bool{all}

	for _, p := range cmp.Pairs {
		if !p.Significant {
			continue
		}
		a, b := rank[p.A], rank[p.B]
		var next [][]bool
		for _, col := range columns {
			if !(col[a] && col[b]) {
				next = append(next, col)
				continue
			}
			withoutA := append([]bool(nil), col...)
			withoutA[a] = false
			withoutB := append([]bool(nil), col...)
			withoutB[b] = false
			next = append(next, withoutA, withoutB)
		}
		columns = absorb(next)
	}

	sort.SliceStable(columns, func(i, j int) bool {
		return lessColumn(columns[i], columns[j])
	})

	out := make([]stats.GroupLetters, k)
	for i, gm := range cmp.Means {
		var sb strings.Builder
		for c, col := range columns {
			if col[rank[gm.Level]] {
				sb.WriteString(letter(c))
			}
		}
		out[i] = stats.GroupLetters{Level: gm.Level, Mean: gm.Mean, Letters: sb.String()}
	}
	return out
}

// absorb drops columns that are empty, duplicated, or contained in another column
func absorb(columns [][]bool) [][]bool {
	var out [][]bool
	for i, col := range columns {
		if empty(col) {
			continue
		}
		keep := true
		for j, other := range columns {
			if i == j {
				continue
			}
			if subset(col, other) && (!subset(other, col) || j < i) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, col)
		}
	}
	return out
}

func subset(a, b []bool) bool {
	for i := range a {
		if a[i] && !b[i] {
			return false
		}
	}
	return true
}

func empty(col []bool) bool {
	for _, v := range col {
		if v {
			return false
		}
	}
	return true
}

// lessColumn orders columns by the highest-ranked level they contain
func lessColumn(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i]
		}
	}
	return false
}

// letter names column c: a..z, then aa, ab, ...
func letter(c int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	if c < len(alphabet) {
		return alphabet[c : c+1]
	}
	return letter(c/len(alphabet)-1) + alphabet[c%len(alphabet):c%len(alphabet)+1]
}
