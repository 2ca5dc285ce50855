package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"perchmp/domain/dataset"
	"perchmp/domain/stats"

	mstats "github.com/montanaflynn/stats"
)

// MissingLevel labels rows whose grouping value is missing
const MissingLevel = "NA"

// ByGroup summarises responses per distinct key tuple, ignoring missing response values.
// Groups are returned in level order of their keys.
func ByGroup(frame dataset.Frame, keys []string, responses []string) ([]stats.GroupSummary, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("group summary needs at least one key")
	}

	keyCols := make([][]string, len(keys))
	for i, k := range keys {
		col, err := frame.Labels(k)
		if err != nil {
			return nil, fmt.Errorf("group key: %w", err)
		}
		keyCols[i] = col
	}
	respCols := make([][]float64, len(responses))
	for i, r := range responses {
		col, err := frame.Numeric(r)
		if err != nil {
			return nil, fmt.Errorf("response: %w", err)
		}
		respCols[i] = col
	}

	type bucket struct {
		values []string
		rows   []int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for row := 0; row < frame.Len(); row++ {
		values := make([]string, len(keys))
		for i := range keys {
			values[i] = keyCols[i][row]
			if values[i] == "" {
				values[i] = MissingLevel
			}
		}
		id := strings.Join(values, "\x00")
		b, ok := buckets[id]
		if !ok {
			b = &bucket{values: values}
			buckets[id] = b
			order = append(order, id)
		}
		b.rows = append(b.rows, row)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := buckets[order[i]].values, buckets[order[j]].values
		for k := range a {
			if a[k] == b[k] {
				continue
			}
			if a[k] == MissingLevel || b[k] == MissingLevel {
				return b[k] == MissingLevel
			}
			return dataset.LevelLess(a[k], b[k])
		}
		return false
	})

	out := make([]stats.GroupSummary, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		g := stats.GroupSummary{
			Keys:   append([]string(nil), keys...),
			Values: b.values,
			Rows:   len(b.rows),
		}
		for i, r := range responses {
			var data mstats.Float64Data
			for _, row := range b.rows {
				if v := respCols[i][row]; !math.IsNaN(v) {
					data = append(data, v)
				}
			}
			g.Responses = append(g.Responses, summarise(r, data))
		}
		out = append(out, g)
	}
	return out, nil
}

func summarise(column string, data mstats.Float64Data) stats.ResponseSummary {
	rs := stats.ResponseSummary{Column: column, N: len(data), Mean: math.NaN(), SD: math.NaN()}
	if len(data) == 0 {
		return rs
	}
	if mean, err := mstats.Mean(data); err == nil {
		rs.Mean = mean
	}
	if len(data) >= 2 {
		if sd, err := mstats.StandardDeviationSample(data); err == nil {
			rs.SD = sd
		}
	}
	return rs
}
