package stats

import "strings"

// ResponseSummary is count, mean and SD of one response within one group.
// Mean is NaN without observations; SD is NaN (undefined) below two observations.
type ResponseSummary struct {
	Column string  `json:"column" yaml:"column"`
	N      int     `json:"n" yaml:"n"`
	Mean   float64 `json:"mean" yaml:"mean"`
	SD     float64 `json:"sd" yaml:"sd"`
}

// GroupSummary is one distinct combination of the grouping keys
type GroupSummary struct {
	Keys      []string          `json:"keys" yaml:"keys"`
	Values    []string          `json:"values" yaml:"values"`
	Rows      int               `json:"rows" yaml:"rows"`
	Responses []ResponseSummary `json:"responses" yaml:"responses"`
}

// Label joins the group's key values for display
func (g GroupSummary) Label() string {
	return strings.Join(g.Values, "/")
}

// Response returns the summary of one response column
func (g GroupSummary) Response(column string) (ResponseSummary, bool) {
	for _, r := range g.Responses {
		if r.Column == column {
			return r, true
		}
	}
	return ResponseSummary{}, false
}
