// Package run holds the outputs of one pipeline run: its manifest, summaries and the
// per-model results handed to report writers.
package run

import (
	"perchmp/domain/core"
	"perchmp/domain/mesocosm"
	"perchmp/domain/stats"
)

// FrameKind selects the table a model is fitted to
type FrameKind string

const (
	FrameFish     FrameKind = "fish"     // one row per measured fish
	FrameMesocosm FrameKind = "mesocosm" // one row per corral
)

// ModelStatus is the outcome of one planned model
type ModelStatus string

const (
	StatusFitted     ModelStatus = "fitted"
	StatusFailed     ModelStatus = "failed"
	StatusSuperseded ModelStatus = "superseded"
)

// SummaryTable is one group summary of the run
type SummaryTable struct {
	Name      string               `json:"name" yaml:"name"`
	Frame     FrameKind            `json:"frame" yaml:"frame"`
	Keys      []string             `json:"keys" yaml:"keys"`
	Responses []string             `json:"responses" yaml:"responses"`
	Groups    []stats.GroupSummary `json:"groups" yaml:"groups"`
}

// ModelResult is one attempted model with everything derived from it. A failed attempt
// keeps its spec and error; the fit itself is nil.
type ModelResult struct {
	Name string       `json:"name" yaml:"name"`
	// Attempt identifies this attempt even when the fit failed
	Attempt core.ModelID    `json:"attempt" yaml:"attempt"`
	Spec    stats.ModelSpec `json:"spec" yaml:"spec"`
	Frame   FrameKind       `json:"frame" yaml:"frame"`
	Status  ModelStatus     `json:"status" yaml:"status"`
	Error   string          `json:"error,omitempty" yaml:"error,omitempty"`
	// SupersededBy names the result that replaced this one
	SupersededBy string `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"`

	Model       *stats.FittedModel           `json:"model,omitempty" yaml:"model,omitempty"`
	Raw         *stats.ResidualDiagnostic    `json:"-" yaml:"-"`
	Dispersion  []stats.DispersionDiagnostic `json:"dispersion,omitempty" yaml:"dispersion,omitempty"`
	Simulated   *stats.SimulatedResiduals    `json:"simulated,omitempty" yaml:"simulated,omitempty"`
	Comparison  *stats.PairwiseComparison    `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Letters     []stats.GroupLetters         `json:"letters,omitempty" yaml:"letters,omitempty"`
	Predictions *stats.PredictionSet         `json:"predictions,omitempty" yaml:"predictions,omitempty"`
	// Notes collects non-fatal post-fit problems such as an unsupported comparison
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// OK reports whether the attempt produced a fit
func (r *ModelResult) OK() bool {
	return r.Model != nil
}

// Result is the complete output of a run
type Result struct {
	Manifest  *RunManifest              `json:"manifest" yaml:"manifest"`
	Fish      *mesocosm.Table           `json:"-" yaml:"-"`
	Mesocosms *mesocosm.PopulationTable `json:"-" yaml:"-"`
	// Dropped counts biometric rows removed for a missing primary response
	Dropped int `json:"dropped" yaml:"dropped"`
	// Unmatched lists corrals with fish but no population row
	Unmatched []string       `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`
	Summaries []SummaryTable `json:"summaries" yaml:"summaries"`
	Models    []ModelResult  `json:"models" yaml:"models"`
}

// Model returns the result for a model name
func (r *Result) Model(name string) (*ModelResult, bool) {
	for i := range r.Models {
		if r.Models[i].Name == name {
			return &r.Models[i], true
		}
	}
	return nil, false
}

// Failed lists the attempts that did not produce a fit
func (r *Result) Failed() []*ModelResult {
	var out []*ModelResult
	for i := range r.Models {
		if r.Models[i].Status == StatusFailed {
			out = append(out, &r.Models[i])
		}
	}
	return out
}
