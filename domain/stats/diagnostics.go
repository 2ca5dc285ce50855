package stats

import "perchmp/domain/core"

// DiagnosticStatus tells whether a diagnostic produced usable values
type DiagnosticStatus string

const (
	StatusComputed     DiagnosticStatus = "computed"
	StatusInconclusive DiagnosticStatus = "inconclusive"
)

// ResidualDiagnostic holds raw residual-versus-fitted values
type ResidualDiagnostic struct {
	Model        core.ModelID `json:"model" yaml:"model"`
	Fitted       []float64    `json:"fitted" yaml:"fitted"`
	Residuals    []float64    `json:"residuals" yaml:"residuals"`
	Standardized []float64    `json:"standardized" yaml:"standardized"`
}

// DispersionGroup is the residual spread within one covariate level or bin
type DispersionGroup struct {
	Level      string  `json:"level" yaml:"level"`
	N          int     `json:"n" yaml:"n"`
	ResidualSD float64 `json:"residual_sd" yaml:"residual_sd"`
	MeanAbsDev float64 `json:"mean_abs_dev" yaml:"mean_abs_dev"`
}

// DispersionDiagnostic describes how residual spread varies across a covariate.
// It carries values only; whether to respecify is the caller's decision.
type DispersionDiagnostic struct {
	Model  core.ModelID      `json:"model" yaml:"model"`
	Column string            `json:"column" yaml:"column"`
	Groups []DispersionGroup `json:"groups" yaml:"groups"`
	Test   ModelTest         `json:"test" yaml:"test"`
	Status DiagnosticStatus  `json:"status" yaml:"status"`
	Reason string            `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// SimulatedResiduals is a simulation-based goodness-of-fit check
type SimulatedResiduals struct {
	Model       core.ModelID     `json:"model" yaml:"model"`
	Simulations int              `json:"simulations" yaml:"simulations"`
	Scaled      []float64        `json:"scaled,omitempty" yaml:"scaled,omitempty"`
	Uniformity  ModelTest        `json:"uniformity" yaml:"uniformity"`
	Dispersion  ModelTest        `json:"dispersion" yaml:"dispersion"`
	Outliers    int              `json:"outliers" yaml:"outliers"`
	Status      DiagnosticStatus `json:"status" yaml:"status"`
	Reason      string           `json:"reason,omitempty" yaml:"reason,omitempty"`
}
