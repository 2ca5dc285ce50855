// Package diagnostics computes advisory residual diagnostics for fitted models.
// Diagnostics return values, never verdicts; respecifying is the caller's decision.
package diagnostics

import (
	"fmt"
	"math"

	"perchmp/domain/stats"
	"perchmp/internal"
	"perchmp/internal/analysis"
)

const (
	// MinObservations is the smallest model size a simulation check is run on
	MinObservations = 8
	// MinSimulations is the smallest number of simulated responses accepted
	MinSimulations = 10
)

// Diagnoser computes residual diagnostics
type Diagnoser struct {
	dist   *analysis.StatisticalDistributions
	logger *internal.Logger
}

// NewDiagnoser creates a diagnoser; a nil logger uses the default logger
func NewDiagnoser(logger *internal.Logger) *Diagnoser {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Diagnoser{
		dist:   analysis.NewDistributions(),
		logger: logger.With("diagnostics"),
	}
}

// Raw returns residual-versus-fitted values. Standardized residuals are Pearson residuals:
// scaled by sigma for gaussian models and by the beta variance mu(1-mu)/(1+phi) otherwise.
func (d *Diagnoser) Raw(m *stats.FittedModel) stats.ResidualDiagnostic {
	resid := m.Residuals()
	std := make([]float64, len(resid))
	for i, r := range resid {
		std[i] = r / d.scale(m, m.Fitted[i])
	}
	return stats.ResidualDiagnostic{
		Model:        m.ID,
		Fitted:       append([]float64(nil), m.Fitted...),
		Residuals:    resid,
		Standardized: std,
	}
}

func (d *Diagnoser) scale(m *stats.FittedModel, fitted float64) float64 {
	if m.Spec.Kind == stats.KindBeta {
		return math.Sqrt(fitted * (1 - fitted) / (1 + m.Phi))
	}
	return m.Sigma
}

func inconclusive(reason string) (stats.DiagnosticStatus, string) {
	return stats.StatusInconclusive, reason
}

func describe(m *stats.FittedModel) string {
	return fmt.Sprintf("%s [%s]", m.Spec.Name, m.Spec.Formula())
}
