// Package models fits the candidate models of the treatment-comparison pipeline:
// one-way ANOVA, linear and linear mixed regression, and beta regression.
package models

import (
	"fmt"
	"math"
	"time"

	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/stats"
	"perchmp/internal"
	"perchmp/internal/analysis"

	"gonum.org/v1/gonum/mat"
)

// Fitter fits model specifications against frames. Fitted models are never mutated;
// a respecified model is a new fit that records the model it supersedes.
type Fitter struct {
	dist   *analysis.StatisticalDistributions
	logger *internal.Logger
}

// NewFitter creates a fitter; a nil logger uses the default logger
func NewFitter(logger *internal.Logger) *Fitter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Fitter{
		dist:   analysis.NewDistributions(),
		logger: logger.With("fitter"),
	}
}

// Fit is a convenience wrapper around a default Fitter
func Fit(frame dataset.Frame, spec stats.ModelSpec) (*stats.FittedModel, error) {
	return NewFitter(nil).Fit(frame, spec)
}

// Fit fits one specification. Errors wrap core.ErrModelFit and leave the caller free to
// respecify; nothing is retried here.
func (f *Fitter) Fit(frame dataset.Frame, spec stats.ModelSpec) (*stats.FittedModel, error) {
	start := time.Now()

	spec, err := resolveTerms(frame, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	d, err := buildDesign(frame, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}
	if err := d.checkRank(); err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}
	if spec.Random != "" {
		if err := d.checkRandom(spec.Random); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
	}

	var m *stats.FittedModel
	switch {
	case spec.Kind == stats.KindANOVA:
		m, err = f.fitANOVA(d, spec)
	case spec.Kind == stats.KindLinear && spec.Random == "":
		m, err = f.fitLinear(d, spec)
	case spec.Kind == stats.KindLinear:
		m, err = f.fitMixed(d, spec)
	case spec.Kind == stats.KindBeta:
		m, err = f.fitBeta(d, spec)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	m.ID = core.NewModelID()
	m.Spec = spec
	m.N = d.n()
	m.Encodings = d.Encodings
	m.Rows = d.Rows
	if d.Dropped > 0 {
		m.Warnings = append(m.Warnings, fmt.Sprintf("%d row(s) with missing values excluded", d.Dropped))
	}

	f.logger.Info("fitted %s [%s] n=%d %s=%.4g p=%.4g in %s",
		spec.Name, spec.Formula(), m.N, m.Overall.Name, m.Overall.Statistic, m.Overall.PValue, time.Since(start).Round(time.Millisecond))
	for _, w := range m.Warnings {
		f.logger.Warn("%s: %s", spec.Name, w)
	}
	return m, nil
}

// Refit fits a respecified model that supersedes an earlier attempt. The attempt may
// have failed, so it is identified by ID only.
func (f *Fitter) Refit(frame dataset.Frame, supersedes core.ModelID, spec stats.ModelSpec) (*stats.FittedModel, error) {
	m, err := f.Fit(frame, spec)
	if err != nil {
		return nil, err
	}
	m.Supersedes = supersedes
	if supersedes != "" {
		f.logger.Info("%s supersedes %s", m.ID, supersedes)
	}
	return m, nil
}

// coefficients builds the coefficient table from estimates and their covariance.
// df > 0 uses t reference distributions, otherwise Wald z.
func (f *Fitter) coefficients(names []string, beta []float64, vcov *mat.SymDense, df, level float64) []stats.Coefficient {
	var crit float64
	if df > 0 {
		crit = f.dist.TQuantile(level, df)
	} else {
		crit = f.dist.ZQuantile(level)
	}

	out := make([]stats.Coefficient, len(beta))
	for i, b := range beta {
		se := math.Sqrt(vcov.At(i, i))
		stat := b / se
		var p float64
		if df > 0 {
			p = f.dist.TTestPValue(stat, df)
		} else {
			p = f.dist.ZPValue(stat)
		}
		out[i] = stats.Coefficient{
			Term:      names[i],
			Estimate:  b,
			StdErr:    se,
			Statistic: stat,
			PValue:    p,
			Lower:     b - crit*se,
			Upper:     b + crit*se,
		}
	}
	return out
}

// waldTest is the joint chi-square test that all non-intercept coefficients are zero
func (f *Fitter) waldTest(beta []float64, vcov *mat.SymDense) stats.ModelTest {
	k := len(beta) - 1
	if k < 1 {
		return stats.ModelTest{Name: "Wald chi2", Statistic: math.NaN(), PValue: math.NaN()}
	}
	sub := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sub.SetSym(i, j, vcov.At(i+1, j+1))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(sub) {
		return stats.ModelTest{Name: "Wald chi2", Statistic: math.NaN(), DF1: float64(k), PValue: math.NaN()}
	}
	b := mat.NewVecDense(k, append([]float64(nil), beta[1:]...))
	sol := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(sol, b); err != nil {
		return stats.ModelTest{Name: "Wald chi2", Statistic: math.NaN(), DF1: float64(k), PValue: math.NaN()}
	}
	w := mat.Dot(b, sol)
	return stats.ModelTest{Name: "Wald chi2", Statistic: w, DF1: float64(k), PValue: f.dist.ChiSquarePValue(w, float64(k))}
}

func scaledSym(a *mat.SymDense, s float64) *mat.SymDense {
	n := a.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.ScaleSym(s, a)
	return out
}
