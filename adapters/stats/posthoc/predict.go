package posthoc

import (
	"fmt"
	"math"

	"perchmp/adapters/stats/models"
	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/stats"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// PredictRequest asks for a trend over one numeric covariate. Values are on the raw scale.
// Other numeric covariates are held at their mean and factors at their reference level
// unless Levels overrides them.
type PredictRequest struct {
	Column string            `yaml:"column"`
	Values []float64         `yaml:"values"`
	Levels map[string]string `yaml:"levels,omitempty"`
}

// Predict computes marginal predictions with confidence bounds. Intervals are built on the
// linear-predictor scale and mapped back through the inverse link or response transform,
// so they stay inside the response's range. Random effects are set to zero.
func (c *Comparator) Predict(m *stats.FittedModel, req PredictRequest) (*stats.PredictionSet, error) {
	var target *stats.TermEncoding
	for i := range m.Encodings {
		if m.Encodings[i].Term.Column == req.Column && !m.Encodings[i].Term.Categorical {
			target = &m.Encodings[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s has no numeric term %q", core.ErrUnknownColumn, m.Spec.Name, req.Column)
	}
	if m.Vcov == nil {
		return nil, fmt.Errorf("%w: %s has no coefficient covariance", core.ErrModelFit, m.Spec.Name)
	}

	held := make(map[string]string)
	for _, enc := range m.Encodings {
		if enc.Term.Column == req.Column {
			continue
		}
		if enc.Term.Categorical {
			lvl, ok := req.Levels[enc.Term.Column]
			if !ok {
				lvl = enc.Levels[0]
			}
			held[enc.Term.Column] = lvl
			continue
		}
		held[enc.Term.Column] = dataset.FormatLevel(enc.Term.Inverse(enc.Mean))
	}

	level := m.Spec.Level()
	crit := c.critical(m, level)
	inverse := responseInverse(m)

	beta := make([]float64, len(m.Coefficients))
	for i, coef := range m.Coefficients {
		beta[i] = coef.Estimate
	}
	bv := mat.NewVecDense(len(beta), beta)

	set := &stats.PredictionSet{Model: m.ID, Column: req.Column, Held: held, Level: level}
	for _, v := range req.Values {
		tv := target.Term.Apply(v)
		if math.IsNaN(tv) {
			return nil, fmt.Errorf("%w: %g is outside the domain of %s", core.ErrUnsupportedModel, v, target.Term)
		}
		x := mat.NewVecDense(len(beta), models.EncodeRow(m.Encodings, map[string]float64{req.Column: tv}, req.Levels))
		eta := mat.Dot(x, bv)
		se := math.Sqrt(mat.Inner(x, m.Vcov, x))
		set.Points = append(set.Points, stats.Prediction{
			Value:  v,
			Fit:    inverse(eta),
			StdErr: se,
			Lower:  inverse(eta - crit*se),
			Upper:  inverse(eta + crit*se),
		})
	}
	c.logger.Debug("%s: %d predictions over %s", m.Spec.Name, len(set.Points), req.Column)
	return set, nil
}

// critical uses t quantiles for ordinary least squares fits and normal quantiles for
// likelihood fits
func (c *Comparator) critical(m *stats.FittedModel, level float64) float64 {
	if m.Spec.Kind != stats.KindBeta && m.Spec.Random == "" && m.DFResidual > 0 {
		return c.dist.TQuantile(level, m.DFResidual)
	}
	return c.dist.ZQuantile(level)
}

func responseInverse(m *stats.FittedModel) func(float64) float64 {
	if m.Spec.Kind == stats.KindBeta {
		if m.Spec.Link == stats.LinkProbit {
			return distuv.UnitNormal.CDF
		}
		return func(eta float64) float64 { return 1 / (1 + math.Exp(-eta)) }
	}
	return m.Spec.Response.Inverse
}
