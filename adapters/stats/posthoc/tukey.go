// Package posthoc derives pairwise comparisons, compact letter displays and marginal
// predictions from fitted models.
package posthoc

import (
	"fmt"
	"math"

	"perchmp/domain/core"
	"perchmp/domain/stats"
	"perchmp/internal"
	"perchmp/internal/analysis"

	"gonum.org/v1/gonum/mat"
)

// DefaultAlpha is the family-wise error rate used when none is given
const DefaultAlpha = 0.05

// Comparator computes post-hoc comparisons
type Comparator struct {
	dist   *analysis.StatisticalDistributions
	logger *internal.Logger
}

// NewComparator creates a comparator; a nil logger uses the default logger
func NewComparator(logger *internal.Logger) *Comparator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Comparator{
		dist:   analysis.NewDistributions(),
		logger: logger.With("posthoc"),
	}
}

// Tukey computes Tukey-Kramer honest significant differences between all levels of a
// model's single factor. Differences are B minus A for A before B in level order.
func (c *Comparator) Tukey(m *stats.FittedModel, alpha float64) (*stats.PairwiseComparison, error) {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	enc, ok := m.Factor()
	if !ok || m.Spec.Kind == stats.KindBeta {
		return nil, fmt.Errorf("%w: %s: Tukey comparisons need a gaussian model with one factor and no random effect",
			core.ErrUnsupportedModel, m.Spec.Name)
	}
	k := len(enc.Levels)
	if k < 2 {
		return nil, fmt.Errorf("%w: %s has a single level", core.ErrInsufficientData, enc.Term.Column)
	}
	if m.DFResidual <= 0 || m.Vcov == nil {
		return nil, fmt.Errorf("%w: %s has no residual degrees of freedom", core.ErrInsufficientData, m.Spec.Name)
	}

	means := levelMeans(m, enc)
	qCrit := c.dist.StudentizedRangeQuantile(1-alpha, k, m.DFResidual)

	cmp := &stats.PairwiseComparison{
		Model:  m.ID,
		Factor: enc.Term.Column,
		Method: "tukey",
		Alpha:  alpha,
		Means:  means,
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			diff := means[j].Mean - means[i].Mean
			se := contrastSE(m.Vcov, i, j)
			q := math.Abs(diff) / se * math.Sqrt2
			p := 1 - c.dist.StudentizedRangeCDF(q, k, m.DFResidual)
			half := qCrit / math.Sqrt2 * se
			cmp.Pairs = append(cmp.Pairs, stats.PairDifference{
				A:           enc.Levels[i],
				B:           enc.Levels[j],
				Diff:        diff,
				StdErr:      se,
				Lower:       diff - half,
				Upper:       diff + half,
				PAdj:        p,
				Significant: p < alpha,
			})
		}
	}

	significant := 0
	for _, p := range cmp.Pairs {
		if p.Significant {
			significant++
		}
	}
	c.logger.Info("%s: Tukey HSD over %d levels of %s, %d of %d pairs significant at %.3g",
		m.Spec.Name, k, enc.Term.Column, significant, len(cmp.Pairs), alpha)
	return cmp, nil
}

// levelMeans recovers level means from treatment-contrast coefficients, with group
// sizes from the fit when it reported them
func levelMeans(m *stats.FittedModel, enc stats.TermEncoding) []stats.GroupMean {
	counts := make(map[string]int, len(m.Groups))
	for _, g := range m.Groups {
		counts[g.Level] = g.N
	}
	base := m.Coefficients[0].Estimate
	out := make([]stats.GroupMean, len(enc.Levels))
	for i, lvl := range enc.Levels {
		mean := base
		if i > 0 {
			mean += m.Coefficients[i].Estimate
		}
		out[i] = stats.GroupMean{Level: lvl, N: counts[lvl], Mean: mean}
	}
	return out
}

// contrastSE is the standard error of mean_j - mean_i. Level 0 is the intercept alone,
// level k > 0 adds coefficient k, so the contrast is beta_j - beta_i.
func contrastSE(vcov *mat.SymDense, i, j int) float64 {
	v := vcov.At(j, j)
	if i > 0 {
		v += vcov.At(i, i) - 2*vcov.At(i, j)
	}
	return math.Sqrt(v)
}
