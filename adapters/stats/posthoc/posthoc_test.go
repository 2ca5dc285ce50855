package posthoc

import (
	"math"
	"testing"

	"perchmp/adapters/stats/models"
	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fit(t *testing.T, frame dataset.Frame, kind stats.ModelKind, formula string) *stats.FittedModel {
	t.Helper()
	f, err := models.ParseFormula(formula)
	require.NoError(t, err)
	spec := stats.ModelSpec{Name: "test", Kind: kind, Family: stats.FamilyGaussian, Link: stats.LinkIdentity}
	if kind == stats.KindBeta {
		spec.Family, spec.Link = stats.FamilyBeta, stats.LinkLogit
	}
	m, err := models.Fit(frame, f.Apply(spec))
	require.NoError(t, err)
	return m
}

func oneWay(t *testing.T) *stats.FittedModel {
	t.Helper()
	b := dataset.NewColumnBundle(9)
	require.NoError(t, b.AddNumeric("TL", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.NoError(t, b.AddLabels("treatment", []string{"0a", "0a", "0a", "10", "10", "10", "200", "200", "200"}))
	return fit(t, b, stats.KindANOVA, "TL ~ factor(treatment)")
}

func TestTukey_AllPairsWithIntervals(t *testing.T) {
	m := oneWay(t)

	cmp, err := NewComparator(nil).Tukey(m, 0.05)
	require.NoError(t, err)
	assert.Equal(t, "treatment", cmp.Factor)
	assert.Equal(t, m.ID, cmp.Model)
	require.Len(t, cmp.Pairs, 3, "C(3,2) pairs")

	first := cmp.Pairs[0]
	assert.Equal(t, "0a", first.A)
	assert.Equal(t, "10", first.B)
	assert.InDelta(t, 3.0, first.Diff, 1e-9)
	assert.InDelta(t, math.Sqrt(2.0/3.0), first.StdErr, 1e-9)
	// q(0.95; 3, 6) = 4.339, half width q * sqrt(MSE/n)
	assert.InDelta(t, 4.339/math.Sqrt(3), first.Upper-first.Diff, 0.01)
	assert.Greater(t, first.PAdj, 0.005)
	assert.Less(t, first.PAdj, 0.05)
	assert.True(t, first.Significant)

	last := cmp.Pairs[1]
	assert.Equal(t, "200", last.B)
	assert.InDelta(t, 6.0, last.Diff, 1e-9)
	assert.Less(t, last.PAdj, 0.005)

	for _, p := range cmp.Pairs {
		assert.LessOrEqual(t, p.Lower, p.Diff)
		assert.GreaterOrEqual(t, p.Upper, p.Diff)
	}
	assert.Equal(t, 3, cmp.Means[0].N)
	assert.True(t, cmp.Significant("200", "0a"))
}

func TestTukey_RejectsUnsuitableModels(t *testing.T) {
	m := oneWay(t)
	mixed := *m
	mixed.Spec.Random = "corral"

	_, err := NewComparator(nil).Tukey(&mixed, 0.05)
	assert.ErrorIs(t, err, core.ErrUnsupportedModel)
}

func TestLetters_AllDifferent(t *testing.T) {
	cmp, err := NewComparator(nil).Tukey(oneWay(t), 0.05)
	require.NoError(t, err)

	letters := Letters(cmp)
	require.Len(t, letters, 3)
	assert.Equal(t, stats.GroupLetters{Level: "0a", Mean: 2, Letters: "c"}, roundMean(letters[0]))
	assert.Equal(t, "b", letters[1].Letters)
	assert.Equal(t, "a", letters[2].Letters)
}

func roundMean(g stats.GroupLetters) stats.GroupLetters {
	g.Mean = math.Round(g.Mean*1e9) / 1e9
	return g
}

func TestLetters_OverlappingGroups(t *testing.T) {
	cmp := &stats.PairwiseComparison{
		Means: []stats.GroupMean{
			{Level: "A", Mean: 10}, {Level: "B", Mean: 9}, {Level: "C", Mean: 8}, {Level: "D", Mean: 5},
		},
		Pairs: []stats.PairDifference{
			{A: "A", B: "B"},
			{A: "A", B: "C", Significant: true},
			{A: "A", B: "D", Significant: true},
			{A: "B", B: "C"},
			{A: "B", B: "D", Significant: true},
			{A: "C", B: "D"},
		},
	}

	got := map[string]string{}
	for _, l := range Letters(cmp) {
		got[l.Level] = l.Letters
	}
	assert.Equal(t, map[string]string{"A": "a", "B": "ab", "C": "bc", "D": "c"}, got)

	// shared letter if and only if not significantly different
	for _, p := range cmp.Pairs {
		shared := false
		for _, r := range got[p.A] {
			if containsRune(got[p.B], r) {
				shared = true
			}
		}
		assert.Equal(t, !p.Significant, shared, "%s-%s", p.A, p.B)
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestLetters_NothingSignificant(t *testing.T) {
	cmp := &stats.PairwiseComparison{
		Means: []stats.GroupMean{{Level: "x", Mean: 1}, {Level: "y", Mean: 2}},
		Pairs: []stats.PairDifference{{A: "x", B: "y"}},
	}
	for _, l := range Letters(cmp) {
		assert.Equal(t, "a", l.Letters)
	}
}

func TestLetterNames(t *testing.T) {
	assert.Equal(t, "a", letter(0))
	assert.Equal(t, "z", letter(25))
	assert.Equal(t, "aa", letter(26))
	assert.Equal(t, "ab", letter(27))
}

func TestPredict_LogResponseBackTransforms(t *testing.T) {
	conc := []float64{0, 0, 10, 10, 50, 50, 200, 200}
	noise := []float64{0.02, -0.01, 0.015, -0.02, 0.01, 0, -0.01, 0.01}
	tl := make([]float64, len(conc))
	for i, c := range conc {
		tl[i] = math.Exp(2.3 - 0.04*math.Log1p(c) + noise[i])
	}
	b := dataset.NewColumnBundle(len(conc))
	require.NoError(t, b.AddNumeric("MPconcentration", conc))
	require.NoError(t, b.AddNumeric("TL", tl))
	m := fit(t, b, stats.KindLinear, "log(TL) ~ log1p(MPconcentration)")

	set, err := NewComparator(nil).Predict(m, PredictRequest{Column: "MPconcentration", Values: []float64{0, 25, 200}})
	require.NoError(t, err)
	require.Len(t, set.Points, 3)
	assert.Equal(t, 0.95, set.Level)

	icept, _ := m.Coefficient("(Intercept)")
	assert.InDelta(t, math.Exp(icept.Estimate), set.Points[0].Fit, 1e-9)
	for _, p := range set.Points {
		assert.Greater(t, p.Fit, 0.0)
		assert.Less(t, p.Lower, p.Fit)
		assert.Greater(t, p.Upper, p.Fit)
	}
	assert.Greater(t, set.Points[0].Fit, set.Points[2].Fit, "negative slope")
}

func TestPredict_HoldsOtherCovariates(t *testing.T) {
	b := dataset.NewColumnBundle(8)
	require.NoError(t, b.AddNumeric("x", []float64{1, 2, 3, 4, 1, 2, 3, 4}))
	require.NoError(t, b.AddNumeric("y", []float64{1.1, 2.0, 2.9, 4.2, 3.0, 4.1, 5.0, 5.9}))
	require.NoError(t, b.AddLabels("g", []string{"a", "a", "a", "a", "b", "b", "b", "b"}))
	m := fit(t, b, stats.KindLinear, "y ~ x + factor(g)")

	c := NewComparator(nil)
	ref, err := c.Predict(m, PredictRequest{Column: "x", Values: []float64{2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"g": "a"}, ref.Held)

	other, err := c.Predict(m, PredictRequest{Column: "x", Values: []float64{2}, Levels: map[string]string{"g": "b"}})
	require.NoError(t, err)
	gb, _ := m.Coefficient("g[b]")
	assert.InDelta(t, gb.Estimate, other.Points[0].Fit-ref.Points[0].Fit, 1e-9)

	_, err = c.Predict(m, PredictRequest{Column: "g", Values: []float64{1}})
	assert.ErrorIs(t, err, core.ErrUnknownColumn)
}

func TestPredict_BetaStaysInUnitInterval(t *testing.T) {
	b := dataset.NewColumnBundle(10)
	require.NoError(t, b.AddNumeric("conc", []float64{0, 0, 10, 10, 50, 50, 100, 100, 200, 200}))
	require.NoError(t, b.AddNumeric("survival", []float64{0.9, 0.85, 0.8, 0.82, 0.7, 0.75, 0.6, 0.65, 0.5, 0.45}))
	m := fit(t, b, stats.KindBeta, "survival ~ conc")

	set, err := NewComparator(nil).Predict(m, PredictRequest{Column: "conc", Values: []float64{0, 100, 1000}})
	require.NoError(t, err)
	for _, p := range set.Points {
		assert.Greater(t, p.Lower, 0.0)
		assert.Less(t, p.Upper, 1.0)
		assert.LessOrEqual(t, p.Lower, p.Fit)
		assert.GreaterOrEqual(t, p.Upper, p.Fit)
	}
}
