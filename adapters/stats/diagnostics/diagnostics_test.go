package diagnostics

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"perchmp/adapters/stats/models"
	"perchmp/domain/dataset"
	"perchmp/domain/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func gaussianModel(response, fitted []float64, sigma float64) *stats.FittedModel {
	rows := make([]int, len(response))
	for i := range rows {
		rows[i] = i
	}
	return &stats.FittedModel{
		Spec:            stats.ModelSpec{Name: "test", Kind: stats.KindLinear, Response: stats.Term{Column: "y"}},
		Response:        response,
		Fitted:          fitted,
		LinearPredictor: fitted,
		Sigma:           sigma,
		Rows:            rows,
	}
}

func TestRaw_StandardizesBySigma(t *testing.T) {
	m := gaussianModel([]float64{1, 3, 5}, []float64{2, 2, 4}, 2)

	raw := NewDiagnoser(nil).Raw(m)
	assert.Equal(t, []float64{-1, 1, 1}, raw.Residuals)
	assert.Equal(t, []float64{-0.5, 0.5, 0.5}, raw.Standardized)
	assert.Equal(t, []float64{2, 2, 4}, raw.Fitted)
}

func TestRaw_BetaUsesPearsonScale(t *testing.T) {
	m := &stats.FittedModel{
		Spec:     stats.ModelSpec{Kind: stats.KindBeta},
		Response: []float64{0.6},
		Fitted:   []float64{0.5},
		Phi:      24,
	}
	raw := NewDiagnoser(nil).Raw(m)
	assert.InDelta(t, 0.1/math.Sqrt(0.25/25), raw.Standardized[0], 1e-12)
}

func TestSimulate_InconclusiveBelowThresholds(t *testing.T) {
	d := NewDiagnoser(nil)
	rng := rand.New(rand.NewSource(1))

	small := gaussianModel([]float64{1, 2, 3}, []float64{1, 2, 3}, 1)
	res, err := d.Simulate(context.Background(), small, rng, 250)
	require.NoError(t, err)
	assert.Equal(t, stats.StatusInconclusive, res.Status)
	assert.Contains(t, res.Reason, "3 observations")
	assert.Nil(t, res.Scaled)
	assert.True(t, math.IsNaN(res.Uniformity.PValue))

	y := make([]float64, 20)
	res, err = d.Simulate(context.Background(), gaussianModel(y, y, 1), rng, 5)
	require.NoError(t, err)
	assert.Equal(t, stats.StatusInconclusive, res.Status)
	assert.Contains(t, res.Reason, "5 simulations")
}

func TestSimulate_WellSpecifiedModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	noise := distuv.Normal{Mu: 0, Sigma: 1.5, Src: rng}
	x := make([]float64, 120)
	y := make([]float64, 120)
	for i := range x {
		x[i] = float64(i % 12)
		y[i] = 3 + 0.5*x[i] + noise.Rand()
	}
	b := dataset.NewColumnBundle(len(x))
	require.NoError(t, b.AddNumeric("x", x))
	require.NoError(t, b.AddNumeric("y", y))

	f, err := models.ParseFormula("y ~ x")
	require.NoError(t, err)
	m, err := models.Fit(b, f.Apply(stats.ModelSpec{Name: "line", Kind: stats.KindLinear, Family: stats.FamilyGaussian, Link: stats.LinkIdentity}))
	require.NoError(t, err)

	res, err := NewDiagnoser(nil).Simulate(context.Background(), m, rand.New(rand.NewSource(7)), 250)
	require.NoError(t, err)
	assert.Equal(t, stats.StatusComputed, res.Status)
	require.Len(t, res.Scaled, len(y))
	for _, u := range res.Scaled {
		assert.GreaterOrEqual(t, u, 0.0)
		assert.LessOrEqual(t, u, 1.0)
	}
	assert.Greater(t, res.Uniformity.PValue, 0.001)
	assert.InDelta(t, 1.0, res.Dispersion.Statistic, 0.25)
	assert.LessOrEqual(t, res.Outliers, 6)
}

func TestSimulate_DetectsUnderdispersedModel(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	wide := distuv.Normal{Mu: 0, Sigma: 4, Src: rng}
	y := make([]float64, 200)
	for i := range y {
		y[i] = wide.Rand()
	}
	m := gaussianModel(y, make([]float64, len(y)), 1)

	res, err := NewDiagnoser(nil).Simulate(context.Background(), m, rand.New(rand.NewSource(9)), 100)
	require.NoError(t, err)
	assert.Equal(t, stats.StatusComputed, res.Status)
	assert.Less(t, res.Uniformity.PValue, 1e-6)
	assert.Greater(t, res.Dispersion.Statistic, 2.5)
	assert.Less(t, res.Dispersion.PValue, 0.05)
	assert.Greater(t, res.Outliers, 20)
}

func TestSimulate_HonoursCancellation(t *testing.T) {
	y := make([]float64, 30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDiagnoser(nil).Simulate(ctx, gaussianModel(y, y, 1), rand.New(rand.NewSource(1)), 50)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulate_SameSeedSameResult(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	m := gaussianModel(y, []float64{1.5, 2, 2.5, 4, 5.5, 6, 6.5, 8, 9.5, 9}, 1)
	d := NewDiagnoser(nil)

	a, err := d.Simulate(context.Background(), m, rand.New(rand.NewSource(3)), 40)
	require.NoError(t, err)
	b, err := d.Simulate(context.Background(), m, rand.New(rand.NewSource(3)), 40)
	require.NoError(t, err)
	assert.Equal(t, a.Scaled, b.Scaled)
}

func TestDispersion_ByLabelAndQuartile(t *testing.T) {
	resid := []float64{-1, 1, -1, 1, -5, 5, -5, 5, -4, 4, -6, 6}
	group := []string{"a", "a", "a", "a", "b", "b", "b", "b", "b", "b", "b", "b"}
	size := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	b := dataset.NewColumnBundle(len(resid))
	require.NoError(t, b.AddLabels("treatment", group))
	require.NoError(t, b.AddNumeric("FL", size))
	m := gaussianModel(resid, make([]float64, len(resid)), 1)

	d := NewDiagnoser(nil)
	byLabel, err := d.Dispersion(m, b, "treatment")
	require.NoError(t, err)
	require.Len(t, byLabel.Groups, 2)
	assert.Equal(t, "a", byLabel.Groups[0].Level)
	assert.Equal(t, 4, byLabel.Groups[0].N)
	assert.InDelta(t, 1.0, byLabel.Groups[0].MeanAbsDev, 1e-12)
	assert.Greater(t, byLabel.Groups[1].ResidualSD, byLabel.Groups[0].ResidualSD)
	assert.Equal(t, "Brown-Forsythe", byLabel.Test.Name)
	assert.Less(t, byLabel.Test.PValue, 0.01)
	assert.Equal(t, stats.StatusComputed, byLabel.Status)

	byQuartile, err := d.Dispersion(m, b, "FL")
	require.NoError(t, err)
	assert.Len(t, byQuartile.Groups, 4)
	total := 0
	for _, g := range byQuartile.Groups {
		total += g.N
	}
	assert.Equal(t, len(resid), total)
}

func TestDispersion_SingleGroupIsInconclusive(t *testing.T) {
	b := dataset.NewColumnBundle(4)
	require.NoError(t, b.AddLabels("treatment", []string{"a", "a", "a", "a"}))
	m := gaussianModel([]float64{1, -1, 2, -2}, make([]float64, 4), 1)

	res, err := NewDiagnoser(nil).Dispersion(m, b, "treatment")
	require.NoError(t, err)
	assert.Equal(t, stats.StatusInconclusive, res.Status)
}
