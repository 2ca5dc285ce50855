package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudentizedRange_TableValues(t *testing.T) {
	sd := NewDistributions()

	// Upper 5% points of the studentized range from standard Tukey tables
	cases := []struct {
		k    int
		df   float64
		want float64
	}{
		{2, math.Inf(1), 2.772},
		{3, 10, 3.877},
		{4, 12, 4.199},
		{5, 20, 4.232},
	}
	for _, c := range cases {
		got := sd.StudentizedRangeQuantile(0.95, c.k, c.df)
		assert.InDelta(t, c.want, got, 0.01, "q(0.95; k=%d, df=%g)", c.k, c.df)
		assert.InDelta(t, 0.95, sd.StudentizedRangeCDF(c.want, c.k, c.df), 0.002)
	}
}

func TestStudentizedRangeCDF_Monotone(t *testing.T) {
	sd := NewDistributions()
	prev := 0.0
	for q := 0.5; q < 8; q += 0.5 {
		p := sd.StudentizedRangeCDF(q, 4, 15)
		if p < prev-1e-9 {
			t.Fatalf("CDF decreased at q=%g: %g < %g", q, p, prev)
		}
		prev = p
	}
	assert.Equal(t, 0.0, sd.StudentizedRangeCDF(0, 4, 15))
	assert.Equal(t, 0.0, sd.StudentizedRangeCDF(-1, 4, 15))
}

func TestKolmogorovUniform(t *testing.T) {
	sd := NewDistributions()

	n := 200
	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = (float64(i) + 0.5) / float64(n)
	}
	d, p := sd.KolmogorovUniform(uniform)
	assert.InDelta(t, 0.5/float64(n), d, 1e-12)
	assert.Greater(t, p, 0.99)

	skewed := make([]float64, n)
	for i := range skewed {
		u := (float64(i) + 0.5) / float64(n)
		skewed[i] = u * u
	}
	_, p = sd.KolmogorovUniform(skewed)
	assert.Less(t, p, 0.001)
}

func TestPValueHelpers(t *testing.T) {
	sd := NewDistributions()

	assert.InDelta(t, 0.05, sd.TTestPValue(2.228, 10), 1e-3)
	assert.InDelta(t, 2.228, sd.TQuantile(0.95, 10), 1e-3)
	assert.InDelta(t, 0.05, sd.ZPValue(1.959964), 1e-5)
	assert.InDelta(t, 0.05, sd.FTestPValue(3.885, 2, 12), 1e-3)
	assert.InDelta(t, 0.05, sd.ChiSquarePValue(3.841, 1), 1e-3)
	assert.True(t, math.IsNaN(sd.FTestPValue(1, 0, 10)))
}

func TestSimulationPValue(t *testing.T) {
	sd := NewDistributions()
	sims := make([]float64, 99)
	for i := range sims {
		sims[i] = float64(i)
	}
	assert.InDelta(t, 0.02, sd.SimulationPValue(1000, sims), 1e-12)
	assert.Equal(t, 1.0, sd.SimulationPValue(49, sims))
}
