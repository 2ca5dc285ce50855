package diagnostics

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"perchmp/domain/stats"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Simulate draws nSim synthetic response vectors from the fitted model, unconditional on
// random effects, and scales each observation by its position in its own simulated
// distribution. Well-specified models give scaled residuals that are Uniform(0,1).
func (d *Diagnoser) Simulate(ctx context.Context, m *stats.FittedModel, rng *rand.Rand, nSim int) (stats.SimulatedResiduals, error) {
	out := stats.SimulatedResiduals{Model: m.ID, Simulations: nSim, Status: stats.StatusComputed}
	nan := stats.ModelTest{Statistic: math.NaN(), PValue: math.NaN()}
	out.Uniformity, out.Dispersion = nan, nan

	n := len(m.Response)
	switch {
	case n < MinObservations:
		out.Status, out.Reason = inconclusive(fmt.Sprintf("%d observations, at least %d needed for a simulation check", n, MinObservations))
	case nSim < MinSimulations:
		out.Status, out.Reason = inconclusive(fmt.Sprintf("%d simulations, at least %d needed", nSim, MinSimulations))
	}
	if out.Status == stats.StatusInconclusive {
		d.logger.Warn("%s: simulated residuals inconclusive: %s", describe(m), out.Reason)
		return out, nil
	}

	draw, err := d.simulator(m, rng)
	if err != nil {
		return out, err
	}

	sims := make([][]float64, nSim)
	for s := range sims {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sims[s] = draw()
	}

	out.Scaled = make([]float64, n)
	simMean := make([]float64, n)
	for i, y := range m.Response {
		below, equal := 0, 0
		for s := range sims {
			v := sims[s][i]
			simMean[i] += v
			switch {
			case v < y:
				below++
			case v == y:
				equal++
			}
		}
		simMean[i] /= float64(nSim)
		out.Scaled[i] = (float64(below) + rng.Float64()*float64(equal+1)) / float64(nSim+1)
		if below == nSim || below+equal == 0 {
			out.Outliers++
		}
	}

	dStat, p := d.dist.KolmogorovUniform(out.Scaled)
	out.Uniformity = stats.ModelTest{Name: "KS", Statistic: dStat, DF1: float64(n), PValue: p}
	out.Dispersion = d.dispersionTest(m.Response, sims, simMean)

	d.logger.Info("%s: simulated residuals (%d draws) KS D=%.3g p=%.3g, dispersion=%.3g p=%.3g, %d outlier(s)",
		describe(m), nSim, dStat, p, out.Dispersion.Statistic, out.Dispersion.PValue, out.Outliers)
	return out, nil
}

// dispersionTest compares the spread of observed responses around the simulated means with
// the spread of each simulation around the same means
func (d *Diagnoser) dispersionTest(observed []float64, sims [][]float64, simMean []float64) stats.ModelTest {
	spread := func(values []float64) float64 {
		dev := make([]float64, len(values))
		for i, v := range values {
			dev[i] = v - simMean[i]
		}
		sd, err := mstats.StandardDeviationSample(dev)
		if err != nil {
			return math.NaN()
		}
		return sd
	}

	obs := spread(observed)
	simulated := make([]float64, len(sims))
	for s, sim := range sims {
		simulated[s] = spread(sim)
	}
	ref, _ := mstats.Mean(simulated)
	return stats.ModelTest{
		Name:      "dispersion ratio",
		Statistic: obs / ref,
		DF1:       float64(len(sims)),
		PValue:    d.dist.SimulationPValue(obs, simulated),
	}
}

// simulator returns a closure drawing one response vector on the model scale
func (d *Diagnoser) simulator(m *stats.FittedModel, rng *rand.Rand) (func() []float64, error) {
	n := len(m.Response)
	if len(m.LinearPredictor) != n {
		return nil, fmt.Errorf("model %s has no linear predictor", m.Spec.Name)
	}

	groupDraws := func() []float64 { return nil }
	if m.Random != nil && len(m.GroupIndex) == n {
		re := distuv.Normal{Mu: 0, Sigma: math.Max(m.Random.SD, 1e-12), Src: rng}
		levels := len(m.Random.Levels)
		groupDraws = func() []float64 {
			b := make([]float64, levels)
			for g := range b {
				b[g] = re.Rand()
			}
			return b
		}
	}
	shift := func(b []float64, i int) float64 {
		if b == nil {
			return 0
		}
		return b[m.GroupIndex[i]]
	}

	if m.Spec.Kind == stats.KindBeta {
		mean := inverseLink(m.Spec.Link)
		return func() []float64 {
			b := groupDraws()
			y := make([]float64, n)
			for i, eta := range m.LinearPredictor {
				mu := math.Min(math.Max(mean(eta+shift(b, i)), 1e-10), 1-1e-10)
				y[i] = distuv.Beta{Alpha: mu * m.Phi, Beta: (1 - mu) * m.Phi, Src: rng}.Rand()
			}
			return y
		}, nil
	}

	noise := distuv.Normal{Mu: 0, Sigma: m.Sigma, Src: rng}
	return func() []float64 {
		b := groupDraws()
		y := make([]float64, n)
		for i, eta := range m.LinearPredictor {
			y[i] = eta + shift(b, i) + noise.Rand()
		}
		return y
	}, nil
}

func inverseLink(l stats.Link) func(float64) float64 {
	if l == stats.LinkProbit {
		return distuv.UnitNormal.CDF
	}
	return func(eta float64) float64 { return 1 / (1 + math.Exp(-eta)) }
}
