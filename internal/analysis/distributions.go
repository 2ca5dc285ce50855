package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

// StatisticalDistributions provides unified access to the reference distributions used
// by model tests, post-hoc comparisons and diagnostics
type StatisticalDistributions struct{}

// NewDistributions creates a new distributions utility
func NewDistributions() *StatisticalDistributions {
	return &StatisticalDistributions{}
}

// TTestPValue computes the two-sided p-value for a t statistic
func (sd *StatisticalDistributions) TTestPValue(tStatistic, degreesOfFreedom float64) float64 {
	if degreesOfFreedom <= 0 || math.IsNaN(tStatistic) {
		return math.NaN()
	}
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: degreesOfFreedom}
	return 2 * tDist.Survival(math.Abs(tStatistic))
}

// TQuantile returns the two-sided critical t value for a confidence level
func (sd *StatisticalDistributions) TQuantile(level, degreesOfFreedom float64) float64 {
	if degreesOfFreedom <= 0 {
		return math.NaN()
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: degreesOfFreedom}.Quantile(1 - (1-level)/2)
}

// ZPValue computes the two-sided p-value for a Wald z statistic
func (sd *StatisticalDistributions) ZPValue(z float64) float64 {
	if math.IsNaN(z) {
		return math.NaN()
	}
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// ZQuantile returns the two-sided critical normal value for a confidence level
func (sd *StatisticalDistributions) ZQuantile(level float64) float64 {
	return distuv.UnitNormal.Quantile(1 - (1-level)/2)
}

// FTestPValue computes the upper-tail p-value of an F statistic (ANOVA, regression)
func (sd *StatisticalDistributions) FTestPValue(fStatistic, df1, df2 float64) float64 {
	if df1 <= 0 || df2 <= 0 || math.IsNaN(fStatistic) {
		return math.NaN()
	}
	return distuv.F{D1: df1, D2: df2}.Survival(fStatistic)
}

// ChiSquarePValue computes the upper-tail p-value of a chi-square statistic
func (sd *StatisticalDistributions) ChiSquarePValue(chiSquare, degreesOfFreedom float64) float64 {
	if degreesOfFreedom <= 0 || math.IsNaN(chiSquare) {
		return math.NaN()
	}
	return distuv.ChiSquared{K: degreesOfFreedom}.Survival(chiSquare)
}

// StudentizedRangeCDF returns P(Q <= q) for the range of k means with df error degrees of
// freedom. The inner integral is the range distribution of k unit normals; the outer
// integral mixes it over the scaled chi distribution of the error SD.
func (sd *StatisticalDistributions) StudentizedRangeCDF(q float64, k int, df float64) float64 {
	if q <= 0 || k < 2 {
		return 0
	}
	if math.IsInf(q, 1) {
		return 1
	}
	if df > 25000 || math.IsInf(df, 1) {
		return normalRangeCDF(q, k)
	}

	chi := distuv.ChiSquared{K: df}
	lo := math.Sqrt(chi.Quantile(1e-12) / df)
	hi := math.Sqrt(chi.Quantile(1-1e-12) / df)

	logNorm := df/2*math.Log(df) - lgamma(df/2) - (df/2-1)*math.Ln2
	density := func(s float64) float64 {
		if s <= 0 {
			return 0
		}
		return math.Exp(logNorm + (df-1)*math.Log(s) - df*s*s/2)
	}

	const panels = 16
	width := (hi - lo) / panels
	total := 0.0
	for p := 0; p < panels; p++ {
		a := lo + float64(p)*width
		total += quad.Fixed(func(s float64) float64 {
			return density(s) * normalRangeCDF(q*s, k)
		}, a, a+width, 24, quad.Legendre{}, 0)
	}
	return clamp01(total)
}

// StudentizedRangeQuantile inverts StudentizedRangeCDF by bisection
func (sd *StatisticalDistributions) StudentizedRangeQuantile(p float64, k int, df float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return math.Inf(1)
	}
	lo, hi := 0.0, 4.0
	for sd.StudentizedRangeCDF(hi, k, df) < p {
		lo = hi
		hi *= 2
		if hi > 1e4 {
			return math.Inf(1)
		}
	}
	for i := 0; i < 60 && hi-lo > 1e-7; i++ {
		mid := (lo + hi) / 2
		if sd.StudentizedRangeCDF(mid, k, df) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// normalRangeCDF is P(range of k iid unit normals <= w)
func normalRangeCDF(w float64, k int) float64 {
	if w <= 0 {
		return 0
	}
	kf := float64(k)
	integrand := func(z float64) float64 {
		d := distuv.UnitNormal.CDF(z) - distuv.UnitNormal.CDF(z-w)
		if d <= 0 {
			return 0
		}
		return distuv.UnitNormal.Prob(z) * math.Pow(d, kf-1)
	}
	lo, hi := -8.5, 8.5+w
	const panels = 8
	width := (hi - lo) / panels
	total := 0.0
	for p := 0; p < panels; p++ {
		a := lo + float64(p)*width
		total += quad.Fixed(integrand, a, a+width, 20, quad.Legendre{}, 0)
	}
	return clamp01(kf * total)
}

// KolmogorovUniform runs a one-sample Kolmogorov-Smirnov test of values against
// Uniform(0,1) and returns D and its asymptotic p-value with Stephens' correction.
func (sd *StatisticalDistributions) KolmogorovUniform(values []float64) (d, pValue float64) {
	n := len(values)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	nf := float64(n)
	for i, u := range sorted {
		d = math.Max(d, math.Max(float64(i+1)/nf-u, u-float64(i)/nf))
	}

	sqrtN := math.Sqrt(nf)
	lambda := (sqrtN + 0.12 + 0.11/sqrtN) * d
	return d, kolmogorovSurvival(lambda)
}

// kolmogorovSurvival is Q_KS(lambda) = 2 sum (-1)^(j-1) exp(-2 j^2 lambda^2)
func kolmogorovSurvival(lambda float64) float64 {
	if lambda < 0.2 {
		return 1
	}
	sum := 0.0
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	return clamp01(2 * sum)
}

// SimulationPValue is the two-sided Monte Carlo p-value of an observed statistic against
// simulated statistics, counting the observed value as one of the draws.
func (sd *StatisticalDistributions) SimulationPValue(observed float64, simulated []float64) float64 {
	if len(simulated) == 0 {
		return math.NaN()
	}
	above, below := 1, 1
	for _, s := range simulated {
		if s >= observed {
			above++
		}
		if s <= observed {
			below++
		}
	}
	n := float64(len(simulated) + 1)
	return math.Min(1, 2*math.Min(float64(above), float64(below))/n)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
