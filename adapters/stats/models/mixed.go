package models

import (
	"fmt"
	"math"

	"perchmp/domain/core"
	"perchmp/domain/stats"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// log variance-ratio bounds; the lower bound is treated as a zero random-effect variance
const (
	minLogRatio = -25.0
	maxLogRatio = 15.0
)

// randomIntercept holds the sufficient statistics of a one-level random-intercept model.
// With V_g = I + gamma*J per group, V_g^-1 = I - c_g J with c_g = gamma/(1+n_g*gamma).
type randomIntercept struct {
	d     *design
	sizes []int
	xtx   *mat.SymDense
	xty   *mat.VecDense
	sx    []*mat.VecDense // per-group column sums of X
	sy    []float64       // per-group sums of y
}

type glsFit struct {
	beta    []float64
	inv     *mat.SymDense // (X' V^-1 X)^-1
	logDetX float64       // log |X' V^-1 X|
	logDetV float64
	quad    float64 // r' V^-1 r
	resid   []float64
}

func newRandomIntercept(d *design) *randomIntercept {
	n, p := d.n(), d.p()
	ri := &randomIntercept{d: d, sizes: d.groupSizes()}

	ri.xtx = mat.NewSymDense(p, nil)
	ri.xtx.SymOuterK(1, d.X.T())
	ri.xty = mat.NewVecDense(p, nil)
	ri.xty.MulVec(d.X.T(), mat.NewVecDense(n, append([]float64(nil), d.Y...)))

	ri.sx = make([]*mat.VecDense, len(d.Levels))
	ri.sy = make([]float64, len(d.Levels))
	for g := range ri.sx {
		ri.sx[g] = mat.NewVecDense(p, nil)
	}
	for r, g := range d.Group {
		ri.sx[g].AddVec(ri.sx[g], d.X.RowView(r))
		ri.sy[g] += d.Y[r]
	}
	return ri
}

// gls solves the generalised least squares problem for a fixed variance ratio
func (ri *randomIntercept) gls(gamma float64) (*glsFit, error) {
	p := ri.d.p()
	xtvx := mat.NewSymDense(p, nil)
	xtvx.CopySym(ri.xtx)
	xtvy := mat.NewVecDense(p, nil)
	xtvy.CopyVec(ri.xty)

	c := make([]float64, len(ri.sizes))
	fit := &glsFit{}
	for g, ng := range ri.sizes {
		c[g] = gamma / (1 + float64(ng)*gamma)
		fit.logDetV += math.Log1p(float64(ng) * gamma)
		xtvx.SymRankOne(xtvx, -c[g], ri.sx[g])
		xtvy.AddScaledVec(xtvy, -c[g]*ri.sy[g], ri.sx[g])
	}

	var chol mat.Cholesky
	if !chol.Factorize(xtvx) {
		return nil, core.NewRankDeficientError("X' V^-1 X is not positive definite")
	}
	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, xtvy); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRankDeficient, err)
	}
	fit.inv = mat.NewSymDense(p, nil)
	if err := chol.InverseTo(fit.inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRankDeficient, err)
	}
	fit.logDetX = chol.LogDet()
	fit.beta = mat.Col(nil, 0, beta)

	n := ri.d.n()
	fit.resid = make([]float64, n)
	groupSum := make([]float64, len(ri.sizes))
	for r := 0; r < n; r++ {
		fit.resid[r] = ri.d.Y[r] - mat.Dot(ri.d.X.RowView(r), beta)
		fit.quad += fit.resid[r] * fit.resid[r]
		groupSum[ri.d.Group[r]] += fit.resid[r]
	}
	for g, s := range groupSum {
		fit.quad -= c[g] * s * s
	}
	return fit, nil
}

// remlCriterion is -2 times the restricted log-likelihood with sigma^2 profiled out
func (ri *randomIntercept) remlCriterion(logRatio float64) float64 {
	fit, err := ri.gls(math.Exp(logRatio))
	if err != nil {
		return math.Inf(1)
	}
	dfr := float64(ri.d.n() - ri.d.p())
	sigma2 := fit.quad / dfr
	return dfr*math.Log(sigma2) + fit.logDetV + fit.logDetX + dfr*(1+math.Log(2*math.Pi))
}

// fitMixed fits a linear mixed model with one random intercept by REML
func (f *Fitter) fitMixed(d *design, spec stats.ModelSpec) (*stats.FittedModel, error) {
	ri := newRandomIntercept(d)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if x[0] < minLogRatio || x[0] > maxLogRatio {
				return math.Inf(1)
			}
			return ri.remlCriterion(x[0])
		},
	}
	result, err := optimize.Minimize(problem, []float64{0}, nil, &optimize.NelderMead{})
	if err != nil && (result == nil || math.IsInf(result.F, 1) || math.IsNaN(result.F)) {
		return nil, fmt.Errorf("%w: REML: %v", core.ErrNonConvergence, err)
	}

	logRatio, crit := result.X[0], result.F
	var warnings []string
	if boundary := ri.remlCriterion(minLogRatio); boundary <= crit {
		logRatio, crit = minLogRatio, boundary
	}
	if logRatio <= minLogRatio+1 {
		warnings = append(warnings, fmt.Sprintf("boundary (singular) fit: random intercept variance for %s estimated at zero", spec.Random))
	}
	if math.IsInf(crit, 1) {
		return nil, fmt.Errorf("%w: REML criterion is not finite", core.ErrNonConvergence)
	}

	gamma := math.Exp(logRatio)
	fit, err := ri.gls(gamma)
	if err != nil {
		return nil, err
	}

	n, p := d.n(), d.p()
	dfr := float64(n - p)
	sigma2 := fit.quad / dfr
	vcov := scaledSym(fit.inv, sigma2)

	// BLUPs shrink each group's mean marginal residual towards zero
	blups := make([]float64, len(d.Levels))
	groupSum := make([]float64, len(d.Levels))
	for r, g := range d.Group {
		groupSum[g] += fit.resid[r]
	}
	for g, ng := range ri.sizes {
		blups[g] = gamma / (1 + float64(ng)*gamma) * groupSum[g]
	}

	marginal := make([]float64, n)
	fitted := make([]float64, n)
	for r := 0; r < n; r++ {
		marginal[r] = d.Y[r] - fit.resid[r]
		fitted[r] = marginal[r] + blups[d.Group[r]]
	}

	m := &stats.FittedModel{
		Coefficients: f.coefficients(d.Names, fit.beta, vcov, 0, spec.Level()),
		Vcov:         vcov,
		Overall:      f.waldTest(fit.beta, vcov),
		Random: &stats.RandomEffect{
			Group:  spec.Random,
			SD:     math.Sqrt(gamma * sigma2),
			Levels: append([]string(nil), d.Levels...),
			BLUPs:  blups,
		},
		Sigma:           math.Sqrt(sigma2),
		DFResidual:      dfr,
		LogLik:          -crit / 2,
		Response:        append([]float64(nil), d.Y...),
		Fitted:          fitted,
		LinearPredictor: marginal,
		GroupIndex:      append([]int(nil), d.Group...),
		Warnings:        warnings,
	}
	m.AIC = -2*m.LogLik + 2*float64(p+2)
	return m, nil
}
