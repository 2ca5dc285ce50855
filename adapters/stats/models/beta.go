package models

import (
	"fmt"
	"math"

	"perchmp/domain/core"
	"perchmp/domain/stats"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	hermiteNodes = 20
	muEpsilon    = 1e-10
	logPhiBound  = 25.0
)

// betaLink maps the linear predictor onto the mean of a beta response
type betaLink struct {
	mean  func(eta float64) float64
	deriv func(eta float64) float64 // dmu/deta
	apply func(mu float64) float64
}

func linkFor(l stats.Link) betaLink {
	if l == stats.LinkProbit {
		return betaLink{
			mean:  distuv.UnitNormal.CDF,
			deriv: distuv.UnitNormal.Prob,
			apply: distuv.UnitNormal.Quantile,
		}
	}
	return betaLink{
		mean: func(eta float64) float64 { return 1 / (1 + math.Exp(-eta)) },
		deriv: func(eta float64) float64 {
			mu := 1 / (1 + math.Exp(-eta))
			return mu * (1 - mu)
		},
		apply: func(mu float64) float64 { return math.Log(mu / (1 - mu)) },
	}
}

func clampMu(mu float64) float64 {
	return math.Min(math.Max(mu, muEpsilon), 1-muEpsilon)
}

// betaProblem is the negative log-likelihood of a beta regression on one design.
// Parameters are (beta, log phi) and, with a random intercept, log sigma_b last.
type betaProblem struct {
	x    *mat.Dense
	y    []float64
	link betaLink

	group   []int
	groups  int
	nodes   []float64
	weights []float64
}

func (bp *betaProblem) p() int { _, c := bp.x.Dims(); return c }

func (bp *betaProblem) mixed() bool { return bp.group != nil }

func (bp *betaProblem) dim() int {
	if bp.mixed() {
		return bp.p() + 2
	}
	return bp.p() + 1
}

func (bp *betaProblem) eta(beta []float64) []float64 {
	out := make([]float64, len(bp.y))
	bv := mat.NewVecDense(len(beta), beta)
	for i := range out {
		out[i] = mat.Dot(bp.x.RowView(i), bv)
	}
	return out
}

func logDensity(y, mu, phi float64) float64 {
	mu = clampMu(mu)
	return distuv.Beta{Alpha: mu * phi, Beta: (1 - mu) * phi}.LogProb(y)
}

func phiOf(theta float64) float64 {
	return math.Exp(math.Max(-logPhiBound, math.Min(logPhiBound, theta)))
}

// negLogLik evaluates the objective; the mixed form integrates the group intercept
// out by Gauss-Hermite quadrature
func (bp *betaProblem) negLogLik(theta []float64) float64 {
	p := bp.p()
	eta := bp.eta(theta[:p])
	phi := phiOf(theta[p])

	if !bp.mixed() {
		ll := 0.0
		for i, y := range bp.y {
			ll += logDensity(y, bp.link.mean(eta[i]), phi)
		}
		return -ll
	}

	sb := phiOf(theta[p+1])
	perNode := make([][]float64, bp.groups)
	for g := range perNode {
		perNode[g] = make([]float64, len(bp.nodes))
	}
	for i, y := range bp.y {
		g := bp.group[i]
		for k, t := range bp.nodes {
			perNode[g][k] += logDensity(y, bp.link.mean(eta[i]+math.Sqrt2*sb*t), phi)
		}
	}
	ll := 0.0
	for g := range perNode {
		ll += bp.logMarginal(perNode[g])
	}
	return -ll
}

// logMarginal is log sum_k w_k exp(l_k) / sqrt(pi), computed stably
func (bp *betaProblem) logMarginal(l []float64) float64 {
	top := math.Inf(-1)
	for _, v := range l {
		top = math.Max(top, v)
	}
	if math.IsInf(top, -1) {
		return top
	}
	s := 0.0
	for k, v := range l {
		s += bp.weights[k] * math.Exp(v-top)
	}
	return top + math.Log(s/math.SqrtPi)
}

// gradient is analytic for fixed-effect fits and central differences otherwise
func (bp *betaProblem) gradient(grad, theta []float64) {
	if bp.mixed() {
		fd.Gradient(grad, bp.negLogLik, theta, &fd.Settings{Formula: fd.Central})
		return
	}
	p := bp.p()
	eta := bp.eta(theta[:p])
	phi := phiOf(theta[p])
	for j := range grad {
		grad[j] = 0
	}
	psiPhi := mathext.Digamma(phi)
	for i, y := range bp.y {
		mu := clampMu(bp.link.mean(eta[i]))
		psiA := mathext.Digamma(mu * phi)
		psiB := mathext.Digamma((1 - mu) * phi)
		ly, l1y := math.Log(y), math.Log1p(-y)

		dmu := phi * ((ly - l1y) - (psiA - psiB)) * bp.link.deriv(eta[i])
		for j := 0; j < p; j++ {
			grad[j] -= dmu * bp.x.At(i, j)
		}
		dphi := psiPhi - mu*psiA - (1-mu)*psiB + mu*ly + (1-mu)*l1y
		grad[p] -= phi * dphi
	}
}

// hessian of the objective; differentiates the analytic gradient when there is one
func (bp *betaProblem) hessian(theta []float64) *mat.SymDense {
	n := len(theta)
	h := mat.NewSymDense(n, nil)
	if bp.mixed() {
		fd.Hessian(h, bp.negLogLik, theta, &fd.Settings{Formula: fd.Central})
		return h
	}
	jac := mat.NewDense(n, n, nil)
	fd.Jacobian(jac, func(dst, x []float64) { bp.gradient(dst, x) }, theta, &fd.JacobianSettings{Formula: fd.Central})
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			h.SetSym(i, j, (jac.At(i, j)+jac.At(j, i))/2)
		}
	}
	return h
}

// start derives initial values from a least squares fit of the linked response
func (bp *betaProblem) start() []float64 {
	n := len(bp.y)
	z := make([]float64, n)
	for i, y := range bp.y {
		z[i] = bp.link.apply(y)
	}
	theta := make([]float64, bp.dim())
	ls, err := leastSquares(bp.x, z)
	if err != nil || ls.DFResid <= 0 {
		theta[bp.p()] = math.Log(10)
		return theta
	}
	copy(theta, ls.Beta)

	phi := 0.0
	for i := range bp.y {
		mu := clampMu(bp.link.mean(ls.Fitted[i]))
		d := bp.link.deriv(ls.Fitted[i])
		phi += mu * (1 - mu) / (ls.Sigma2 * d * d)
	}
	phi = phi/float64(n) - 1
	if phi <= 0 || math.IsNaN(phi) || math.IsInf(phi, 0) {
		phi = 10
	}
	theta[bp.p()] = math.Log(phi)

	if bp.mixed() {
		theta[bp.p()+1] = math.Log(0.5)
	}
	return theta
}

// minimize runs BFGS from start and reports whether the gradient vanished
func (bp *betaProblem) minimize(start []float64) ([]float64, float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := bp.negLogLik(x)
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return v
		},
		Grad: bp.gradient,
	}
	result, err := optimize.Minimize(problem, start, nil, &optimize.BFGS{})
	if result == nil || math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, 0, fmt.Errorf("%w: beta likelihood: %v", core.ErrNonConvergence, err)
	}
	if err != nil {
		grad := make([]float64, len(result.X))
		bp.gradient(grad, result.X)
		worst := 0.0
		for _, g := range grad {
			worst = math.Max(worst, math.Abs(g))
		}
		if worst > 1e-3*(1+math.Abs(result.F)) {
			return nil, 0, fmt.Errorf("%w: beta likelihood: %v (max gradient %.3g)", core.ErrNonConvergence, err, worst)
		}
	}
	return result.X, result.F, nil
}

// squeeze maps [0,1] into the open interval with (y(n-1)+0.5)/n
func squeeze(y []float64) ([]float64, bool, error) {
	n := float64(len(y))
	needed := false
	for _, v := range y {
		if v < 0 || v > 1 {
			return nil, false, fmt.Errorf("%w: beta response %g outside [0,1]", core.ErrUnsupportedModel, v)
		}
		if v == 0 || v == 1 {
			needed = true
		}
	}
	if !needed {
		return y, false, nil
	}
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v*(n-1) + 0.5) / n
	}
	return out, true, nil
}

// fitBeta fits a beta regression by maximum likelihood, optionally with a random intercept
func (f *Fitter) fitBeta(d *design, spec stats.ModelSpec) (*stats.FittedModel, error) {
	y, squeezed, err := squeeze(d.Y)
	if err != nil {
		return nil, err
	}

	bp := &betaProblem{x: d.X, y: y, link: linkFor(spec.Link)}
	if spec.Random != "" {
		bp.group = d.Group
		bp.groups = len(d.Levels)
		bp.nodes = make([]float64, hermiteNodes)
		bp.weights = make([]float64, hermiteNodes)
		quad.Hermite{}.FixedLocations(bp.nodes, bp.weights, math.Inf(-1), math.Inf(1))
	}

	start := bp.start()
	if bp.mixed() {
		// warm start the fixed part from the fixed-effect fit
		fixed := &betaProblem{x: d.X, y: y, link: bp.link}
		if est, _, ferr := fixed.minimize(fixed.start()); ferr == nil {
			copy(start, est)
		}
	}
	theta, nll, err := bp.minimize(start)
	if err != nil {
		return nil, err
	}

	hess := bp.hessian(theta)
	var chol mat.Cholesky
	if !chol.Factorize(hess) {
		return nil, fmt.Errorf("%w: information matrix is not positive definite", core.ErrNonConvergence)
	}
	full := mat.NewSymDense(len(theta), nil)
	if err := chol.InverseTo(full); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNonConvergence, err)
	}

	p := d.p()
	vcov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			vcov.SetSym(i, j, full.At(i, j))
		}
	}
	beta := append([]float64(nil), theta[:p]...)
	phi := phiOf(theta[p])

	// null model keeps the random structure and drops every fixed covariate
	null := &betaProblem{x: columns(d.X, []int{0}), y: y, link: bp.link, group: bp.group, groups: bp.groups, nodes: bp.nodes, weights: bp.weights}
	overall := stats.ModelTest{Name: "LR chi2", DF1: float64(p - 1), Statistic: math.NaN(), PValue: math.NaN()}
	if p > 1 {
		if _, nullNLL, nerr := null.minimize(null.start()); nerr == nil {
			lr := math.Max(0, 2*(nullNLL-nll))
			overall.Statistic = lr
			overall.PValue = f.dist.ChiSquarePValue(lr, float64(p-1))
		}
	}

	eta := bp.eta(beta)
	fitted := make([]float64, len(y))
	m := &stats.FittedModel{
		Coefficients:    f.coefficients(d.Names, beta, vcov, 0, spec.Level()),
		Vcov:            vcov,
		Overall:         overall,
		Phi:             phi,
		DFResidual:      float64(len(y) - len(theta)),
		LogLik:          -nll,
		Response:        y,
		Fitted:          fitted,
		LinearPredictor: eta,
	}
	m.AIC = -2*m.LogLik + 2*float64(len(theta))

	if bp.mixed() {
		modes := bp.posteriorMeans(theta, eta)
		for i := range y {
			fitted[i] = bp.link.mean(eta[i] + modes[d.Group[i]])
		}
		m.Random = &stats.RandomEffect{
			Group:  spec.Random,
			SD:     phiOf(theta[p+1]),
			Levels: append([]string(nil), d.Levels...),
			BLUPs:  modes,
		}
		m.GroupIndex = append([]int(nil), d.Group...)
		if theta[p+1] < -8 {
			m.Warnings = append(m.Warnings, fmt.Sprintf("boundary (singular) fit: random intercept variance for %s estimated at zero", spec.Random))
		}
	} else {
		for i := range y {
			fitted[i] = bp.link.mean(eta[i])
		}
	}

	linked := make([]float64, len(y))
	for i, v := range y {
		linked[i] = bp.link.apply(v)
	}
	if r := stat.Correlation(eta, linked, nil); !math.IsNaN(r) {
		m.RSquared = r * r
	}
	if squeezed {
		m.Warnings = append(m.Warnings, "responses at 0 or 1 squeezed into (0,1) with (y(n-1)+0.5)/n")
	}
	return m, nil
}

// posteriorMeans predicts each group's intercept as its conditional mean given the data
func (bp *betaProblem) posteriorMeans(theta, eta []float64) []float64 {
	p := bp.p()
	phi := phiOf(theta[p])
	sb := phiOf(theta[p+1])

	perNode := make([][]float64, bp.groups)
	for g := range perNode {
		perNode[g] = make([]float64, len(bp.nodes))
	}
	for i, y := range bp.y {
		g := bp.group[i]
		for k, t := range bp.nodes {
			perNode[g][k] += logDensity(y, bp.link.mean(eta[i]+math.Sqrt2*sb*t), phi)
		}
	}

	out := make([]float64, bp.groups)
	for g, l := range perNode {
		top := math.Inf(-1)
		for _, v := range l {
			top = math.Max(top, v)
		}
		num, den := 0.0, 0.0
		for k, v := range l {
			w := bp.weights[k] * math.Exp(v-top)
			num += w * math.Sqrt2 * sb * bp.nodes[k]
			den += w
		}
		if den > 0 {
			out[g] = num / den
		}
	}
	return out
}
