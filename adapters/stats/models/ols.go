package models

import (
	"fmt"
	"math"

	"perchmp/domain/core"

	"gonum.org/v1/gonum/mat"
)

// lsFit is an ordinary least squares solution
type lsFit struct {
	Beta     []float64
	XtXInv   *mat.SymDense
	Fitted   []float64
	RSS      float64
	DFResid  float64
	Sigma2   float64
	TSS      float64 // total sum of squares about the mean
	MeanResp float64
}

// leastSquares solves min |y - X b|^2 by Cholesky on the normal equations.
// Callers check rank first; a failed factorization is still reported as rank deficiency.
func leastSquares(x *mat.Dense, y []float64) (*lsFit, error) {
	n, p := x.Dims()
	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, core.NewRankDeficientError("normal equations are not positive definite")
	}
	inv := mat.NewSymDense(p, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, core.NewRankDeficientError(err.Error())
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	xty := mat.NewVecDense(p, nil)
	xty.MulVec(x.T(), yv)
	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, xty); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRankDeficient, err)
	}

	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(x, beta)

	fit := &lsFit{
		Beta:    mat.Col(nil, 0, beta),
		XtXInv:  inv,
		Fitted:  mat.Col(nil, 0, fitted),
		DFResid: float64(n - p),
	}
	for _, v := range y {
		fit.MeanResp += v
	}
	fit.MeanResp /= float64(n)
	for i, v := range y {
		r := v - fit.Fitted[i]
		fit.RSS += r * r
		d := v - fit.MeanResp
		fit.TSS += d * d
	}
	if fit.DFResid > 0 {
		fit.Sigma2 = fit.RSS / fit.DFResid
	} else {
		fit.Sigma2 = math.NaN()
	}
	return fit, nil
}

// columns returns a copy of the selected columns of x
func columns(x *mat.Dense, idx []int) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(idx), nil)
	for j, c := range idx {
		for i := 0; i < n; i++ {
			out.Set(i, j, x.At(i, c))
		}
	}
	return out
}

// gaussianLogLik is the maximised normal log-likelihood given the residual sum of squares
func gaussianLogLik(rss float64, n int) float64 {
	nf := float64(n)
	return -nf / 2 * (math.Log(2*math.Pi) + math.Log(rss/nf) + 1)
}
