package models

import (
	"math"

	"perchmp/domain/stats"
)

// fitLinear fits an OLS regression with an overall F test and a sequential ANOVA table.
// A model whose only term is a factor also reports its group means.
func (f *Fitter) fitLinear(d *design, spec stats.ModelSpec) (*stats.FittedModel, error) {
	ls, err := leastSquares(d.X, d.Y)
	if err != nil {
		return nil, err
	}

	m := f.gaussianModel(d, spec, ls)
	m.ANOVA = f.sequentialANOVA(d, ls)
	if len(d.Encodings) == 1 && d.Encodings[0].Term.Categorical {
		m.Groups = groupMeans(d)
	}
	return m, nil
}

// fitANOVA fits a one-way ANOVA on the single categorical factor
func (f *Fitter) fitANOVA(d *design, spec stats.ModelSpec) (*stats.FittedModel, error) {
	return f.fitLinear(d, spec)
}

// groupMeans takes level means straight from the data; with treatment contrasts they
// equal the fitted values
func groupMeans(d *design) []stats.GroupMean {
	enc := d.Encodings[0]
	sums := make([]float64, len(enc.Levels))
	counts := make([]int, len(enc.Levels))
	for r := range d.Rows {
		g := 0
		for k := 1; k < len(enc.Levels); k++ {
			if d.X.At(r, k) == 1 {
				g = k
				break
			}
		}
		sums[g] += d.Y[r]
		counts[g]++
	}
	out := make([]stats.GroupMean, len(enc.Levels))
	for k, lvl := range enc.Levels {
		out[k] = stats.GroupMean{Level: lvl, N: counts[k], Mean: sums[k] / float64(counts[k])}
	}
	return out
}

func (f *Fitter) gaussianModel(d *design, spec stats.ModelSpec, ls *lsFit) *stats.FittedModel {
	n, p := d.n(), d.p()
	vcov := scaledSym(ls.XtXInv, ls.Sigma2)

	m := &stats.FittedModel{
		Coefficients:    f.coefficients(d.Names, ls.Beta, vcov, ls.DFResid, spec.Level()),
		Vcov:            vcov,
		Sigma:           math.Sqrt(ls.Sigma2),
		DFResidual:      ls.DFResid,
		LogLik:          gaussianLogLik(ls.RSS, n),
		Response:        append([]float64(nil), d.Y...),
		Fitted:          ls.Fitted,
		LinearPredictor: append([]float64(nil), ls.Fitted...),
	}
	m.AIC = -2*m.LogLik + 2*float64(p+1)

	if ls.TSS > 0 {
		m.RSquared = 1 - ls.RSS/ls.TSS
		m.AdjRSquared = 1 - (1-m.RSquared)*float64(n-1)/ls.DFResid
	}

	if p > 1 {
		df1 := float64(p - 1)
		fStat := ((ls.TSS - ls.RSS) / df1) / ls.Sigma2
		m.Overall = stats.ModelTest{Name: "F", Statistic: fStat, DF1: df1, DF2: ls.DFResid, PValue: f.dist.FTestPValue(fStat, df1, ls.DFResid)}
	} else {
		m.Overall = stats.ModelTest{Name: "F", Statistic: math.NaN(), DF2: ls.DFResid, PValue: math.NaN()}
	}
	return m
}

// sequentialANOVA adds terms in formula order (type I sums of squares)
func (f *Fitter) sequentialANOVA(d *design, full *lsFit) []stats.ANOVARow {
	var rows []stats.ANOVARow
	cols := []int{0}
	prevRSS := full.TSS
	next := 1
	for _, enc := range d.Encodings {
		width := enc.Columns()
		for k := 0; k < width; k++ {
			cols = append(cols, next+k)
		}
		next += width
		if width == 0 {
			continue
		}

		rss := full.RSS
		if len(cols) < d.p() {
			sub, err := leastSquares(columns(d.X, cols), d.Y)
			if err != nil {
				continue
			}
			rss = sub.RSS
		}
		ss := prevRSS - rss
		df := float64(width)
		fStat := (ss / df) / full.Sigma2
		rows = append(rows, stats.ANOVARow{
			Source: enc.Term.String(),
			DF:     df,
			SumSq:  ss,
			MeanSq: ss / df,
			F:      fStat,
			PValue: f.dist.FTestPValue(fStat, df, full.DFResid),
		})
		prevRSS = rss
	}
	rows = append(rows, stats.ANOVARow{
		Source: "Residuals",
		DF:     full.DFResid,
		SumSq:  full.RSS,
		MeanSq: full.Sigma2,
	})
	return rows
}
