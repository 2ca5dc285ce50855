package diagnostics

import (
	"errors"
	"fmt"
	"math"

	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/stats"

	mstats "github.com/montanaflynn/stats"
)

// numeric covariates with more distinct values than this are binned by quartile
const maxDiscreteLevels = 6

// Dispersion groups a model's residuals by a covariate and reports their spread per group
// with a Brown-Forsythe test of equal spread. The frame must be the one the model was fit on.
func (d *Diagnoser) Dispersion(m *stats.FittedModel, frame dataset.Frame, column string) (stats.DispersionDiagnostic, error) {
	out := stats.DispersionDiagnostic{Model: m.ID, Column: column, Status: stats.StatusComputed}
	if len(m.Rows) != len(m.Response) {
		return out, fmt.Errorf("model %s carries no frame row mapping", m.Spec.Name)
	}

	levels, order, err := covariateLevels(frame, column, m.Rows)
	if err != nil {
		return out, err
	}

	resid := m.Residuals()
	byLevel := make(map[string][]float64, len(order))
	for i, lvl := range levels {
		if lvl == "" {
			continue
		}
		byLevel[lvl] = append(byLevel[lvl], resid[i])
	}

	var groups [][]float64
	for _, lvl := range order {
		rs := byLevel[lvl]
		if len(rs) == 0 {
			continue
		}
		g := stats.DispersionGroup{Level: lvl, N: len(rs), ResidualSD: math.NaN()}
		if len(rs) > 1 {
			g.ResidualSD, _ = mstats.StandardDeviationSample(rs)
		}
		g.MeanAbsDev = meanAbsDeviation(rs)
		out.Groups = append(out.Groups, g)
		groups = append(groups, rs)
	}

	out.Test = d.brownForsythe(groups)
	if math.IsNaN(out.Test.Statistic) {
		out.Status, out.Reason = inconclusive(fmt.Sprintf("%d group(s) with %d residual degrees of freedom", len(groups), int(out.Test.DF2)))
	}
	d.logger.Debug("dispersion of %s by %s: %d groups, F=%.3g", describe(m), column, len(out.Groups), out.Test.Statistic)
	return out, nil
}

// covariateLevels labels each model row with its covariate level or quartile bin
func covariateLevels(frame dataset.Frame, column string, rows []int) ([]string, []string, error) {
	values, err := frame.Numeric(column)
	if err != nil {
		if !errors.Is(err, core.ErrUnknownColumn) {
			return nil, nil, err
		}
		labels, lerr := frame.Labels(column)
		if lerr != nil {
			return nil, nil, lerr
		}
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = labels[r]
		}
		return out, dataset.DistinctLevels(out), nil
	}

	picked := make([]float64, len(rows))
	for i, r := range rows {
		picked[i] = values[r]
	}
	labels := dataset.FormatLabels(picked)
	distinct := dataset.DistinctLevels(labels)
	if len(distinct) <= maxDiscreteLevels {
		return labels, distinct, nil
	}

	var present []float64
	for _, v := range picked {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	q, err := mstats.Quartile(present)
	if err != nil {
		return nil, nil, fmt.Errorf("quartiles of %s: %w", column, err)
	}
	bins := []string{
		fmt.Sprintf("<=%.4g", q.Q1),
		fmt.Sprintf("(%.4g, %.4g]", q.Q1, q.Q2),
		fmt.Sprintf("(%.4g, %.4g]", q.Q2, q.Q3),
		fmt.Sprintf(">%.4g", q.Q3),
	}
	for i, v := range picked {
		switch {
		case math.IsNaN(v):
			labels[i] = ""
		case v <= q.Q1:
			labels[i] = bins[0]
		case v <= q.Q2:
			labels[i] = bins[1]
		case v <= q.Q3:
			labels[i] = bins[2]
		default:
			labels[i] = bins[3]
		}
	}
	return labels, bins, nil
}

func meanAbsDeviation(values []float64) float64 {
	med, err := mstats.Median(values)
	if err != nil {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v - med)
	}
	return sum / float64(len(values))
}

// brownForsythe is the one-way ANOVA F on absolute deviations from group medians
func (d *Diagnoser) brownForsythe(groups [][]float64) stats.ModelTest {
	test := stats.ModelTest{Name: "Brown-Forsythe", Statistic: math.NaN(), PValue: math.NaN()}

	var all []float64
	devs := make([][]float64, len(groups))
	for j, g := range groups {
		med, err := mstats.Median(g)
		if err != nil {
			return test
		}
		devs[j] = make([]float64, len(g))
		for i, v := range g {
			devs[j][i] = math.Abs(v - med)
		}
		all = append(all, devs[j]...)
	}

	k, n := len(groups), len(all)
	test.DF1, test.DF2 = float64(k-1), float64(n-k)
	if k < 2 || n-k < 1 {
		return test
	}

	grand, _ := mstats.Mean(all)
	between, within := 0.0, 0.0
	for _, z := range devs {
		m, _ := mstats.Mean(z)
		between += float64(len(z)) * (m - grand) * (m - grand)
		for _, v := range z {
			within += (v - m) * (v - m)
		}
	}
	if within == 0 {
		return test
	}
	test.Statistic = (between / test.DF1) / (within / test.DF2)
	test.PValue = d.dist.FTestPValue(test.Statistic, test.DF1, test.DF2)
	return test
}
