package report

import (
	"fmt"
	"math"
	"strings"

	"perchmp/domain/run"

	"github.com/xuri/excelize/v2"
)

// sheet is one table of the workbook
type sheet struct {
	name   string
	header []string
	rows   [][]any
}

func (s *sheet) add(values ...any) {
	s.rows = append(s.rows, values)
}

// WriteWorkbook writes the run as an xlsx workbook, one sheet per table. Missing values
// are left as empty cells.
func WriteWorkbook(path string, result *run.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	sheets := []*sheet{
		manifestSheet(result),
		summarySheet(result),
		modelsSheet(result),
		coefficientsSheet(result),
		tukeySheet(result),
		lettersSheet(result),
		predictionsSheet(result),
		diagnosticsSheet(result),
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return err
		}
		if err := writeSheet(f, s, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, s *sheet, headerStyle int) error {
	header := make([]any, len(s.header))
	for i, h := range s.header {
		header[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(s.header), 1)
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for r, row := range s.rows {
		cells := make([]any, len(row))
		for c, v := range row {
			cells[c] = cellValue(v)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(s.name, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

// cellValue blanks NaN and infinities, which spreadsheets cannot hold
func cellValue(v any) any {
	if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
		return nil
	}
	return v
}

func manifestSheet(result *run.Result) *sheet {
	m := result.Manifest
	s := &sheet{name: "Manifest", header: []string{"Field", "Value"}}
	s.add("run_id", m.RunID.String())
	s.add("plan", m.PlanName)
	s.add("plan_hash", m.PlanHash.String())
	s.add("biometrics", m.Biometrics.Path)
	s.add("biometrics_sha256", m.Biometrics.Hash.String())
	s.add("population", m.Population.Path)
	s.add("population_sha256", m.Population.Hash.String())
	s.add("seed", m.Seed)
	s.add("simulations", m.Simulations)
	s.add("alpha", m.Alpha)
	s.add("second_control", strings.Join(m.SecondControl, ", "))
	s.add("fingerprint", m.Fingerprint.String())
	s.add("created_at", m.CreatedAt.String())
	s.add("dropped_rows", result.Dropped)
	s.add("unmatched_corrals", strings.Join(result.Unmatched, ", "))
	return s
}

func summarySheet(result *run.Result) *sheet {
	s := &sheet{name: "Summary", header: []string{"Summary", "Frame", "Group", "Rows", "Response", "N", "Mean", "SD"}}
	for _, t := range result.Summaries {
		for _, g := range t.Groups {
			for _, r := range g.Responses {
				s.add(t.Name, string(t.Frame), g.Label(), g.Rows, r.Column, r.N, r.Mean, r.SD)
			}
		}
	}
	return s
}

func modelsSheet(result *run.Result) *sheet {
	s := &sheet{name: "Models", header: []string{"Model", "Formula", "Kind", "Frame", "Status", "N",
		"Test", "Statistic", "DF1", "DF2", "P", "AIC", "R2", "Random SD", "Superseded by", "Error", "Warnings"}}
	for _, mr := range result.Models {
		if !mr.OK() {
			s.add(mr.Name, mr.Spec.Formula(), string(mr.Spec.Kind), string(mr.Frame), string(mr.Status),
				nil, nil, nil, nil, nil, nil, nil, nil, nil, mr.SupersededBy, mr.Error, nil)
			continue
		}
		m := mr.Model
		randomSD := math.NaN()
		if m.Random != nil {
			randomSD = m.Random.SD
		}
		s.add(mr.Name, mr.Spec.Formula(), string(mr.Spec.Kind), string(mr.Frame), string(mr.Status), m.N,
			m.Overall.Name, m.Overall.Statistic, m.Overall.DF1, m.Overall.DF2, m.Overall.PValue,
			m.AIC, m.RSquared, randomSD, mr.SupersededBy, "", strings.Join(remarks(&mr), "; "))
	}
	return s
}

func coefficientsSheet(result *run.Result) *sheet {
	s := &sheet{name: "Coefficients", header: []string{"Model", "Term", "Estimate", "SE", "Statistic", "P", "Lower", "Upper"}}
	for _, mr := range result.Models {
		if !mr.OK() {
			continue
		}
		for _, c := range mr.Model.Coefficients {
			s.add(mr.Name, c.Term, c.Estimate, c.StdErr, c.Statistic, c.PValue, c.Lower, c.Upper)
		}
	}
	return s
}

func tukeySheet(result *run.Result) *sheet {
	s := &sheet{name: "Tukey", header: []string{"Model", "A", "B", "Diff (B-A)", "SE", "Lower", "Upper", "P adj", "Significant"}}
	for _, mr := range result.Models {
		if mr.Comparison == nil {
			continue
		}
		for _, p := range mr.Comparison.Pairs {
			s.add(mr.Name, p.A, p.B, p.Diff, p.StdErr, p.Lower, p.Upper, p.PAdj, p.Significant)
		}
	}
	return s
}

func lettersSheet(result *run.Result) *sheet {
	s := &sheet{name: "Letters", header: []string{"Model", "Level", "Mean", "Letters"}}
	for _, mr := range result.Models {
		for _, l := range mr.Letters {
			s.add(mr.Name, l.Level, l.Mean, l.Letters)
		}
	}
	return s
}

func predictionsSheet(result *run.Result) *sheet {
	s := &sheet{name: "Predictions", header: []string{"Model", "Column", "Value", "Fit", "Lower", "Upper", "Level", "Held"}}
	for _, mr := range result.Models {
		set := mr.Predictions
		if set == nil {
			continue
		}
		held := heldText(set.Held)
		for _, p := range set.Points {
			s.add(mr.Name, set.Column, p.Value, p.Fit, p.Lower, p.Upper, set.Level, held)
		}
	}
	return s
}

func diagnosticsSheet(result *run.Result) *sheet {
	s := &sheet{name: "Diagnostics", header: []string{"Model", "Check", "Status", "Statistic", "P", "Detail"}}
	for _, mr := range result.Models {
		for _, d := range mr.Dispersion {
			s.add(mr.Name, "dispersion by "+d.Column, string(d.Status), d.Test.Statistic, d.Test.PValue, dispersionText(d))
		}
		if sim := mr.Simulated; sim != nil {
			s.add(mr.Name, "simulated uniformity (KS)", string(sim.Status), sim.Uniformity.Statistic, sim.Uniformity.PValue, sim.Reason)
			s.add(mr.Name, "simulated dispersion", string(sim.Status), sim.Dispersion.Statistic, sim.Dispersion.PValue,
				fmt.Sprintf("%d simulations, %d outlier(s)", sim.Simulations, sim.Outliers))
		}
	}
	return s
}
