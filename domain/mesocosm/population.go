package mesocosm

import (
	"math"

	"perchmp/domain/core"
	"perchmp/domain/dataset"
)

// PopulationRow is one mesocosm in the survival analysis
type PopulationRow struct {
	Population
	Treatment string `json:"treatment"`
}

// PopulationTable is the mesocosm-level frame used for survival models
type PopulationTable struct {
	Rows []PopulationRow
}

var _ dataset.Frame = (*PopulationTable)(nil)

// BuildPopulationTable pairs each population with a concentration and treatment label.
// A concentration missing from the population file is taken from the first biometric
// row of the same corral.
func BuildPopulationTable(pops []Population, fish *Table, rule BaselineRule) *PopulationTable {
	fromFish := make(map[string]float64)
	for _, r := range fish.Records {
		if _, ok := fromFish[r.Corral]; !ok {
			fromFish[r.Corral] = r.Concentration
		}
	}

	var baseline []string
	conc := make([]float64, len(pops))
	for i, p := range pops {
		conc[i] = p.Concentration
		if math.IsNaN(conc[i]) {
			if c, ok := fromFish[p.Corral]; ok {
				conc[i] = c
			}
		}
		if conc[i] == 0 {
			baseline = append(baseline, p.Corral)
		}
	}
	rule = rule.Resolve(baseline)

	pt := &PopulationTable{Rows: make([]PopulationRow, len(pops))}
	for i, p := range pops {
		p.Concentration = conc[i]
		pt.Rows[i] = PopulationRow{Population: p, Treatment: rule.Label(p.Corral, conc[i])}
	}
	return pt
}

// Len returns the number of mesocosms
func (pt *PopulationTable) Len() int {
	return len(pt.Rows)
}

// Numeric returns a mesocosm-level numeric column
func (pt *PopulationTable) Numeric(name string) ([]float64, error) {
	var get func(PopulationRow) float64
	switch name {
	case ColConcentration:
		get = func(r PopulationRow) float64 { return r.Concentration }
	case ColStart:
		get = func(r PopulationRow) float64 { return r.Start }
	case ColEnd:
		get = func(r PopulationRow) float64 { return r.End }
	case ColSurvival:
		get = func(r PopulationRow) float64 { return r.Survival() }
	default:
		return nil, core.NewUnknownColumnError(name)
	}
	out := make([]float64, len(pt.Rows))
	for i, r := range pt.Rows {
		out[i] = get(r)
	}
	return out, nil
}

// Labels returns a mesocosm-level categorical column
func (pt *PopulationTable) Labels(name string) ([]string, error) {
	out := make([]string, len(pt.Rows))
	switch name {
	case ColCorral:
		for i, r := range pt.Rows {
			out[i] = r.Corral
		}
		return out, nil
	case ColTreatment:
		for i, r := range pt.Rows {
			out[i] = r.Treatment
		}
		return out, nil
	case ColConcentrationLevel:
		name = ColConcentration
	}
	values, err := pt.Numeric(name)
	if err != nil {
		return nil, err
	}
	return dataset.FormatLabels(values), nil
}
