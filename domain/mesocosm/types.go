// Package mesocosm holds the perch biometrics and mesocosm population data model and the
// row-level derivations (treatment label, condition index) applied before modelling.
package mesocosm

import (
	"fmt"
	"math"

	"perchmp/domain/core"
	"perchmp/domain/dataset"
)

// Column contract strings shared by the loader, the plan and the model formulas
const (
	ColCorral        = "corral"
	ColConcentration = "MPconcentration"
	ColBodyWeight    = "body.weight"
	ColTotalLength   = "TL"
	ColForkLength    = "FL"
	ColGonadWeight   = "gonad.weight"
	ColStart         = "YP.start"
	ColEnd           = "YP.end"

	// Derived columns
	ColTreatment          = "treatment"
	ColCondition          = "condition"
	ColSurvival           = "survival"
	ColConcentrationLevel = "concentration"
)

// Observation is one measured fish. Missing measurements are NaN.
type Observation struct {
	Corral        string             `json:"corral"`
	Concentration float64            `json:"concentration"`
	BodyWeight    float64            `json:"body_weight"`
	TotalLength   float64            `json:"total_length"`
	ForkLength    float64            `json:"fork_length"`
	GonadWeight   float64            `json:"gonad_weight"`
	Extra         map[string]float64 `json:"extra,omitempty"`
	ExtraLabels   map[string]string  `json:"extra_labels,omitempty"`
}

// Population is one mesocosm's stocking record
type Population struct {
	Corral string  `json:"corral"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	// Concentration is NaN when the population file does not carry it
	Concentration float64 `json:"concentration"`
}

// Survival returns end/start, NaN when start is not positive
func (p Population) Survival() float64 {
	if !(p.Start > 0) {
		return math.NaN()
	}
	return p.End / p.Start
}

// Validate checks the counts of a population row
func (p Population) Validate() error {
	switch {
	case p.Corral == "":
		return fmt.Errorf("population row has empty corral")
	case p.Start < 0 || p.End < 0:
		return fmt.Errorf("corral %s: negative fish count", p.Corral)
	case p.End > p.Start:
		return fmt.Errorf("corral %s: end count %g exceeds start count %g", p.Corral, p.End, p.Start)
	}
	return nil
}

// Record is an Observation left-joined to its mesocosm plus derived fields
type Record struct {
	Observation
	Population *Population `json:"population,omitempty"`
	Treatment  string      `json:"treatment,omitempty"`
	Condition  float64     `json:"condition"`
}

// Table is the analysis table threaded through the pipeline. Operations return new tables.
type Table struct {
	Records []Record
}

var _ dataset.Frame = (*Table)(nil)

// Join left-joins observations to populations on corral. Every observation is retained;
// unmatched rows carry a nil Population.
func Join(obs []Observation, pops []Population) (*Table, error) {
	byCorral := make(map[string]*Population, len(pops))
	for i := range pops {
		p := pops[i]
		if _, dup := byCorral[p.Corral]; dup {
			return nil, fmt.Errorf("%w: population corral %q", core.ErrDuplicateKey, p.Corral)
		}
		byCorral[p.Corral] = &p
	}

	t := &Table{Records: make([]Record, len(obs))}
	for i, o := range obs {
		t.Records[i] = Record{
			Observation: o,
			Population:  byCorral[o.Corral],
			Condition:   math.NaN(),
		}
	}
	return t, nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Records)
}

// Numeric returns a numeric column by contract name, derived name or extra header
func (t *Table) Numeric(name string) ([]float64, error) {
	get, err := t.numericAccessor(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.Records))
	for i := range t.Records {
		out[i] = get(&t.Records[i])
	}
	return out, nil
}

func (t *Table) numericAccessor(name string) (func(*Record) float64, error) {
	pop := func(f func(*Population) float64) func(*Record) float64 {
		return func(r *Record) float64 {
			if r.Population == nil {
				return math.NaN()
			}
			return f(r.Population)
		}
	}

	switch name {
	case ColConcentration:
		return func(r *Record) float64 { return r.Concentration }, nil
	case ColBodyWeight:
		return func(r *Record) float64 { return r.BodyWeight }, nil
	case ColTotalLength:
		return func(r *Record) float64 { return r.TotalLength }, nil
	case ColForkLength:
		return func(r *Record) float64 { return r.ForkLength }, nil
	case ColGonadWeight:
		return func(r *Record) float64 { return r.GonadWeight }, nil
	case ColCondition:
		return func(r *Record) float64 { return r.Condition }, nil
	case ColStart:
		return pop(func(p *Population) float64 { return p.Start }), nil
	case ColEnd:
		return pop(func(p *Population) float64 { return p.End }), nil
	case ColSurvival:
		return pop(func(p *Population) float64 { return p.Survival() }), nil
	}

	for i := range t.Records {
		if _, ok := t.Records[i].Extra[name]; ok {
			return func(r *Record) float64 {
				if v, ok := r.Extra[name]; ok {
					return v
				}
				return math.NaN()
			}, nil
		}
	}
	return nil, core.NewUnknownColumnError(name)
}

// Labels returns a categorical column. Numeric columns are rendered as factor levels.
func (t *Table) Labels(name string) ([]string, error) {
	out := make([]string, len(t.Records))
	switch name {
	case ColCorral:
		for i, r := range t.Records {
			out[i] = r.Corral
		}
		return out, nil
	case ColTreatment:
		for i, r := range t.Records {
			out[i] = r.Treatment
		}
		return out, nil
	case ColConcentrationLevel:
		name = ColConcentration
	}

	for i := range t.Records {
		if _, ok := t.Records[i].ExtraLabels[name]; ok {
			for j, r := range t.Records {
				out[j] = r.ExtraLabels[name]
			}
			return out, nil
		}
	}

	values, err := t.Numeric(name)
	if err != nil {
		return nil, err
	}
	return dataset.FormatLabels(values), nil
}

// Corrals returns the distinct corral identifiers in level order
func (t *Table) Corrals() []string {
	ids := make([]string, len(t.Records))
	for i, r := range t.Records {
		ids[i] = r.Corral
	}
	return dataset.DistinctLevels(ids)
}

// Unmatched returns the corrals present in the biometrics with no population row
func (t *Table) Unmatched() []string {
	var ids []string
	for _, r := range t.Records {
		if r.Population == nil {
			ids = append(ids, r.Corral)
		}
	}
	return dataset.DistinctLevels(ids)
}

func (t *Table) clone() *Table {
	out := &Table{Records: make([]Record, len(t.Records))}
	copy(out.Records, t.Records)
	return out
}
