package mesocosm

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"perchmp/domain/dataset"
)

// Baseline treatment labels for the two independently run control corrals
const (
	BaselineFirst  = "0a"
	BaselineSecond = "0b"
)

// ErrBaselineSplit is returned when the baseline rows cannot be split into two controls
var ErrBaselineSplit = errors.New("baseline corrals cannot be split into two control treatments")

// DropMissing returns a table without the rows whose column is NaN, and the number dropped.
// Rows without a total length are non-target organisms caught in the corrals.
func (t *Table) DropMissing(column string) (*Table, int, error) {
	get, err := t.numericAccessor(column)
	if err != nil {
		return nil, 0, err
	}

	out := &Table{Records: make([]Record, 0, len(t.Records))}
	for i := range t.Records {
		if math.IsNaN(get(&t.Records[i])) {
			continue
		}
		out.Records = append(out.Records, t.Records[i])
	}
	return out, len(t.Records) - len(out.Records), nil
}

// DeriveCondition sets Fulton's condition index body.weight / TL^3 on every row;
// rows missing either input get NaN.
func (t *Table) DeriveCondition() *Table {
	out := t.clone()
	for i := range out.Records {
		out.Records[i].Condition = ConditionIndex(out.Records[i].BodyWeight, out.Records[i].TotalLength)
	}
	return out
}

// ConditionIndex returns weight / length^3, NaN when either is missing. Loaded lengths are
// always positive; a zero length built in code also gives NaN rather than +Inf.
func ConditionIndex(weight, length float64) float64 {
	if math.IsNaN(weight) || math.IsNaN(length) || length == 0 {
		return math.NaN()
	}
	return weight / (length * length * length)
}

// BaselineRule decides which baseline corrals form the second control treatment.
// Once resolved it is a lookup on the row's own corral.
type BaselineRule struct {
	second map[string]bool
}

// NewBaselineRule assigns the listed corrals to the second control treatment
func NewBaselineRule(secondControl ...string) BaselineRule {
	r := BaselineRule{second: make(map[string]bool, len(secondControl))}
	for _, c := range secondControl {
		r.second[c] = true
	}
	return r
}

// IsZero reports whether no corral has been assigned explicitly
func (r BaselineRule) IsZero() bool {
	return len(r.second) == 0
}

// Resolve fills an empty rule from the baseline corrals present: in level order they
// alternate between the first and second control.
func (r BaselineRule) Resolve(baselineCorrals []string) BaselineRule {
	if !r.IsZero() {
		return r
	}
	ids := append([]string(nil), baselineCorrals...)
	dataset.SortLevels(ids)
	var second []string
	for i, id := range ids {
		if i%2 == 1 {
			second = append(second, id)
		}
	}
	return NewBaselineRule(second...)
}

// Label returns the treatment label of one row
func (r BaselineRule) Label(corral string, concentration float64) string {
	if concentration != 0 {
		return dataset.FormatLevel(concentration)
	}
	if r.second[corral] {
		return BaselineSecond
	}
	return BaselineFirst
}

// SecondControl lists the corrals assigned to the second control
func (r BaselineRule) SecondControl() []string {
	out := make([]string, 0, len(r.second))
	for c := range r.second {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DeriveTreatment labels each row with its concentration, splitting the baseline rows
// into BaselineFirst and BaselineSecond. It fails when baseline rows exist but do not
// end up in exactly two labels. The resolved rule is returned for the run manifest.
func (t *Table) DeriveTreatment(rule BaselineRule) (*Table, BaselineRule, error) {
	var baseline []string
	seen := make(map[string]bool)
	for _, r := range t.Records {
		if r.Concentration == 0 && !seen[r.Corral] {
			seen[r.Corral] = true
			baseline = append(baseline, r.Corral)
		}
	}
	rule = rule.Resolve(baseline)

	out := t.clone()
	labels := make(map[string]bool)
	for i := range out.Records {
		rec := &out.Records[i]
		rec.Treatment = rule.Label(rec.Corral, rec.Concentration)
		if rec.Concentration == 0 {
			labels[rec.Treatment] = true
		}
	}

	if len(baseline) > 0 && len(labels) != 2 {
		return nil, rule, fmt.Errorf("%w: %d baseline corral(s) %v produced %d label(s)",
			ErrBaselineSplit, len(baseline), baseline, len(labels))
	}
	return out, rule, nil
}
