package models

import (
	"errors"
	"fmt"
	"math"

	"perchmp/domain/core"
	"perchmp/domain/dataset"
	"perchmp/domain/stats"

	"gonum.org/v1/gonum/mat"
)

const interceptName = "(Intercept)"

// design is the complete-case model matrix of one spec on one frame
type design struct {
	X         *mat.Dense
	Y         []float64
	Names     []string
	Encodings []stats.TermEncoding
	Rows      []int // frame row of each design row
	Dropped   int

	// random intercept grouping; nil without a random effect
	Group  []int
	Levels []string
}

func (d *design) n() int { return len(d.Y) }
func (d *design) p() int { return len(d.Names) }

// resolveTerms marks plain terms whose column only exists as labels as categorical
func resolveTerms(frame dataset.Frame, spec stats.ModelSpec) (stats.ModelSpec, error) {
	out := spec
	out.Fixed = append([]stats.Term(nil), spec.Fixed...)
	for i, t := range out.Fixed {
		if t.Categorical || t.Transform != stats.TransformNone {
			continue
		}
		if _, err := frame.Numeric(t.Column); err != nil {
			if !errors.Is(err, core.ErrUnknownColumn) {
				return spec, err
			}
			if _, lerr := frame.Labels(t.Column); lerr != nil {
				return spec, err
			}
			out.Fixed[i].Categorical = true
		}
	}
	return out, nil
}

// buildDesign selects complete rows and encodes terms with treatment contrasts
func buildDesign(frame dataset.Frame, spec stats.ModelSpec) (*design, error) {
	n := frame.Len()
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	rawY, err := frame.Numeric(spec.Response.Column)
	if err != nil {
		return nil, err
	}
	y := make([]float64, n)
	for i, v := range rawY {
		y[i] = spec.Response.Apply(v)
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			keep[i] = false
		}
	}

	numeric := make([][]float64, len(spec.Fixed))
	labels := make([][]string, len(spec.Fixed))
	for j, t := range spec.Fixed {
		if t.Categorical {
			col, err := frame.Labels(t.Column)
			if err != nil {
				return nil, err
			}
			labels[j] = col
			for i, v := range col {
				if v == "" {
					keep[i] = false
				}
			}
			continue
		}
		col, err := frame.Numeric(t.Column)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			col[i] = t.Apply(v)
			if math.IsNaN(col[i]) || math.IsInf(col[i], 0) {
				keep[i] = false
			}
		}
		numeric[j] = col
	}

	var groupCol []string
	if spec.Random != "" {
		groupCol, err = frame.Labels(spec.Random)
		if err != nil {
			return nil, err
		}
		for i, v := range groupCol {
			if v == "" {
				keep[i] = false
			}
		}
	}

	d := &design{}
	for i := 0; i < n; i++ {
		if keep[i] {
			d.Rows = append(d.Rows, i)
			d.Y = append(d.Y, y[i])
		}
	}
	d.Dropped = n - len(d.Rows)
	if len(d.Rows) == 0 {
		return nil, fmt.Errorf("%w: no complete rows for %s", core.ErrInsufficientData, spec.Formula())
	}

	d.Names = []string{interceptName}
	for j, t := range spec.Fixed {
		enc := stats.TermEncoding{Term: t}
		if t.Categorical {
			used := make([]string, len(d.Rows))
			for r, row := range d.Rows {
				used[r] = labels[j][row]
			}
			enc.Levels = dataset.DistinctLevels(used)
			for _, lvl := range enc.Levels[1:] {
				d.Names = append(d.Names, t.Column+"["+lvl+"]")
			}
		} else {
			sum := 0.0
			for _, row := range d.Rows {
				sum += numeric[j][row]
			}
			enc.Mean = sum / float64(len(d.Rows))
			d.Names = append(d.Names, t.String())
		}
		d.Encodings = append(d.Encodings, enc)
	}

	d.X = mat.NewDense(len(d.Rows), len(d.Names), nil)
	for r, row := range d.Rows {
		d.X.Set(r, 0, 1)
		col := 1
		for j, enc := range d.Encodings {
			if enc.Term.Categorical {
				for k, lvl := range enc.Levels[1:] {
					if labels[j][row] == lvl {
						d.X.Set(r, col+k, 1)
					}
				}
			} else {
				d.X.Set(r, col, numeric[j][row])
			}
			col += enc.Columns()
		}
	}

	if spec.Random != "" {
		used := make([]string, len(d.Rows))
		for r, row := range d.Rows {
			used[r] = groupCol[row]
		}
		d.Levels = dataset.DistinctLevels(used)
		index := make(map[string]int, len(d.Levels))
		for i, lvl := range d.Levels {
			index[lvl] = i
		}
		d.Group = make([]int, len(used))
		for r, lvl := range used {
			d.Group[r] = index[lvl]
		}
	}
	return d, nil
}

// EncodeRow encodes one covariate setting the same way fitted designs encode rows.
// values holds transformed numeric values; levels holds categorical levels. Terms missing
// from both maps take their reference value: the mean, or the first level.
func EncodeRow(encs []stats.TermEncoding, values map[string]float64, levels map[string]string) []float64 {
	x := []float64{1}
	for _, enc := range encs {
		if enc.Term.Categorical {
			lvl, ok := levels[enc.Term.Column]
			if !ok {
				lvl = enc.Levels[0]
			}
			for _, l := range enc.Levels[1:] {
				if l == lvl {
					x = append(x, 1)
				} else {
					x = append(x, 0)
				}
			}
			continue
		}
		v, ok := values[enc.Term.Column]
		if !ok {
			v = enc.Mean
		}
		x = append(x, v)
	}
	return x
}

// rank counts singular values above the numerical tolerance
func rank(x mat.Matrix) int {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDNone) {
		return 0
	}
	vals := svd.Values(nil)
	if len(vals) == 0 {
		return 0
	}
	r, c := x.Dims()
	tol := float64(max(r, c)) * vals[0] * 1e-12
	k := 0
	for _, v := range vals {
		if v > tol {
			k++
		}
	}
	return k
}

// checkRank returns ErrRankDeficient when the fixed-effect columns are collinear
func (d *design) checkRank() error {
	if d.n() <= d.p() {
		return fmt.Errorf("%w: %d complete rows for %d coefficients", core.ErrInsufficientData, d.n(), d.p())
	}
	if r := rank(d.X); r < d.p() {
		return core.NewRankDeficientError(fmt.Sprintf("design has rank %d for %d columns %v", r, d.p(), d.Names))
	}
	return nil
}

// checkRandom returns ErrRankDeficient when the random intercept cannot be separated
// from the residual or from the fixed effects
func (d *design) checkRandom(group string) error {
	if len(d.Levels) < 2 {
		return fmt.Errorf("%w: random intercept %s has %d level(s)", core.ErrInsufficientData, group, len(d.Levels))
	}
	if len(d.Levels) == d.n() {
		return core.NewRankDeficientError(fmt.Sprintf(
			"random intercept %s has one observation per level and is confounded with the residual; drop the random effect", group))
	}

	xz := mat.NewDense(d.n(), d.p()+len(d.Levels), nil)
	xz.Slice(0, d.n(), 0, d.p()).(*mat.Dense).Copy(d.X)
	for r, g := range d.Group {
		xz.Set(r, d.p()+g, 1)
	}
	if rank(xz) == rank(d.X) {
		return core.NewRankDeficientError(fmt.Sprintf(
			"random intercept %s is collinear with the fixed effects; drop the random effect", group))
	}
	return nil
}

// groupSizes counts design rows per random-effect level
func (d *design) groupSizes() []int {
	sizes := make([]int, len(d.Levels))
	for _, g := range d.Group {
		sizes[g]++
	}
	return sizes
}
