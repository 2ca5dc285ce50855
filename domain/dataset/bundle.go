package dataset

import (
	"fmt"

	"perchmp/domain/core"
)

// Frame is the column-access contract consumed by summaries and model fitting.
// Numeric columns carry NaN for missing values; label columns carry "" for missing.
type Frame interface {
	Len() int
	Numeric(name string) ([]float64, error)
	Labels(name string) ([]string, error)
}

// StatisticalType defines variable types for analysis
type StatisticalType string

const (
	TypeNumeric     StatisticalType = "numeric"
	TypeCategorical StatisticalType = "categorical"
)

// ColumnMeta contains metadata for each bundle column
type ColumnMeta struct {
	Name            string
	StatisticalType StatisticalType
}

// ColumnBundle is an in-memory Frame assembled column by column
type ColumnBundle struct {
	rows       int
	numeric    map[string][]float64
	labels     map[string][]string
	ColumnMeta []ColumnMeta
}

// NewColumnBundle creates an empty bundle with the given row count
func NewColumnBundle(rows int) *ColumnBundle {
	return &ColumnBundle{
		rows:    rows,
		numeric: make(map[string][]float64),
		labels:  make(map[string][]string),
	}
}

// AddNumeric adds a numeric column; the value slice is copied
func (b *ColumnBundle) AddNumeric(name string, values []float64) error {
	if len(values) != b.rows {
		return fmt.Errorf("column %q has %d values, expected %d", name, len(values), b.rows)
	}
	b.numeric[name] = append([]float64(nil), values...)
	b.ColumnMeta = append(b.ColumnMeta, ColumnMeta{Name: name, StatisticalType: TypeNumeric})
	return nil
}

// AddLabels adds a categorical column; the value slice is copied
func (b *ColumnBundle) AddLabels(name string, values []string) error {
	if len(values) != b.rows {
		return fmt.Errorf("column %q has %d values, expected %d", name, len(values), b.rows)
	}
	b.labels[name] = append([]string(nil), values...)
	b.ColumnMeta = append(b.ColumnMeta, ColumnMeta{Name: name, StatisticalType: TypeCategorical})
	return nil
}

// Len returns the number of rows
func (b *ColumnBundle) Len() int {
	return b.rows
}

// Numeric returns a copy of a numeric column
func (b *ColumnBundle) Numeric(name string) ([]float64, error) {
	col, ok := b.numeric[name]
	if !ok {
		return nil, core.NewUnknownColumnError(name)
	}
	return append([]float64(nil), col...), nil
}

// Labels returns a copy of a categorical column. Numeric columns are rendered with %g
// so any numeric column can be used as a grouping factor.
func (b *ColumnBundle) Labels(name string) ([]string, error) {
	if col, ok := b.labels[name]; ok {
		return append([]string(nil), col...), nil
	}
	if col, ok := b.numeric[name]; ok {
		return FormatLabels(col), nil
	}
	return nil, core.NewUnknownColumnError(name)
}

// FormatLabels renders numeric values as factor levels; NaN becomes the missing label ""
func FormatLabels(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = FormatLevel(v)
	}
	return out
}

// FormatLevel renders one numeric value as a factor level
func FormatLevel(v float64) string {
	if v != v {
		return ""
	}
	return fmt.Sprintf("%g", v)
}
