package excel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"perchmp/domain/core"
	"perchmp/domain/mesocosm"
	"perchmp/internal"
	"perchmp/ports"
)

// Required columns per input file
var (
	BiometricsColumns = []string{
		mesocosm.ColCorral,
		mesocosm.ColConcentration,
		mesocosm.ColBodyWeight,
		mesocosm.ColTotalLength,
		mesocosm.ColForkLength,
		mesocosm.ColGonadWeight,
	}
	PopulationColumns = []string{
		mesocosm.ColCorral,
		mesocosm.ColStart,
		mesocosm.ColEnd,
	}
)

// Loader implements ports.DatasetReader over CSV and xlsx files
type Loader struct {
	config ReaderConfig
	logger *internal.Logger
}

var _ ports.DatasetReader = (*Loader)(nil)

// NewLoader creates a loader; a nil logger uses the default logger
func NewLoader(config ReaderConfig, logger *internal.Logger) *Loader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Loader{config: config, logger: logger.With("loader")}
}

// LoadBiometrics reads one row per measured fish. Columns outside the contract are kept as
// extra numeric columns when every present value parses, else as extra labels.
func (l *Loader) LoadBiometrics(ctx context.Context, path string) ([]mesocosm.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader := NewDataReader(path, l.config)
	data, err := reader.ReadData()
	if err != nil {
		return nil, err
	}
	if err := requireColumns(path, data, BiometricsColumns); err != nil {
		return nil, err
	}

	p := &rowParser{config: l.config, path: path}
	extras, labels := l.classifyExtras(data, BiometricsColumns)

	obs := make([]mesocosm.Observation, len(data.Rows))
	for i, row := range data.Rows {
		p.row = data.Lines[i]
		o := mesocosm.Observation{
			Corral:        row[mesocosm.ColCorral],
			Concentration: p.number(row, mesocosm.ColConcentration),
			BodyWeight:    p.number(row, mesocosm.ColBodyWeight),
			TotalLength:   p.number(row, mesocosm.ColTotalLength),
			ForkLength:    p.number(row, mesocosm.ColForkLength),
			GonadWeight:   p.number(row, mesocosm.ColGonadWeight),
		}
		if p.err == nil && o.Corral == "" {
			p.err = core.NewMalformedValueError(path, p.row, mesocosm.ColCorral, "")
		}
		if p.err == nil && o.Concentration < 0 {
			p.err = core.NewMalformedValueError(path, p.row, mesocosm.ColConcentration, row[mesocosm.ColConcentration])
		}
		p.positive(row, mesocosm.ColTotalLength, o.TotalLength)
		p.positive(row, mesocosm.ColForkLength, o.ForkLength)
		p.nonNegative(row, mesocosm.ColBodyWeight, o.BodyWeight)
		p.nonNegative(row, mesocosm.ColGonadWeight, o.GonadWeight)
		if len(extras) > 0 {
			o.Extra = make(map[string]float64, len(extras))
			for _, col := range extras {
				o.Extra[col] = p.number(row, col)
			}
		}
		if len(labels) > 0 {
			o.ExtraLabels = make(map[string]string, len(labels))
			for _, col := range labels {
				o.ExtraLabels[col] = row[col]
			}
		}
		if p.err != nil {
			return nil, p.err
		}
		obs[i] = o
	}

	l.logger.Info("loaded %d biometric rows from %s (%d extra numeric, %d extra label columns)",
		len(obs), path, len(extras), len(labels))
	return obs, nil
}

// LoadPopulation reads one row per mesocosm. MPconcentration is optional here.
func (l *Loader) LoadPopulation(ctx context.Context, path string) ([]mesocosm.Population, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader := NewDataReader(path, l.config)
	data, err := reader.ReadData()
	if err != nil {
		return nil, err
	}
	if err := requireColumns(path, data, PopulationColumns); err != nil {
		return nil, err
	}
	hasConcentration := data.HasColumn(mesocosm.ColConcentration)

	p := &rowParser{config: l.config, path: path}
	seen := make(map[string]int, len(data.Rows))
	pops := make([]mesocosm.Population, len(data.Rows))
	for i, row := range data.Rows {
		p.row = data.Lines[i]
		pop := mesocosm.Population{
			Corral:        row[mesocosm.ColCorral],
			Start:         p.number(row, mesocosm.ColStart),
			End:           p.number(row, mesocosm.ColEnd),
			Concentration: math.NaN(),
		}
		if hasConcentration {
			pop.Concentration = p.number(row, mesocosm.ColConcentration)
		}
		if p.err != nil {
			return nil, p.err
		}
		if pop.Concentration < 0 {
			return nil, core.NewMalformedValueError(path, p.row, mesocosm.ColConcentration, row[mesocosm.ColConcentration])
		}
		if err := pop.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", core.ErrMalformedValue, path, p.row, err)
		}
		if first, dup := seen[pop.Corral]; dup {
			return nil, fmt.Errorf("%w: %s corral %q on rows %d and %d", core.ErrDuplicateKey, path, pop.Corral, first, p.row)
		}
		seen[pop.Corral] = p.row
		pops[i] = pop
	}

	l.logger.Info("loaded %d mesocosm rows from %s", len(pops), path)
	return pops, nil
}

// Fingerprint hashes an input file for the run manifest
func (l *Loader) Fingerprint(path string) (core.Hash, error) {
	h, err := core.HashFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", core.ErrLoadFailed, path, err)
	}
	return h, nil
}

// classifyExtras splits the non-contract columns into numeric and label columns
func (l *Loader) classifyExtras(data *ExcelData, contract []string) (numeric, labels []string) {
	known := make(map[string]bool, len(contract))
	for _, c := range contract {
		known[c] = true
	}
	for _, h := range data.Headers {
		if known[h] {
			continue
		}
		isNumeric, present := true, 0
		for _, row := range data.Rows {
			cell := row[h]
			if l.config.IsMissing(cell) {
				continue
			}
			present++
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				isNumeric = false
				break
			}
		}
		if isNumeric && present > 0 {
			numeric = append(numeric, h)
		} else {
			labels = append(labels, h)
		}
	}
	sort.Strings(numeric)
	sort.Strings(labels)
	return numeric, labels
}

func requireColumns(path string, data *ExcelData, required []string) error {
	for _, col := range required {
		if !data.HasColumn(col) {
			return core.NewMissingColumnError(path, col)
		}
	}
	return nil
}

// rowParser parses numeric cells and keeps the first error
type rowParser struct {
	config ReaderConfig
	path   string
	row    int
	err    error
}

func (p *rowParser) number(row RawRowData, column string) float64 {
	if p.err != nil {
		return math.NaN()
	}
	cell := row[column]
	if p.config.IsMissing(cell) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(v, 0) {
		p.err = core.NewMalformedValueError(p.path, p.row, column, cell)
		return math.NaN()
	}
	return v
}

// positive rejects a present value that is zero or negative; lengths enter the condition
// index as a cube in the denominator
func (p *rowParser) positive(row RawRowData, column string, v float64) {
	if p.err == nil && v <= 0 {
		p.err = core.NewMalformedValueError(p.path, p.row, column, row[column])
	}
}

func (p *rowParser) nonNegative(row RawRowData, column string, v float64) {
	if p.err == nil && v < 0 {
		p.err = core.NewMalformedValueError(p.path, p.row, column, row[column])
	}
}
