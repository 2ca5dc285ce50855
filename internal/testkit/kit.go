// Package testkit provides synthetic mesocosm fixtures and adapter wiring for tests and
// for the generate command.
package testkit

import (
	"fmt"

	"perchmp/adapters/excel"
	"perchmp/adapters/rng"
	"perchmp/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	dir    string
	config MesocosmGeneratorConfig
}

// NewTestKit creates a kit writing fixtures into dir
func NewTestKit(dir string, config MesocosmGeneratorConfig) *TestKit {
	return &TestKit{dir: dir, config: config}
}

// DatasetReader returns the file loader with default conventions
func (k *TestKit) DatasetReader() ports.DatasetReader {
	return excel.NewLoader(excel.DefaultReaderConfig(), nil)
}

// RNGAdapter returns an RNG adapter
func (k *TestKit) RNGAdapter() ports.RNGPort {
	return rng.NewAdapter()
}

// Fixtures writes the synthetic biometrics and population CSV files
func (k *TestKit) Fixtures() (biometricsPath, populationPath string, err error) {
	biometricsPath, populationPath, err = NewMesocosmDataGenerator(k.config).WriteCSV(k.dir)
	if err != nil {
		return "", "", fmt.Errorf("write fixtures: %w", err)
	}
	return biometricsPath, populationPath, nil
}
