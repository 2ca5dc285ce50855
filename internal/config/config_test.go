package config

import (
	"testing"

	"perchmp/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PERCH_BIOMETRICS_FILE", "PERCH_POPULATION_FILE", "PERCH_SEED",
		"PERCH_SIMULATIONS", "PERCH_ALPHA", "PERCH_BASELINE_SECOND", "PERCH_FORMATS", "PERCH_OUTPUT_DIR"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "perch_biometrics.csv", cfg.Inputs.BiometricsFile)
	assert.Equal(t, int64(20240501), cfg.Analysis.Seed)
	assert.Equal(t, 250, cfg.Analysis.Simulations)
	assert.Equal(t, 0.05, cfg.Analysis.Alpha)
	assert.Empty(t, cfg.Analysis.BaselineSecond)
	assert.Equal(t, []string{"xlsx", "md", "html", "yaml"}, cfg.Output.Formats)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PERCH_BIOMETRICS_FILE", "fish.xlsx")
	t.Setenv("PERCH_SEED", "7")
	t.Setenv("PERCH_ALPHA", "0.01")
	t.Setenv("PERCH_BASELINE_SECOND", " H, ,C ")
	t.Setenv("PERCH_FORMATS", "yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fish.xlsx", cfg.Inputs.BiometricsFile)
	assert.Equal(t, int64(7), cfg.Analysis.Seed)
	assert.Equal(t, 0.01, cfg.Analysis.Alpha)
	assert.Equal(t, []string{"H", "C"}, cfg.Analysis.BaselineSecond)
	assert.Equal(t, []string{"yaml"}, cfg.Output.Formats)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("seed", func(t *testing.T) {
		t.Setenv("PERCH_SEED", "abc")
		_, err := Load()
		assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	})
	t.Run("alpha", func(t *testing.T) {
		t.Setenv("PERCH_ALPHA", "1.5")
		_, err := Load()
		assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	})
	t.Run("format", func(t *testing.T) {
		t.Setenv("PERCH_FORMATS", "pdf")
		_, err := Load()
		assert.ErrorContains(t, err, "pdf")
	})
}

func TestLoad_Ledger(t *testing.T) {
	t.Setenv("PERCH_LEDGER_DSN", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Ledger.DSN, "the ledger is off by default")

	t.Setenv("PERCH_LEDGER_DSN", "runs.db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "runs.db", cfg.Ledger.DSN)
}
