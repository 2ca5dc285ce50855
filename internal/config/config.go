package config

import (
	"os"
	"strconv"
	"strings"

	"perchmp/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Inputs   InputConfig
	Output   OutputConfig
	Analysis AnalysisConfig
	Ledger   LedgerConfig
	LogLevel string
}

// InputConfig holds the two experiment files and the optional analysis plan
type InputConfig struct {
	BiometricsFile string
	PopulationFile string
	PlanFile       string // empty uses the built-in plan
	Sheet          string // xlsx sheet; empty reads the first
}

// OutputConfig controls where reports are written
type OutputConfig struct {
	Dir     string
	Formats []string // any of xlsx, md, html, yaml
}

// AnalysisConfig holds the numeric settings of a run
type AnalysisConfig struct {
	Seed        int64
	Simulations int
	Alpha       float64
	// BaselineSecond lists the zero-concentration corrals labelled as the second control;
	// empty alternates the sorted baseline corrals
	BaselineSecond []string
}

// LedgerConfig locates the optional run ledger
type LedgerConfig struct {
	// DSN is a postgres:// URL or a SQLite file path; empty disables the ledger
	DSN string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Inputs:   loadInputConfig(),
		Output:   loadOutputConfig(),
		Ledger:   LedgerConfig{DSN: getEnvOrDefault("PERCH_LEDGER_DSN", "")},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	analysis, err := loadAnalysisConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load analysis configuration")
	}
	config.Analysis = *analysis

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadInputConfig() InputConfig {
	return InputConfig{
		BiometricsFile: getEnvOrDefault("PERCH_BIOMETRICS_FILE", "perch_biometrics.csv"),
		PopulationFile: getEnvOrDefault("PERCH_POPULATION_FILE", "perch_mesocosm.csv"),
		PlanFile:       getEnvOrDefault("PERCH_PLAN_FILE", ""),
		Sheet:          getEnvOrDefault("PERCH_SHEET", ""),
	}
}

func loadOutputConfig() OutputConfig {
	return OutputConfig{
		Dir:     getEnvOrDefault("PERCH_OUTPUT_DIR", "results"),
		Formats: getEnvListOrDefault("PERCH_FORMATS", []string{"xlsx", "md", "html", "yaml"}),
	}
}

func loadAnalysisConfig() (*AnalysisConfig, error) {
	seed, err := getEnvInt64OrDefault("PERCH_SEED", 20240501)
	if err != nil {
		return nil, errors.ConfigInvalid("PERCH_SEED must be an integer")
	}
	return &AnalysisConfig{
		Seed:           seed,
		Simulations:    getEnvIntOrDefault("PERCH_SIMULATIONS", 250),
		Alpha:          getEnvFloatOrDefault("PERCH_ALPHA", 0.05),
		BaselineSecond: getEnvListOrDefault("PERCH_BASELINE_SECOND", nil),
	}, nil
}

// Validate checks the settings a run cannot proceed without
func (c *Config) Validate() error {
	if c.Inputs.BiometricsFile == "" {
		return errors.ConfigInvalid("biometrics file is required")
	}
	if c.Inputs.PopulationFile == "" {
		return errors.ConfigInvalid("population file is required")
	}
	if c.Output.Dir == "" {
		return errors.ConfigInvalid("output directory is required")
	}
	for _, f := range c.Output.Formats {
		switch f {
		case "xlsx", "md", "html", "yaml":
		default:
			return errors.ConfigInvalid("unknown output format " + strconv.Quote(f))
		}
	}
	if c.Analysis.Simulations < 0 {
		return errors.ConfigInvalid("simulation count must not be negative")
	}
	if c.Analysis.Alpha <= 0 || c.Analysis.Alpha >= 1 {
		return errors.ConfigInvalid("alpha must lie in (0, 1)")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma-separated value, dropping empty items
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
