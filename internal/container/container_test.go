package container

import (
	"context"
	"path/filepath"
	"testing"

	"perchmp/internal/config"
	"perchmp/internal/errors"
	"perchmp/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	bio, pop, err := testkit.NewTestKit(dir, testkit.DefaultMesocosmConfig()).Fixtures()
	require.NoError(t, err)
	return &config.Config{
		Inputs: config.InputConfig{BiometricsFile: bio, PopulationFile: pop},
		Output: config.OutputConfig{Dir: filepath.Join(dir, "results"), Formats: []string{"md", "yaml"}},
		Analysis: config.AnalysisConfig{
			Seed:        3,
			Simulations: 20,
			Alpha:       0.05,
		},
		LogLevel: "ERROR",
	}
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)

	c, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "perch-microplastics", c.Plan.Name)

	req := c.Request(nil)
	assert.Equal(t, int64(3), req.Seed)
	assert.Same(t, c.Plan, req.Plan)
}

func TestNew_BadPlanFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inputs.PlanFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestExecute(t *testing.T) {
	c, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	plan, err := c.Plan.Select("tl-anova")
	require.NoError(t, err)
	result, paths, err := c.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, result.Models, 1)
	assert.True(t, result.Models[0].OK())
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
}

func TestExecute_RecordsLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.DSN = filepath.Join(t.TempDir(), "runs.db")
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()
	require.NotNil(t, c.Ledger)

	plan, err := c.Plan.Select("tl-anova")
	require.NoError(t, err)
	first, _, err := c.Execute(context.Background(), plan)
	require.NoError(t, err)
	_, _, err = c.Execute(context.Background(), plan)
	require.NoError(t, err)

	same, err := c.Ledger.Matching(context.Background(), first.Manifest.Fingerprint)
	require.NoError(t, err)
	assert.Len(t, same, 2, "identical settings reproduce the fingerprint")
}
