package app

import (
	"os"
	"path/filepath"
	"testing"

	"perchmp/domain/run"
	"perchmp/domain/stats"
	"perchmp/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	assert.Equal(t, "TL", p.Response)
	assert.False(t, p.Hash().IsEmpty())
	require.NotEmpty(t, p.Models)

	byName := map[string]*ModelEntry{}
	for i := range p.Models {
		byName[p.Models[i].Name] = &p.Models[i]
	}

	tl := byName["tl-anova"]
	require.NotNil(t, tl)
	spec, err := tl.Spec()
	require.NoError(t, err)
	assert.Equal(t, stats.KindANOVA, spec.Kind)
	assert.Equal(t, stats.FamilyGaussian, spec.Family)
	assert.Equal(t, "TL ~ factor(treatment)", spec.Formula())

	survival := byName["survival-trend"]
	require.NotNil(t, survival)
	assert.Equal(t, run.FrameMesocosm, survival.FrameKind())
	spec, err = survival.Spec()
	require.NoError(t, err)
	assert.Equal(t, stats.LinkLogit, spec.Link)
	assert.Equal(t, "corral", spec.Random)
	require.NotNil(t, survival.Fallback)
	assert.Equal(t, "survival-trend-fixed", survival.Fallback.Name)
}

func TestParsePlan_Rejects(t *testing.T) {
	tests := map[string]string{
		"not yaml": "models: [",
		"empty":    "name: nothing\n",
		"duplicate names": `
models:
  - {name: a, formula: "TL ~ factor(treatment)", kind: anova}
  - {name: a, formula: "TL ~ FL", kind: linear}
`,
		"bad formula": `
models:
  - {name: a, formula: "TL FL", kind: linear}
`,
		"anova with covariate": `
models:
  - {name: a, formula: "TL ~ FL", kind: anova}
`,
		"unknown supersedes": `
models:
  - {name: a, formula: "TL ~ FL", kind: linear, supersedes: b}
`,
		"unknown frame": `
models:
  - {name: a, formula: "TL ~ FL", kind: linear, frame: pond}
`,
		"summary without responses": `
summaries:
  - {name: s, keys: [treatment]}
`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(src))
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
		})
	}
}

func TestLoadPlan(t *testing.T) {
	p, err := LoadPlan("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlan().Hash(), p.Hash())

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: custom
response: FL
models:
  - name: fl
    formula: FL ~ factor(treatment)
    kind: anova
    predict: {column: MPconcentration, values: [0, 10]}
`), 0o644))
	p, err = LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "FL", p.Response)
	assert.NotEqual(t, DefaultPlan().Hash(), p.Hash())
	assert.Equal(t, []float64{0, 10}, p.Models[0].Predict.Values)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPlan_Select(t *testing.T) {
	p := DefaultPlan()

	sub, err := p.Select("gonad-length")
	require.NoError(t, err)
	require.Len(t, sub.Models, 2, "the superseded model comes along")
	assert.Equal(t, "gonad-anova", sub.Models[0].Name)
	assert.Equal(t, "gonad-length", sub.Models[1].Name)
	assert.Empty(t, sub.Summaries)
	assert.NotEqual(t, p.Hash(), sub.Hash())

	again, err := p.Select("gonad-length")
	require.NoError(t, err)
	assert.Equal(t, sub.Hash(), again.Hash())

	_, err = p.Select("tl-trend-fixed")
	assert.Error(t, err, "fallbacks are not selectable on their own")

	summaries, err := p.SummariesOnly()
	require.NoError(t, err)
	assert.Empty(t, summaries.Models)
	assert.Len(t, summaries.Summaries, 3)
}
