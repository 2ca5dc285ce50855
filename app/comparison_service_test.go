package app_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"perchmp/adapters/excel"
	"perchmp/adapters/rng"
	"perchmp/app"
	"perchmp/domain/mesocosm"
	"perchmp/domain/run"
	"perchmp/internal/errors"
	"perchmp/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *app.ComparisonService {
	return app.NewComparisonService(excel.NewLoader(excel.DefaultReaderConfig(), nil), rng.NewAdapter(), nil)
}

func fixtures(t *testing.T) (string, string) {
	t.Helper()
	bio, pop, err := testkit.NewTestKit(t.TempDir(), testkit.DefaultMesocosmConfig()).Fixtures()
	require.NoError(t, err)
	return bio, pop
}

func request(bio, pop string) app.Request {
	return app.Request{
		BiometricsFile: bio,
		PopulationFile: pop,
		Seed:           7,
		Simulations:    40,
		Alpha:          0.05,
	}
}

func TestRun_DefaultPlan(t *testing.T) {
	bio, pop := fixtures(t)
	result, err := newService().Run(context.Background(), request(bio, pop))
	require.NoError(t, err)

	obs, _ := testkit.NewMesocosmDataGenerator(testkit.DefaultMesocosmConfig()).Generate()
	missing := 0
	for _, o := range obs {
		if math.IsNaN(o.TotalLength) {
			missing++
		}
	}
	assert.Equal(t, missing, result.Dropped)
	assert.Equal(t, len(obs)-missing, result.Fish.Len(), "left join keeps every measured fish")
	tl, err := result.Fish.Numeric(mesocosm.ColTotalLength)
	require.NoError(t, err)
	for _, v := range tl {
		assert.False(t, math.IsNaN(v))
	}

	require.NotNil(t, result.Manifest)
	assert.Equal(t, []string{"H"}, result.Manifest.SecondControl)
	assert.False(t, result.Manifest.Fingerprint.IsEmpty())
	assert.False(t, result.Manifest.Biometrics.Hash.IsEmpty())

	require.Len(t, result.Summaries, 3)
	assert.Len(t, result.Summaries[0].Groups, 4, "duplicate concentrations merge")
	assert.Len(t, result.Summaries[1].Groups, 5, "the two controls split")
	assert.Len(t, result.Summaries[2].Groups, 5)

	tlAnova, ok := result.Model("tl-anova")
	require.True(t, ok)
	require.True(t, tlAnova.OK(), tlAnova.Error)
	require.NotNil(t, tlAnova.Comparison)
	assert.Len(t, tlAnova.Comparison.Pairs, 10)
	assert.Len(t, tlAnova.Letters, 5)
	require.NotNil(t, tlAnova.Simulated)
	assert.Len(t, tlAnova.Simulated.Scaled, result.Fish.Len())
	require.Len(t, tlAnova.Dispersion, 1)
	assert.Equal(t, tlAnova.Model.ID, tlAnova.Simulated.Model, "diagnosed from its own fit")

	gonad, _ := result.Model("gonad-anova")
	respec, _ := result.Model("gonad-length")
	require.True(t, respec.OK(), respec.Error)
	assert.Equal(t, run.StatusSuperseded, gonad.Status)
	assert.Equal(t, "gonad-length", gonad.SupersededBy)
	assert.Equal(t, gonad.Model.ID, respec.Model.Supersedes)

	trend, _ := result.Model("tl-trend")
	require.True(t, trend.OK(), trend.Error)
	require.NotNil(t, trend.Model.Random)
	require.NotNil(t, trend.Predictions)
	assert.Len(t, trend.Predictions.Points, 8)
}

func TestRun_FallbackSupersedesFailedFit(t *testing.T) {
	bio, pop := fixtures(t)
	result, err := newService().Run(context.Background(), request(bio, pop))
	require.NoError(t, err)

	failed, ok := result.Model("survival-trend")
	require.True(t, ok)
	assert.Equal(t, run.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "rank-deficient")
	assert.Nil(t, failed.Model)
	assert.Equal(t, "survival-trend-fixed", failed.SupersededBy)

	fallback, ok := result.Model("survival-trend-fixed")
	require.True(t, ok)
	require.True(t, fallback.OK(), fallback.Error)
	assert.Equal(t, failed.Attempt, fallback.Model.Supersedes)
	assert.Equal(t, run.FrameMesocosm, fallback.Frame)
	assert.Equal(t, 8, fallback.Model.N)
	for _, p := range fallback.Predictions.Points {
		assert.Greater(t, p.Fit, 0.0)
		assert.Less(t, p.Fit, 1.0)
	}
	assert.Len(t, result.Failed(), 1)
}

func TestRun_SameSeedSameSimulations(t *testing.T) {
	bio, pop := fixtures(t)
	svc := newService()
	plan, err := app.ParsePlan([]byte(`
name: tl-only
models:
  - name: tl-anova
    formula: TL ~ factor(treatment)
    kind: anova
    simulate: true
`))
	require.NoError(t, err)

	req := request(bio, pop)
	req.Plan = plan
	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	a, _ := first.Model("tl-anova")
	b, _ := second.Model("tl-anova")
	assert.Equal(t, a.Simulated.Scaled, b.Simulated.Scaled)
	assert.Equal(t, first.Manifest.Fingerprint, second.Manifest.Fingerprint)
	assert.NotEqual(t, first.Manifest.RunID, second.Manifest.RunID)
}

func TestRun_FailedModelWithoutFallbackIsRecorded(t *testing.T) {
	bio, pop := fixtures(t)
	plan, err := app.ParsePlan([]byte(`
name: failing
models:
  - name: survival-mixed
    formula: survival ~ factor(treatment) + (1|corral)
    kind: linear
    frame: mesocosm
  - name: tl-anova
    formula: TL ~ factor(treatment)
    kind: anova
`))
	require.NoError(t, err)

	req := request(bio, pop)
	req.Plan = plan
	result, err := newService().Run(context.Background(), req)
	require.NoError(t, err, "fit failures do not abort the run")
	require.Len(t, result.Models, 2)
	assert.Equal(t, run.StatusFailed, result.Models[0].Status)
	assert.Empty(t, result.Models[0].SupersededBy)
	assert.True(t, result.Models[1].OK())
}

func TestRun_LoadErrorsAbort(t *testing.T) {
	bio, _ := fixtures(t)

	_, err := newService().Run(context.Background(), request(bio, filepath.Join(t.TempDir(), "missing.csv")))
	require.Error(t, err)
	assert.Equal(t, errors.CodeLoadError, errors.GetCode(err))

	broken := filepath.Join(t.TempDir(), "broken.csv")
	require.NoError(t, os.WriteFile(broken, []byte("corral,YP.start\nA,20\n"), 0o644))
	_, err = newService().Run(context.Background(), request(bio, broken))
	assert.Equal(t, errors.CodeLoadError, errors.GetCode(err))
}

func TestRun_Cancelled(t *testing.T) {
	bio, pop := fixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newService().Run(ctx, request(bio, pop))
	assert.ErrorIs(t, err, context.Canceled)
}
