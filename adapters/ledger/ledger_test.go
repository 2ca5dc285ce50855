package ledger

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"perchmp/domain/core"
	"perchmp/domain/run"
	"perchmp/domain/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func result(seed int64, created time.Time) *run.Result {
	m := run.NewRunManifest(core.NewRunID(),
		run.Input{Path: "bio.csv", Hash: core.NewHash([]byte("bio"))},
		run.Input{Path: "pop.csv", Hash: core.NewHash([]byte("pop"))},
		"plan", core.NewHash([]byte("plan")), seed, 50, 0.05)
	m.CreatedAt = core.Timestamp(created)
	m.Seal([]string{"H"})

	spec := stats.ModelSpec{
		Kind:     stats.KindANOVA,
		Response: stats.Term{Column: "TL"},
		Fixed:    []stats.Term{{Column: "treatment", Categorical: true}},
		Family:   stats.FamilyGaussian,
		Link:     stats.LinkIdentity,
	}
	return &run.Result{
		Manifest: m,
		Models: []run.ModelResult{
			{
				Name: "tl-anova", Spec: spec, Frame: run.FrameFish, Status: run.StatusFitted,
				Model: &stats.FittedModel{
					N:       100,
					Overall: stats.ModelTest{Name: "F", Statistic: 4.2, DF1: 4, DF2: 95, PValue: 0.003},
					AIC:     math.NaN(),
				},
			},
			{
				Name: "survival-trend", Spec: spec, Frame: run.FrameMesocosm, Status: run.StatusFailed,
				Error: "rank-deficient design", SupersededBy: "survival-trend-fixed",
			},
		},
	}
}

func TestDriver(t *testing.T) {
	assert.Equal(t, "postgres", Driver("postgres://user@localhost/perch"))
	assert.Equal(t, "postgres", Driver("postgresql://localhost/perch"))
	assert.Equal(t, "sqlite", Driver("ledger.db"))
	assert.Equal(t, "sqlite", Driver("file:ledger.db?cache=shared"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestLedger_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	l := openTemp(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := result(1, base)
	second := result(1, base.Add(time.Minute))
	other := result(2, base.Add(2*time.Minute))
	for _, r := range []*run.Result{first, second, other} {
		require.NoError(t, l.Record(ctx, r))
	}

	runs, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, other.Manifest.RunID, runs[0].RunID, "newest first")
	assert.Equal(t, 2, runs[0].Models)
	assert.Equal(t, 1, runs[0].Failed)
	assert.True(t, runs[2].CreatedAt.Time().Equal(base))

	limited, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	same, err := l.Matching(ctx, first.Manifest.Fingerprint)
	require.NoError(t, err)
	require.Len(t, same, 2, "same inputs and seed share a fingerprint")
	assert.Equal(t, first.Manifest.RunID, same[0].RunID)
	assert.Equal(t, second.Manifest.RunID, same[1].RunID)

	outcomes, err := l.Outcomes(ctx, first.Manifest.RunID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "survival-trend", outcomes[0].Name)
	assert.Equal(t, run.StatusFailed, outcomes[0].Status)
	assert.True(t, math.IsNaN(outcomes[0].PValue))
	assert.InDelta(t, 0.003, outcomes[1].PValue, 1e-12)
}

func TestLedger_DuplicateRunRejected(t *testing.T) {
	ctx := context.Background()
	l := openTemp(t)
	r := result(1, time.Now().UTC())
	require.NoError(t, l.Record(ctx, r))
	assert.Error(t, l.Record(ctx, r))

	runs, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "the failed insert is rolled back")
}

func TestOpen_Reopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, result(1, time.Now().UTC())))
	require.NoError(t, l.Close())

	l, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
