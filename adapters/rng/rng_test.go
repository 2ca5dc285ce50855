package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(t *testing.T, a *Adapter, scope, stage, model string, seed int64) []float64 {
	t.Helper()
	r, err := a.Stream(context.Background(), scope, stage, model, seed)
	require.NoError(t, err)
	out := make([]float64, 5)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestStream_Deterministic(t *testing.T) {
	a := NewAdapter()
	first := draws(t, a, "plan", "simulate", "tl_anova", 42)
	assert.Equal(t, first, draws(t, a, "plan", "simulate", "tl_anova", 42))
	assert.NotEqual(t, first, draws(t, a, "plan", "simulate", "condition_anova", 42))
	assert.NotEqual(t, first, draws(t, a, "plan", "simulate", "tl_anova", 43))
}

func TestSeededStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAdapter().SeededStream(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashString(t *testing.T) {
	assert.Equal(t, uint32(5381), hashString(""))
	assert.Equal(t, uint32(5381*33+'a'), hashString("a"))
}
