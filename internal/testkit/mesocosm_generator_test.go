package testkit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMesocosmGenerator_Deterministic(t *testing.T) {
	cfg := DefaultMesocosmConfig()
	obs1, pops1 := NewMesocosmDataGenerator(cfg).Generate()
	obs2, pops2 := NewMesocosmDataGenerator(cfg).Generate()

	require.Len(t, obs1, len(cfg.Corrals)*cfg.FishPerCorral)
	assert.Equal(t, pops1, pops2)
	for i := range obs1 {
		assert.Equal(t, obs1[i].Corral, obs2[i].Corral)
		if !math.IsNaN(obs1[i].TotalLength) {
			assert.Equal(t, obs1[i].TotalLength, obs2[i].TotalLength)
		}
	}
}

func TestMesocosmGenerator_ValidPopulations(t *testing.T) {
	_, pops := NewMesocosmDataGenerator(DefaultMesocosmConfig()).Generate()
	require.Len(t, pops, 8)
	for _, p := range pops {
		require.NoError(t, p.Validate())
		s := p.Survival()
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestFixtures_RoundTripThroughLoader(t *testing.T) {
	kit := NewTestKit(t.TempDir(), DefaultMesocosmConfig())
	bio, pop, err := kit.Fixtures()
	require.NoError(t, err)

	ctx := context.Background()
	obs, err := kit.DatasetReader().LoadBiometrics(ctx, bio)
	require.NoError(t, err)
	want, wantPops := NewMesocosmDataGenerator(DefaultMesocosmConfig()).Generate()
	require.Len(t, obs, len(want))
	for i := range obs {
		assert.Equal(t, want[i].Corral, obs[i].Corral)
		assert.Equal(t, math.IsNaN(want[i].TotalLength), math.IsNaN(obs[i].TotalLength), "row %d", i)
	}

	pops, err := kit.DatasetReader().LoadPopulation(ctx, pop)
	require.NoError(t, err)
	assert.Equal(t, wantPops, pops)
}
