package dataset

import (
	"math"
	"testing"

	"perchmp/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnBundle_NumericAsLabels(t *testing.T) {
	b := NewColumnBundle(3)
	require.NoError(t, b.AddNumeric("MPconcentration", []float64{0, 10, math.NaN()}))

	labels, err := b.Labels("MPconcentration")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "10", ""}, labels)
}

func TestColumnBundle_ReturnsCopies(t *testing.T) {
	b := NewColumnBundle(2)
	require.NoError(t, b.AddNumeric("TL", []float64{1, 2}))

	col, err := b.Numeric("TL")
	require.NoError(t, err)
	col[0] = 99

	again, _ := b.Numeric("TL")
	assert.Equal(t, 1.0, again[0])
}

func TestColumnBundle_Errors(t *testing.T) {
	b := NewColumnBundle(2)
	assert.Error(t, b.AddNumeric("TL", []float64{1}))

	_, err := b.Numeric("missing")
	assert.ErrorIs(t, err, core.ErrUnknownColumn)
	_, err = b.Labels("missing")
	assert.ErrorIs(t, err, core.ErrUnknownColumn)
}

func TestSortLevels_NumericPrefix(t *testing.T) {
	levels := []string{"200", "0b", "50", "10", "0a", "ctrl"}
	SortLevels(levels)
	assert.Equal(t, []string{"0a", "0b", "10", "50", "200", "ctrl"}, levels)
}

func TestDistinctLevels_SkipsMissing(t *testing.T) {
	got := DistinctLevels([]string{"10", "", "0", "10", "1e2"})
	assert.Equal(t, []string{"0", "10", "1e2"}, got)
}
