package analysis

import (
	"math"
	"testing"

	"perchmp/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryFrame(t *testing.T) dataset.Frame {
	t.Helper()
	b := dataset.NewColumnBundle(7)
	require.NoError(t, b.AddNumeric("MPconcentration", []float64{0, 0, 10, 10, 200, 50, 50}))
	require.NoError(t, b.AddLabels("treatment", []string{"0a", "0b", "10", "10", "200", "50", ""}))
	require.NoError(t, b.AddNumeric("TL", []float64{7, 9, 8, math.NaN(), 10, 6, 8}))
	return b
}

func TestByGroup_MergesDuplicateConcentrations(t *testing.T) {
	groups, err := ByGroup(summaryFrame(t), []string{"MPconcentration"}, []string{"TL"})
	require.NoError(t, err)

	var labels []string
	for _, g := range groups {
		labels = append(labels, g.Label())
	}
	assert.Equal(t, []string{"0", "10", "50", "200"}, labels)

	zero, _ := groups[0].Response("TL")
	assert.Equal(t, 2, zero.N)
	assert.InDelta(t, 8.0, zero.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt2, zero.SD, 1e-12)
}

func TestByGroup_SingleObservationHasUndefinedSD(t *testing.T) {
	groups, err := ByGroup(summaryFrame(t), []string{"MPconcentration"}, []string{"TL"})
	require.NoError(t, err)

	ten, _ := groups[1].Response("TL")
	assert.Equal(t, 2, groups[1].Rows)
	assert.Equal(t, 1, ten.N, "missing values are ignored")
	assert.Equal(t, 8.0, ten.Mean)
	assert.True(t, math.IsNaN(ten.SD))

	twoHundred, _ := groups[3].Response("TL")
	assert.True(t, math.IsNaN(twoHundred.SD))
}

func TestByGroup_TreatmentAndMissingKey(t *testing.T) {
	groups, err := ByGroup(summaryFrame(t), []string{"treatment"}, []string{"TL"})
	require.NoError(t, err)

	var labels []string
	for _, g := range groups {
		labels = append(labels, g.Label())
	}
	assert.Equal(t, []string{"0a", "0b", "10", "50", "200", MissingLevel}, labels)
}

func TestByGroup_MultipleKeys(t *testing.T) {
	groups, err := ByGroup(summaryFrame(t), []string{"MPconcentration", "treatment"}, []string{"TL"})
	require.NoError(t, err)
	assert.Len(t, groups, 6)
	assert.Equal(t, []string{"0", "0a"}, groups[0].Values)
}

func TestByGroup_Errors(t *testing.T) {
	_, err := ByGroup(summaryFrame(t), nil, []string{"TL"})
	assert.Error(t, err)
	_, err = ByGroup(summaryFrame(t), []string{"nope"}, []string{"TL"})
	assert.Error(t, err)
	_, err = ByGroup(summaryFrame(t), []string{"treatment"}, []string{"nope"})
	assert.Error(t, err)
}
