package models

import (
	"testing"

	"perchmp/domain/core"
	"perchmp/domain/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormula(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		want    Formula
	}{
		{
			name:    "one-way factor",
			formula: "TL ~ factor(treatment)",
			want: Formula{
				Response: stats.Term{Column: "TL"},
				Fixed:    []stats.Term{{Column: "treatment", Categorical: true}},
			},
		},
		{
			name:    "transforms and random intercept",
			formula: "log(TL) ~ log1p(MPconcentration) + (1 | corral)",
			want: Formula{
				Response: stats.Term{Column: "TL", Transform: stats.TransformLog},
				Fixed:    []stats.Term{{Column: "MPconcentration", Transform: stats.TransformLog1p}},
				Random:   "corral",
			},
		},
		{
			name:    "intercept only",
			formula: "survival ~ 1",
			want:    Formula{Response: stats.Term{Column: "survival"}},
		},
		{
			name:    "as.factor and plain covariate",
			formula: "gonad.weight ~ as.factor(MPconcentration) + body.weight",
			want: Formula{
				Response: stats.Term{Column: "gonad.weight"},
				Fixed: []stats.Term{
					{Column: "MPconcentration", Categorical: true},
					{Column: "body.weight"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormula(tt.formula)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormula_Rejects(t *testing.T) {
	for _, f := range []string{
		"TL",
		"factor(treatment) ~ TL",
		"TL ~ exp(FL)",
		"TL ~ FL + (FL | corral)",
		"TL ~ (1|corral) + (1|treatment)",
		"TL ~ log(",
	} {
		_, err := ParseFormula(f)
		assert.ErrorIs(t, err, core.ErrUnsupportedModel, f)
	}
}

func TestFormulaApply_RoundTripsThroughSpec(t *testing.T) {
	f, err := ParseFormula("log(TL) ~ log1p(MPconcentration) + (1|corral)")
	require.NoError(t, err)

	spec := f.Apply(stats.ModelSpec{Name: "growth", Kind: stats.KindLinear})
	assert.Equal(t, "log(TL) ~ log1p(MPconcentration) + (1|corral)", spec.Formula())
}
