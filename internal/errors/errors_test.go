package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"perchmp/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestGetCode_ClassifiesDomainErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{core.NewMissingColumnError("fish.csv", "TL"), CodeLoadError},
		{core.NewRankDeficientError("corral"), CodeModelFit},
		{fmt.Errorf("wrapped: %w", core.ErrInconclusive), CodeInconclusive},
		{core.NewUnknownColumnError("x"), CodeInvalidInput},
		{stderrors.New("boom"), CodeInternalError},
		{ConfigInvalid("bad"), CodeConfigInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetCode(tt.err), tt.err.Error())
	}
}

func TestWrap_KeepsCodeAndCause(t *testing.T) {
	inner := core.NewMissingColumnError("pop.csv", "YP.end")
	err := Wrapf(inner, "loading %s", "pop.csv")

	assert.Equal(t, CodeLoadError, GetCode(err))
	assert.ErrorIs(t, err, core.ErrMissingColumn)
	assert.Contains(t, err.Error(), "loading pop.csv")
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWithCode_Overrides(t *testing.T) {
	err := WithCode(CodeReportError, Wrap(stderrors.New("disk full"), "writing workbook"))
	assert.Equal(t, CodeReportError, GetCode(err))
	assert.True(t, IsAppError(fmt.Errorf("outer: %w", err)))
}
