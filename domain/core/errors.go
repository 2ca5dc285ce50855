package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Load errors
	ErrLoadFailed     = errors.New("dataset load failed")
	ErrFileNotFound   = fmt.Errorf("%w: file not found", ErrLoadFailed)
	ErrMissingColumn  = fmt.Errorf("%w: required column missing", ErrLoadFailed)
	ErrMalformedValue = fmt.Errorf("%w: malformed value", ErrLoadFailed)
	ErrDuplicateKey   = fmt.Errorf("%w: duplicate key", ErrLoadFailed)

	// Frame errors
	ErrUnknownColumn = errors.New("unknown column")

	// Model-fit errors
	ErrModelFit         = errors.New("model fit failed")
	ErrRankDeficient    = fmt.Errorf("%w: rank-deficient design", ErrModelFit)
	ErrNonConvergence   = fmt.Errorf("%w: optimizer did not converge", ErrModelFit)
	ErrInsufficientData = fmt.Errorf("%w: insufficient data", ErrModelFit)
	ErrUnsupportedModel = fmt.Errorf("%w: unsupported specification", ErrModelFit)

	// Diagnostic errors
	ErrInconclusive = errors.New("diagnostic inconclusive")
)

// Error constructors with context
func NewMissingColumnError(file, column string) error {
	return fmt.Errorf("%w: %s has no column %q", ErrMissingColumn, file, column)
}

func NewMalformedValueError(file string, row int, column, value string) error {
	return fmt.Errorf("%w: %s row %d column %q: %q", ErrMalformedValue, file, row, column, value)
}

func NewRankDeficientError(reason string) error {
	return fmt.Errorf("%w: %s", ErrRankDeficient, reason)
}

func NewUnknownColumnError(column string) error {
	return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
}

// Error checking helpers
func IsLoadError(err error) bool {
	return errors.Is(err, ErrLoadFailed)
}

func IsModelFitError(err error) bool {
	return errors.Is(err, ErrModelFit)
}

func IsRankDeficient(err error) bool {
	return errors.Is(err, ErrRankDeficient)
}
