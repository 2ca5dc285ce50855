package errors

import (
	stderrors "errors"
	"fmt"

	"perchmp/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code comes from an inner AppError, else
// from the domain error it wraps.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError, else classifies domain errors
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case err == nil:
		return ""
	case core.IsLoadError(err):
		return CodeLoadError
	case core.IsModelFitError(err):
		return CodeModelFit
	case stderrors.Is(err, core.ErrInconclusive):
		return CodeInconclusive
	case stderrors.Is(err, core.ErrUnknownColumn):
		return CodeInvalidInput
	}
	return CodeInternalError
}

// Predefined error codes
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeLoadError     = "LOAD_ERROR"
	CodeModelFit      = "MODEL_FIT_ERROR"
	CodeInconclusive  = "INCONCLUSIVE"
	CodeReportError   = "REPORT_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func LoadFailed(err error, file string) error {
	return &AppError{Code: CodeLoadError, Message: fmt.Sprintf("failed to load %s", file), Cause: err}
}

func ReportFailed(err error, artifact string) error {
	return &AppError{Code: CodeReportError, Message: fmt.Sprintf("failed to write %s", artifact), Cause: err}
}
