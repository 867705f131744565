package core

import (
	"errors"
	"fmt"
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

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// WrapCode wraps an error under an explicit code
func WrapCode(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Predefined error codes. The first five form the pipeline failure taxonomy:
// every fatal pipeline error maps onto exactly one of them.
const (
	CodeDataFormat         = "DATA_FORMAT"         // malformed input, mismatched sample IDs
	CodeDegenerateInput    = "DEGENERATE_INPUT"    // zero-count sample, zero-variance feature
	CodeRankDeficiency     = "RANK_DEFICIENCY"     // collinear design matrix columns
	CodeUnknownCoefficient = "UNKNOWN_COEFFICIENT" // invalid contrast selection
	CodeEmptySet           = "EMPTY_SET"           // non-fatal: gene set with zero matched rows
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Common error constructors
func DataFormat(message string) *AppError {
	return New(CodeDataFormat, message)
}

func DataFormatf(format string, args ...interface{}) *AppError {
	return New(CodeDataFormat, fmt.Sprintf(format, args...))
}

func DegenerateInput(message string) *AppError {
	return New(CodeDegenerateInput, message)
}

func DegenerateInputf(format string, args ...interface{}) *AppError {
	return New(CodeDegenerateInput, fmt.Sprintf(format, args...))
}

func RankDeficiency(message string) *AppError {
	return New(CodeRankDeficiency, message)
}

func UnknownCoefficient(name string) *AppError {
	return New(CodeUnknownCoefficient, fmt.Sprintf("unknown coefficient %q", name))
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
