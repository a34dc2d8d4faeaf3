package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies application-level failures surfaced at the core boundary.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeDenied         ErrorCode = "DENIED"
	CodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	CodeCancelled      ErrorCode = "CANCELLED"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError carries a code, message and optional cause across layer boundaries.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

func NewInvalidInputError(message string) *AppError { return New(CodeInvalidInput, message) }
func NewNotFoundError(message string) *AppError     { return New(CodeNotFound, message) }
func NewDeniedError(message string) *AppError       { return New(CodeDenied, message) }
func NewInternalError(message string) *AppError     { return New(CodeInternal, message) }

// NewInternalErrorWithCause creates an internal error with a cause.
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return Wrap(CodeInternal, message, cause)
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool     { return HasCode(err, CodeNotFound) }
func IsInvalidInput(err error) bool { return HasCode(err, CodeInvalidInput) }
func IsDenied(err error) bool       { return HasCode(err, CodeDenied) }
