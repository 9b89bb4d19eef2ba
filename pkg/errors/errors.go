package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, &AppError{Code: ErrNotFound}).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrInvalidPayload
	ErrUnsupportedPayload
	ErrChannelFailure
	ErrPersistence
	ErrInternal
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func InvalidPayload(message string, err error) *AppError {
	return &AppError{
		Code:    ErrInvalidPayload,
		Message: message,
		Err:     err,
	}
}

func UnsupportedPayload(err error) *AppError {
	return &AppError{
		Code:    ErrUnsupportedPayload,
		Message: "unsupported payload",
		Err:     err,
	}
}

func ChannelFailure(channel string, err error) *AppError {
	return &AppError{
		Code:    ErrChannelFailure,
		Message: fmt.Sprintf("%s channel send failed", channel),
		Err:     err,
	}
}

func Persistence(op string, err error) *AppError {
	return &AppError{
		Code:    ErrPersistence,
		Message: fmt.Sprintf("persistence failure during %s", op),
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

func IsPersistence(err error) bool {
	return CodeOf(err) == ErrPersistence
}

// IsPayload reports whether err is a malformed or unsupported payload, which
// no amount of retrying will fix.
func IsPayload(err error) bool {
	code := CodeOf(err)
	return code == ErrInvalidPayload || code == ErrUnsupportedPayload
}
