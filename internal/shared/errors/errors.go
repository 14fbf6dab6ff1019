package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories. Every AppError wraps exactly one of these so callers can
// branch with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("resource not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
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

// Unauthenticated creates an error for a caller without an operator profile
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthenticated,
		Message:    message,
		Code:       "UNAUTHENTICATED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// AlreadyExists creates an error for a duplicate resource
func AlreadyExists(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrAlreadyExists,
		Message:    fmt.Sprintf("%s already exists", resource),
		Code:       "ALREADY_EXISTS",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// InvalidArgument creates an error for a rejected input field
func InvalidArgument(field, message string) *AppError {
	return &AppError{
		Err:        ErrInvalidArgument,
		Message:    message,
		Code:       "INVALID_ARGUMENT",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]string{"field": field},
	}
}

// Validation creates an invalid argument error with per-field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrInvalidArgument,
		Message:    message,
		Code:       "INVALID_ARGUMENT",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrInternal, err),
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Invariant reports a broken store invariant such as an id collision. The
// operation must be aborted; the state it was about to write is not trusted.
func Invariant(format string, args ...any) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: "+format, append([]any{ErrInternal}, args...)...),
		Message:    "invariant violation",
		Code:       "INVARIANT_VIOLATION",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context. AppErrors keep their category.
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := *appErr
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrInternal, err),
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, INTERNAL_ERROR for foreign errors
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}
