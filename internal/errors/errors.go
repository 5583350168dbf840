package errors

import "fmt"

// Category represents the type of error.
type Category string

const (
	CategoryWatch    Category = "watch"
	CategoryProcess  Category = "process"
	CategoryDelivery Category = "delivery"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// DevloopError is a structured error with a stable code, a category, and an
// optional wrapped cause.
type DevloopError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type (watch, process, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DevloopError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DevloopError) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *DevloopError) WithDetail(format string, args ...any) *DevloopError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DevloopError) WithSuggestion(s string) *DevloopError {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *DevloopError) Wrap(err error) *DevloopError {
	e.Wrapped = err
	return e
}

// New creates a DevloopError from a registered error code.
func New(code string) *DevloopError {
	template, ok := registry[code]
	if !ok {
		return &DevloopError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DevloopError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new DevloopError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DevloopError {
	return &DevloopError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsCode reports whether err is (or wraps) a DevloopError with the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		if de, ok := err.(*DevloopError); ok && de.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
