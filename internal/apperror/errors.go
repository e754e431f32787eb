// Package apperror provides domain-specific error types for Darim.
// Every error carries a kind from a small fixed taxonomy, the HTTP status
// the transport layer should answer with, and a message safe for clients.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError. The set is closed; transport code switches on it.
type Kind string

const (
	// KindInvalidArgument means caller input failed validation.
	KindInvalidArgument Kind = "invalid_argument"

	// KindInvalidFormat means an internal serialization step failed.
	KindInvalidFormat Kind = "invalid_format"

	// KindUnauthorized means credentials or the session were rejected.
	KindUnauthorized Kind = "unauthorized"

	// KindNotFound means a referenced entity is absent. Key names the lookup.
	KindNotFound Kind = "not_found"

	// KindInternal covers store and transport failures.
	KindInternal Kind = "internal"
)

// AppError is the base error type for all domain errors.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Kind is the machine-readable classifier.
	Kind Kind `json:"error"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Key identifies which lookup failed. Only set for KindNotFound.
	Key string `json:"key,omitempty"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s (key: %s)", e.Kind, e.Message, e.Key)
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s (internal: %v)", msg, e.Internal)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors ---

// NewInvalidArgument creates a 400 error for rejected caller input.
func NewInvalidArgument(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Kind:    KindInvalidArgument,
		Message: message,
	}
}

// NewInvalidFormat creates a 500 error for a failed serialization. It is a
// bug, not a user mistake, so the client only sees a generic message.
func NewInvalidFormat(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Kind:     KindInvalidFormat,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Kind:    KindUnauthorized,
		Message: message,
	}
}

// NewNotFound creates a 404 error. key names the entity whose lookup failed
// (e.g. "user", "user_key").
func NewNotFound(key string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Kind:    KindNotFound,
		Message: key + " not found",
		Key:     key,
	}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Kind:     KindInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// --- Inspection helpers ---

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// Wrap returns err unchanged if it already is an AppError, otherwise it
// wraps it as an internal error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return NewInternal(err)
}

// SafeMessage returns the client-safe error message from an error. Any error
// that is not an AppError gets a generic message so that table names, query
// structure and the like never leak.
func SafeMessage(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
