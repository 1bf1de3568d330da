// Package apperr provides typed application errors with HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the category of an error, used for status mapping and responses.
type Type string

const (
	TypeValidation   Type = "validation"
	TypeUnauthorized Type = "unauthorized"
	TypeForbidden    Type = "forbidden"
	TypeNotFound     Type = "not_found"
	TypeConflict     Type = "conflict"
	TypeRateLimited  Type = "rate_limited"
	TypeExternal     Type = "external"
	TypeInternal     Type = "internal"
)

// Error is a structured error with type, message, cause and context.
type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for the error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

// Validation creates a validation error (HTTP 400).
func Validation(message string) *Error { return newError(TypeValidation, message, nil) }

// Unauthorized creates an authentication error (HTTP 401).
func Unauthorized(message string) *Error { return newError(TypeUnauthorized, message, nil) }

// Forbidden creates an authorization error (HTTP 403).
func Forbidden(message string) *Error { return newError(TypeForbidden, message, nil) }

// NotFound creates a not-found error (HTTP 404).
func NotFound(message string) *Error { return newError(TypeNotFound, message, nil) }

// Conflict creates a conflict error (HTTP 409).
func Conflict(message string) *Error { return newError(TypeConflict, message, nil) }

// RateLimited creates a rate limit error (HTTP 429).
func RateLimited(message string) *Error { return newError(TypeRateLimited, message, nil) }

// External creates an upstream failure error (HTTP 502).
func External(message string, cause error) *Error { return newError(TypeExternal, message, cause) }

// Internal creates a server-side error (HTTP 500).
func Internal(message string, cause error) *Error { return newError(TypeInternal, message, cause) }

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Response is the JSON body sent to clients.
type Response struct {
	Error   string         `json:"error"`
	Type    Type           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts the error to its client representation. The cause is
// never exposed.
func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type, Context: e.Context}
}

// As converts any error into an *Error. Errors that are not already
// structured become internal errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
