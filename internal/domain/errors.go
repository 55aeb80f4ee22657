// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "errors"

// Sentinel errors shared by the store, the lifecycle service and the pipeline.
var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrInternal           = errors.New("internal error")
	ErrRevisionMismatch   = errors.New("revision mismatch")
	ErrUnmarshal          = errors.New("unmarshal error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrEmptySummary       = errors.New("summarizer returned no message")
)

// ErrorType represents the semantic category of an error
type ErrorType int

const (
	ErrorTypeValidation   ErrorType = iota // Input validation errors (400 Bad Request)
	ErrorTypeNotFound                      // Resource not found errors (404 Not Found)
	ErrorTypeConflict                      // Resource conflict errors (409 Conflict)
	ErrorTypeInternal                      // Internal server errors (500 Internal Server Error)
	ErrorTypeUnavailable                   // Service unavailable errors (503 Service Unavailable)
	ErrorTypeUnauthorized                  // Signature or API key mismatch (401 Unauthorized)
	ErrorTypeExternal                      // Failure of a called-out service (502 Bad Gateway)
)

// String returns the lower-case name of the error type, used as a metric label.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeUnauthorized:
		return "unauthorized"
	case ErrorTypeExternal:
		return "external"
	default:
		return "internal"
	}
}

// DomainError represents an error with semantic type information
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error // underlying error for wrapping
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// GetErrorType returns the semantic type of an error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal // default fallback
}

// IsRetryable reports whether repeating the failed operation can succeed.
// Validation, authorization and not-found errors are deterministic and are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorType(err) {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeUnauthorized:
		return false
	default:
		return true
	}
}

// Error constructors for different types
func NewValidationError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeValidation, Message: message, Err: errors.Join(err...)}
}

func NewNotFoundError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeNotFound, Message: message, Err: errors.Join(err...)}
}

func NewConflictError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeConflict, Message: message, Err: errors.Join(err...)}
}

func NewInternalError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeInternal, Message: message, Err: errors.Join(err...)}
}

func NewUnavailableError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnavailable, Message: message, Err: errors.Join(err...)}
}

func NewUnauthorizedError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnauthorized, Message: message, Err: errors.Join(err...)}
}

// NewExternalServiceError wraps a failure of the transcript host, the summarizer or the video provider.
func NewExternalServiceError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeExternal, Message: message, Err: errors.Join(err...)}
}
