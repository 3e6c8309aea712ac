package domain

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies inference provider failures.
type ProviderErrorKind string

// Provider error kinds.
const (
	// ProviderNotRunning means the provider process is not reachable.
	ProviderNotRunning ProviderErrorKind = "not-running"

	// ProviderModelNotFound means the requested model is not installed.
	ProviderModelNotFound ProviderErrorKind = "model-not-found"

	// ProviderTimeout means the request exceeded its deadline.
	ProviderTimeout ProviderErrorKind = "timeout"

	// ProviderMalformedResponse means the provider returned a response
	// that could not be decoded.
	ProviderMalformedResponse ProviderErrorKind = "malformed-response"
)

// ProviderError is a typed inference provider failure. Callers use the
// Kind to decide between retrying with backoff (not-running, timeout)
// and failing fast (model-not-found, malformed-response).
type ProviderError struct {
	// Kind classifies the failure.
	Kind ProviderErrorKind

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a typed provider error.
func NewProviderError(kind ProviderErrorKind, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Message: message, Err: err}
}

// ProviderErrorIs reports whether err is a ProviderError of the given kind.
func ProviderErrorIs(err error, kind ProviderErrorKind) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// IsRetryableProviderError reports whether err is a provider failure
// worth retrying with backoff. Model-not-found and malformed responses
// will not heal on retry.
func IsRetryableProviderError(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == ProviderNotRunning || pe.Kind == ProviderTimeout
}
