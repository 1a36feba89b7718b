package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnsupported    = errors.New("unsupported operation")
	ErrSyncInProgress = errors.New("sync already in progress")

	// Reconciliation taxonomy.
	ErrInvalidAddressSpec = errors.New("invalid address spec")
	ErrCollectionFailure  = errors.New("collection failure")
	ErrRetryExhausted     = errors.New("retry exhausted")
	ErrMutationFailure    = errors.New("mutation failure")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeSyncInProgress   = "SYNC_IN_PROGRESS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}

// InvalidAddressSpecError reports a CIDR or range token that could not be expanded.
type InvalidAddressSpecError struct {
	Spec   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *InvalidAddressSpecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid address spec %q: %s: %v", e.Spec, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid address spec %q: %s", e.Spec, e.Reason)
}

// Unwrap returns the parse error, if any.
func (e *InvalidAddressSpecError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidAddressSpec.
func (e *InvalidAddressSpecError) Is(target error) bool {
	return target == ErrInvalidAddressSpec
}

// CollectionError reports that an inventory could not be assembled completely.
type CollectionError struct {
	Provider   string
	Collection string
	Cursor     string
	Err        error
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("collecting %s/%s: %v", e.Provider, e.Collection, e.Err)
}

// Unwrap returns the underlying fetch error.
func (e *CollectionError) Unwrap() error {
	return e.Err
}

// Is reports ErrCollectionFailure.
func (e *CollectionError) Is(target error) bool {
	return target == ErrCollectionFailure
}

// RetryExhaustedError reports a single call that was still failing transiently
// when its retry budget ran out.
type RetryExhaustedError struct {
	Call     string
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Call, e.Attempts, e.Last)
}

// Unwrap returns the last transient failure.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports ErrRetryExhausted.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// MutationError is a terminal, non-retryable failure returned by a provider.
type MutationError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
	}
	return "provider error: " + e.Message
}

// Is reports ErrMutationFailure.
func (e *MutationError) Is(target error) bool {
	return target == ErrMutationFailure
}

// RateLimitedError is the error recorded for a rate-limited attempt.
type RateLimitedError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
}
