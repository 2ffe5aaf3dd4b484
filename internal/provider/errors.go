package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider search failures.
type ErrorKind string

const (
	// ErrTransient marks failures worth retrying on a later run: network
	// errors, 5xx, upstream timeouts.
	ErrTransient ErrorKind = "transient"
	// ErrQuotaExceeded marks a provider whose period quota is exhausted.
	ErrQuotaExceeded ErrorKind = "quota_exceeded"
	// ErrInvalidResponse marks a payload the adapter could not parse.
	ErrInvalidResponse ErrorKind = "invalid_response"
)

// Error is the uniform failure type returned by provider adapters. The
// collector skips the provider and records it; it never aborts the run
// unless every provider fails.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a provider error of the given kind.
func NewError(providerID string, kind ErrorKind, err error) *Error {
	return &Error{Provider: providerID, Kind: kind, Err: err}
}

// KindOf returns the error kind if err is (or wraps) a provider Error.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// RateLimitTimeoutError reports that a token wait outlived its context
// deadline. Treated as transient by the collector.
type RateLimitTimeoutError struct {
	Provider string
	Waited   time.Duration
}

func (e *RateLimitTimeoutError) Error() string {
	return fmt.Sprintf("provider %s: rate limit wait timed out after %s", e.Provider, e.Waited)
}
