package core

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderFailed marks a semantic analysis that could not complete
	ErrProviderFailed = errors.New("semantic provider failed")
	// ErrUnknownProvider is returned for an unregistered provider tag
	ErrUnknownProvider = errors.New("unknown semantic provider")
	// ErrProviderNotConfigured is returned when credentials or endpoints are missing
	ErrProviderNotConfigured = errors.New("semantic provider not configured")
)

// ProviderError is fatal to an analysis. Err holds every attempt's cause.
type ProviderError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("provider %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

// Unwrap exposes the cause chain and the ErrProviderFailed sentinel
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderFailed, e.Err}
}

// NewProviderError wraps err as a ProviderError unless it already is one
func NewProviderError(provider string, attempts int, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Attempts: attempts, Err: err}
}
