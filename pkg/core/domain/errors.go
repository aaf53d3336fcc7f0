package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrAllocationExhausted = errors.New("shortcode allocation exhausted")
	ErrStoreUnavailable    = errors.New("store unavailable")

	// Non-fatal. Callers log these and carry on without the component.
	ErrCacheUnavailable  = errors.New("cache unavailable")
	ErrGeoUnavailable    = errors.New("geo lookup unavailable")
	ErrLedgerUnavailable = errors.New("click ledger unavailable")

	ErrInactive  = errors.New("short url is inactive")
	ErrExpired   = errors.New("short url has expired")
	ErrForbidden = errors.New("permission denied")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError is a shorthand for &ValidationError{...}.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
