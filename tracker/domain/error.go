package domain

import (
	"errors"
	"time"
)

// ErrMalformedReport marks a single tag report that could not be normalized.
// The report is skipped; the rest of its batch is still processed.
var ErrMalformedReport = errors.New("malformed tag report")

// ErrConfiguration marks a rejected configuration change. The previously
// active configuration stays in effect.
var ErrConfiguration = errors.New("invalid configuration")

// ErrValidation is returned by transport interceptors for batches that do
// not meet the ingest contract.
var ErrValidation = errors.New("validation failed")

// ErrObservationFiltered is returned by observation interceptors for
// observations that must not reach the store or the log.
var ErrObservationFiltered = errors.New("observation filtered")

// RateLimitError is returned when a reader bridge sends faster than the
// configured ingest budget. Delay is how long until the budget refills.
type RateLimitError struct {
	Delay   time.Duration
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return e.Message
}
