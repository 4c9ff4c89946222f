package domain

import "fmt"

// RateLimit is the ingest budget per reader bridge stream, in bytes of
// encoded batches per second.
type RateLimit uint32

// NewRateLimit validates a positive ingest budget.
func NewRateLimit(val int) (RateLimit, error) {
	if val <= 0 {
		return 0, fmt.Errorf("%w: rate limit must be greater than 0", ErrConfiguration)
	}
	return RateLimit(val), nil
}
