package domain

import (
	"fmt"
	"math"
)

// DefaultLogCapacity is the rolling log row cap used when none is configured.
const DefaultLogCapacity LogCapacity = 1000

// LogCapacity is the maximum number of rows kept by the rolling log.
type LogCapacity uint32

// NewLogCapacity validates a positive row cap.
func NewLogCapacity(size int) (LogCapacity, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: log capacity must be greater than 0", ErrConfiguration)
	}
	if uint64(size) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: log capacity must not exceed %d, got %d", ErrConfiguration, uint64(math.MaxUint32), size)
	}

	return LogCapacity(size), nil
}
