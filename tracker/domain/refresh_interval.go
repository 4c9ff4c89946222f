package domain

import (
	"fmt"
	"time"
)

// Refresh cadence bounds for the view publisher.
const (
	DefaultRefreshInterval = RefreshInterval(time.Second)
	MinRefreshInterval     = RefreshInterval(100 * time.Millisecond)
)

// RefreshInterval is the period at which matrix and log views are projected.
type RefreshInterval time.Duration

// NewRefreshInterval rejects intervals shorter than MinRefreshInterval.
func NewRefreshInterval(val time.Duration) (RefreshInterval, error) {
	if val < time.Duration(MinRefreshInterval) {
		return 0, fmt.Errorf("%w: refresh interval must be at least %s, got %s",
			ErrConfiguration, time.Duration(MinRefreshInterval), val)
	}
	return RefreshInterval(val), nil
}

// Duration returns the interval as a time.Duration.
func (r RefreshInterval) Duration() time.Duration {
	return time.Duration(r)
}
