package infrastructure

import (
	"sync"
	"time"
)

// RetryAfterDelay holds the moment until which the tracker asked the bridge
// not to send.
type RetryAfterDelay struct {
	mu    sync.RWMutex
	until time.Time
	now   func() time.Time
}

// Get returns how long sending is still paused, zero when it is not.
func (d *RetryAfterDelay) Get() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.until.IsZero() {
		return 0
	}
	return max(d.until.Sub(d.now()), 0)
}

// Set pauses sending for delay from now. A shorter delay never cuts an
// active pause.
func (d *RetryAfterDelay) Set(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if until := d.now().Add(delay); until.After(d.until) {
		d.until = until
	}
}

// Reset lifts the pause.
func (d *RetryAfterDelay) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.until = time.Time{}
}

// NewRetryAfterDelay creates a RetryAfterDelay with no active pause.
func NewRetryAfterDelay() *RetryAfterDelay {
	return &RetryAfterDelay{now: time.Now}
}
