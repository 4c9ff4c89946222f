package infrastructure

import (
	"sync"
	"time"

	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
	"google.golang.org/protobuf/proto"
)

// RateLimiter is a fixed window limiter on the encoded size of incoming
// batches. A batch that would overflow the window is rejected and does not
// count towards it.
type RateLimiter[K proto.Message] struct {
	last       time.Time
	mu         sync.Mutex
	timeWindow time.Duration
	maxLimit   trackerDomain.RateLimit
	limit      int
	now        func() time.Time
}

// Apply accounts msg against the current window. The returned
// RateLimitError carries the time left until the window resets.
func (r *RateLimiter[K]) Apply(msg K) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	elapsed := now.Sub(r.last)
	size := proto.Size(msg)
	if elapsed >= r.timeWindow {
		r.last = now
		r.limit = size

		return nil
	}

	if r.limit+size > int(r.maxLimit) {
		return &trackerDomain.RateLimitError{
			Message: "rate limit exceeded",
			Delay:   r.timeWindow - elapsed,
		}
	}
	r.limit += size

	return nil
}

// NewRateLimiter creates a limiter allowing maxLimit bytes per timeWindow.
func NewRateLimiter[K proto.Message](maxLimit trackerDomain.RateLimit, timeWindow time.Duration) *RateLimiter[K] {
	return &RateLimiter[K]{
		maxLimit:   maxLimit,
		timeWindow: timeWindow,
		now:        time.Now,
	}
}
