package responseconsumer

import (
	"time"

	"github.com/samoilenko/tagmatrix/pkg/reportwire"
)

// DelaySetter pauses sending for a duration.
type DelaySetter interface {
	Set(delay time.Duration)
}

// RetryDelayConsumer pauses sending whenever the tracker answers with
// RESOURCE_EXHAUSTED. The pause lifts by itself once the delay has passed.
func RetryDelayConsumer(retryAfter DelaySetter) (chan<- reportwire.Response, <-chan struct{}) {
	respCh := make(chan reportwire.Response, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for resp := range respCh {
			if resp.Code == reportwire.CodeResourceExhausted && resp.RetryAfter > 0 {
				retryAfter.Set(resp.RetryAfter)
			}
		}
	}()

	return respCh, done
}
