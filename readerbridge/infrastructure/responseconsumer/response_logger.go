package responseconsumer

import (
	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
)

// ResponseLogger logs every tracker response worth an operator's attention.
// done is closed once the returned channel is closed and drained.
func ResponseLogger(logger bridgeDomain.Logger) (chan<- reportwire.Response, <-chan struct{}) {
	dataCh := make(chan reportwire.Response, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for resp := range dataCh {
			switch resp.Code {
			case reportwire.CodeResourceExhausted:
				logger.Info("batch %d dropped by tracker, retry after %s", resp.BatchID, resp.RetryAfter)
			case reportwire.CodeInvalidArgument, reportwire.CodeInternal:
				logger.Error("tracker responded with %s: %s, \t batchId: %d", resp.Code, resp.Message, resp.BatchID)
			case reportwire.CodeOK:
				if resp.Rejected > 0 {
					logger.Warn("batch %d: %d reports accepted, %d rejected", resp.BatchID, resp.Accepted, resp.Rejected)
				}
			}
		}
	}()

	return dataCh, done
}
