package domain

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// transportRetryDelay is how long the forwarder waits after the transport
// reported it is not ready.
const transportRetryDelay = time.Second

// Transport defines the contract for sending report batches to the tracker.
type Transport interface {
	Send(ctx context.Context, readerID ReaderID, reports []RawReport) error
}

// ForwarderStats counts batches by outcome.
type ForwarderStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// ReportForwarder sends queued report batches through the transport.
type ReportForwarder struct {
	transport Transport
	readerID  ReaderID
	logger    Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Forward sends every batch received from the channel. While the tracker
// asks for a pause, batches are dropped; while the transport is not ready the
// forwarder waits before taking the next batch.
// It blocks until the context is cancelled or the channel is closed.
func (f *ReportForwarder) Forward(ctx context.Context, batches <-chan []RawReport) {
	for {
		select {
		case <-ctx.Done():
			return
		case reports, ok := <-batches:
			if !ok {
				return
			}
			if !f.forward(ctx, reports) {
				return
			}
		}
	}
}

// forward returns false when the context ended while waiting.
func (f *ReportForwarder) forward(ctx context.Context, reports []RawReport) bool {
	err := f.transport.Send(ctx, f.readerID, reports)
	if err == nil {
		f.sent.Add(1)
		return true
	}

	var rateLimitError *RateLimitError
	switch {
	case errors.As(err, &rateLimitError):
		f.dropped.Add(1)
		f.logger.Info("batch of %d reports ignored due to rate limit. Next send after %s",
			len(reports), rateLimitError.Delay)
		return wait(ctx, rateLimitError.Delay)
	case errors.Is(err, ErrTransportNotReady):
		f.failed.Add(1)
		f.logger.Warn("%s, waiting for %s", err.Error(), transportRetryDelay)
		return wait(ctx, transportRetryDelay)
	default:
		f.failed.Add(1)
		f.logger.Error("error sending batch: %s", err.Error())
		return true
	}
}

func wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns the forwarding counters.
func (f *ReportForwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Sent:    f.sent.Load(),
		Dropped: f.dropped.Load(),
		Failed:  f.failed.Load(),
	}
}

// NewReportForwarder creates a forwarder that tags every batch with readerID.
func NewReportForwarder(transport Transport, logger Logger, readerID ReaderID) *ReportForwarder {
	return &ReportForwarder{
		transport: transport,
		readerID:  readerID,
		logger:    logger,
	}
}
