package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// StreamManager defines the contract for managing the bidirectional report stream.
type StreamManager interface {
	EstablishNewConnection(ctx context.Context) (*reportwire.IngestClientStream, error)
	Send(ctx context.Context, msg *structpb.Struct) error
	Close()
}

// ReportStreamSender sends report batches over the stream with automatic
// reconnection. Responses of the tracker are decoded and published on the
// response channel.
type ReportStreamSender struct {
	streamManager       StreamManager
	logger              bridgeDomain.Logger
	batchID             atomic.Int64
	backgroundJobsGroup sync.WaitGroup
	responseCh          chan reportwire.Response
	reconnectCh         chan struct{}
	retryAfter          *RetryAfterDelay
	now                 func() time.Time
}

// Run manages the stream lifecycle until ctx is cancelled, then closes the
// response channel.
func (s *ReportStreamSender) Run(ctx context.Context) {
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	s.triggerReconnect()
	s.streamConnectionManager(ctx)
}

// Stop closes the stream and waits for the response reader to finish.
func (s *ReportStreamSender) Stop(ctx context.Context) {
	s.logger.Info("Closing stream sender...")
	s.streamManager.Close()

	done := make(chan struct{})
	go func() {
		s.backgroundJobsGroup.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		s.logger.Error("background jobs were not stopped in time")
	case <-done:
		s.logger.Info("background jobs stopped")
	}
	close(s.responseCh)
}

// streamConnectionManager opens a stream on every reconnect request and
// starts a response reader for it.
func (s *ReportStreamSender) streamConnectionManager(ctx context.Context) {
	var cancel context.CancelFunc
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reconnectCh:
			if cancel != nil {
				cancel()
			}

			s.logger.Info("reconnecting stream...")
			newStream, err := s.streamManager.EstablishNewConnection(ctx)
			if err != nil {
				// only a cancelled ctx ends the backoff loop
				s.logger.Debug("stream not established: %s", err.Error())
				return
			}

			// each stream gets its own reader; the previous one is cancelled
			streamCtx, newCancel := context.WithCancel(ctx)
			cancel = newCancel
			s.backgroundJobsGroup.Add(1)
			go func() {
				defer s.backgroundJobsGroup.Done()
				s.readStreamResponse(streamCtx, newStream)
			}()
		}
	}
}

// readStreamResponse reads responses until the stream ends. A stream that
// ends while still current triggers a reconnect.
func (s *ReportStreamSender) readStreamResponse(ctx context.Context, stream *reportwire.IngestClientStream) {
	for {
		msg, err := stream.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Warn("tracker closed the report stream")
			} else {
				s.logger.Error("error receiving response: %s", err.Error())
			}
			s.triggerReconnect()
			return
		}

		select {
		case s.responseCh <- reportwire.DecodeResponse(msg):
		case <-ctx.Done():
			return
		}
	}
}

// Send encodes the reports as one batch and writes it to the stream.
// Returns a RateLimitError while the tracker asked for a pause, or
// ErrTransportNotReady if the stream is not usable.
func (s *ReportStreamSender) Send(ctx context.Context, readerID bridgeDomain.ReaderID, reports []bridgeDomain.RawReport) error {
	if delay := s.retryAfter.Get(); delay > 0 {
		return &bridgeDomain.RateLimitError{
			Message: "rate limit exceeded",
			Delay:   delay,
		}
	}

	batch := reportwire.Batch{
		ID:       s.batchID.Add(1),
		ReaderID: string(readerID),
		SentAt:   s.now(),
		Reports:  reports,
	}
	msg, err := reportwire.EncodeBatch(batch)
	if err != nil {
		return fmt.Errorf("encode batch %d: %w", batch.ID, err)
	}

	s.logger.Debug("sending batch %d with %d reports", batch.ID, len(reports))
	if err := s.streamManager.Send(ctx, msg); err != nil {
		if errors.Is(err, bridgeDomain.ErrTransportNotReady) {
			return err
		}
		s.logger.Error("error sending batch: %s, \t batchId: %d", err.Error(), batch.ID)
		s.triggerReconnect()
		return fmt.Errorf("%w: %w", bridgeDomain.ErrTransportNotReady, err)
	}

	return nil
}

func (s *ReportStreamSender) triggerReconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// GetResponseChannel returns decoded tracker responses. It is closed when Run returns.
func (s *ReportStreamSender) GetResponseChannel() <-chan reportwire.Response {
	return s.responseCh
}

// NewReportStreamSender creates a sender. Batch ids start from the current
// unix time in milliseconds so that they stay unique across bridge restarts.
func NewReportStreamSender(
	streamManager StreamManager,
	logger bridgeDomain.Logger,
	retryAfter *RetryAfterDelay,
) *ReportStreamSender {
	sender := &ReportStreamSender{
		streamManager: streamManager,
		logger:        logger,
		reconnectCh:   make(chan struct{}, 1),
		retryAfter:    retryAfter,
		responseCh:    make(chan reportwire.Response, 10),
		now:           time.Now,
	}
	sender.batchID.Store(time.Now().UnixMilli())
	return sender
}
