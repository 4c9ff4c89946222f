// Package infrastructure provides the tracker's adapters around the domain
// pipeline.
//
// Key components:
//   - ReportStreamConsumer: serves reader bridge report streams
//   - RateLimiter, BatchValidator: interceptors applied to every batch
//   - BadgerJournal: append-only observation journal
//   - HTTPAPI, WebsocketHub, MQTTPublisher, CSVExporter: view outputs
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// BatchSubmitter accepts raw reports for normalization and aggregation.
type BatchSubmitter interface {
	Submit(reports []trackerDomain.RawReport) trackerDomain.SubmitResult
}

// InterceptorsFactory builds the interceptor chain for one stream, so that
// per-stream state such as a rate limit window is not shared.
type InterceptorsFactory func() *trackerDomain.Interceptors[structpb.Struct]

// ReportStreamConsumer serves report streams opened by reader bridges. Each
// batch is validated, decoded and handed to the pipeline; the bridge only
// hears back when something in the batch was not taken.
type ReportStreamConsumer struct {
	closedLock      sync.RWMutex
	closed          bool
	logger          trackerDomain.Logger
	submitter       BatchSubmitter
	monitor         *trackerDomain.ConnectionMonitor
	newInterceptors InterceptorsFactory
}

// Stop makes the consumer refuse further batches.
func (s *ReportStreamConsumer) Stop() {
	s.closedLock.Lock()
	defer s.closedLock.Unlock()
	s.closed = true
}

func (s *ReportStreamConsumer) isClosed() bool {
	s.closedLock.RLock()
	defer s.closedLock.RUnlock()
	return s.closed
}

// StreamReports processes one bidirectional report stream.
//
// Error responses:
//   - rate limit errors: RESOURCE_EXHAUSTED with the time until the window resets
//   - validation errors: INVALID_ARGUMENT with details
//   - anything else: INTERNAL, details only logged
//
// A batch that was accepted but had records rejected or dropped gets an OK
// response with the counts.
func (s *ReportStreamConsumer) StreamReports(ctx context.Context, stream *reportwire.IngestStream) (err error) {
	streamID := uuid.NewString()
	s.monitor.StreamOpened(streamID)
	defer func() {
		s.monitor.StreamClosed(streamID, err)
	}()
	s.logger.Info("report stream %s opened", streamID)

	interceptors := s.newInterceptors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, recvErr := stream.Receive()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				s.logger.Info("report stream %s closed by client", streamID)
				return nil
			}
			return recvErr
		}

		if s.isClosed() {
			return errors.New("tracker is shutting down")
		}

		response, ok := s.handle(streamID, msg, interceptors)
		if !ok {
			continue
		}
		if err := stream.Send(reportwire.EncodeResponse(response)); err != nil {
			return fmt.Errorf("error sending response: %w", err)
		}
	}
}

// handle processes a single batch and returns the response to send, if any.
func (s *ReportStreamConsumer) handle(
	streamID string,
	msg *structpb.Struct,
	interceptors *trackerDomain.Interceptors[structpb.Struct],
) (reportwire.Response, bool) {
	batchID := int64(msg.GetFields()[reportwire.FieldBatchID].GetNumberValue())

	if err := interceptors.Apply(msg); err != nil {
		s.logger.Error("interceptor returned error: %s \t batch: %d", err.Error(), batchID)
		return errorResponse(batchID, err, s.logger), true
	}

	batch, err := reportwire.DecodeBatch(msg)
	if err != nil {
		return errorResponse(batchID, fmt.Errorf("%w: %w", trackerDomain.ErrValidation, err), s.logger), true
	}

	reports := make([]trackerDomain.RawReport, len(batch.Reports))
	for i, r := range batch.Reports {
		reports[i] = trackerDomain.RawReport(r)
	}
	result := s.submitter.Submit(reports)
	s.monitor.BatchReceived(streamID)
	s.logger.Debug("batch %d from %s: %d accepted, %d rejected, %d dropped",
		batch.ID, batch.ReaderID, result.Accepted, result.Rejected, result.Dropped)

	if result.Rejected == 0 && result.Dropped == 0 {
		return reportwire.Response{}, false
	}
	return reportwire.Response{
		BatchID:  batch.ID,
		Code:     reportwire.CodeOK,
		Message:  fmt.Sprintf("%d malformed, %d dropped", result.Rejected, result.Dropped),
		Accepted: result.Accepted,
		Rejected: result.Rejected + result.Dropped,
	}, true
}

func errorResponse(batchID int64, err error, logger trackerDomain.Logger) reportwire.Response {
	var rateLimitError *trackerDomain.RateLimitError
	switch {
	case errors.As(err, &rateLimitError):
		return reportwire.Response{
			BatchID:    batchID,
			Code:       reportwire.CodeResourceExhausted,
			Message:    "rate limit exceeded",
			RetryAfter: rateLimitError.Delay,
		}
	case errors.Is(err, trackerDomain.ErrValidation):
		return reportwire.Response{
			BatchID: batchID,
			Code:    reportwire.CodeInvalidArgument,
			Message: err.Error(),
		}
	default:
		logger.Error("interceptors returned unknown error: %s", err.Error())
		return reportwire.Response{
			BatchID: batchID,
			Code:    reportwire.CodeInternal,
			Message: "internal error",
		}
	}
}

// NewReportStreamConsumer creates a consumer feeding submitter and reporting
// stream state to monitor. A nil factory means no interceptors.
func NewReportStreamConsumer(
	submitter BatchSubmitter,
	monitor *trackerDomain.ConnectionMonitor,
	newInterceptors InterceptorsFactory,
	logger trackerDomain.Logger,
) *ReportStreamConsumer {
	if newInterceptors == nil {
		newInterceptors = func() *trackerDomain.Interceptors[structpb.Struct] { return nil }
	}
	return &ReportStreamConsumer{
		logger:          logger,
		submitter:       submitter,
		monitor:         monitor,
		newInterceptors: newInterceptors,
	}
}
