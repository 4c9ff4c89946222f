package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// Stream reconnect backoff bounds.
const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 10 * time.Second
)

// ReportStream holds the current report stream to the tracker.
type ReportStream struct {
	mu     sync.RWMutex
	client reportwire.IngestClient
	logger bridgeDomain.Logger
	stream *reportwire.IngestClientStream
	ready  bool
}

// EstablishNewConnection opens a new stream, retrying with exponential
// backoff until it succeeds or ctx ends.
func (s *ReportStream) EstablishNewConnection(ctx context.Context) (*reportwire.IngestClientStream, error) {
	delay := minReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.logger.Info("opening report stream...")
		s.Close()

		newStream := s.client.StreamReports(ctx)
		if _, err := newStream.Conn(); err != nil {
			s.logger.Error("got an error on opening stream: %s", err.Error())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		s.setStream(newStream)
		return newStream, nil
	}
}

// IsReady reports whether a stream is open.
func (s *ReportStream) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Send writes one message to the current stream. A cancelled ctx closes the
// request side of the stream.
func (s *ReportStream) Send(ctx context.Context, msg *structpb.Struct) error {
	stream, err := s.get()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- stream.Send(msg)
	}()

	select {
	case <-ctx.Done():
		_ = stream.CloseRequest()
		return ctx.Err()
	case sendErr := <-done:
		return sendErr
	}
}

// Close closes both sides of the current stream.
func (s *ReportStream) Close() {
	s.mu.Lock()
	stream := s.stream
	s.stream, s.ready = nil, false
	s.mu.Unlock()

	if stream != nil {
		_ = stream.CloseRequest()
		_ = stream.CloseResponse()
	}
}

func (s *ReportStream) get() (*reportwire.IngestClientStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, bridgeDomain.ErrTransportNotReady
	}
	return s.stream, nil
}

func (s *ReportStream) setStream(stream *reportwire.IngestClientStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = stream
	s.ready = stream != nil
}

// NewReportStream creates a ReportStream using client.
func NewReportStream(client reportwire.IngestClient, logger bridgeDomain.Logger) *ReportStream {
	return &ReportStream{
		client: client,
		logger: logger,
	}
}
