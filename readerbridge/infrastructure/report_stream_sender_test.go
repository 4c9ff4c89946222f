package infrastructure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
)

// fakeTracker records every batch and answers with reply, when set.
type fakeTracker struct {
	mu      sync.Mutex
	batches []reportwire.Batch
	reply   func(b reportwire.Batch) *reportwire.Response
}

func (f *fakeTracker) StreamReports(_ context.Context, stream *reportwire.IngestStream) error {
	for {
		msg, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		batch, err := reportwire.DecodeBatch(msg)
		if err != nil {
			return err
		}

		f.mu.Lock()
		f.batches = append(f.batches, batch)
		reply := f.reply
		f.mu.Unlock()

		if reply == nil {
			continue
		}
		if resp := reply(batch); resp != nil {
			if err := stream.Send(reportwire.EncodeResponse(*resp)); err != nil {
				return err
			}
		}
	}
}

func (f *fakeTracker) GetBatches() []reportwire.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reportwire.Batch{}, f.batches...)
}

func startSender(t *testing.T, tracker *fakeTracker) (*ReportStreamSender, *RetryAfterDelay, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	path, handler := reportwire.NewIngestHandler(tracker)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewUnstartedServer(mux)
	srv.EnableHTTP2 = true
	srv.StartTLS()
	t.Cleanup(srv.Close)

	stream := NewReportStream(reportwire.NewIngestClient(srv.Client(), srv.URL), &mockLogger{})
	retryAfter := NewRetryAfterDelay()
	sender := NewReportStreamSender(stream, &mockLogger{}, retryAfter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sender.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for !stream.IsReady() {
		if time.Now().After(deadline) {
			t.Fatal("Stream was not established")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return sender, retryAfter, cancel, done
}

func TestReportStreamSender_SendsBatches(t *testing.T) {
	tracker := &fakeTracker{}
	sender, _, _, _ := startSender(t, tracker)

	reports := []bridgeDomain.RawReport{
		{keyEPC96: []byte{0xde, 0xad}, keyAntennaID: uint16(2), keyImpinjPhase: 450},
	}
	if err := sender.Send(context.Background(), "dock-1", reports); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := sender.Send(context.Background(), "dock-1", reports); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(tracker.GetBatches()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 2 batches, got %d", len(tracker.GetBatches()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	batches := tracker.GetBatches()
	if batches[0].ReaderID != "dock-1" {
		t.Errorf("Expected reader dock-1, got %q", batches[0].ReaderID)
	}
	if batches[1].ID != batches[0].ID+1 {
		t.Errorf("Expected consecutive batch ids, got %d and %d", batches[0].ID, batches[1].ID)
	}
	report := batches[0].Reports[0]
	if report[keyEPC96] != "dead" {
		t.Errorf("Expected hex EPC dead, got %v", report[keyEPC96])
	}
	if report[keyImpinjPhase] != float64(450) {
		t.Errorf("Expected phase 450, got %v", report[keyImpinjPhase])
	}
}

func TestReportStreamSender_ForwardsResponses(t *testing.T) {
	tracker := &fakeTracker{reply: func(b reportwire.Batch) *reportwire.Response {
		return &reportwire.Response{BatchID: b.ID, Code: reportwire.CodeResourceExhausted, RetryAfter: 300 * time.Millisecond}
	}}
	sender, _, cancel, done := startSender(t, tracker)

	if err := sender.Send(context.Background(), "dock-1", []bridgeDomain.RawReport{{keyEPC96: "aaaa"}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case resp := <-sender.GetResponseChannel():
		if resp.Code != reportwire.CodeResourceExhausted || resp.RetryAfter != 300*time.Millisecond {
			t.Errorf("Unexpected response: %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a response")
	}

	cancel()
	<-done
	if _, ok := <-sender.GetResponseChannel(); ok {
		t.Error("Expected the response channel to be closed after Run")
	}
}

func TestReportStreamSender_RateLimited(t *testing.T) {
	tracker := &fakeTracker{}
	sender, retryAfter, _, _ := startSender(t, tracker)
	retryAfter.Set(time.Minute)

	err := sender.Send(context.Background(), "dock-1", []bridgeDomain.RawReport{{keyEPC96: "aaaa"}})
	var rateLimitErr *bridgeDomain.RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("Expected *RateLimitError, got %v", err)
	}
	if rateLimitErr.Delay <= 0 || rateLimitErr.Delay > time.Minute {
		t.Errorf("Unexpected delay %s", rateLimitErr.Delay)
	}
}

func TestReportStreamSender_NotReady(t *testing.T) {
	stream := NewReportStream(nil, &mockLogger{})
	sender := NewReportStreamSender(stream, &mockLogger{}, NewRetryAfterDelay())

	err := sender.Send(context.Background(), "dock-1", []bridgeDomain.RawReport{{keyEPC96: "aaaa"}})
	if !errors.Is(err, bridgeDomain.ErrTransportNotReady) {
		t.Errorf("Expected ErrTransportNotReady, got %v", err)
	}
}
