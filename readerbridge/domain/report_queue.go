package domain

import (
	"sync"
	"sync/atomic"
)

// ReportQueue hands report batches from the reader goroutine to the
// forwarder. Push never blocks: when the queue is full the batch is dropped,
// so a slow tracker can not stall the reader connection.
type ReportQueue struct {
	mu      sync.RWMutex
	ch      chan []RawReport
	closed  bool
	dropped atomic.Uint64
	logger  Logger
}

// Push enqueues a batch and reports whether it was accepted. The queue takes
// ownership of reports.
func (q *ReportQueue) Push(reports []RawReport) bool {
	if len(reports) == 0 {
		return true
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}

	select {
	case q.ch <- reports:
		return true
	default:
		n := q.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			q.logger.Warn("report queue is full, %d batches dropped so far", n)
		}
		return false
	}
}

// Batches returns the channel drained by the forwarder. It is closed by Close.
func (q *ReportQueue) Batches() <-chan []RawReport {
	return q.ch
}

// Dropped returns the number of batches lost to a full or closed queue.
func (q *ReportQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting batches. Batches already queued stay readable.
func (q *ReportQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// NewReportQueue creates a queue holding up to capacity batches.
func NewReportQueue(capacity int, logger Logger) *ReportQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ReportQueue{
		ch:     make(chan []RawReport, capacity),
		logger: logger,
	}
}
