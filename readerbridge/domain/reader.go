// Package domain contains the reader bridge logic: the reader session
// lifecycle and the forwarding of tag report batches to the tracker.
package domain

import "context"

// RawReport is one decoded tag report as delivered by the reader, keyed by
// LLRP parameter names (EPC-96, AntennaID, PeakRSSI, ImpinjRFPhaseAngle, ...).
type RawReport = map[string]any

// ReportHandler receives the reports of one reader callback. It runs on the
// reader's own goroutine and must return quickly.
type ReportHandler func(reports []RawReport)

// ReaderClient opens sessions with a reader.
type ReaderClient interface {
	// Dial connects to the reader and applies cfg. Failures are *ConnectError.
	Dial(ctx context.Context, address Address, cfg SessionConfig) (ReaderSession, error)
}

// ReaderSession is an open connection to a reader.
type ReaderSession interface {
	StartInventory(ctx context.Context) error
	StopInventory(ctx context.Context) error
	Close() error
	// OnTagReports registers the handler for decoded tag reports. It must be
	// called before StartInventory.
	OnTagReports(handler ReportHandler)
}
