// Package infrastructure provides the concrete reader, transport and
// configuration of the reader bridge.
package infrastructure

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
)

// Report keys produced by the simulated reader.
const (
	keyEPC96          = "EPC-96"
	keyAntennaID      = "AntennaID"
	keyLastSeen       = "LastSeenTimestampUTC"
	keyTagSeenCount   = "TagSeenCount"
	keyPeakRSSI       = "PeakRSSI"
	keyImpinjPeakRSSI = "ImpinjPeakRSSI"
	keyImpinjPhase    = "ImpinjRFPhaseAngle"
	keyImpinjDoppler  = "ImpinjRFDopplerFrequency"
)

// ErrSessionClosed is returned by operations on a closed simulated session.
var ErrSessionClosed = errors.New("session is closed")

// SimulatedReader stands in for an Impinj reader. Each inventory round it
// reports ReportEveryNTags tags drawn from a fixed population, with the
// Impinj extension fields encoded the way the reader does (centi-dBm RSSI,
// tenths of a degree, tenths of a hertz).
type SimulatedReader struct {
	population [][]byte
	interval   time.Duration
	seed       uint64
}

// Dial opens a simulated session. The address is only validated.
func (r *SimulatedReader) Dial(ctx context.Context, address bridgeDomain.Address, cfg bridgeDomain.SessionConfig) (bridgeDomain.ReaderSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, &bridgeDomain.ConnectError{Address: address, Err: err}
	}
	if address == "" {
		return nil, &bridgeDomain.ConnectError{Address: address, Err: errors.New("empty address")}
	}
	if len(r.population) == 0 {
		return nil, &bridgeDomain.ConnectError{Address: address, Err: errors.New("no tags in the field")}
	}

	return &simulatedSession{
		population: r.population,
		interval:   r.interval,
		cfg:        cfg,
		rnd:        rand.New(rand.NewPCG(r.seed, uint64(time.Now().UnixNano()))),
	}, nil
}

// NewSimulatedReader creates a reader reporting the given EPCs (hex strings)
// every interval. When epcs is empty, tagCount random 96-bit EPCs are used.
func NewSimulatedReader(epcs []string, tagCount int, interval time.Duration) (*SimulatedReader, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: inventory interval must be positive", bridgeDomain.ErrConfiguration)
	}

	population := make([][]byte, 0, max(len(epcs), tagCount))
	for _, epc := range epcs {
		raw, err := hex.DecodeString(epc)
		if err != nil || len(raw) == 0 {
			return nil, fmt.Errorf("%w: EPC %q is not hex", bridgeDomain.ErrConfiguration, epc)
		}
		population = append(population, raw)
	}
	if len(population) == 0 {
		for range tagCount {
			epc := make([]byte, 12)
			for i := range epc {
				epc[i] = byte(rand.IntN(256))
			}
			population = append(population, epc)
		}
	}

	return &SimulatedReader{
		population: population,
		interval:   interval,
		seed:       rand.Uint64(),
	}, nil
}

type simulatedSession struct {
	mu         sync.Mutex
	population [][]byte
	interval   time.Duration
	cfg        bridgeDomain.SessionConfig
	rnd        *rand.Rand
	handler    bridgeDomain.ReportHandler
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool
}

func (s *simulatedSession) OnTagReports(handler bridgeDomain.ReportHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *simulatedSession) StartInventory(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.cancel != nil {
		return nil
	}

	// the inventory loop is the reader's own goroutine, independent of the
	// caller's context
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.inventory(ctx, s.handler, s.done)
	return nil
}

func (s *simulatedSession) StopInventory(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *simulatedSession) Close() error {
	err := s.StopInventory(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return err
}

func (s *simulatedSession) inventory(ctx context.Context, handler bridgeDomain.ReportHandler, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if handler != nil {
				handler(s.round())
			}
		}
	}
}

// round builds the reports of one inventory round. Only the inventory
// goroutine uses rnd.
func (s *simulatedSession) round() []bridgeDomain.RawReport {
	reports := make([]bridgeDomain.RawReport, 0, s.cfg.ReportEveryNTags)
	for range s.cfg.ReportEveryNTags {
		reports = append(reports, s.report())
	}
	return reports
}

func (s *simulatedSession) report() bridgeDomain.RawReport {
	epc := s.population[s.rnd.IntN(len(s.population))]
	antenna := s.cfg.Antennas[s.rnd.IntN(len(s.cfg.Antennas))]
	// stronger signal at higher power, between -80 and -30 dBm
	rssi := -80 + s.rnd.IntN(35) + (s.cfg.TxPower-bridgeDomain.MinTxPower)*15/(bridgeDomain.MaxTxPower-bridgeDomain.MinTxPower)

	report := bridgeDomain.RawReport{
		keyEPC96:        append([]byte(nil), epc...),
		keyAntennaID:    antenna,
		keyLastSeen:     time.Now().UnixMicro(),
		keyTagSeenCount: 1,
	}
	if !s.cfg.VendorExtensionsEnabled {
		report[keyPeakRSSI] = rssi
		return report
	}
	report[keyImpinjPeakRSSI] = rssi*100 - s.rnd.IntN(100)
	report[keyImpinjPhase] = s.rnd.IntN(3600)
	report[keyImpinjDoppler] = s.rnd.IntN(4001) - 2000
	return report
}
