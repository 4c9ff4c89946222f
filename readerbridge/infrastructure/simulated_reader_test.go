package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
)

type reportCollector struct {
	mu      sync.Mutex
	batches [][]bridgeDomain.RawReport
}

func (c *reportCollector) handle(reports []bridgeDomain.RawReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, reports)
}

func (c *reportCollector) GetBatches() [][]bridgeDomain.RawReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]bridgeDomain.RawReport{}, c.batches...)
}

func runInventory(t *testing.T, cfg bridgeDomain.SessionConfig) [][]bridgeDomain.RawReport {
	t.Helper()
	reader, err := NewSimulatedReader([]string{"e2003411b802", "AAAA"}, 0, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx := context.Background()
	session, err := reader.Dial(ctx, bridgeDomain.DefaultReaderAddress, cfg)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	collector := &reportCollector{}
	session.OnTagReports(collector.handle)

	if err := session.StartInventory(ctx); err != nil {
		t.Fatalf("StartInventory failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := session.StopInventory(ctx); err != nil {
		t.Fatalf("StopInventory failed: %v", err)
	}

	stopped := len(collector.GetBatches())
	time.Sleep(20 * time.Millisecond)
	if len(collector.GetBatches()) != stopped {
		t.Error("Expected no reports after StopInventory")
	}
	if err := session.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := session.StartInventory(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}

	batches := collector.GetBatches()
	if len(batches) == 0 {
		t.Fatal("Expected report batches")
	}
	return batches
}

func TestSimulatedReader_VendorExtensions(t *testing.T) {
	cfg, err := bridgeDomain.NewSessionConfig([]uint16{1, 3}, 30, 4, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, batch := range runInventory(t, cfg) {
		if len(batch) != 4 {
			t.Fatalf("Expected 4 reports per callback, got %d", len(batch))
		}
		for _, report := range batch {
			epc, ok := report[keyEPC96].([]byte)
			if !ok || (len(epc) != 6 && len(epc) != 2) {
				t.Errorf("Unexpected EPC: %v", report[keyEPC96])
			}
			if antenna := report[keyAntennaID].(uint16); antenna != 1 && antenna != 3 {
				t.Errorf("Unexpected antenna %d", antenna)
			}
			phase := report[keyImpinjPhase].(int)
			if phase < 0 || phase >= 3600 {
				t.Errorf("Phase %d out of range", phase)
			}
			rssi := report[keyImpinjPeakRSSI].(int)
			if rssi > -3000 || rssi < -8100 {
				t.Errorf("Impinj RSSI %d out of range", rssi)
			}
			if _, ok := report[keyPeakRSSI]; ok {
				t.Error("Expected no plain PeakRSSI with extensions enabled")
			}
		}
	}
}

func TestSimulatedReader_PlainReports(t *testing.T) {
	cfg := bridgeDomain.DefaultSessionConfig()
	cfg.VendorExtensionsEnabled = false

	for _, batch := range runInventory(t, cfg) {
		for _, report := range batch {
			if _, ok := report[keyPeakRSSI].(int); !ok {
				t.Errorf("Expected PeakRSSI, got %v", report)
			}
			if _, ok := report[keyImpinjPhase]; ok {
				t.Error("Expected no phase without extensions")
			}
		}
	}
}

func TestSimulatedReader_Errors(t *testing.T) {
	if _, err := NewSimulatedReader([]string{"xyz"}, 0, time.Second); !errors.Is(err, bridgeDomain.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for a non-hex EPC, got %v", err)
	}
	if _, err := NewSimulatedReader(nil, 3, 0); !errors.Is(err, bridgeDomain.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for a zero interval, got %v", err)
	}

	reader, err := NewSimulatedReader(nil, 3, time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var connectErr *bridgeDomain.ConnectError
	if _, err := reader.Dial(context.Background(), "", bridgeDomain.DefaultSessionConfig()); !errors.As(err, &connectErr) {
		t.Errorf("Expected *ConnectError, got %v", err)
	}
}
