package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalize_EPCFromBytes(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{FieldEPC96: []byte{0xDE, 0xAD}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.EPC != "dead" {
		t.Errorf("Expected EPC %q, got %q", "dead", obs.EPC)
	}
}

func TestNormalize_EPCFromString(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{FieldEPC: " E200 3411 B802 "})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.EPC != "e2003411b802" {
		t.Errorf("Expected EPC %q, got %q", "e2003411b802", obs.EPC)
	}
}

func TestNormalize_EPCWithHexPrefix(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	for _, raw := range []string{"0xDEAD", " 0Xdead "} {
		obs, err := n.Normalize(RawReport{FieldEPC: raw})
		if err != nil {
			t.Fatalf("Unexpected error for %q: %v", raw, err)
		}
		if obs.EPC != "dead" {
			t.Errorf("Expected EPC %q, got %q", "dead", obs.EPC)
		}
	}
}

func TestNormalize_WrappedValues(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{
		FieldEPC96:                  map[string]any{"Value": []byte{0xAA, 0xBB}},
		FieldAntennaID:              map[string]any{"Value": 2},
		FieldTagSeenCount:           map[string]any{"Value": float64(5)},
		FieldPeakRSSI:               map[string]any{"Value": -40},
		FieldLastSeenTimestampUTC:   map[string]any{"Value": "1700000000000000"},
		FieldImpinjPhaseAngle:       map[string]any{"Value": 1800},
		FieldImpinjDopplerFrequency: RawReport{"Value": json.Number("-25")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.EPC != "aabb" {
		t.Errorf("Expected EPC %q, got %q", "aabb", obs.EPC)
	}
	if obs.AntennaID != 2 || obs.TagSeenCount != 5 {
		t.Errorf("Expected antenna 2 and count 5, got %d and %d", obs.AntennaID, obs.TagSeenCount)
	}
	if obs.PeakRSSI != Float(-40) {
		t.Errorf("Expected rssi -40, got %+v", obs.PeakRSSI)
	}
	if obs.LastSeenTimestampUTC != 1700000000000000 {
		t.Errorf("Expected timestamp 1700000000000000, got %d", obs.LastSeenTimestampUTC)
	}
	if obs.PhaseAngleDegrees != Float(180) || obs.DopplerFrequencyHz != Float(-2.5) {
		t.Errorf("Expected phase 180 and doppler -2.5, got %+v and %+v", obs.PhaseAngleDegrees, obs.DopplerFrequencyHz)
	}

	obs, err = n.Normalize(RawReport{FieldEPC: "aa", FieldPeakRSSI: map[string]any{"Unit": "dBm"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.PeakRSSI.Valid {
		t.Errorf("Expected a map without Value to be not available, got %+v", obs.PeakRSSI)
	}
}

func TestNormalize_PrefersEPC96(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{FieldEPC96: "aaaa", FieldEPC: "bbbb"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.EPC != "aaaa" {
		t.Errorf("Expected EPC-96 to win, got %q", obs.EPC)
	}
}

func TestNormalize_MalformedEPC(t *testing.T) {
	tests := []struct {
		name   string
		report RawReport
	}{
		{"missing", RawReport{FieldAntennaID: 1}},
		{"nil", RawReport{FieldEPC: nil}},
		{"empty string", RawReport{FieldEPC: "   "}},
		{"empty bytes", RawReport{FieldEPC96: []byte{}}},
		{"not hex", RawReport{FieldEPC: "xyz1"}},
		{"wrong type", RawReport{FieldEPC: 42}},
	}

	n := NewNormalizer(&MockLogger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.report)
			if !errors.Is(err, ErrMalformedReport) {
				t.Errorf("Expected ErrMalformedReport, got %v", err)
			}
		})
	}
}

func TestNormalize_VendorFieldsScaled(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{
		FieldEPC:                    "dead",
		FieldImpinjPhaseAngle:       450,
		FieldImpinjDopplerFrequency: float64(-125),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !obs.PhaseAngleDegrees.Valid || obs.PhaseAngleDegrees.Value != 45.0 {
		t.Errorf("Expected phase 45.0, got %+v", obs.PhaseAngleDegrees)
	}
	if !obs.DopplerFrequencyHz.Valid || obs.DopplerFrequencyHz.Value != -12.5 {
		t.Errorf("Expected doppler -12.5, got %+v", obs.DopplerFrequencyHz)
	}
}

func TestNormalize_OptionalFieldsAbsent(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{FieldEPC: "dead"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.PeakRSSI.Valid || obs.PhaseAngleDegrees.Valid || obs.DopplerFrequencyHz.Valid {
		t.Errorf("Expected absent measurements, got %+v", obs)
	}
	if obs.PhaseAngleDegrees.Format("%.1f") != "N/A" {
		t.Errorf("Expected N/A rendering, got %q", obs.PhaseAngleDegrees.Format("%.1f"))
	}
	if obs.AntennaID != UnknownAntenna {
		t.Errorf("Expected unknown antenna, got %d", obs.AntennaID)
	}
	if obs.TagSeenCount != 0 {
		t.Errorf("Expected tag seen count 0, got %d", obs.TagSeenCount)
	}
}

func TestNormalize_RSSI(t *testing.T) {
	tests := []struct {
		name     string
		report   RawReport
		expected OptionalFloat
	}{
		{"peak rssi int", RawReport{FieldEPC: "aa", FieldPeakRSSI: -52}, Float(-52)},
		{"peak rssi zero is present", RawReport{FieldEPC: "aa", FieldPeakRSSI: 0}, Float(0)},
		{"impinj hundredths", RawReport{FieldEPC: "aa", FieldImpinjPeakRSSI: -5250}, Float(-52.5)},
		{"peak rssi wins", RawReport{FieldEPC: "aa", FieldPeakRSSI: -40, FieldImpinjPeakRSSI: -5000}, Float(-40)},
		{"non numeric", RawReport{FieldEPC: "aa", FieldPeakRSSI: "n/a"}, NotAvailable},
	}

	n := NewNormalizer(&MockLogger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := n.Normalize(tt.report)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if obs.PeakRSSI != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, obs.PeakRSSI)
			}
		})
	}
}

func TestNormalize_Timestamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected int64
		warns    int
	}{
		{"int64", int64(1700000000000000), 1700000000000000, 0},
		{"numeric string", "1700000000000001", 1700000000000001, 0},
		{"json number", json.Number("42"), 42, 0},
		{"float", float64(1.7e15), 1700000000000000, 0},
		{"garbage", "yesterday", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &MockLogger{}
			n := NewNormalizer(logger)
			obs, err := n.Normalize(RawReport{FieldEPC: "aa", FieldLastSeenTimestampUTC: tt.raw})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if obs.LastSeenTimestampUTC != tt.expected {
				t.Errorf("Expected timestamp %d, got %d", tt.expected, obs.LastSeenTimestampUTC)
			}
			if got := len(logger.GetWarnCalls()); got != tt.warns {
				t.Errorf("Expected %d warnings, got %d", tt.warns, got)
			}
		})
	}
}

func TestNormalize_AntennaAndCount(t *testing.T) {
	n := NewNormalizer(&MockLogger{})

	obs, err := n.Normalize(RawReport{FieldEPC: "aa", FieldAntennaID: uint16(2), FieldTagSeenCount: "7"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if obs.AntennaID != 2 {
		t.Errorf("Expected antenna 2, got %d", obs.AntennaID)
	}
	if obs.TagSeenCount != 7 {
		t.Errorf("Expected tag seen count 7, got %d", obs.TagSeenCount)
	}

	obs, _ = n.Normalize(RawReport{FieldEPC: "aa", FieldAntennaID: -3, FieldTagSeenCount: -1})
	if obs.AntennaID != UnknownAntenna {
		t.Errorf("Expected unknown antenna for negative id, got %d", obs.AntennaID)
	}
	if obs.TagSeenCount != 0 {
		t.Errorf("Expected tag seen count 0 for negative value, got %d", obs.TagSeenCount)
	}
}

func TestNormalizeBatch_SkipsBadRecords(t *testing.T) {
	logger := &MockLogger{}
	n := NewNormalizer(logger)

	reports := []RawReport{
		{FieldEPC: "aaaa", FieldPeakRSSI: -40},
		{FieldAntennaID: 1},
		{FieldEPC: "not-hex"},
		{FieldEPC: "cccc"},
	}

	observations, rejected := n.NormalizeBatch(reports)
	if rejected != 2 {
		t.Errorf("Expected 2 rejected, got %d", rejected)
	}
	if len(observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(observations))
	}
	if observations[0].EPC != "aaaa" || observations[1].EPC != "cccc" {
		t.Errorf("Expected aaaa and cccc, got %s and %s", observations[0].EPC, observations[1].EPC)
	}

	stats := n.Stats()
	if stats.Normalized != 2 || stats.Rejected != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if len(logger.GetWarnCalls()) != 2 {
		t.Errorf("Expected one warning per skipped record, got %v", logger.GetWarnCalls())
	}
}

func TestSafeFunctionRun_RecoversPanic(t *testing.T) {
	logger := &MockLogger{}

	err := SafeFunctionRun(func() error { panic("boom") }, logger)

	var panicErr *ErrPanic
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected *ErrPanic, got %v", err)
	}
	if panicErr.Value != "boom" {
		t.Errorf("Expected recovered value boom, got %v", panicErr.Value)
	}
	if len(logger.GetErrorCalls()) != 1 {
		t.Errorf("Expected one error log, got %v", logger.GetErrorCalls())
	}
}

func TestSafeFunctionRun_PassesError(t *testing.T) {
	want := errors.New("plain")
	if err := SafeFunctionRun(func() error { return want }, &MockLogger{}); err != want {
		t.Errorf("Expected %v, got %v", want, err)
	}
}
