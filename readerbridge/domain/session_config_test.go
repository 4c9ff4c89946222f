package domain

import (
	"errors"
	"testing"
)

func TestNewSessionConfig(t *testing.T) {
	cfg, err := NewSessionConfig([]uint16{4, 1, 4, 2}, 30, 5, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(cfg.Antennas) != 3 || cfg.Antennas[0] != 1 || cfg.Antennas[2] != 4 {
		t.Errorf("Expected antennas [1 2 4], got %v", cfg.Antennas)
	}

	tests := []struct {
		name     string
		antennas []uint16
		power    int
		every    int
	}{
		{"no antennas", nil, 30, 1},
		{"antenna zero", []uint16{0, 1}, 30, 1},
		{"power too low", []uint16{1}, MinTxPower - 1, 1},
		{"power too high", []uint16{1}, MaxTxPower + 1, 1},
		{"report every zero", []uint16{1}, 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSessionConfig(tt.antennas, tt.power, tt.every, false); !errors.Is(err, ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestNewReaderID(t *testing.T) {
	if id, err := NewReaderID("  dock-1 "); err != nil || id != "dock-1" {
		t.Errorf("Expected dock-1, got %q (%v)", id, err)
	}
	for _, raw := range []string{"", "   ", "dock 1"} {
		if _, err := NewReaderID(raw); !errors.Is(err, ErrConfiguration) {
			t.Errorf("NewReaderID(%q): expected ErrConfiguration, got %v", raw, err)
		}
	}
}
