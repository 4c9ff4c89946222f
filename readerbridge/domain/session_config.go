package domain

import (
	"fmt"
	"slices"
)

// Transmit power bounds in dBm accepted by Impinj R-series readers.
const (
	MinTxPower = 10
	MaxTxPower = 32
)

// SessionConfig holds the inventory settings sent to the reader on connect.
type SessionConfig struct {
	Antennas                []uint16
	TxPower                 int
	ReportEveryNTags        int
	VendorExtensionsEnabled bool
}

// DefaultSessionConfig reads on antenna 1 at 30 dBm and reports every tag
// with the Impinj extensions (peak RSSI, phase, doppler) enabled.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Antennas:                []uint16{1},
		TxPower:                 30,
		ReportEveryNTags:        1,
		VendorExtensionsEnabled: true,
	}
}

// NewSessionConfig validates the settings. Antenna ports are sorted and
// deduplicated.
func NewSessionConfig(antennas []uint16, txPower, reportEveryNTags int, vendorExtensions bool) (SessionConfig, error) {
	if len(antennas) == 0 {
		return SessionConfig{}, fmt.Errorf("%w: at least one antenna is required", ErrConfiguration)
	}
	ports := slices.Clone(antennas)
	slices.Sort(ports)
	ports = slices.Compact(ports)
	if ports[0] == 0 {
		return SessionConfig{}, fmt.Errorf("%w: antenna ports start at 1", ErrConfiguration)
	}

	if txPower < MinTxPower || txPower > MaxTxPower {
		return SessionConfig{}, fmt.Errorf("%w: tx power must be within %d..%d dBm, got %d",
			ErrConfiguration, MinTxPower, MaxTxPower, txPower)
	}
	if reportEveryNTags < 1 {
		return SessionConfig{}, fmt.Errorf("%w: report every N tags must be at least 1, got %d",
			ErrConfiguration, reportEveryNTags)
	}

	return SessionConfig{
		Antennas:                ports,
		TxPower:                 txPower,
		ReportEveryNTags:        reportEveryNTags,
		VendorExtensionsEnabled: vendorExtensions,
	}, nil
}
