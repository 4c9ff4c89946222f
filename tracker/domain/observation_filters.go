package domain

import (
	"fmt"
	"slices"
)

// AntennaFilter drops observations from antennas that are not enabled.
// An empty list enables every antenna.
type AntennaFilter struct {
	antennas []AntennaID
}

// NewAntennaFilter creates a filter for the given antenna ports.
func NewAntennaFilter(antennas []AntennaID) *AntennaFilter {
	return &AntennaFilter{antennas: slices.Clone(antennas)}
}

// Apply implements Interceptor.
func (f *AntennaFilter) Apply(obs *TagObservation) error {
	if len(f.antennas) == 0 || slices.Contains(f.antennas, obs.AntennaID) {
		return nil
	}
	return fmt.Errorf("%w: antenna %s is not enabled", ErrObservationFiltered, obs.AntennaID)
}

// RSSIFloorFilter drops observations weaker than a floor. Observations
// without RSSI pass.
type RSSIFloorFilter struct {
	floor float64
}

// NewRSSIFloorFilter creates a filter with the given floor in dBm.
func NewRSSIFloorFilter(floor float64) *RSSIFloorFilter {
	return &RSSIFloorFilter{floor: floor}
}

// Apply implements Interceptor.
func (f *RSSIFloorFilter) Apply(obs *TagObservation) error {
	if obs.PeakRSSI.Valid && obs.PeakRSSI.Value < f.floor {
		return fmt.Errorf("%w: rssi %.1f below floor %.1f", ErrObservationFiltered, obs.PeakRSSI.Value, f.floor)
	}
	return nil
}
