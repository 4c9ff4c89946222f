package domain

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"
)

// LogTimestampLayout is the wall-clock layout of RollingLogEntry.Timestamp.
const LogTimestampLayout = "2006-01-02 15:04:05"

// DefaultHighlightThreshold flags log rows weaker than -75 dBm.
const DefaultHighlightThreshold RSSIThreshold = -75

// RSSIThreshold is the dBm level below which log rows are highlighted.
type RSSIThreshold float64

// NewRSSIThreshold accepts the usable RFID range of -100..-30 dBm.
func NewRSSIThreshold(v float64) (RSSIThreshold, error) {
	if v < -100 || v > -30 {
		return 0, fmt.Errorf("%w: rssi threshold must be within -100..-30 dBm, got %g", ErrConfiguration, v)
	}
	return RSSIThreshold(v), nil
}

// RollingLogEntry is one row of the rolling log.
type RollingLogEntry struct {
	Seq                  uint64        `json:"seq"`
	AntennaID            AntennaID     `json:"antennaId"`
	EPC                  string        `json:"epc"`
	LastSeenTimestampUTC int64         `json:"lastSeenTimestampUtc"`
	Timestamp            string        `json:"timestamp"`
	Count                uint64        `json:"count"`
	TagSeenCount         uint32        `json:"tagSeenCount"`
	PeakRSSI             OptionalFloat `json:"peakRssi"`
	Phase                OptionalFloat `json:"phase"`
	Doppler              OptionalFloat `json:"doppler"`
	BelowThreshold       bool          `json:"belowThreshold"`

	touched uint64
}

// RollingLog is a bounded, EPC-keyed list of recent observations kept in
// signal strength order.
type RollingLog struct {
	mu        sync.Mutex
	capacity  int
	location  *time.Location
	threshold RSSIThreshold
	now       func() time.Time

	entries []*RollingLogEntry
	byEPC   map[string]*RollingLogEntry
	seq     uint64
	clock   uint64
}

// NewRollingLog creates an empty log. A nil location means time.Local.
func NewRollingLog(capacity LogCapacity, location *time.Location, threshold RSSIThreshold) *RollingLog {
	if location == nil {
		location = time.Local
	}
	return &RollingLog{
		capacity:  int(capacity),
		location:  location,
		threshold: threshold,
		now:       time.Now,
		byEPC:     make(map[string]*RollingLogEntry),
	}
}

// SetHighlightThreshold changes the threshold used for rows appended from now on.
func (l *RollingLog) SetHighlightThreshold(threshold RSSIThreshold) {
	l.mu.Lock()
	l.threshold = threshold
	l.mu.Unlock()
}

// Append records obs. Invisible observations are ignored and false is
// returned. An existing row for the same EPC is updated in place. The row
// timestamp is the reader's last seen time, or the arrival time when the
// reader sent none.
func (l *RollingLog) Append(obs TagObservation, visible bool) bool {
	if !visible {
		return false
	}
	epc := CanonicalEPC(obs.EPC)
	seen := obs.LastSeen()
	if obs.LastSeenTimestampUTC == 0 {
		seen = l.now()
	}
	stamp := seen.In(l.location).Format(LogTimestampLayout)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.clock++
	entry, ok := l.byEPC[epc]
	if !ok {
		l.seq++
		entry = &RollingLogEntry{Seq: l.seq, EPC: epc}
		l.byEPC[epc] = entry
		l.entries = append(l.entries, entry)
	}
	entry.Count++
	entry.touched = l.clock
	entry.AntennaID = obs.AntennaID
	entry.LastSeenTimestampUTC = obs.LastSeenTimestampUTC
	entry.Timestamp = stamp
	entry.TagSeenCount = obs.TagSeenCount
	entry.PeakRSSI = obs.PeakRSSI
	entry.Phase = obs.PhaseAngleDegrees
	entry.Doppler = obs.DopplerFrequencyHz
	entry.BelowThreshold = obs.PeakRSSI.Valid && obs.PeakRSSI.Value < float64(l.threshold)

	slices.SortFunc(l.entries, compareEntries)
	l.evict()
	return true
}

// compareEntries orders by RSSI descending with absent RSSI last; equal
// RSSI keeps insertion order.
func compareEntries(a, b *RollingLogEntry) int {
	switch {
	case a.PeakRSSI.Valid && !b.PeakRSSI.Valid:
		return -1
	case !a.PeakRSSI.Valid && b.PeakRSSI.Valid:
		return 1
	case a.PeakRSSI.Valid && b.PeakRSSI.Value != a.PeakRSSI.Value:
		return cmp.Compare(b.PeakRSSI.Value, a.PeakRSSI.Value)
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// evict drops the least recently inserted or re-observed rows until the
// log fits its capacity.
func (l *RollingLog) evict() {
	for len(l.entries) > l.capacity {
		oldest := 0
		for i, e := range l.entries {
			if e.touched < l.entries[oldest].touched {
				oldest = i
			}
		}
		delete(l.byEPC, l.entries[oldest].EPC)
		l.entries = slices.Delete(l.entries, oldest, oldest+1)
	}
}

// Clear drops every row and restarts numbering.
func (l *RollingLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.byEPC = make(map[string]*RollingLogEntry)
	l.seq = 0
	l.clock = 0
}

// Entries returns copies of the rows in display order.
func (l *RollingLog) Entries() []RollingLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]RollingLogEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// Counts returns the per-EPC row counts.
func (l *RollingLog) Counts() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]uint64, len(l.byEPC))
	for epc, e := range l.byEPC {
		counts[epc] = e.Count
	}
	return counts
}

// Len returns the number of rows.
func (l *RollingLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Location returns the zone used for row timestamps.
func (l *RollingLog) Location() *time.Location {
	return l.location
}
