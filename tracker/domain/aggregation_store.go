package domain

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// WaitingRSSI is the out-of-band RSSI reported for a watched tag that has
// not been seen since the last reset.
const WaitingRSSI = -99.0

// AggregatedTagState is the latest known state of one EPC.
type AggregatedTagState struct {
	EPC          string        `json:"epc"`
	LastPeakRSSI OptionalFloat `json:"lastPeakRssi"`
	LastPhase    OptionalFloat `json:"lastPhase"`
	LastDoppler  OptionalFloat `json:"lastDoppler"`
	AntennaID    AntennaID     `json:"antennaId"`
	ReadCount    uint64        `json:"readCount"`
	FirstSeenAt  time.Time     `json:"firstSeenAt"`
	LastSeenAt   time.Time     `json:"lastSeenAt"`
	Waiting      bool          `json:"waiting"`
}

// WaitingState is the sentinel returned for an EPC with no observation yet.
func WaitingState(epc string) AggregatedTagState {
	return AggregatedTagState{
		EPC:          epc,
		LastPeakRSSI: Float(WaitingRSSI),
		Waiting:      true,
	}
}

// SnapshotSource is the read side of the aggregation store.
type SnapshotSource interface {
	Snapshot(epc string) AggregatedTagState
}

// AggregationStore keeps the latest state per EPC. All methods are safe for
// concurrent use; a single lock makes Reset atomic with respect to writers.
type AggregationStore struct {
	mu     sync.RWMutex
	states map[string]*AggregatedTagState
	now    func() time.Time
}

// NewAggregationStore creates an empty store. A nil clock means time.Now.
func NewAggregationStore(now func() time.Time) *AggregationStore {
	if now == nil {
		now = time.Now
	}
	return &AggregationStore{
		states: make(map[string]*AggregatedTagState),
		now:    now,
	}
}

// RecordObservation folds obs into the state for obs.EPC.
func (s *AggregationStore) RecordObservation(obs TagObservation) {
	epc := CanonicalEPC(obs.EPC)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[epc]
	if !ok || state.Waiting {
		state = &AggregatedTagState{EPC: epc}
		s.states[epc] = state
	}

	state.ReadCount++
	state.LastPeakRSSI = obs.PeakRSSI
	state.LastPhase = obs.PhaseAngleDegrees
	state.LastDoppler = obs.DopplerFrequencyHz
	state.AntennaID = obs.AntennaID
	if state.FirstSeenAt.IsZero() {
		state.FirstSeenAt = now
	}
	// the clock may step back; last seen must not
	if now.After(state.LastSeenAt) {
		state.LastSeenAt = now
	}
}

// Snapshot returns a copy of the state for epc, or WaitingState.
func (s *AggregationStore) Snapshot(epc string) AggregatedTagState {
	epc = CanonicalEPC(epc)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[epc]; ok {
		return *state
	}
	return WaitingState(epc)
}

// Snapshots returns copies of every state, ordered by EPC.
func (s *AggregationStore) Snapshots() []AggregatedTagState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(s.states))
	out := make([]AggregatedTagState, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.states[k])
	}
	return out
}

// Reset drops all state and puts every EPC of watchList into waiting.
func (s *AggregationStore) Reset(watchList WatchList) {
	states := make(map[string]*AggregatedTagState, watchList.Len())
	for _, epc := range watchList.epcs {
		waiting := WaitingState(epc)
		states[epc] = &waiting
	}

	s.mu.Lock()
	s.states = states
	s.mu.Unlock()
}

// Len returns the number of EPCs held, waiting ones included.
func (s *AggregationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
