package domain

import (
	"fmt"
	"sync"
	"time"
)

// ConnectionState is the reader link state shown to users.
type ConnectionState int

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

var connectionStateNames = map[ConnectionState]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateError:        "error",
}

func (s ConnectionState) String() string {
	if name, ok := connectionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for state, name := range connectionStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}

// ConnectionStatus summarizes all reader bridge streams.
type ConnectionStatus struct {
	State      ConnectionState `json:"state"`
	Streams    int             `json:"streams"`
	LastError  string          `json:"lastError,omitempty"`
	LastChange time.Time       `json:"lastChange"`
}

type streamState struct {
	receivedBatch bool
}

// ConnectionMonitor tracks ingest streams and derives the overall state.
// Any stream that has delivered a batch makes the state connected; an open
// stream without batches makes it connecting; otherwise the state is error
// when the last stream closed with an error and disconnected when not.
type ConnectionMonitor struct {
	mu          sync.Mutex
	streams     map[string]*streamState
	lastErr     error
	status      ConnectionStatus
	subscribers []chan ConnectionStatus
	now         func() time.Time
}

// NewConnectionMonitor creates a monitor in the disconnected state.
func NewConnectionMonitor() *ConnectionMonitor {
	m := &ConnectionMonitor{
		streams: make(map[string]*streamState),
		now:     time.Now,
	}
	m.status = ConnectionStatus{State: StateDisconnected, LastChange: m.now()}
	return m
}

// StreamOpened registers a new stream.
func (m *ConnectionMonitor) StreamOpened(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[id] = &streamState{}
	m.recompute()
}

// BatchReceived marks a stream as delivering data.
func (m *ConnectionMonitor) BatchReceived(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok || s.receivedBatch {
		return
	}
	s.receivedBatch = true
	m.recompute()
}

// StreamClosed unregisters a stream. A non-nil err is kept as the last error.
func (m *ConnectionMonitor) StreamClosed(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, id)
	m.lastErr = err
	m.recompute()
}

// Status returns the current summary.
func (m *ConnectionMonitor) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe returns a channel receiving every state change. Slow
// subscribers miss intermediate changes.
func (m *ConnectionMonitor) Subscribe() <-chan ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan ConnectionStatus, 4)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func (m *ConnectionMonitor) recompute() {
	next := ConnectionStatus{State: StateDisconnected, Streams: len(m.streams)}
	for _, s := range m.streams {
		if s.receivedBatch {
			next.State = StateConnected
			break
		}
		next.State = StateConnecting
	}
	if m.lastErr != nil {
		next.LastError = m.lastErr.Error()
		if next.State == StateDisconnected {
			next.State = StateError
		}
	}

	if next.State == m.status.State && next.Streams == m.status.Streams && next.LastError == m.status.LastError {
		return
	}
	next.LastChange = m.now()
	m.status = next
	for _, ch := range m.subscribers {
		select {
		case ch <- next:
		default:
		}
	}
}
