package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SessionState is the reader connection state shown to operators.
type SessionState int

// Session states. A failed connect or a session that breaks during inventory
// ends in SessionError; the manager never reconnects on its own.
const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionConnected
	SessionError
)

var sessionStateNames = map[SessionState]string{
	SessionDisconnected: "disconnected",
	SessionConnecting:   "connecting",
	SessionConnected:    "connected",
	SessionError:        "error",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// MarshalText renders the state by name in JSON documents.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *SessionState) UnmarshalText(text []byte) error {
	for state, name := range sessionStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// SessionStatus is a snapshot of the reader session.
type SessionStatus struct {
	State     SessionState `json:"state"`
	Address   Address      `json:"address,omitempty"`
	Inventory bool         `json:"inventory"`
	Error     string       `json:"error,omitempty"`
	Since     time.Time    `json:"since"`
}

// StatusObserver is notified after every status change, in order.
type StatusObserver func(SessionStatus)

// SessionManager drives the reader session lifecycle: connect, start and stop
// inventory, disconnect. Operations are serialized; Status never waits for a
// reader round trip.
type SessionManager struct {
	opMu    sync.Mutex
	client  ReaderClient
	handler ReportHandler
	logger  Logger
	session ReaderSession

	mu        sync.RWMutex
	status    SessionStatus
	observers []StatusObserver
	now       func() time.Time
}

// Subscribe registers an observer of status changes.
func (m *SessionManager) Subscribe(observer StatusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, observer)
}

// Status returns the current session status.
func (m *SessionManager) Status() SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Connect opens a session with the reader at address and registers the
// report handler on it.
func (m *SessionManager) Connect(ctx context.Context, address Address, cfg SessionConfig) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.session != nil {
		return ErrAlreadyConnected
	}

	m.setStatus(SessionStatus{State: SessionConnecting, Address: address})
	m.logger.Info("connecting to reader %s (antennas %v, %d dBm)", address, cfg.Antennas, cfg.TxPower)

	session, err := m.client.Dial(ctx, address, cfg)
	if err != nil {
		var connectErr *ConnectError
		if !errors.As(err, &connectErr) {
			connectErr = &ConnectError{Address: address, Err: err}
		}
		m.logger.Error("connect failed: %s", connectErr.Error())
		m.setStatus(SessionStatus{State: SessionError, Address: address, Error: connectErr.Error()})
		return connectErr
	}

	session.OnTagReports(m.handler)
	m.session = session
	m.setStatus(SessionStatus{State: SessionConnected, Address: address})
	m.logger.Info("connected to reader %s", address)
	return nil
}

// StartInventory starts reading tags. Starting a running inventory is a no-op.
func (m *SessionManager) StartInventory(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.session == nil {
		return ErrNotConnected
	}
	status := m.Status()
	if status.Inventory {
		return nil
	}

	if err := m.session.StartInventory(ctx); err != nil {
		return m.fail(status.Address, fmt.Errorf("start inventory: %w", err))
	}
	status.Inventory = true
	m.setStatus(status)
	m.logger.Info("inventory started")
	return nil
}

// StopInventory stops reading tags. Stopping an idle session is a no-op.
func (m *SessionManager) StopInventory(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.session == nil {
		return ErrNotConnected
	}
	status := m.Status()
	if !status.Inventory {
		return nil
	}

	if err := m.session.StopInventory(ctx); err != nil {
		return m.fail(status.Address, fmt.Errorf("stop inventory: %w", err))
	}
	status.Inventory = false
	m.setStatus(status)
	m.logger.Info("inventory stopped")
	return nil
}

// Disconnect stops a running inventory and closes the session. It also
// clears an error state.
func (m *SessionManager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	status := m.Status()
	if m.session == nil {
		if status.State != SessionDisconnected {
			m.setStatus(SessionStatus{State: SessionDisconnected})
		}
		return nil
	}

	var errs []error
	if status.Inventory {
		if err := m.session.StopInventory(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop inventory: %w", err))
		}
	}
	if err := m.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	m.session = nil

	m.setStatus(SessionStatus{State: SessionDisconnected})
	m.logger.Info("disconnected from reader %s", status.Address)
	return errors.Join(errs...)
}

// fail drops a broken session. Must be called with opMu held.
func (m *SessionManager) fail(address Address, err error) error {
	if closeErr := m.session.Close(); closeErr != nil {
		m.logger.Warn("closing broken session: %s", closeErr.Error())
	}
	m.session = nil

	connectErr := &ConnectError{Address: address, Err: err}
	m.logger.Error("reader session failed: %s", connectErr.Error())
	m.setStatus(SessionStatus{State: SessionError, Address: address, Error: connectErr.Error()})
	return connectErr
}

func (m *SessionManager) setStatus(status SessionStatus) {
	m.mu.Lock()
	status.Since = m.now()
	m.status = status
	observers := append([]StatusObserver(nil), m.observers...)
	m.mu.Unlock()

	for _, observer := range observers {
		observer(status)
	}
}

// NewSessionManager creates a manager in the disconnected state. handler
// receives every report batch of every session it opens.
func NewSessionManager(client ReaderClient, handler ReportHandler, logger Logger) *SessionManager {
	m := &SessionManager{
		client:  client,
		handler: handler,
		logger:  logger,
		now:     time.Now,
	}
	m.status = SessionStatus{State: SessionDisconnected, Since: m.now()}
	return m
}
