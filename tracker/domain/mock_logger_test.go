package domain

import (
	"fmt"
	"sync"
)

type MockLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (m *MockLogger) Debug(_ string, _ ...interface{}) {}

func (m *MockLogger) Info(_ string, _ ...interface{}) {}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, fmt.Sprintf(msg, args...))
}

func (m *MockLogger) Error(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, fmt.Sprintf(msg, args...))
}

func (m *MockLogger) GetWarnCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.warns...)
}

func (m *MockLogger) GetErrorCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.errs...)
}
