package domain

import (
	"fmt"
	"sync"
)

type MockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (m *MockLogger) Debug(_ string, _ ...interface{}) {}

func (m *MockLogger) Info(msg string, _ ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, fmt.Sprintf(msg, args...))
}

func (m *MockLogger) Error(msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, fmt.Sprintf(msg, args...))
}

func (m *MockLogger) GetInfoCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.infos...)
}

func (m *MockLogger) GetWarnCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.warns...)
}

func (m *MockLogger) GetErrorCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.errors...)
}
