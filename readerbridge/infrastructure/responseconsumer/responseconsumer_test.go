package responseconsumer

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samoilenko/tagmatrix/pkg/reportwire"
)

type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) record(level, msg string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, level+" "+fmt.Sprintf(msg, args...))
}

func (m *mockLogger) Debug(msg string, args ...interface{}) { m.record("DEBUG", msg, args...) }
func (m *mockLogger) Info(msg string, args ...interface{})  { m.record("INFO", msg, args...) }
func (m *mockLogger) Warn(msg string, args ...interface{})  { m.record("WARN", msg, args...) }
func (m *mockLogger) Error(msg string, args ...interface{}) { m.record("ERROR", msg, args...) }

func (m *mockLogger) GetMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.messages...)
}

type recordingDelay struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingDelay) Set(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, delay)
}

func TestBroadcast(t *testing.T) {
	source := make(chan int, 3)
	fast := make(chan int, 3)
	slow := make(chan int, 1)

	source <- 1
	source <- 2
	source <- 3
	close(source)

	missed := Broadcast(source, fast, slow)
	if missed != 2 {
		t.Errorf("Expected 2 missed deliveries, got %d", missed)
	}

	var got []int
	for v := range fast {
		got = append(got, v)
	}
	if len(got) != 3 {
		t.Errorf("Expected the fast consumer to get 3 values, got %v", got)
	}
	if v := <-slow; v != 1 {
		t.Errorf("Expected the slow consumer to keep the first value, got %d", v)
	}
	if _, ok := <-slow; ok {
		t.Error("Expected the slow consumer channel to be closed")
	}
}

func TestResponseLogger(t *testing.T) {
	logger := &mockLogger{}
	ch, done := ResponseLogger(logger)

	ch <- reportwire.Response{BatchID: 1, Code: reportwire.CodeResourceExhausted, RetryAfter: time.Second}
	ch <- reportwire.Response{BatchID: 2, Code: reportwire.CodeInvalidArgument, Message: "readerId is required"}
	ch <- reportwire.Response{BatchID: 3, Code: reportwire.CodeOK, Accepted: 4}
	ch <- reportwire.Response{BatchID: 4, Code: reportwire.CodeOK, Accepted: 1, Rejected: 2}
	close(ch)
	<-done

	messages := logger.GetMessages()
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %v", messages)
	}
	expected := []string{"INFO batch 1", "ERROR tracker responded with INVALID_ARGUMENT", "WARN batch 4"}
	for i, prefix := range expected {
		if !strings.HasPrefix(messages[i], prefix) {
			t.Errorf("Expected message %d to start with %q, got %q", i, prefix, messages[i])
		}
	}
}

func TestRetryDelayConsumer(t *testing.T) {
	delay := &recordingDelay{}
	ch, done := RetryDelayConsumer(delay)

	ch <- reportwire.Response{Code: reportwire.CodeResourceExhausted, RetryAfter: 250 * time.Millisecond}
	ch <- reportwire.Response{Code: reportwire.CodeInternal}
	ch <- reportwire.Response{Code: reportwire.CodeResourceExhausted}
	close(ch)
	<-done

	if len(delay.delays) != 1 || delay.delays[0] != 250*time.Millisecond {
		t.Errorf("Expected a single 250ms pause, got %v", delay.delays)
	}
}
