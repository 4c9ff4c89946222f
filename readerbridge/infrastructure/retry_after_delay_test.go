package infrastructure

import (
	"testing"
	"time"
)

func TestRetryAfterDelay(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	delay := NewRetryAfterDelay()
	delay.now = func() time.Time { return now }

	if got := delay.Get(); got != 0 {
		t.Fatalf("Expected no pause, got %s", got)
	}

	delay.Set(2 * time.Second)
	now = now.Add(500 * time.Millisecond)
	if got := delay.Get(); got != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s left, got %s", got)
	}

	delay.Set(100 * time.Millisecond)
	if got := delay.Get(); got != 1500*time.Millisecond {
		t.Errorf("Expected a shorter delay to keep the pause, got %s", got)
	}

	now = now.Add(2 * time.Second)
	if got := delay.Get(); got != 0 {
		t.Errorf("Expected the pause to lift, got %s", got)
	}

	delay.Set(time.Minute)
	delay.Reset()
	if got := delay.Get(); got != 0 {
		t.Errorf("Expected Reset to lift the pause, got %s", got)
	}
}
