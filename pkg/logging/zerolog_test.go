package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONFormatHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("hidden %d", 1)
	logger.Warn("visible %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"visible 2"`) {
		t.Errorf("expected warn entry, got %s", out)
	}
}

func TestNew_With(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.With("session", "abc").Debug("hello")

	if !strings.Contains(buf.String(), `"session":"abc"`) {
		t.Errorf("expected session field, got %s", buf.String())
	}
}

func TestNew_InvalidInput(t *testing.T) {
	if _, err := New(nil, "loud", FormatJSON); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(nil, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
