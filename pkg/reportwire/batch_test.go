package reportwire

import (
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestEncodeBatch_HexEncodesBytes(t *testing.T) {
	sentAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg, err := EncodeBatch(Batch{
		ID:       7,
		ReaderID: "dock-1",
		SentAt:   sentAt,
		Reports: []map[string]any{
			{"EPC-96": []byte{0xDE, 0xAD}, "AntennaID": 1, "ImpinjRFPhaseAngle": 450},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := DecodeBatch(msg)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	if b.ID != 7 || b.ReaderID != "dock-1" || !b.SentAt.Equal(sentAt) {
		t.Errorf("header mismatch: %+v", b)
	}
	if len(b.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(b.Reports))
	}
	if got := b.Reports[0]["EPC-96"]; got != "dead" {
		t.Errorf("expected hex epc \"dead\", got %v", got)
	}
	if got := b.Reports[0]["ImpinjRFPhaseAngle"]; got != float64(450) {
		t.Errorf("expected phase 450 as number, got %v (%T)", got, got)
	}
}

func TestDecodeBatch_Rejects(t *testing.T) {
	t.Run("nil message", func(t *testing.T) {
		if _, err := DecodeBatch(nil); !errors.Is(err, ErrMalformedBatch) {
			t.Errorf("expected ErrMalformedBatch, got %v", err)
		}
	})

	t.Run("reports is not a list", func(t *testing.T) {
		msg, _ := structpb.NewStruct(map[string]any{FieldReports: "nope"})
		if _, err := DecodeBatch(msg); !errors.Is(err, ErrMalformedBatch) {
			t.Errorf("expected ErrMalformedBatch, got %v", err)
		}
	})

	t.Run("report is not an object", func(t *testing.T) {
		msg, _ := structpb.NewStruct(map[string]any{FieldReports: []any{"x"}})
		if _, err := DecodeBatch(msg); !errors.Is(err, ErrMalformedBatch) {
			t.Errorf("expected ErrMalformedBatch, got %v", err)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		msg, _ := structpb.NewStruct(map[string]any{FieldSentAt: "yesterday", FieldReports: []any{}})
		if _, err := DecodeBatch(msg); !errors.Is(err, ErrMalformedBatch) {
			t.Errorf("expected ErrMalformedBatch, got %v", err)
		}
	})
}

func TestResponse_Decode(t *testing.T) {
	r := DecodeResponse(EncodeResponse(Response{
		BatchID:    3,
		Code:       CodeResourceExhausted,
		Message:    "rate limit exceeded",
		RetryAfter: 250 * time.Millisecond,
	}))

	if r.BatchID != 3 || r.Code != CodeResourceExhausted || r.RetryAfter != 250*time.Millisecond {
		t.Errorf("unexpected response: %+v", r)
	}
}
