package reportwire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Batch field names.
const (
	FieldBatchID  = "batchId"
	FieldReaderID = "readerId"
	FieldSentAt   = "sentAt"
	FieldReports  = "reports"
)

// ErrMalformedBatch is returned when a Struct does not carry a decodable batch.
var ErrMalformedBatch = errors.New("malformed report batch")

// Batch is one callback's worth of tag reports as sent by a reader bridge.
type Batch struct {
	ID       int64
	ReaderID string
	SentAt   time.Time
	Reports  []map[string]any
}

// EncodeBatch converts a batch into its wire form. Byte slices inside report
// records are hex encoded, since Struct has no bytes kind.
func EncodeBatch(b Batch) (*structpb.Struct, error) {
	reports := make([]any, 0, len(b.Reports))
	for i, record := range b.Reports {
		fields := make(map[string]any, len(record))
		for key, value := range record {
			fields[key] = wireValue(value)
		}
		if _, err := structpb.NewStruct(fields); err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		reports = append(reports, fields)
	}

	return structpb.NewStruct(map[string]any{
		FieldBatchID:  b.ID,
		FieldReaderID: b.ReaderID,
		FieldSentAt:   b.SentAt.UTC().Format(time.RFC3339Nano),
		FieldReports:  reports,
	})
}

func wireValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return hex.EncodeToString(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

// DecodeBatch reads a batch from its wire form. Numbers come back as float64,
// as with any JSON-like document.
func DecodeBatch(s *structpb.Struct) (Batch, error) {
	if s == nil {
		return Batch{}, fmt.Errorf("%w: empty message", ErrMalformedBatch)
	}

	var b Batch
	fields := s.GetFields()

	if v, ok := fields[FieldBatchID]; ok {
		b.ID = int64(v.GetNumberValue())
	}
	b.ReaderID = fields[FieldReaderID].GetStringValue()

	if raw := fields[FieldSentAt].GetStringValue(); raw != "" {
		sentAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Batch{}, fmt.Errorf("%w: sentAt: %w", ErrMalformedBatch, err)
		}
		b.SentAt = sentAt
	}

	list, ok := fields[FieldReports].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return Batch{}, fmt.Errorf("%w: reports must be a list", ErrMalformedBatch)
	}

	b.Reports = make([]map[string]any, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		record := item.GetStructValue()
		if record == nil {
			return Batch{}, fmt.Errorf("%w: report %d is not an object", ErrMalformedBatch, i)
		}
		b.Reports = append(b.Reports, record.AsMap())
	}

	return b, nil
}
