package infrastructure

import (
	"fmt"
	"time"

	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// Batch limits enforced on the ingest stream.
const (
	MaxReaderIDLength  = 64
	MaxReportsPerBatch = 1000
	MaxBatchAge        = time.Hour
	MaxBatchClockSkew  = 5 * time.Minute
)

// BatchValidator rejects batches that break the ingest contract.
type BatchValidator struct {
	now func() time.Time
}

// Apply validates the envelope of a report batch. Individual records are
// not inspected here; malformed records are skipped by the normalizer.
func (v *BatchValidator) Apply(msg *structpb.Struct) error {
	batch, err := reportwire.DecodeBatch(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", trackerDomain.ErrValidation, err)
	}

	if batch.ReaderID == "" {
		return fmt.Errorf("%w: reader id is absent", trackerDomain.ErrValidation)
	}
	if len([]rune(batch.ReaderID)) > MaxReaderIDLength {
		return fmt.Errorf("%w: reader id is too long: %d chars", trackerDomain.ErrValidation, len([]rune(batch.ReaderID)))
	}

	if len(batch.Reports) > MaxReportsPerBatch {
		return fmt.Errorf("%w: batch carries %d reports, limit is %d", trackerDomain.ErrValidation, len(batch.Reports), MaxReportsPerBatch)
	}

	if batch.SentAt.IsZero() {
		return fmt.Errorf("%w: sentAt is absent", trackerDomain.ErrValidation)
	}
	now := v.now()
	if batch.SentAt.Before(now.Add(-MaxBatchAge)) {
		return fmt.Errorf("%w: batch too old: %s", trackerDomain.ErrValidation, batch.SentAt.Format(time.RFC3339))
	}
	if batch.SentAt.After(now.Add(MaxBatchClockSkew)) {
		return fmt.Errorf("%w: batch from the future: %s", trackerDomain.ErrValidation, batch.SentAt.Format(time.RFC3339))
	}

	return nil
}

// NewBatchValidator creates a BatchValidator.
func NewBatchValidator() *BatchValidator {
	return &BatchValidator{now: time.Now}
}
