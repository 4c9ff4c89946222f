package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"

	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

const (
	journalPrefix        = "OBS"
	journalQueueSize     = 8192
	journalBatchSize     = 256
	journalFlushInterval = 500 * time.Millisecond
)

// JournalRecord is one stored observation.
type JournalRecord struct {
	ID          string                       `msgpack:"id" json:"id"`
	RecordedAt  time.Time                    `msgpack:"at" json:"recordedAt"`
	Observation trackerDomain.TagObservation `msgpack:"obs" json:"observation"`
}

// JournalStats are cumulative journal counters.
type JournalStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// BadgerJournal keeps an append-only history of applied observations in
// badger. Record never blocks the pipeline: records go through a bounded
// queue and are written in batches; when the queue is full they are dropped.
type BadgerJournal struct {
	db       *badger.DB
	inMemory bool
	ttl      time.Duration
	logger   trackerDomain.Logger
	queue    chan JournalRecord
	now      func() time.Time

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// badgerLogger routes badger's own logging to the tracker logger.
type badgerLogger struct {
	logger trackerDomain.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger: "+strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger: "+strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger: "+strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug("badger: "+strings.TrimSpace(format), args...)
}

// OpenBadgerJournal opens a journal in dir, or in memory when dir is empty.
// Records expire after ttl; zero keeps them forever.
func OpenBadgerJournal(dir string, ttl time.Duration, logger trackerDomain.Logger) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger: logger}).
		WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &BadgerJournal{
		db:       db,
		inMemory: dir == "",
		ttl:      ttl,
		logger:   logger,
		queue:    make(chan JournalRecord, journalQueueSize),
		now:      time.Now,
	}, nil
}

// Record queues obs for writing.
func (j *BadgerJournal) Record(obs trackerDomain.TagObservation) {
	record := JournalRecord{
		ID:          ksuid.New().String(),
		RecordedAt:  j.now().UTC(),
		Observation: obs,
	}
	select {
	case j.queue <- record:
	default:
		j.dropped.Add(1)
	}
}

// Start writes queued records until ctx is cancelled, then flushes what is
// left in the queue.
func (j *BadgerJournal) Start(ctx context.Context) {
	ticker := time.NewTicker(journalFlushInterval)
	defer ticker.Stop()

	pending := make([]JournalRecord, 0, journalBatchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := j.write(pending); err != nil {
			j.failed.Add(uint64(len(pending)))
			j.logger.Error("journal write of %d records failed: %s", len(pending), err.Error())
		} else {
			j.written.Add(uint64(len(pending)))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case record := <-j.queue:
					pending = append(pending, record)
					if len(pending) >= journalBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case record := <-j.queue:
			pending = append(pending, record)
			if len(pending) >= journalBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (j *BadgerJournal) write(records []JournalRecord) error {
	wb := j.db.NewWriteBatch()
	defer wb.Cancel()

	for _, record := range records {
		buf, err := msgpack.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		entry := badger.NewEntry(journalKey(record.ID), buf)
		if j.ttl > 0 {
			entry = entry.WithTTL(j.ttl)
		}
		if err := wb.SetEntry(entry); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func journalKey(id string) []byte {
	return []byte(fmt.Sprintf("%s/%s", journalPrefix, id))
}

// Recent returns up to limit records, newest first.
func (j *BadgerJournal) Recent(limit int) ([]JournalRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	prefix := []byte(journalPrefix + "/")
	records := make([]JournalRecord, 0, limit)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			var record JournalRecord
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	// ksuid order is only second-precise
	slices.SortStableFunc(records, func(a, b JournalRecord) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	return records, nil
}

// Stats returns the journal counters.
func (j *BadgerJournal) Stats() JournalStats {
	return JournalStats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Failed:  j.failed.Load(),
	}
}

// Close compacts the tables and the value log and closes the database.
func (j *BadgerJournal) Close() error {
	if !j.inMemory {
		if err := j.db.Flatten(4); err != nil {
			j.logger.Warn("journal flatten: %s", err.Error())
		}
		if err := j.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			j.logger.Warn("journal value log gc: %s", err.Error())
		}
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
