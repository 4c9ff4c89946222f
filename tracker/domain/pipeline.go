// Package domain contains the tag-report pipeline: normalization, watch list
// membership, per-EPC aggregation, the rolling log and the matrix projection.
package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the observation queue length used when none is configured.
const DefaultQueueSize = 4096

// ObservationSink receives every applied observation after the store and the
// log have been updated. Record must not block.
type ObservationSink interface {
	Record(obs TagObservation)
}

// PipelineStats are cumulative pipeline counters.
type PipelineStats struct {
	Received   uint64          `json:"received"`
	Rejected   uint64          `json:"rejected"`
	Dropped    uint64          `json:"dropped"`
	Filtered   uint64          `json:"filtered"`
	Stale      uint64          `json:"stale"`
	Applied    uint64          `json:"applied"`
	Logged     uint64          `json:"logged"`
	Resets     uint64          `json:"resets"`
	QueueLen   int             `json:"queueLen"`
	QueueCap   int             `json:"queueCap"`
	Normalizer NormalizerStats `json:"normalizer"`
}

// SubmitResult tells the producer what happened to its batch.
type SubmitResult struct {
	Accepted int
	Rejected int
	Dropped  int
}

type queuedObservation struct {
	obs        TagObservation
	generation uint64
}

// Pipeline connects the producer side (Submit, called from the ingest
// goroutines) to a single consumer that owns all store and log mutations.
// Submit normalizes in the caller and never waits for the consumer: when the
// queue is full, new observations are dropped and counted.
type Pipeline struct {
	logger       Logger
	normalizer   *Normalizer
	store        *AggregationStore
	log          *RollingLog
	settings     *ViewSettings
	interceptors *Interceptors[TagObservation]
	sinks        []ObservationSink

	queue      chan queuedObservation
	closedLock sync.RWMutex
	closed     bool

	// resetMu orders Reset against apply: apply holds it for reading while it
	// checks the generation and mutates, Reset holds it for writing.
	resetMu    sync.RWMutex
	generation atomic.Uint64

	received atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
	filtered atomic.Uint64
	stale    atomic.Uint64
	applied  atomic.Uint64
	logged   atomic.Uint64
	resets   atomic.Uint64
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithObservationInterceptors installs filters run before an observation is applied.
func WithObservationInterceptors(interceptors *Interceptors[TagObservation]) PipelineOption {
	return func(p *Pipeline) { p.interceptors = interceptors }
}

// WithObservationSinks adds sinks notified after each applied observation.
func WithObservationSinks(sinks ...ObservationSink) PipelineOption {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithQueueSize sets the observation queue length.
func WithQueueSize(size int) PipelineOption {
	return func(p *Pipeline) {
		if size > 0 {
			p.queue = make(chan queuedObservation, size)
		}
	}
}

// NewPipeline wires a pipeline around an existing store and log.
func NewPipeline(
	store *AggregationStore,
	log *RollingLog,
	settings *ViewSettings,
	logger Logger,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		logger:     logger,
		normalizer: NewNormalizer(logger),
		store:      store,
		log:        log,
		settings:   settings,
		queue:      make(chan queuedObservation, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit normalizes reports and queues the observations for the consumer.
func (p *Pipeline) Submit(reports []RawReport) SubmitResult {
	observations, rejected := p.normalizer.NormalizeBatch(reports)
	p.received.Add(uint64(len(reports)))
	p.rejected.Add(uint64(rejected))

	result := SubmitResult{Rejected: rejected}
	generation := p.generation.Load()

	p.closedLock.RLock()
	defer p.closedLock.RUnlock()

	for _, obs := range observations {
		if p.closed {
			result.Dropped++
			continue
		}
		select {
		case p.queue <- queuedObservation{obs: obs, generation: generation}:
			result.Accepted++
		default:
			result.Dropped++
		}
	}
	if result.Dropped > 0 {
		p.dropped.Add(uint64(result.Dropped))
		p.logger.Warn("observation queue full, dropped %d of %d observations", result.Dropped, len(observations))
	}
	return result
}

// Run applies queued observations in delivery order until ctx is cancelled
// or Stop is called and the queue drained.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				p.logger.Info("observation queue closed")
				return
			}
			p.applyQueued(item)
		}
	}
}

// Stop closes the queue. Later Submit calls drop their observations.
func (p *Pipeline) Stop() {
	p.closedLock.Lock()
	defer p.closedLock.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Apply runs the consumer logic for obs synchronously.
func (p *Pipeline) Apply(obs TagObservation) error {
	p.resetMu.RLock()
	defer p.resetMu.RUnlock()
	return p.apply(obs)
}

func (p *Pipeline) applyQueued(item queuedObservation) {
	p.resetMu.RLock()
	defer p.resetMu.RUnlock()

	if item.generation != p.generation.Load() {
		p.stale.Add(1)
		return
	}
	err := SafeFunctionRun(func() error { return p.apply(item.obs) }, p.logger)
	if err != nil && !errors.Is(err, ErrObservationFiltered) {
		p.logger.Error("applying observation for %s: %s", item.obs.EPC, err.Error())
	}
}

func (p *Pipeline) apply(obs TagObservation) error {
	if err := p.interceptors.Apply(&obs); err != nil {
		if errors.Is(err, ErrObservationFiltered) {
			p.filtered.Add(1)
			p.logger.Debug("observation dropped: %s", err.Error())
		}
		return err
	}

	watchList := p.settings.WatchList()
	if IsTracked(obs.EPC, watchList) {
		p.store.RecordObservation(obs)
	}
	if p.log.Append(obs, IsVisibleInLog(obs.EPC, watchList, p.settings.LogFilterEnabled())) {
		p.logged.Add(1)
	}
	p.applied.Add(1)

	for _, sink := range p.sinks {
		sink.Record(obs)
	}
	return nil
}

// Reset clears the store and the log. Observations queued before the reset
// are discarded.
func (p *Pipeline) Reset() {
	p.resetMu.Lock()
	defer p.resetMu.Unlock()

	p.generation.Add(1)
	p.store.Reset(p.settings.WatchList())
	p.log.Clear()
	p.resets.Add(1)
	p.logger.Info("pipeline reset")
}

// ClearLog clears only the rolling log.
func (p *Pipeline) ClearLog() {
	p.resetMu.Lock()
	defer p.resetMu.Unlock()
	p.log.Clear()
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Received:   p.received.Load(),
		Rejected:   p.rejected.Load(),
		Dropped:    p.dropped.Load(),
		Filtered:   p.filtered.Load(),
		Stale:      p.stale.Load(),
		Applied:    p.applied.Load(),
		Logged:     p.logged.Load(),
		Resets:     p.resets.Load(),
		QueueLen:   len(p.queue),
		QueueCap:   cap(p.queue),
		Normalizer: p.normalizer.Stats(),
	}
}
