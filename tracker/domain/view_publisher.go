package domain

import (
	"context"
	"time"
)

// FrameSink receives every projected frame. Publish must not block for long;
// the publisher calls sinks sequentially on its own goroutine.
type FrameSink interface {
	Publish(frame ViewFrame) error
}

// ViewPublisher projects a frame every refresh interval and hands it to the
// sinks. The interval is re-read after each tick so edits apply without a
// restart.
type ViewPublisher struct {
	sources FrameSources
	sinks   []FrameSink
	logger  Logger
	now     func() time.Time
}

// NewViewPublisher creates a publisher.
func NewViewPublisher(sources FrameSources, logger Logger, sinks ...FrameSink) *ViewPublisher {
	return &ViewPublisher{
		sources: sources,
		sinks:   sinks,
		logger:  logger,
		now:     time.Now,
	}
}

// Run publishes until ctx is cancelled.
func (p *ViewPublisher) Run(ctx context.Context) {
	interval := p.sources.Settings.RefreshInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishSafely()
			if next := p.sources.Settings.RefreshInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				p.logger.Info("refresh interval changed to %s", interval)
			}
		}
	}
}

// publishSafely keeps the ticker alive when a projection or a sink panics.
func (p *ViewPublisher) publishSafely() {
	err := SafeFunctionRun(func() error {
		p.PublishOnce()
		return nil
	}, p.logger)
	if err != nil {
		p.logger.Error("view frame skipped: %s", err.Error())
	}
}

// PublishOnce builds a single frame and delivers it to every sink.
func (p *ViewPublisher) PublishOnce() ViewFrame {
	frame := BuildViewFrame(p.sources, p.now())
	for _, sink := range p.sinks {
		if err := sink.Publish(frame); err != nil {
			p.logger.Error("publishing view frame: %s", err.Error())
		}
	}
	return frame
}
