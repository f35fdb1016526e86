package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/neighbourhood/atmfinder/internal/geocode"
)

// Scheduler runs the feed update loop: fetch, process, retry failed geocodes.
type Scheduler struct {
	feed      *FeedClient
	processor *Processor
	resolver  *geocode.Resolver
	logger    *slog.Logger
	interval  time.Duration
	done      chan struct{}
	stopped   chan struct{}
}

// NewScheduler builds a scheduler updating at the given interval.
func NewScheduler(feed *FeedClient, processor *Processor, resolver *geocode.Resolver, logger *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		feed:      feed,
		processor: processor,
		resolver:  resolver,
		logger:    logger,
		interval:  interval,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start runs an immediate update and then ticks until Stop is called or the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.stopped)

		s.runOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	<-s.stopped
}

// RunOnce performs a single update cycle; exposed for the one-shot ingest
// command.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.logger.Info("starting atm data update")

	records, err := s.feed.Fetch(ctx)
	if err != nil {
		s.logger.Error("feed fetch failed", "error", err)
		return
	}

	if err := s.processor.Process(ctx, records); err != nil {
		s.logger.Error("feed processing failed", "error", err)
	}

	if err := s.resolver.RetryFailures(ctx); err != nil {
		s.logger.Error("geocoding retry failed", "error", err)
	}

	s.logger.Info("atm data update completed", "records", len(records))
}
