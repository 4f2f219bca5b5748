package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"whale-ingest/internal/observability"
	"whale-ingest/internal/provider"
	"whale-ingest/internal/storage"
)

// Backfiller closes the gap between the last persisted transfer and the
// live-stream horizon for one chain. It runs once, before streaming starts.
type Backfiller struct {
	store      storage.Store
	pipeline   *Pipeline
	controller *StreamController
	window     time.Duration
	lag        time.Duration
	sink       observability.Sink
	logger     *log.Logger
	now        func() time.Time
}

// BackfillerOptions contains configuration for creating a Backfiller.
type BackfillerOptions struct {
	Store      storage.Store
	Pipeline   *Pipeline
	Controller *StreamController

	// Window bounds how far back a first run may reach; Lag positions the
	// horizon below now so backfill never races the live stream.
	Window time.Duration
	Lag    time.Duration

	Sink   observability.Sink
	Logger *log.Logger

	// Now is the clock; defaults to time.Now. Overridable in tests.
	Now func() time.Time
}

// NewBackfiller creates a backfill planner.
func NewBackfiller(opts BackfillerOptions) *Backfiller {
	sink := opts.Sink
	if sink == nil {
		sink = observability.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Backfiller{
		store:      opts.Store,
		pipeline:   opts.Pipeline,
		controller: opts.Controller,
		window:     opts.Window,
		lag:        opts.Lag,
		sink:       sink,
		logger:     logger,
		now:        now,
	}
}

// Run computes the backfill window and executes it. The window is
// [start, horizon) where horizon = now - lag and start resumes from the
// store's latest timestamp, clamped to now - window. An empty window is a
// no-op. Providers are tried in designation order, one attempt each; when
// both fail the window is skipped and re-attempted on the next service
// start. Persistence failures propagate.
func (b *Backfiller) Run(ctx context.Context, chain string) error {
	now := b.now()
	horizon := now.Add(-b.lag)

	last, err := b.store.LatestTransferTS(ctx, chain)
	if err != nil {
		return fmt.Errorf("latest transfer ts: %w", err)
	}

	start := now.Add(-b.window)
	if last != nil && last.After(start) {
		start = *last
	}
	if !start.Before(horizon) {
		return nil
	}

	primary, fallback := b.controller.Providers()
	attempts := []struct {
		prov provider.Provider
		role string
	}{
		{primary, "primary"},
		{fallback, "fallback"},
	}

	for _, attempt := range attempts {
		prov := attempt.prov

		events, err := prov.Backfill(ctx, chain, start, horizon)
		if err != nil {
			b.logger.Printf("[backfill] error chain=%s provider=%s role=%s: %v",
				chain, prov.Name(), attempt.role, err)
			continue
		}

		for _, e := range events {
			if err := b.pipeline.Admit(ctx, e); err != nil {
				return fmt.Errorf("admit backfill event: %w", err)
			}
			b.sink.Inc(MetricBackfillEvents, observability.Labels{"chain": chain})
		}
		if len(events) > 0 {
			b.logger.Printf("[backfill] done chain=%s provider=%s count=%d window=[%s, %s)",
				chain, prov.Name(), len(events),
				start.Format(time.RFC3339), horizon.Format(time.RFC3339))
		}
		return nil
	}

	// Both providers failed: skip the window. The store's latest-timestamp
	// signal is the only backfill cursor, so the next start re-attempts it.
	b.logger.Printf("[backfill] skipped chain=%s: both providers failed", chain)
	return nil
}
