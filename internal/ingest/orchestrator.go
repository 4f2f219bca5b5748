package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"whale-ingest/internal/observability"
	"whale-ingest/internal/provider"
	"whale-ingest/internal/storage"
)

// Orchestrator owns one concurrent task per configured chain. Each task
// backfills once, then streams indefinitely through the shared admission
// pipeline. Run returns only when every chain task terminates: on external
// cancellation or a propagated fatal error from any chain.
type Orchestrator struct {
	chains   []string
	primary  provider.Provider
	fallback provider.Provider
	store    storage.Store
	pipeline *Pipeline

	retryBase        time.Duration
	retryMax         time.Duration
	retryMaxAttempts int
	backfillWindow   time.Duration
	streamLag        time.Duration

	sink   observability.Sink
	logger *log.Logger
	now    func() time.Time
	jitter func() float64
}

// Options contains configuration for creating an Orchestrator.
type Options struct {
	Chains   []string
	Primary  provider.Provider
	Fallback provider.Provider
	Store    storage.Store
	Pipeline *Pipeline

	RetryBase        time.Duration
	RetryMax         time.Duration
	RetryMaxAttempts int
	BackfillWindow   time.Duration
	StreamLag        time.Duration

	Sink   observability.Sink
	Logger *log.Logger

	// Test hooks; default to time.Now and rand.Float64.
	Now    func() time.Time
	Jitter func() float64
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	sink := opts.Sink
	if sink == nil {
		sink = observability.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		chains:           opts.Chains,
		primary:          opts.Primary,
		fallback:         opts.Fallback,
		store:            opts.Store,
		pipeline:         opts.Pipeline,
		retryBase:        opts.RetryBase,
		retryMax:         opts.RetryMax,
		retryMaxAttempts: opts.RetryMaxAttempts,
		backfillWindow:   opts.BackfillWindow,
		streamLag:        opts.StreamLag,
		sink:             sink,
		logger:           logger,
		now:              opts.Now,
		jitter:           opts.Jitter,
	}
}

// Run launches one task per chain and blocks until all terminate. The
// first fatal chain error cancels the remaining chains.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, chain := range o.chains {
		chain := chain
		g.Go(func() error {
			return o.runChain(ctx, chain)
		})
	}
	return g.Wait()
}

// runChain backfills once, then streams forever. A mid-stream failure
// (event channel closed without cancellation) re-enters the failover
// loop rather than killing the chain; persistence errors are fatal.
func (o *Orchestrator) runChain(ctx context.Context, chain string) error {
	controller := NewStreamController(StreamControllerOptions{
		Chain:            chain,
		Primary:          o.primary,
		Fallback:         o.fallback,
		RetryBase:        o.retryBase,
		RetryMax:         o.retryMax,
		RetryMaxAttempts: o.retryMaxAttempts,
		Sink:             o.sink,
		Logger:           o.logger,
		Jitter:           o.jitter,
	})

	backfiller := NewBackfiller(BackfillerOptions{
		Store:      o.store,
		Pipeline:   o.pipeline,
		Controller: controller,
		Window:     o.backfillWindow,
		Lag:        o.streamLag,
		Sink:       o.sink,
		Logger:     o.logger,
		Now:        o.now,
	})

	if err := backfiller.Run(ctx, chain); err != nil {
		return fmt.Errorf("chain %s: backfill: %w", chain, err)
	}

	for {
		events, prov, err := controller.Open(ctx)
		if err != nil {
			return err
		}

		for e := range events {
			if err := o.pipeline.Admit(ctx, e); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("chain %s: admit: %w", chain, err)
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		o.logger.Printf("[orchestrator] stream interrupted chain=%s provider=%s, reconnecting",
			chain, prov.Name())
		o.sink.Inc(MetricStreamReconnects, observability.Labels{"chain": chain})
	}
}
