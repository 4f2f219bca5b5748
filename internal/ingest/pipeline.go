// Package ingest contains the ingestion orchestration engine: the event
// admission pipeline, the failover stream controller, the backfill planner
// and the per-chain orchestrator.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"whale-ingest/internal/domain"
	"whale-ingest/internal/idhash"
	"whale-ingest/internal/observability"
	"whale-ingest/internal/ratelimit"
	"whale-ingest/internal/storage"
)

const (
	defaultCacheSize = 100_000
	defaultCacheTTL  = 24 * time.Hour
)

// Pipeline admits transfer events: deduplicates, rate-limits, persists and
// derives balance deltas. One Pipeline is shared by every chain task; cache
// keys embed the chain identifier so no cross-chain collision is possible.
type Pipeline struct {
	store   storage.Store
	limiter *ratelimit.Limiter
	sink    observability.Sink
	logger  *log.Logger
	now     func() time.Time

	// seen is a bounded fast-path cache. The store's own idempotent
	// insert is the durable layer, so eviction is always safe.
	seen *expirable.LRU[string, struct{}]
}

// PipelineOptions contains configuration for creating a Pipeline.
type PipelineOptions struct {
	Store   storage.Store
	Limiter *ratelimit.Limiter
	Sink    observability.Sink
	Logger  *log.Logger

	// CacheSize bounds the admission cache; CacheTTL evicts identities
	// older than the backfill/lag horizon. Zero values use defaults.
	CacheSize int
	CacheTTL  time.Duration

	// Now is the clock; defaults to time.Now. Overridable in tests.
	Now func() time.Time
}

// NewPipeline creates an admission pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = defaultCacheSize
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = defaultCacheTTL
	}
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

	return &Pipeline{
		store:   opts.Store,
		limiter: opts.Limiter,
		sink:    sink,
		logger:  logger,
		now:     now,
		seen:    expirable.NewLRU[string, struct{}](cacheSize, nil, cacheTTL),
	}
}

// Admit runs one event through the admission path:
//
//  1. Cache-hit identities are discarded silently.
//  2. New identities are cached, then gated by the shared rate limiter.
//  3. The store insert is idempotent; a collision stops here.
//  4. A newly created row yields exactly two balance-delta rows.
//
// Persistence failures propagate uncaught; retry responsibility lives in
// the streaming/backfill callers for connectivity and in the store for
// transient storage errors.
func (p *Pipeline) Admit(ctx context.Context, e *domain.TransferEvent) error {
	key := idhash.ComputeEventID(e.Chain, e.TxHash, e.FromAddr, e.ToAddr)
	if p.seen.Contains(key) {
		return nil
	}
	p.seen.Add(key, struct{}{})

	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}

	created, err := p.store.InsertTransfer(ctx, e)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	labels := observability.Labels{"chain": e.Chain}
	if created {
		debit, credit := domain.DeriveBalanceUpdates(e)
		if err := p.store.UpsertBalance(ctx, debit); err != nil {
			return fmt.Errorf("upsert debit balance: %w", err)
		}
		if err := p.store.UpsertBalance(ctx, credit); err != nil {
			return fmt.Errorf("upsert credit balance: %w", err)
		}
		p.sink.Inc(MetricEventsOut, labels)
	} else {
		p.sink.Inc(MetricDuplicatesSkipped, labels)
	}

	p.sink.Inc(MetricEventsIn, labels)
	lag := p.now().Sub(e.Timestamp)
	if lag < 0 {
		lag = 0
	}
	p.sink.Observe(MetricLagMS, float64(lag.Milliseconds()), labels)

	return nil
}
