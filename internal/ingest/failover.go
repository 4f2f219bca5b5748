package ingest

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"whale-ingest/internal/domain"
	"whale-ingest/internal/observability"
	"whale-ingest/internal/provider"
)

const (
	defaultRetryBase        = 500 * time.Millisecond
	defaultRetryMax         = 15 * time.Second
	defaultRetryMaxAttempts = 8
)

// StreamController opens live streams for one chain with exponential
// backoff and primary/fallback swapping. It never gives up: after
// maxAttempts consecutive open failures the fallback is promoted to
// primary and the attempt counter resets. A later swap can flip back, so
// both providers stay warm and a recovered vendor is picked up again.
type StreamController struct {
	chain       string
	base        time.Duration
	max         time.Duration
	maxAttempts int
	sink        observability.Sink
	logger      *log.Logger
	jitter      func() float64

	mu       sync.Mutex
	primary  provider.Provider
	fallback provider.Provider
}

// StreamControllerOptions contains configuration for creating a
// StreamController.
type StreamControllerOptions struct {
	Chain    string
	Primary  provider.Provider
	Fallback provider.Provider

	RetryBase        time.Duration
	RetryMax         time.Duration
	RetryMaxAttempts int

	Sink   observability.Sink
	Logger *log.Logger

	// Jitter returns a uniform value in [0, 1). Defaults to rand.Float64.
	Jitter func() float64
}

// NewStreamController creates a stream controller for one chain.
func NewStreamController(opts StreamControllerOptions) *StreamController {
	base := opts.RetryBase
	if base == 0 {
		base = defaultRetryBase
	}
	max := opts.RetryMax
	if max == 0 {
		max = defaultRetryMax
	}
	maxAttempts := opts.RetryMaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultRetryMaxAttempts
	}
	sink := opts.Sink
	if sink == nil {
		sink = observability.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	return &StreamController{
		chain:       opts.Chain,
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
		sink:        sink,
		logger:      logger,
		jitter:      jitter,
		primary:     opts.Primary,
		fallback:    opts.Fallback,
	}
}

// Providers returns the current primary/fallback designation.
func (c *StreamController) Providers() (primary, fallback provider.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary, c.fallback
}

// swap promotes the fallback to primary.
func (c *StreamController) swap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary, c.fallback = c.fallback, c.primary
}

// delay computes the backoff before retry attempt+1:
// min(max, base*2^attempt + uniform(0, base)).
func (c *StreamController) delay(attempt int) time.Duration {
	exp := float64(c.base) * math.Pow(2, float64(attempt))
	d := exp + c.jitter()*float64(c.base)
	if d > float64(c.max) {
		return c.max
	}
	return time.Duration(d)
}

// Open retries the current primary until a live stream opens, swapping
// designation after maxAttempts consecutive failures. It returns only on
// success or context cancellation; per-item failures inside the returned
// sequence are the caller's concern.
func (c *StreamController) Open(ctx context.Context) (<-chan *domain.TransferEvent, provider.Provider, error) {
	attempt := 0
	for {
		primary, fallback := c.Providers()

		c.logger.Printf("[stream] connect chain=%s provider=%s", c.chain, primary.Name())
		events, err := primary.StreamTransfers(ctx, c.chain)
		if err == nil {
			return events, primary, nil
		}

		d := c.delay(attempt)
		c.logger.Printf("[stream] open failed chain=%s provider=%s role=primary retry_in=%s: %v",
			c.chain, primary.Name(), d, err)

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		}

		attempt++
		if attempt >= c.maxAttempts {
			c.logger.Printf("[stream] failover chain=%s: promoting %s", c.chain, fallback.Name())
			c.swap()
			c.sink.Inc(MetricFailoverSwaps, observability.Labels{"chain": c.chain})
			attempt = 0
		}
	}
}
