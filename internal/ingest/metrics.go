package ingest

// Metric names emitted through the observability sink. Every emission
// carries a "chain" label.
const (
	// MetricEventsIn counts events reaching the admission pipeline,
	// duplicates included.
	MetricEventsIn = "events_in"

	// MetricEventsOut counts newly persisted transfers (one per derived
	// balance-delta pair).
	MetricEventsOut = "events_out"

	// MetricLagMS observes ingestion lag: now minus event timestamp,
	// clamped to >= 0, in milliseconds.
	MetricLagMS = "lag_ms"

	// MetricDuplicatesSkipped counts store-level idempotency collisions.
	MetricDuplicatesSkipped = "duplicates_skipped"

	// MetricStreamReconnects counts mid-stream failures that re-entered
	// the failover loop.
	MetricStreamReconnects = "stream_reconnects"

	// MetricFailoverSwaps counts primary/fallback designation swaps.
	MetricFailoverSwaps = "failover_swaps"

	// MetricBackfillEvents counts events admitted via backfill.
	MetricBackfillEvents = "backfill_events"
)
