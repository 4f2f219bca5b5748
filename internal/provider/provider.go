// Package provider defines the upstream data-provider contract and its
// vendor implementations. Each vendor supplies a live transfer stream and
// a bounded historical query; two instances run per process, designated
// primary and fallback by the stream controller.
package provider

import (
	"context"
	"time"

	"whale-ingest/internal/domain"
)

// Provider supplies normalized transfer events from one upstream vendor.
type Provider interface {
	// Name identifies the vendor for provenance and logging.
	Name() string

	// StreamTransfers opens a live event subscription for a chain.
	// The returned channel never terminates naturally; it closes only when
	// ctx is cancelled or the stream fails mid-flight. Callers treat
	// closure as stream failure and reconnect.
	StreamTransfers(ctx context.Context, chain string) (<-chan *domain.TransferEvent, error)

	// Backfill returns historical transfers within [start, end).
	// The result may contain duplicates; admission tolerates them.
	Backfill(ctx context.Context, chain string, start, end time.Time) ([]*domain.TransferEvent, error)
}
