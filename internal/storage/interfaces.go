package storage

import (
	"context"
	"time"

	"whale-ingest/internal/domain"
)

// Store provides durable, idempotent persistence for transfers, balance
// deltas and entity labels. Implementations must be safe for concurrent
// use by multiple chain tasks.
type Store interface {
	// LatestTransferTS returns the timestamp of the most recent stored
	// transfer for a chain, or nil when the chain has no transfers yet.
	LatestTransferTS(ctx context.Context, chain string) (*time.Time, error)

	// UpsertEntity inserts or updates a labeled address.
	UpsertEntity(ctx context.Context, e *domain.Entity) error

	// InsertTransfer idempotently inserts a transfer. Returns true when a
	// new row was created, false on an idempotency collision (a row with
	// the same (chain, tx_hash, from, to) identity already exists).
	InsertTransfer(ctx context.Context, e *domain.TransferEvent) (bool, error)

	// UpsertBalance appends a balance-delta row.
	UpsertBalance(ctx context.Context, b *domain.BalanceUpdate) error
}
