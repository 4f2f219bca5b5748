package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whale-ingest/internal/domain"
	"whale-ingest/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// LatestTransferTS returns the timestamp of the most recent persisted
// transfer for a chain, or nil when the chain has no transfers yet.
func (s *Store) LatestTransferTS(ctx context.Context, chain string) (*time.Time, error) {
	query := `SELECT max(ts) FROM whale_transfers WHERE chain = $1`

	var ts *time.Time
	if err := s.pool.QueryRow(ctx, query, chain).Scan(&ts); err != nil {
		return nil, fmt.Errorf("latest transfer ts: %w", err)
	}
	return ts, nil
}

// InsertTransfer persists a transfer event. It is idempotent on the
// (chain, tx_hash, from_addr, to_addr) identity: created reports whether a
// new row was written, false means the identity already existed.
func (s *Store) InsertTransfer(ctx context.Context, e *domain.TransferEvent) (bool, error) {
	provenance, raw, err := marshalMeta(e)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO whale_transfers (
			ts, tx_hash, from_addr, to_addr, chain, token,
			amount, usd_value, direction, venue_hint, is_cex, provenance, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (chain, tx_hash, from_addr, to_addr) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		e.Timestamp,
		e.TxHash,
		e.FromAddr,
		e.ToAddr,
		e.Chain,
		e.Token,
		e.Amount,
		e.USDValue,
		e.Direction,
		e.VenueHint,
		e.IsCEX,
		provenance,
		raw,
	)
	if err != nil {
		// A concurrent writer can still surface the constraint directly.
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert transfer: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// UpsertBalance appends one balance-delta row.
func (s *Store) UpsertBalance(ctx context.Context, b *domain.BalanceUpdate) error {
	query := `
		INSERT INTO whale_balances (
			ts, address, chain, token, amount, usd_value
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		b.Timestamp,
		b.Address,
		b.Chain,
		b.Token,
		b.Amount,
		b.USDValue,
	)
	if err != nil {
		return fmt.Errorf("insert balance delta: %w", err)
	}
	return nil
}

// UpsertEntity inserts or refreshes an entity label keyed by (chain, address).
func (s *Store) UpsertEntity(ctx context.Context, ent *domain.Entity) error {
	meta, err := json.Marshal(ent.Meta)
	if err != nil {
		return fmt.Errorf("marshal entity meta: %w", err)
	}

	query := `
		INSERT INTO whale_entities (address, chain, label, entity_type, is_cex, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chain, address) DO UPDATE SET
			label = EXCLUDED.label,
			entity_type = EXCLUDED.entity_type,
			is_cex = EXCLUDED.is_cex,
			meta = EXCLUDED.meta,
			updated_at = now()
	`

	_, err = s.pool.Exec(ctx, query,
		ent.Address,
		ent.Chain,
		ent.Label,
		ent.EntityType,
		ent.IsCEX,
		meta,
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// marshalMeta encodes the provenance and raw payload columns as JSON.
func marshalMeta(e *domain.TransferEvent) (provenance, raw []byte, err error) {
	if e.Provenance != nil {
		provenance, err = json.Marshal(e.Provenance)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal provenance: %w", err)
		}
	}
	if e.Raw != nil {
		raw, err = json.Marshal(e.Raw)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal raw payload: %w", err)
		}
	}
	return provenance, raw, nil
}
