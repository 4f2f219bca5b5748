package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whale-ingest/internal/domain"
	"whale-ingest/internal/storage"
)

// Store implements storage.Store using ClickHouse. MergeTree engines do not
// enforce uniqueness at insert time, so idempotency relies on an explicit
// existence check before insert; the ReplacingMergeTree schema collapses any
// duplicates that race past the check during background merges.
type Store struct {
	conn *Conn
}

// NewStore creates a new Store.
func NewStore(conn *Conn) *Store {
	return &Store{conn: conn}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// LatestTransferTS returns the most recent transfer timestamp for a chain,
// or nil when the chain has no transfers.
func (s *Store) LatestTransferTS(ctx context.Context, chain string) (*time.Time, error) {
	query := `SELECT count(), max(ts) FROM whale_transfers WHERE chain = ?`

	var count uint64
	var ts time.Time
	if err := s.conn.QueryRow(ctx, query, chain).Scan(&count, &ts); err != nil {
		return nil, fmt.Errorf("latest transfer ts: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return &ts, nil
}

// InsertTransfer persists a transfer event, idempotent on the
// (chain, tx_hash, from_addr, to_addr) identity.
func (s *Store) InsertTransfer(ctx context.Context, e *domain.TransferEvent) (bool, error) {
	exists, err := s.transferExists(ctx, e)
	if err != nil {
		return false, fmt.Errorf("check transfer exists: %w", err)
	}
	if exists {
		return false, nil
	}

	provenance, raw, err := marshalMeta(e)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO whale_transfers (
			ts, tx_hash, from_addr, to_addr, chain, token,
			amount, usd_value, direction, venue_hint, is_cex, provenance, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
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
		string(provenance),
		string(raw),
	)
	if err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}
	return true, nil
}

// UpsertBalance appends one balance-delta row.
func (s *Store) UpsertBalance(ctx context.Context, b *domain.BalanceUpdate) error {
	query := `
		INSERT INTO whale_balances (
			ts, address, chain, token, amount, usd_value
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
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

// UpsertEntity writes an entity label row. The whale_entities table is a
// ReplacingMergeTree keyed by (chain, address) with updated_at as version,
// so the newest write wins after merges.
func (s *Store) UpsertEntity(ctx context.Context, ent *domain.Entity) error {
	meta, err := json.Marshal(ent.Meta)
	if err != nil {
		return fmt.Errorf("marshal entity meta: %w", err)
	}

	var label, entityType string
	if ent.Label != nil {
		label = *ent.Label
	}
	if ent.EntityType != nil {
		entityType = *ent.EntityType
	}

	query := `
		INSERT INTO whale_entities (address, chain, label, entity_type, is_cex, meta, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		ent.Address,
		ent.Chain,
		label,
		entityType,
		ent.IsCEX,
		string(meta),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// transferExists checks whether the identity tuple is already stored.
func (s *Store) transferExists(ctx context.Context, e *domain.TransferEvent) (bool, error) {
	query := `
		SELECT count(*) FROM whale_transfers
		WHERE chain = ? AND tx_hash = ? AND from_addr = ? AND to_addr = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, e.Chain, e.TxHash, e.FromAddr, e.ToAddr).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// marshalMeta encodes the provenance and raw payload columns as JSON strings.
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
