package memory

import (
	"context"
	"sync"
	"time"

	"whale-ingest/internal/domain"
	"whale-ingest/internal/idhash"
	"whale-ingest/internal/storage"
)

// entityKey is the composite key for entity upserts.
type entityKey struct {
	Chain   string
	Address string
}

// Store is an in-memory implementation of storage.Store for tests and
// local mock runs.
type Store struct {
	mu        sync.RWMutex
	transfers map[string]*domain.TransferEvent
	balances  []*domain.BalanceUpdate
	entities  map[entityKey]*domain.Entity
	latestTS  map[string]time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		transfers: make(map[string]*domain.TransferEvent),
		entities:  make(map[entityKey]*domain.Entity),
		latestTS:  make(map[string]time.Time),
	}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// LatestTransferTS returns the most recent transfer timestamp for a chain,
// or nil when no transfers exist.
func (s *Store) LatestTransferTS(_ context.Context, chain string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.latestTS[chain]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

// UpsertEntity inserts or replaces a labeled address.
func (s *Store) UpsertEntity(_ context.Context, e *domain.Entity) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *e
	s.entities[entityKey{Chain: e.Chain, Address: e.Address}] = &copy
	return nil
}

// InsertTransfer adds a transfer unless its identity already exists.
func (s *Store) InsertTransfer(_ context.Context, e *domain.TransferEvent) (bool, error) {
	if e == nil {
		return false, storage.ErrInvalidInput
	}

	key := idhash.ComputeEventID(e.Chain, e.TxHash, e.FromAddr, e.ToAddr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transfers[key]; exists {
		return false, nil
	}

	// Store a copy
	copy := *e
	s.transfers[key] = &copy

	if prev, ok := s.latestTS[e.Chain]; !ok || e.Timestamp.After(prev) {
		s.latestTS[e.Chain] = e.Timestamp
	}
	return true, nil
}

// UpsertBalance appends a balance-delta row.
func (s *Store) UpsertBalance(_ context.Context, b *domain.BalanceUpdate) error {
	if b == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *b
	s.balances = append(s.balances, &copy)
	return nil
}

// Transfers returns copies of all stored transfers.
func (s *Store) Transfers() []*domain.TransferEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TransferEvent, 0, len(s.transfers))
	for _, e := range s.transfers {
		copy := *e
		result = append(result, &copy)
	}
	return result
}

// Balances returns copies of all stored balance deltas in insertion order.
func (s *Store) Balances() []*domain.BalanceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BalanceUpdate, 0, len(s.balances))
	for _, b := range s.balances {
		copy := *b
		result = append(result, &copy)
	}
	return result
}

// Entity returns the stored entity for (chain, address), or nil.
func (s *Store) Entity(chain, address string) *domain.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[entityKey{Chain: chain, Address: address}]
	if !ok {
		return nil
	}
	copy := *e
	return &copy
}
