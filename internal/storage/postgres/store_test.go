package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale-ingest/internal/domain"
)

func testEvent(txHash string, ts time.Time) *domain.TransferEvent {
	return &domain.TransferEvent{
		Timestamp: ts,
		TxHash:    txHash,
		FromAddr:  "0x1111111111111111111111111111111111111111",
		ToAddr:    "0x2222222222222222222222222222222222222222",
		Chain:     "ethereum",
		Token:     "ETH",
		Amount:    42,
		USDValue:  84000,
		Provenance: &domain.Provenance{
			Provider:  "alchemy",
			Method:    "ws",
			RequestID: "req-1",
		},
		Raw: map[string]any{"blockNum": "0x10"},
	}
}

func TestStore_InsertTransfer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	ctx := context.Background()

	created, err := store.InsertTransfer(ctx, testEvent("0xtx1", time.Now().UTC()))
	require.NoError(t, err)
	assert.True(t, created, "first insert should create a row")

	// Same identity again: idempotent no-op.
	created, err = store.InsertTransfer(ctx, testEvent("0xtx1", time.Now().UTC()))
	require.NoError(t, err)
	assert.False(t, created, "duplicate identity must not create a row")
}

func TestStore_LatestTransferTS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	ctx := context.Background()

	ts, err := store.LatestTransferTS(ctx, "ethereum")
	require.NoError(t, err)
	assert.Nil(t, ts, "empty table returns nil")

	older := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)

	_, err = store.InsertTransfer(ctx, testEvent("0xnewer", newer))
	require.NoError(t, err)
	_, err = store.InsertTransfer(ctx, testEvent("0xolder", older))
	require.NoError(t, err)

	ts, err = store.LatestTransferTS(ctx, "ethereum")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(newer), "latest ts = %v, want %v", ts, newer)

	// Chains are isolated.
	ts, err = store.LatestTransferTS(ctx, "polygon")
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestStore_UpsertBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	ctx := context.Background()

	debit, credit := domain.DeriveBalanceUpdates(testEvent("0xtx1", time.Now().UTC()))
	require.NoError(t, store.UpsertBalance(ctx, debit))
	require.NoError(t, store.UpsertBalance(ctx, credit))

	var count int
	var sum, sumUSD float64
	err := pool.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(amount), 0), coalesce(sum(usd_value), 0) FROM whale_balances`).
		Scan(&count, &sum, &sumUSD)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, float64(0), sum, "balance deltas conserve")
	assert.Equal(t, float64(0), sumUSD, "usd deltas conserve")

	// The credit leg lands at the receiver with the unsigned magnitude.
	var amount float64
	err = pool.QueryRow(ctx,
		`SELECT amount FROM whale_balances WHERE address = $1`, credit.Address).
		Scan(&amount)
	require.NoError(t, err)
	assert.Equal(t, float64(42), amount)
}

func TestStore_UpsertEntity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	ctx := context.Background()

	ent := &domain.Entity{
		Address:    "0x3333333333333333333333333333333333333333",
		Chain:      "ethereum",
		Label:      ptr("binance hot wallet"),
		EntityType: ptr("exchange"),
		IsCEX:      true,
		Meta:       map[string]any{"source": "manual"},
	}
	require.NoError(t, store.UpsertEntity(ctx, ent))

	// Second upsert replaces the label in place.
	ent.Label = ptr("binance 14")
	require.NoError(t, store.UpsertEntity(ctx, ent))

	var count int
	var label string
	err := pool.QueryRow(ctx,
		`SELECT count(*) OVER (), label FROM whale_entities WHERE chain = $1 AND address = $2`,
		ent.Chain, ent.Address).Scan(&count, &label)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert must not duplicate rows")
	assert.Equal(t, "binance 14", label)
}
