package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexWeiToEther(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want float64
	}{
		{"one ether", "0xde0b6b3a7640000", 1},
		{"zero", "0x0", 0},
		{"half ether", "0x6f05b59d3b20000", 0.5},
		{"garbage", "0xzz", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, hexWeiToEther(tt.hex), 1e-9)
		})
	}
}

func TestAlchemy_BackfillWindowFiltering(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)

	from := "0x1111111111111111111111111111111111111111"
	to := "0x2222222222222222222222222222222222222222"
	hash := func(b byte) string {
		h := make([]byte, 0, 66)
		h = append(h, '0', 'x')
		for i := 0; i < 64; i++ {
			h = append(h, b)
		}
		return string(h)
	}

	value := 1.5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"result": map[string]any{
				"transfers": []alchemyTransfer{
					{Hash: hash('a'), From: from, To: to, Value: &value, Asset: "ETH",
						Metadata: blockTS(start.Add(-time.Minute))}, // before window
					{Hash: hash('b'), From: from, To: to, Value: &value, Asset: "ETH",
						Metadata: blockTS(start.Add(10 * time.Minute))}, // inside
					{Hash: hash('c'), From: "0xbad", To: to, Value: &value, Asset: "ETH",
						Metadata: blockTS(start.Add(20 * time.Minute))}, // malformed sender
					{Hash: hash('d'), From: from, To: to, Value: &value, Asset: "ETH",
						Metadata: blockTS(end)}, // at horizon: excluded
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewAlchemy("test-key", nil)
	a.restURL = srv.URL + "/%s/%s"

	events, err := a.Backfill(context.Background(), "ethereum", start, end)
	require.NoError(t, err)

	require.Len(t, events, 1, "only well-formed events inside [start, end) survive")
	assert.Equal(t, hash('b'), events[0].TxHash)
	assert.Equal(t, 1.5, events[0].Amount)
	assert.Equal(t, "alchemy", events[0].Provenance.Provider)
	assert.Equal(t, "rest", events[0].Provenance.Method)
}

// blockTS builds the metadata struct literal for test transfers.
func blockTS(ts time.Time) struct {
	BlockTimestamp time.Time `json:"blockTimestamp"`
} {
	return struct {
		BlockTimestamp time.Time `json:"blockTimestamp"`
	}{BlockTimestamp: ts}
}

func TestAlchemy_UnsupportedChain(t *testing.T) {
	a := NewAlchemy("test-key", nil)

	_, err := a.Backfill(context.Background(), "dogecoin", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)

	_, err = a.StreamTransfers(context.Background(), "dogecoin")
	assert.Error(t, err)
}
