package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whale-ingest/internal/domain"
)

// alchemyNetworks maps chain identifiers to Alchemy network slugs.
var alchemyNetworks = map[string]string{
	"ethereum": "eth-mainnet",
	"polygon":  "polygon-mainnet",
	"arbitrum": "arb-mainnet",
	"optimism": "opt-mainnet",
	"base":     "base-mainnet",
}

// Alchemy implements Provider against the Alchemy WebSocket and Transfers
// APIs.
type Alchemy struct {
	apiKey string
	http   *http.Client
	logger *log.Logger

	// Endpoint templates, overridable in tests. %s is the network slug,
	// then the API key.
	wsURL   string
	restURL string
}

// NewAlchemy creates an Alchemy provider.
func NewAlchemy(apiKey string, logger *log.Logger) *Alchemy {
	if logger == nil {
		logger = log.Default()
	}
	return &Alchemy{
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		wsURL:   "wss://%s.g.alchemy.com/v2/%s",
		restURL: "https://%s.g.alchemy.com/v2/%s",
	}
}

// Compile-time interface check.
var _ Provider = (*Alchemy)(nil)

// Name identifies the vendor.
func (a *Alchemy) Name() string { return "alchemy" }

// alchemySubscription is the eth_subscription notification envelope.
type alchemySubscription struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Transaction struct {
				Hash  string `json:"hash"`
				From  string `json:"from"`
				To    string `json:"to"`
				Value string `json:"value"`
			} `json:"transaction"`
		} `json:"result"`
	} `json:"params"`
}

// StreamTransfers subscribes to mined transactions over WebSocket. The
// returned channel closes when the connection drops or ctx is cancelled.
func (a *Alchemy) StreamTransfers(ctx context.Context, chain string) (<-chan *domain.TransferEvent, error) {
	network, ok := alchemyNetworks[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("alchemy: unsupported chain %q", chain)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, fmt.Sprintf(a.wsURL, network, a.apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("alchemy: websocket dial: %w", err)
	}

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []any{"alchemy_minedTransactions", map[string]any{"hashesOnly": false}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("alchemy: subscribe: %w", err)
	}

	// First frame is the subscription ack.
	var ack struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("alchemy: subscribe ack: %w", err)
	}
	if ack.Error != nil {
		conn.Close()
		return nil, fmt.Errorf("alchemy: subscribe rejected: %s", ack.Error.Message)
	}

	events := make(chan *domain.TransferEvent, 100)

	// Unblock the read loop on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer conn.Close()

		for {
			var notif alchemySubscription
			if err := conn.ReadJSON(&notif); err != nil {
				if ctx.Err() == nil {
					a.logger.Printf("[alchemy] stream read on %s: %v", chain, err)
				}
				return
			}
			if notif.Method != "eth_subscription" {
				continue
			}

			tx := notif.Params.Result.Transaction
			e := &domain.TransferEvent{
				Timestamp: time.Now().UTC(),
				TxHash:    tx.Hash,
				FromAddr:  tx.From,
				ToAddr:    tx.To,
				Chain:     chain,
				Token:     "ETH",
				Amount:    hexWeiToEther(tx.Value),
				Direction: "wallet_transfer",
				Provenance: &domain.Provenance{
					Provider:  a.Name(),
					Method:    "ws",
					RequestID: uuid.NewString(),
				},
			}
			if !domain.ValidTxHash(chain, e.TxHash) ||
				!domain.ValidAddress(chain, e.FromAddr) ||
				!domain.ValidAddress(chain, e.ToAddr) {
				continue
			}

			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// alchemyTransfer is one entry from alchemy_getAssetTransfers.
type alchemyTransfer struct {
	Hash     string   `json:"hash"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Value    *float64 `json:"value"`
	Asset    string   `json:"asset"`
	Metadata struct {
		BlockTimestamp time.Time `json:"blockTimestamp"`
	} `json:"metadata"`
}

// Backfill fetches historical transfers within [start, end) via the
// Transfers API, following pagination cursors.
func (a *Alchemy) Backfill(ctx context.Context, chain string, start, end time.Time) ([]*domain.TransferEvent, error) {
	network, ok := alchemyNetworks[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("alchemy: unsupported chain %q", chain)
	}

	requestID := uuid.NewString()
	var all []*domain.TransferEvent
	pageKey := ""

	for {
		params := map[string]any{
			"category":     []string{"external", "erc20"},
			"withMetadata": true,
			"order":        "asc",
			"maxCount":     "0x3e8",
		}
		if pageKey != "" {
			params["pageKey"] = pageKey
		}

		body, err := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "alchemy_getAssetTransfers",
			"params":  []any{params},
		})
		if err != nil {
			return nil, fmt.Errorf("alchemy: marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf(a.restURL, network, a.apiKey), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("alchemy: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("alchemy: backfill request: %w", err)
		}

		var out struct {
			Result struct {
				Transfers []alchemyTransfer `json:"transfers"`
				PageKey   string            `json:"pageKey"`
			} `json:"result"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("alchemy: decode backfill response: %w", err)
		}
		if out.Error != nil {
			return nil, fmt.Errorf("alchemy: backfill rejected: %s", out.Error.Message)
		}

		done := false
		for _, t := range out.Result.Transfers {
			ts := t.Metadata.BlockTimestamp
			if ts.Before(start) {
				continue
			}
			if !ts.Before(end) {
				done = true
				break
			}

			var amount float64
			if t.Value != nil {
				amount = *t.Value
			}
			e := &domain.TransferEvent{
				Timestamp: ts,
				TxHash:    t.Hash,
				FromAddr:  t.From,
				ToAddr:    t.To,
				Chain:     chain,
				Token:     t.Asset,
				Amount:    amount,
				Provenance: &domain.Provenance{
					Provider:  a.Name(),
					Method:    "rest",
					RequestID: requestID,
				},
			}
			if !domain.ValidTxHash(chain, e.TxHash) ||
				!domain.ValidAddress(chain, e.FromAddr) ||
				!domain.ValidAddress(chain, e.ToAddr) {
				continue
			}
			all = append(all, e)
		}

		pageKey = out.Result.PageKey
		if done || pageKey == "" {
			return all, nil
		}
	}
}

// hexWeiToEther converts a 0x-hex wei quantity to ether as float64.
func hexWeiToEther(hex string) float64 {
	wei, ok := new(big.Int).SetString(strings.TrimPrefix(hex, "0x"), 16)
	if !ok {
		return 0
	}
	ether, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18),
	).Float64()
	return ether
}
