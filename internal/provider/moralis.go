package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whale-ingest/internal/domain"
)

// Moralis implements Provider against the Moralis streams and deep-index
// REST APIs.
type Moralis struct {
	apiKey string
	http   *http.Client
	logger *log.Logger

	wsURL   string
	restURL string
}

// NewMoralis creates a Moralis provider.
func NewMoralis(apiKey string, logger *log.Logger) *Moralis {
	if logger == nil {
		logger = log.Default()
	}
	return &Moralis{
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		wsURL:   "wss://streams.moralis.io/v1/transfers",
		restURL: "https://deep-index.moralis.io/api/v2.2",
	}
}

// Compile-time interface check.
var _ Provider = (*Moralis)(nil)

// Name identifies the vendor.
func (m *Moralis) Name() string { return "moralis" }

// moralisTransfer is one transfer record, shared by stream frames and the
// REST transfer listing.
type moralisTransfer struct {
	TxHash      string    `json:"transaction_hash"`
	FromAddr    string    `json:"from_address"`
	ToAddr      string    `json:"to_address"`
	TokenSymbol string    `json:"token_symbol"`
	ValueDec    float64   `json:"value_decimal,string"`
	USDValue    float64   `json:"value_usd"`
	Timestamp   time.Time `json:"block_timestamp"`
}

func (m *Moralis) toEvent(t moralisTransfer, chain, method, requestID string) *domain.TransferEvent {
	token := t.TokenSymbol
	if token == "" {
		token = "ETH"
	}
	return &domain.TransferEvent{
		Timestamp: t.Timestamp,
		TxHash:    t.TxHash,
		FromAddr:  t.FromAddr,
		ToAddr:    t.ToAddr,
		Chain:     chain,
		Token:     token,
		Amount:    t.ValueDec,
		USDValue:  t.USDValue,
		Provenance: &domain.Provenance{
			Provider:  m.Name(),
			Method:    method,
			RequestID: requestID,
		},
	}
}

// StreamTransfers subscribes to the transfer stream for a chain. The
// returned channel closes when the connection drops or ctx is cancelled.
func (m *Moralis) StreamTransfers(ctx context.Context, chain string) (<-chan *domain.TransferEvent, error) {
	header := http.Header{}
	header.Set("X-API-Key", m.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, m.wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("moralis: websocket dial: %w", err)
	}

	sub := map[string]any{"type": "subscribe", "chain": chain, "topic": "erc20-transfers"}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("moralis: subscribe: %w", err)
	}

	events := make(chan *domain.TransferEvent, 100)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer conn.Close()

		for {
			var frame struct {
				Type     string          `json:"type"`
				Transfer moralisTransfer `json:"transfer"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				if ctx.Err() == nil {
					m.logger.Printf("[moralis] stream read on %s: %v", chain, err)
				}
				return
			}
			if frame.Type != "transfer" {
				continue
			}

			e := m.toEvent(frame.Transfer, chain, "ws", uuid.NewString())
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

// Backfill fetches historical transfers within [start, end) via the REST
// transfer listing, following pagination cursors.
func (m *Moralis) Backfill(ctx context.Context, chain string, start, end time.Time) ([]*domain.TransferEvent, error) {
	requestID := uuid.NewString()
	var all []*domain.TransferEvent
	cursor := ""

	for {
		q := url.Values{}
		q.Set("chain", chain)
		q.Set("from_date", start.UTC().Format(time.RFC3339))
		q.Set("to_date", end.UTC().Format(time.RFC3339))
		q.Set("limit", "100")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			m.restURL+"/erc20/transfers?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("moralis: build request: %w", err)
		}
		req.Header.Set("X-API-Key", m.apiKey)

		resp, err := m.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("moralis: backfill request: %w", err)
		}

		var out struct {
			Result []moralisTransfer `json:"result"`
			Cursor string            `json:"cursor"`
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("moralis: backfill status %d", resp.StatusCode)
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("moralis: decode backfill response: %w", err)
		}

		for _, t := range out.Result {
			if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
				continue
			}
			e := m.toEvent(t, chain, "rest", requestID)
			if !domain.ValidTxHash(chain, e.TxHash) ||
				!domain.ValidAddress(chain, e.FromAddr) ||
				!domain.ValidAddress(chain, e.ToAddr) {
				continue
			}
			all = append(all, e)
		}

		cursor = out.Cursor
		if cursor == "" {
			return all, nil
		}
	}
}
