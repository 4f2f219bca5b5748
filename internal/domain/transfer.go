package domain

import "time"

// Provenance records which upstream provider and method produced a record,
// plus a provider-local request identifier. Used for traceability only;
// it is never part of event identity.
type Provenance struct {
	Provider  string
	Method    string
	RequestID string
}

// TransferEvent is a normalized on-chain asset transfer. Events are
// immutable once constructed: they flow through the admission pipeline
// exactly once and become permanent store rows.
//
// Identity for deduplication is (chain, tx_hash, from, to), case-insensitive.
type TransferEvent struct {
	Timestamp time.Time
	TxHash    string
	FromAddr  string
	ToAddr    string
	Chain     string
	Token     string
	Amount    float64
	USDValue  float64

	// Optional hints from the provider.
	Direction string
	VenueHint string
	IsCEX     bool

	Provenance *Provenance
	Raw        map[string]any
}
