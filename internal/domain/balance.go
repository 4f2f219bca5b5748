package domain

import (
	"math"
	"time"
)

// BalanceUpdate is a signed balance delta for one address/token, derived
// from an accepted transfer. It is a delta record, not an account balance.
type BalanceUpdate struct {
	Timestamp time.Time
	Address   string
	Chain     string
	Token     string
	Amount    float64
	USDValue  float64

	Provenance *Provenance
	Raw        map[string]any
}

// DeriveBalanceUpdates derives the two balance-delta legs for a transfer:
// a debit at the sender and a credit at the receiver, each carrying the
// same unsigned magnitude. Conservation holds by construction:
// credit.Amount == -debit.Amount and credit.USDValue == -debit.USDValue.
func DeriveBalanceUpdates(e *TransferEvent) (debit, credit *BalanceUpdate) {
	amount := math.Abs(e.Amount)
	usd := math.Abs(e.USDValue)

	debit = &BalanceUpdate{
		Timestamp:  e.Timestamp,
		Address:    e.FromAddr,
		Chain:      e.Chain,
		Token:      e.Token,
		Amount:     -amount,
		USDValue:   -usd,
		Provenance: e.Provenance,
		Raw:        e.Raw,
	}
	credit = &BalanceUpdate{
		Timestamp:  e.Timestamp,
		Address:    e.ToAddr,
		Chain:      e.Chain,
		Token:      e.Token,
		Amount:     amount,
		USDValue:   usd,
		Provenance: e.Provenance,
		Raw:        e.Raw,
	}
	return debit, credit
}
