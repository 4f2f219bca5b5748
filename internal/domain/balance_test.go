package domain

import (
	"testing"
	"time"
)

func TestDeriveBalanceUpdates_Conservation(t *testing.T) {
	e := &TransferEvent{
		Timestamp: time.Unix(1700000000, 0),
		TxHash:    "0xabc",
		FromAddr:  "0xsender",
		ToAddr:    "0xreceiver",
		Chain:     "ethereum",
		Token:     "ETH",
		Amount:    12.5,
		USDValue:  25000,
	}

	debit, credit := DeriveBalanceUpdates(e)

	if debit.Amount != -12.5 {
		t.Errorf("debit amount = %v, want -12.5", debit.Amount)
	}
	if credit.Amount != 12.5 {
		t.Errorf("credit amount = %v, want 12.5", credit.Amount)
	}
	if debit.Amount+credit.Amount != 0 {
		t.Errorf("deltas do not conserve: %v + %v", debit.Amount, credit.Amount)
	}
	if debit.USDValue+credit.USDValue != 0 {
		t.Errorf("usd deltas do not conserve: %v + %v", debit.USDValue, credit.USDValue)
	}

	if debit.Address != "0xsender" {
		t.Errorf("debit address = %s, want sender", debit.Address)
	}
	if credit.Address != "0xreceiver" {
		t.Errorf("credit address = %s, want receiver", credit.Address)
	}
}

func TestDeriveBalanceUpdates_NegativeAmount(t *testing.T) {
	// A provider reporting a signed amount must not flip the legs: the
	// debit always lands at the sender.
	e := &TransferEvent{
		FromAddr: "0xsender",
		ToAddr:   "0xreceiver",
		Chain:    "ethereum",
		Token:    "ETH",
		Amount:   -3,
		USDValue: -6000,
	}

	debit, credit := DeriveBalanceUpdates(e)

	if debit.Amount != -3 {
		t.Errorf("debit amount = %v, want -3", debit.Amount)
	}
	if credit.Amount != 3 {
		t.Errorf("credit amount = %v, want 3", credit.Amount)
	}
	if credit.USDValue != 6000 {
		t.Errorf("credit usd = %v, want 6000", credit.USDValue)
	}
}

func TestDeriveBalanceUpdates_SelfTransfer(t *testing.T) {
	e := &TransferEvent{
		FromAddr: "0xsame",
		ToAddr:   "0xsame",
		Chain:    "ethereum",
		Token:    "ETH",
		Amount:   1,
	}

	debit, credit := DeriveBalanceUpdates(e)

	// Both legs still exist and net to zero at the address.
	if debit.Address != credit.Address {
		t.Fatalf("expected both legs at the same address")
	}
	if debit.Amount+credit.Amount != 0 {
		t.Errorf("self transfer should net to zero, got %v", debit.Amount+credit.Amount)
	}
}
