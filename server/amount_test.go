package server

import (
	"testing"

	"ammrelay/ledger"
)

func TestParseAmountRejectsNegative(t *testing.T) {
	if _, err := parseAmount("-1"); err == nil {
		t.Fatalf("expected negative amount to be rejected")
	}
}

func TestParseAmountRejectsEmpty(t *testing.T) {
	if _, err := parseAmount(""); err == nil {
		t.Fatalf("expected empty amount to be rejected")
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	if _, err := parseAmount("not-a-number"); err == nil {
		t.Fatalf("expected non-numeric amount to be rejected")
	}
}

func TestParseAmountAcceptsValidDecimal(t *testing.T) {
	amt, err := parseAmount("1000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amt.Dec() != "1000000" {
		t.Fatalf("unexpected amount: %s", amt.Dec())
	}
}

func TestParseAccountRoundTrips(t *testing.T) {
	account := ledger.NewAccount(ledger.TokenPrefix, [20]byte{1, 2, 3})
	parsed, err := parseAccount(account.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.String() != account.String() {
		t.Fatalf("round trip mismatch: got %s, want %s", parsed.String(), account.String())
	}
}

func TestParseAccountRejectsEmpty(t *testing.T) {
	if _, err := parseAccount(""); err == nil {
		t.Fatalf("expected empty address to be rejected")
	}
}
