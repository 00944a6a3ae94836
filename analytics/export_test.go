package analytics

import (
	"math/big"
	"testing"
	"time"
)

func TestSnapshotToRowKnownValues(t *testing.T) {
	snap := Snapshot{
		PoolAddress:    "pool1",
		TokenA:         tokenA,
		TokenB:         tokenB,
		TVL:            big.NewRat(5, 1),
		TVLKnown:       true,
		Volume24h:      big.NewRat(1, 1),
		Volume24hKnown: true,
		APY:            big.NewRat(12, 1),
		APYKnown:       true,
	}
	generatedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	row := snap.ToRow(generatedAt)

	if row.PoolAddress != "pool1" || row.TokenA != tokenA || row.TokenB != tokenB {
		t.Fatalf("unexpected identity fields: %+v", row)
	}
	if !row.TVLKnown || row.TVL != 5 {
		t.Fatalf("unexpected TVL: %+v", row)
	}
	if !row.Volume24hOK || row.Volume24h != 1 {
		t.Fatalf("unexpected volume: %+v", row)
	}
	if !row.APYKnown || row.APYPercent != 12 {
		t.Fatalf("unexpected APY: %+v", row)
	}
	if row.GeneratedUTC != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp: %q", row.GeneratedUTC)
	}
}

func TestSnapshotToRowUnknownValuesStayZero(t *testing.T) {
	snap := Snapshot{PoolAddress: "pool1"}
	row := snap.ToRow(time.Now().UTC())

	if row.TVLKnown || row.TVL != 0 {
		t.Fatalf("expected zero TVL when unknown, got %+v", row)
	}
	if row.Volume24hOK || row.Volume24h != 0 {
		t.Fatalf("expected zero volume when unknown, got %+v", row)
	}
	if row.APYKnown || row.APYPercent != 0 {
		t.Fatalf("expected zero APY when unknown, got %+v", row)
	}
}
