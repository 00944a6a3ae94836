package analytics

import (
	"math/big"
	"testing"

	"ammrelay/repository"
)

const (
	tokenA = "led1tokena00000000000000000000000000"
	tokenB = "led1tokenb00000000000000000000000000"
)

func TestCalcReturnsUnknownWithoutPrices(t *testing.T) {
	snap := Calc(Input{
		PoolAddress: "pool1",
		TokenA:      tokenA,
		TokenB:      tokenB,
		DecimalsA:   6,
		DecimalsB:   18,
		ReserveA:    big.NewInt(1_000_000),
		ReserveB:    big.NewInt(1_000_000_000_000_000_000),
	}, nil, nil)

	if snap.TVLKnown || snap.Volume24hKnown || snap.APYKnown {
		t.Fatalf("expected every metric to be unknown without a price feed")
	}
	if snap.TokenA != tokenA || snap.TokenB != tokenB {
		t.Fatalf("expected Snapshot to carry the input token addresses through")
	}
}

func TestCalcComputesTVLAndVolume(t *testing.T) {
	prices := PriceMap{
		tokenA: {PriceRefUnit: big.NewRat(1, 1)},
		tokenB: {PriceRefUnit: big.NewRat(2, 1)},
	}
	rows := []repository.SwapEventRow{
		{TokenIn: tokenA, AmountIn: "1000000"},
	}

	snap := Calc(Input{
		PoolAddress: "pool1",
		TokenA:      tokenA,
		TokenB:      tokenB,
		DecimalsA:   6,
		DecimalsB:   6,
		ReserveA:    big.NewInt(1_000_000),
		ReserveB:    big.NewInt(2_000_000),
		FeeBps:      30,
	}, rows, prices)

	if !snap.TVLKnown {
		t.Fatalf("expected TVL to be known")
	}
	wantTVL := big.NewRat(5, 1) // 1 unit of A @ $1 + 2 units of B @ $2
	if snap.TVL.Cmp(wantTVL) != 0 {
		t.Fatalf("unexpected TVL: %s, want %s", snap.TVL.RatString(), wantTVL.RatString())
	}
	if !snap.Volume24hKnown {
		t.Fatalf("expected volume to be known")
	}
	wantVolume := big.NewRat(1, 1)
	if snap.Volume24h.Cmp(wantVolume) != 0 {
		t.Fatalf("unexpected volume: %s, want %s", snap.Volume24h.RatString(), wantVolume.RatString())
	}
	if !snap.APYKnown {
		t.Fatalf("expected APY to be known once TVL is nonzero")
	}
}

func TestCalcSkipsSwapEventsForUnrelatedTokens(t *testing.T) {
	prices := PriceMap{
		tokenA: {PriceRefUnit: big.NewRat(1, 1)},
		tokenB: {PriceRefUnit: big.NewRat(1, 1)},
	}
	rows := []repository.SwapEventRow{
		{TokenIn: "led1someothertoken0000000000000000000", AmountIn: "1000000"},
	}

	snap := Calc(Input{
		PoolAddress: "pool1",
		TokenA:      tokenA,
		TokenB:      tokenB,
		DecimalsA:   6,
		DecimalsB:   6,
		ReserveA:    big.NewInt(1_000_000),
		ReserveB:    big.NewInt(1_000_000),
	}, rows, prices)

	if snap.Volume24h.Sign() != 0 {
		t.Fatalf("expected unrelated swap events to contribute zero volume, got %s", snap.Volume24h.RatString())
	}
}
