// Package analytics implements C7 of the specification: the TVL/volume/APY
// calculator layered over the repository's snapshot and swap-event history.
package analytics

import (
	"math/big"

	"ammrelay/ammmath"
	"ammrelay/repository"
)

// TokenPrice is the reference-unit price of one human-scaled unit of a
// token, keyed by the token's bech32 address in a PriceMap. The coordinator
// has no on-chain oracle of its own (spec §4.7 calls this "an injected
// price map"); callers supply it from whatever external price feed they
// operate.
type TokenPrice struct {
	PriceRefUnit *big.Rat
}

// PriceMap looks up a TokenPrice by token address.
type PriceMap map[string]TokenPrice

// Input is the pool state analytics.Calc needs, gathered by the caller from
// poolmanager/anchor and the repository so this package stays decoupled
// from the ledger.Client and pool.Pool types.
type Input struct {
	PoolAddress string
	TokenA      string
	TokenB      string
	DecimalsA   uint8
	DecimalsB   uint8
	ReserveA    *big.Int
	ReserveB    *big.Int
	// FeeBps is the total fee rate applied to swap volume when computing
	// fees_24h; zero defaults to ammmath.TotalFeeBps (standard pools).
	// Anchor pools pass their own per-pool fee_bps (spec §4.6).
	FeeBps uint32
}

// Snapshot is the result of Calc (spec §4.7 calc). A false *Known flag means
// the value is the spec's "unknown" sentinel, rendered by the server as
// null rather than a numeric zero.
type Snapshot struct {
	PoolAddress     string
	TokenA          string
	TokenB          string
	TVL             *big.Rat
	TVLKnown        bool
	Volume24h       *big.Rat
	Volume24hKnown  bool
	FeesCollected24 *big.Rat
	APY             *big.Rat
	APYKnown        bool
}

var hundred = big.NewRat(100, 1)

func humanScale(atomic *big.Int, decimals uint8) *big.Rat {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(atomic, scale)
}

// Calc computes TVL, 24h volume, and APY for one pool (spec §4.7). rows is
// the pool's swap_events (or anchor_swaps) history over the trailing 24
// hours, as returned by repository.Volume24hRows / AnchorVolume24hRows.
func Calc(in Input, rows []repository.SwapEventRow, prices PriceMap) Snapshot {
	snap := Snapshot{PoolAddress: in.PoolAddress, TokenA: in.TokenA, TokenB: in.TokenB}

	priceA, haveA := prices[in.TokenA]
	priceB, haveB := prices[in.TokenB]
	if !haveA || !haveB || priceA.PriceRefUnit == nil || priceB.PriceRefUnit == nil {
		return snap
	}

	humanA := humanScale(in.ReserveA, in.DecimalsA)
	humanB := humanScale(in.ReserveB, in.DecimalsB)
	tvl := new(big.Rat).Add(
		new(big.Rat).Mul(humanA, priceA.PriceRefUnit),
		new(big.Rat).Mul(humanB, priceB.PriceRefUnit),
	)
	snap.TVL = tvl
	snap.TVLKnown = true

	volume := new(big.Rat)
	for _, row := range rows {
		decimals := in.DecimalsA
		price := priceA.PriceRefUnit
		switch row.TokenIn {
		case in.TokenA:
			decimals, price = in.DecimalsA, priceA.PriceRefUnit
		case in.TokenB:
			decimals, price = in.DecimalsB, priceB.PriceRefUnit
		default:
			continue
		}
		amountIn, ok := new(big.Int).SetString(row.AmountIn, 10)
		if !ok {
			continue
		}
		volume.Add(volume, new(big.Rat).Mul(humanScale(amountIn, decimals), price))
	}
	snap.Volume24h = volume
	snap.Volume24hKnown = true

	feeBps := in.FeeBps
	if feeBps == 0 {
		feeBps = uint32(ammmath.TotalFeeBps)
	}
	fees := new(big.Rat).Mul(volume, big.NewRat(int64(feeBps), 10_000))
	snap.FeesCollected24 = fees

	if tvl.Sign() == 0 {
		return snap
	}
	apy := new(big.Rat).Mul(new(big.Rat).Quo(new(big.Rat).Mul(fees, big.NewRat(365, 1)), tvl), hundred)
	snap.APY = apy
	snap.APYKnown = true
	return snap
}
