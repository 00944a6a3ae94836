// Package ammmath implements the constant-product swap and liquidity
// arithmetic shared by pool and anchor engines. Every function here is pure:
// no I/O, no locking, no global state.
package ammmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Fee constants for standard pools, expressed in basis points (1 bps = 0.01%).
const (
	TotalFeeBps    uint64 = 30
	ProtocolFeeBps uint64 = 5
	LPFeeBps       uint64 = TotalFeeBps - ProtocolFeeBps

	bpsDenominator uint64 = 10_000

	// MinLiquidityLock is burned permanently from the first LP mint to stop
	// the share/reserve-unit exploit on a pool that has been fully drained.
	MinLiquidityLock uint64 = 1_000
)

var (
	// ErrEmptyReserves is returned when a quote is requested against a pool
	// with a zero reserve on either side.
	ErrEmptyReserves = errors.New("ammmath: reserves empty")
	// ErrInsufficientShares indicates a mint or burn computed to zero shares.
	ErrInsufficientShares = errors.New("ammmath: insufficient shares")
)

// SwapResult captures the output of SwapOutput.
type SwapResult struct {
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
	PriceImpactRatio *big.Rat
}

// SwapOutput computes the constant-product swap output for amountIn against
// the supplied reserves, charging totalFeeBps on the input. Division floors
// toward zero throughout, matching spec §4.1.
func SwapOutput(amountIn, reserveIn, reserveOut *uint256.Int, totalFeeBps uint64) (*SwapResult, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrEmptyReserves
	}
	if amountIn == nil || amountIn.IsZero() {
		return &SwapResult{
			AmountOut:        uint256.NewInt(0),
			FeeAmount:        uint256.NewInt(0),
			PriceImpactRatio: new(big.Rat),
		}, nil
	}

	feeBps := uint256.NewInt(totalFeeBps)
	denom := uint256.NewInt(bpsDenominator)

	amountInAfterFee := new(uint256.Int).Sub(denom, feeBps)
	amountInAfterFee.Mul(amountInAfterFee, amountIn)
	amountInAfterFee.Div(amountInAfterFee, denom)

	feeAmount := new(uint256.Int).Mul(amountIn, feeBps)
	feeAmount.Div(feeAmount, denom)

	numerator := new(uint256.Int).Mul(reserveOut, amountInAfterFee)
	denominator := new(uint256.Int).Add(reserveIn, amountInAfterFee)
	amountOut := new(uint256.Int).Div(numerator, denominator)

	priceBefore := new(big.Rat).SetFrac(reserveOut.ToBig(), reserveIn.ToBig())
	reserveInAfter := new(big.Int).Add(reserveIn.ToBig(), amountIn.ToBig())
	reserveOutAfter := new(big.Int).Sub(reserveOut.ToBig(), amountOut.ToBig())
	var priceImpact *big.Rat
	if reserveOutAfter.Sign() <= 0 || priceBefore.Sign() == 0 {
		priceImpact = new(big.Rat)
	} else {
		priceAfter := new(big.Rat).SetFrac(reserveOutAfter, reserveInAfter)
		priceImpact = new(big.Rat).Sub(priceAfter, priceBefore)
		if priceImpact.Sign() < 0 {
			priceImpact.Neg(priceImpact)
		}
		priceImpact.Quo(priceImpact, priceBefore)
	}

	return &SwapResult{
		AmountOut:        amountOut,
		FeeAmount:        feeAmount,
		PriceImpactRatio: priceImpact,
	}, nil
}

// FeeSplit divides amountIn into the protocol-fee leg (routed to the
// treasury) and the pool-bound leg (amount_to_pool), per spec §4.1.
func FeeSplit(amountIn *uint256.Int, protocolFeeBps uint64) (protocolFee, amountToPool *uint256.Int) {
	if amountIn == nil {
		return uint256.NewInt(0), uint256.NewInt(0)
	}
	protocolFee = new(uint256.Int).Mul(amountIn, uint256.NewInt(protocolFeeBps))
	protocolFee.Div(protocolFee, uint256.NewInt(bpsDenominator))
	amountToPool = new(uint256.Int).Sub(amountIn, protocolFee)
	return protocolFee, amountToPool
}

// OptimalLiquidity computes the (a, b) deposit amounts that preserve the
// current reserve ratio, choosing whichever desired amount is the binding
// constraint. When both reserves are zero (first deposit) the desired
// amounts are returned unchanged. The complementary amount is rounded up so
// a deposit never undershoots the ratio in the user's favor at the pool's
// expense.
func OptimalLiquidity(aDesired, bDesired, reserveA, reserveB *uint256.Int) (a, b *uint256.Int) {
	if reserveA == nil || reserveB == nil || reserveA.IsZero() || reserveB.IsZero() {
		return new(uint256.Int).Set(aDesired), new(uint256.Int).Set(bDesired)
	}
	bNeeded := ceilDiv(new(uint256.Int).Mul(aDesired, reserveB), reserveA)
	if bNeeded.Cmp(bDesired) <= 0 {
		return new(uint256.Int).Set(aDesired), bNeeded
	}
	aNeeded := ceilDiv(new(uint256.Int).Mul(bDesired, reserveA), reserveB)
	return aNeeded, new(uint256.Int).Set(bDesired)
}

func ceilDiv(numerator, denominator *uint256.Int) *uint256.Int {
	if denominator.IsZero() {
		return uint256.NewInt(0)
	}
	quotient, remainder := new(uint256.Int), new(uint256.Int)
	quotient.DivMod(numerator, denominator, remainder)
	if !remainder.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return quotient
}

// LPToMint computes the LP shares minted for a deposit of (a, b). On the
// first deposit (totalShares == 0) it mints isqrt(a*b) minus the permanent
// minimum-liquidity lock (spec §4.1 B3); the lock is the caller's
// responsibility to burn to the zero address. Subsequent deposits mint the
// proportional minimum across both sides.
func LPToMint(a, b, reserveA, reserveB, totalShares *uint256.Int) (*uint256.Int, error) {
	if totalShares == nil || totalShares.IsZero() {
		product := new(big.Int).Mul(a.ToBig(), b.ToBig())
		root := ISqrt(product)
		lock := new(big.Int).SetUint64(MinLiquidityLock)
		if root.Cmp(lock) <= 0 {
			return nil, ErrInsufficientShares
		}
		minted := new(big.Int).Sub(root, lock)
		shares, overflow := uint256.FromBig(minted)
		if overflow {
			return nil, errors.New("ammmath: minted shares overflow 256 bits")
		}
		return shares, nil
	}
	shareA := new(uint256.Int).Mul(a, totalShares)
	shareA.Div(shareA, reserveA)
	shareB := new(uint256.Int).Mul(b, totalShares)
	shareB.Div(shareB, reserveB)
	shares := shareA
	if shareB.Cmp(shareA) < 0 {
		shares = shareB
	}
	if shares.IsZero() {
		return nil, ErrInsufficientShares
	}
	return shares, nil
}

// BurnToAmounts computes the (a, b) reserves owed for burning shares out of
// totalShares, flooring toward zero.
func BurnToAmounts(shares, totalShares, reserveA, reserveB *uint256.Int) (a, b *uint256.Int) {
	if totalShares == nil || totalShares.IsZero() {
		return uint256.NewInt(0), uint256.NewInt(0)
	}
	a = new(uint256.Int).Mul(shares, reserveA)
	a.Div(a, totalShares)
	b = new(uint256.Int).Mul(shares, reserveB)
	b.Div(b, totalShares)
	return a, b
}

// MinAmountOut applies a slippage tolerance (expressed as a percentage, e.g.
// 0.5 for 0.5%) to a quoted amount, flooring toward zero.
func MinAmountOut(amountOut *uint256.Int, slippagePercent float64) *uint256.Int {
	slippageBps := uint64(slippagePercent*100 + 0.5)
	if slippageBps > bpsDenominator {
		slippageBps = bpsDenominator
	}
	min := new(uint256.Int).Mul(amountOut, uint256.NewInt(bpsDenominator-slippageBps))
	min.Div(min, uint256.NewInt(bpsDenominator))
	return min
}

// ISqrt returns the integer square root of a non-negative big.Int using
// Newton's method, matching the rounding the retrieval pack's AMM examples
// rely on for first-deposit LP minting.
func ISqrt(value *big.Int) *big.Int {
	if value.Sign() <= 0 {
		return big.NewInt(0)
	}
	if value.Cmp(big.NewInt(4)) < 0 {
		return big.NewInt(1)
	}
	x := new(big.Int).Set(value)
	y := new(big.Int).Add(new(big.Int).Div(x, big.NewInt(2)), big.NewInt(1))
	for y.Cmp(x) < 0 {
		x.Set(y)
		y.Add(new(big.Int).Div(value, x), x)
		y.Div(y, big.NewInt(2))
	}
	return x
}
