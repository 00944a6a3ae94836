package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ammrelay/apierr"
)

// TestAddLiquidity_FirstDeposit_MintsSharesMinusLock covers S2 from spec §8:
// a first deposit of (1e6, 4e6) mints isqrt(4e12)=2,000,000 shares, locks
// MinLiquidityLock of them permanently, and credits the user the remainder.
func TestAddLiquidity_FirstDeposit_MintsSharesMinusLock(t *testing.T) {
	tp := newTestPool(t)
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "1000000"))
	tp.client.Fund(tp.user, tp.tokenB, bigFromDec(t, "4000000"))

	result, err := tp.pool.AddLiquidity(context.Background(), tp.user,
		u256Dec(t, "1000000"), u256Dec(t, "4000000"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.NoError(t, err)
	require.Equal(t, "1000000", result.AmountA.Dec())
	require.Equal(t, "4000000", result.AmountB.Dec())

	expectedUserShares := "1999000" // isqrt(4e12) - MinLiquidityLock
	require.Equal(t, expectedUserShares, result.Shares.Dec())

	total, err := tp.pool.totalShares(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2000000", total.Dec())

	history := tp.pool.RecentHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, "add_liquidity", history[0].Kind)
}

// TestAddLiquidity_SubsequentDeposit_MintsProportionalShares mirrors
// TestLPToMint_SubsequentDeposit in the ammmath package end-to-end through
// the pool: depositing at half the existing reserves mints half the
// existing total supply.
func TestAddLiquidity_SubsequentDeposit_MintsProportionalShares(t *testing.T) {
	tp := newTestPool(t)
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "1000000"))
	tp.client.Fund(tp.user, tp.tokenB, bigFromDec(t, "4000000"))
	_, err := tp.pool.AddLiquidity(context.Background(), tp.user,
		u256Dec(t, "1000000"), u256Dec(t, "4000000"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.NoError(t, err)

	secondDepositor := tp.user
	tp.client.Fund(secondDepositor, tp.tokenA, bigFromDec(t, "500000"))
	tp.client.Fund(secondDepositor, tp.tokenB, bigFromDec(t, "4000000"))

	result, err := tp.pool.AddLiquidity(context.Background(), secondDepositor,
		u256Dec(t, "500000"), u256Dec(t, "4000000"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.NoError(t, err)
	require.Equal(t, "500000", result.AmountA.Dec())
	require.Equal(t, "2000000", result.AmountB.Dec())
	require.Equal(t, "1000000", result.Shares.Dec())
}

// TestRemoveLiquidity_FullBurn_HalfShare covers S3 from spec §8: a holder of
// half the outstanding shares who burns all of them receives exactly half of
// each reserve.
func TestRemoveLiquidity_FullBurn_HalfShare(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000", "2000000000")
	require.NoError(t, tp.client.MintSupply(context.Background(), tp.pool.LPTokenAddress(), lpBurnSink, bigFromDec(t, "500000")))
	require.NoError(t, tp.client.MintSupply(context.Background(), tp.pool.LPTokenAddress(), tp.user, bigFromDec(t, "500000")))

	result, err := tp.pool.RemoveLiquidity(context.Background(), tp.user,
		u256Dec(t, "500000"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.NoError(t, err)
	require.Equal(t, "500000000", result.AmountA.Dec())
	require.Equal(t, "1000000000", result.AmountB.Dec())

	balances, err := tp.client.BalancesOf(context.Background(), tp.user)
	require.NoError(t, err)
	var gotA, gotB bool
	for _, bal := range balances {
		switch {
		case bal.Token.Equal(tp.tokenA):
			require.Equal(t, "500000000", bal.Amount.String())
			gotA = true
		case bal.Token.Equal(tp.tokenB):
			require.Equal(t, "1000000000", bal.Amount.String())
			gotB = true
		}
	}
	require.True(t, gotA)
	require.True(t, gotB)

	history := tp.pool.RecentHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, "remove_liquidity", history[0].Kind)
}

func TestRemoveLiquidity_InsufficientShares_WhenNoLPTokenMinted(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000", "2000000000")

	_, err := tp.pool.CompleteRemoveLiquidity(context.Background(), tp.user,
		u256Dec(t, "1"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.Equal(t, apierr.InsufficientShares, apierr.KindOf(err))
}
