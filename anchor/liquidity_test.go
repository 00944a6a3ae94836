package anchor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ammrelay/apierr"
)

// TestAddLiquidity_FirstDeposit_MintsSharesMinusLock mirrors
// pool.TestAddLiquidity_FirstDeposit_MintsSharesMinusLock: fee_bps plays no
// part in liquidity mechanics, only in swap pricing.
func TestAddLiquidity_FirstDeposit_MintsSharesMinusLock(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "1000000"))
	tp.client.Fund(tp.user, tp.tokenB, bigFromDec(t, "4000000"))

	result, err := tp.pool.AddLiquidity(context.Background(), tp.user,
		u256Dec(t, "1000000"), u256Dec(t, "4000000"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.NoError(t, err)
	require.Equal(t, "1000000", result.AmountA.Dec())
	require.Equal(t, "4000000", result.AmountB.Dec())
	require.Equal(t, "1999000", result.Shares.Dec()) // isqrt(4e12) - MinLiquidityLock

	total, err := tp.pool.totalShares(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2000000", total.Dec())
}

func TestAddLiquidity_SubsequentDeposit_MintsProportionalShares(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
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

func TestRemoveLiquidity_FullBurn_HalfShare(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
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
}

func TestRemoveLiquidity_InsufficientShares_WhenNoLPTokenMinted(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.fundReserves(t, "1000000000", "2000000000")

	_, err := tp.pool.CompleteRemoveLiquidity(context.Background(), tp.user,
		u256Dec(t, "1"), u256Dec(t, "0"), u256Dec(t, "0"))
	require.Equal(t, apierr.InsufficientShares, apierr.KindOf(err))
}
