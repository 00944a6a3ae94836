package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ammrelay/apierr"
)

// TestSwap_SeedWallet_EndToEnd exercises the full TX1+TX2 path for the S1
// scenario of spec §8 and checks invariant P1: the constant-product floor
// never decreases after fees are added to the pool's own reserve.
func TestSwap_SeedWallet_EndToEnd(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))

	require.NoError(t, tp.pool.RefreshReserves(context.Background()))
	reserveABefore, reserveBBefore := tp.pool.Reserves()
	productBefore := bigFromDec(t, "0").Mul(reserveABefore.ToBig(), reserveBBefore.ToBig())

	result, err := tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), u256Dec(t, "1"))
	require.NoError(t, err)
	require.Equal(t, "19743160687", result.AmountOut.Dec())
	require.Equal(t, "30000000", result.FeeAmount.Dec())
	require.False(t, result.Refunded)
	require.NotEmpty(t, result.TX1Hash)
	require.NotEmpty(t, result.TX2Hash)

	require.NoError(t, tp.pool.RefreshReserves(context.Background()))
	reserveAAfter, reserveBAfter := tp.pool.Reserves()
	productAfter := bigFromDec(t, "0").Mul(reserveAAfter.ToBig(), reserveBAfter.ToBig())
	require.GreaterOrEqual(t, productAfter.Cmp(productBefore), 0)

	history := tp.pool.RecentHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, "swap", history[0].Kind)
}

func TestSwap_SlippageExceeded(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))

	_, err := tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), u256Dec(t, "19743160688"))
	require.Equal(t, apierr.SlippageExceeded, apierr.KindOf(err))
}

// TestSwap_RefundOnTX2Rejection forces TX2 to fail and checks the user is
// refunded the leg they already paid into the pool via TX1.
func TestSwap_RefundOnTX2Rejection(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))

	// Drain tokenB back out of the pool so TX2's payout cannot be funded,
	// forcing Publish to reject the operator's send.
	tp.client.Fund(tp.pool.Address(), tp.tokenB, bigFromDec(t, "-2000000000000"))

	result, err := tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), u256Dec(t, "1"))
	require.Error(t, err)
	require.True(t, result.Refunded)

	balances, err := tp.client.BalancesOf(context.Background(), tp.user)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.True(t, balances[0].Token.Equal(tp.tokenA))
	// The protocol-fee leg (5 bps of amountIn) already settled to the
	// treasury in TX1 and is not refunded; only amount_to_pool comes back.
	require.Equal(t, "9995000000", balances[0].Amount.String())

	history := tp.pool.RecentHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, "refund", history[0].Kind)
}
