package anchor

import (
	"context"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ammrelay/apierr"
)

// TestSwap_EndToEnd exercises the full TX1+TX2 path: the entire amountIn
// settles to the pool (no protocol-fee leg, spec §4.6), and the constant
// product floor does not decrease once the implicit fee accrues in-pool.
func TestSwap_EndToEnd(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))

	require.NoError(t, tp.pool.RefreshReserves(context.Background()))
	reserveABefore, reserveBBefore := tp.pool.Reserves()
	productBefore := new(big.Int).Mul(reserveABefore.ToBig(), reserveBBefore.ToBig())

	result, err := tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), u256Dec(t, "1"))
	require.NoError(t, err)
	require.False(t, result.Refunded)
	require.NotEmpty(t, result.TX1Hash)
	require.NotEmpty(t, result.TX2Hash)

	require.NoError(t, tp.pool.RefreshReserves(context.Background()))
	reserveAAfter, reserveBAfter := tp.pool.Reserves()
	productAfter := new(big.Int).Mul(reserveAAfter.ToBig(), reserveBAfter.ToBig())
	require.GreaterOrEqual(t, productAfter.Cmp(productBefore), 0)
}

func TestSwap_SlippageExceeded(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))

	quote, err := tp.pool.Quote(context.Background(), tp.tokenA, u256Dec(t, "10000000000"), 0)
	require.NoError(t, err)
	tooHigh := new(big.Int).Add(quote.AmountOut.ToBig(), big.NewInt(1))
	tooHighU256, overflow := uint256.FromBig(tooHigh)
	require.False(t, overflow)

	_, err = tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), tooHighU256)
	require.Equal(t, apierr.SlippageExceeded, apierr.KindOf(err))
}

// TestSwap_RefundOnTX2Rejection forces TX2 to fail and checks the user is
// refunded the full amountIn, since anchor has no separate protocol-fee leg
// that already settled elsewhere.
func TestSwap_RefundOnTX2Rejection(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))

	tp.client.Fund(tp.pool.Address(), tp.tokenB, bigFromDec(t, "-2000000000000"))

	result, err := tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), u256Dec(t, "1"))
	require.Error(t, err)
	require.True(t, result.Refunded)

	balances, err := tp.client.BalancesOf(context.Background(), tp.user)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.True(t, balances[0].Token.Equal(tp.tokenA))
	require.Equal(t, "10000000000", balances[0].Amount.String())
}

func TestSwap_RejectsOnPausedPool(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	tp.client.Fund(tp.user, tp.tokenA, bigFromDec(t, "10000000000"))
	require.NoError(t, tp.pool.UpdateStatus(context.Background(), tp.creator, StatusPaused))

	_, err := tp.pool.Swap(context.Background(), tp.user, tp.tokenA, u256Dec(t, "10000000000"), u256Dec(t, "1"))
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
}
