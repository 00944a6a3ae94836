package anchor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ammrelay/apierr"
	"ammrelay/ledger"
)

type testAnchorPool struct {
	pool    *Pool
	client  *ledger.MemoryClient
	tokenA  ledger.Account
	tokenB  ledger.Account
	user    ledger.Account
	creator ledger.Account
}

func newTestAnchorPool(t *testing.T, feeBps uint32) *testAnchorPool {
	t.Helper()
	client := ledger.NewMemoryClient()
	ctx := context.Background()

	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	user := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x05})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})

	poolAddress, err := client.CreateStorageAccount(ctx, "anchor-pool", "test anchor pool", true, creator)
	require.NoError(t, err)
	lpToken, err := client.CreateLPToken(ctx, poolAddress, tokenA, tokenB)
	require.NoError(t, err)

	id := Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Operator:       client.Operator(),
		Creator:        creator,
		DecimalsA:      9,
		DecimalsB:      9,
		FeeBps:         feeBps,
		Status:         StatusActive,
	}
	cfg := DefaultConfig()
	cfg.SettlementPollInterval = 5 * time.Millisecond

	return &testAnchorPool{
		pool:    New(id, client, nil, nil, cfg),
		client:  client,
		tokenA:  tokenA,
		tokenB:  tokenB,
		user:    user,
		creator: creator,
	}
}

func (tp *testAnchorPool) fundReserves(t *testing.T, a, b string) {
	t.Helper()
	tp.client.Fund(tp.pool.Address(), tp.tokenA, bigFromDec(t, a))
	tp.client.Fund(tp.pool.Address(), tp.tokenB, bigFromDec(t, b))
}

func bigFromDec(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid decimal literal %q", s)
	return v
}

func u256Dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, overflow := uint256.FromBig(bigFromDec(t, s))
	require.False(t, overflow)
	return v
}

func TestQuote_UsesPoolOwnFeeBps(t *testing.T) {
	tp := newTestAnchorPool(t, 100)
	tp.fundReserves(t, "1000000000000", "2000000000000")

	quote, err := tp.pool.Quote(context.Background(), tp.tokenA, u256Dec(t, "10000000000"), 0)
	require.NoError(t, err)
	require.Equal(t, "100000000", quote.FeeAmount.Dec())
}

func TestQuote_RejectsWhenNotActive(t *testing.T) {
	tp := newTestAnchorPool(t, 30)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	require.NoError(t, tp.pool.UpdateStatus(context.Background(), tp.creator, StatusPaused))

	_, err := tp.pool.Quote(context.Background(), tp.tokenA, u256Dec(t, "1000"), 0)
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
}

func TestUpdateFee_RejectsNonCreator(t *testing.T) {
	tp := newTestAnchorPool(t, 30)
	stranger := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x99})
	err := tp.pool.UpdateFee(context.Background(), stranger, 50)
	require.Equal(t, apierr.Unauthorized, apierr.KindOf(err))
}

func TestUpdateFee_RejectsOutOfRange(t *testing.T) {
	tp := newTestAnchorPool(t, 30)
	err := tp.pool.UpdateFee(context.Background(), tp.creator, MaxFeeBps+1)
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
}

func TestUpdateFee_AppliesForCreator(t *testing.T) {
	tp := newTestAnchorPool(t, 30)
	require.NoError(t, tp.pool.UpdateFee(context.Background(), tp.creator, 75))
	require.Equal(t, uint32(75), tp.pool.FeeBps())
}

func TestUpdateStatus_ClosedIsTerminal(t *testing.T) {
	tp := newTestAnchorPool(t, 30)
	require.NoError(t, tp.pool.UpdateStatus(context.Background(), tp.creator, StatusClosed))
	err := tp.pool.UpdateStatus(context.Background(), tp.creator, StatusActive)
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
}

func TestUpdateStatus_PausedIsReversible(t *testing.T) {
	tp := newTestAnchorPool(t, 30)
	require.NoError(t, tp.pool.UpdateStatus(context.Background(), tp.creator, StatusPaused))
	require.NoError(t, tp.pool.UpdateStatus(context.Background(), tp.creator, StatusActive))
	require.Equal(t, StatusActive, tp.pool.Status())
}
