package pool

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

// testPool wires a Pool against a fresh ledger.MemoryClient, mirroring the
// S1/S2/S3 scenarios of spec §8.
type testPool struct {
	pool     *Pool
	client   *ledger.MemoryClient
	tokenA   ledger.Account
	tokenB   ledger.Account
	user     ledger.Account
	treasury ledger.Account
	creator  ledger.Account
}

func newTestPool(t *testing.T) *testPool {
	t.Helper()
	client := ledger.NewMemoryClient()
	ctx := context.Background()

	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	user := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x05})
	treasury := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x06})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})

	poolAddress, err := client.CreateStorageAccount(ctx, "pool", "test pool", true, creator)
	require.NoError(t, err)
	lpToken, err := client.CreateLPToken(ctx, poolAddress, tokenA, tokenB)
	require.NoError(t, err)

	id := Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Treasury:       treasury,
		Operator:       client.Operator(),
		Creator:        creator,
		DecimalsA:      9,
		DecimalsB:      9,
	}
	cfg := DefaultConfig()
	cfg.SettlementPollInterval = 5 * time.Millisecond

	return &testPool{
		pool:     New(id, client, nil, nil, cfg),
		client:   client,
		tokenA:   tokenA,
		tokenB:   tokenB,
		user:     user,
		treasury: treasury,
		creator:  creator,
	}
}

func (tp *testPool) fundReserves(t *testing.T, a, b string) {
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

func TestQuote_InsufficientLiquidity(t *testing.T) {
	tp := newTestPool(t)
	_, err := tp.pool.Quote(context.Background(), tp.tokenA, u256Dec(t, "1000"), 0)
	require.Error(t, err)
	require.Equal(t, apierr.InsufficientLiquidity, apierr.KindOf(err))
}

// S1 from spec §8: a 10_000_000_000 swap against (1e12, 2e12) reserves.
func TestQuote_S1(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000000", "2000000000000")

	quote, err := tp.pool.Quote(context.Background(), tp.tokenA, u256Dec(t, "10000000000"), 0)
	require.NoError(t, err)
	require.Equal(t, "30000000", quote.FeeAmount.Dec())
	require.Equal(t, "19743160687", quote.AmountOut.Dec())
}

func TestQuote_RejectsForeignToken(t *testing.T) {
	tp := newTestPool(t)
	tp.fundReserves(t, "1000000000000", "2000000000000")
	foreign := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0x99})

	_, err := tp.pool.Quote(context.Background(), foreign, u256Dec(t, "1"), 0)
	require.Equal(t, apierr.InvalidInput, apierr.KindOf(err))
}
