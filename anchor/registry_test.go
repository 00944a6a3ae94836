package anchor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ammrelay/ledger"
)

func newTestRegistry(t *testing.T) (*Registry, *ledger.MemoryClient) {
	t.Helper()
	client := ledger.NewMemoryClient()
	cfg := RegistryConfig{
		Operator: client.Operator(),
		PoolCfg:  DefaultConfig(),
	}
	return NewRegistry(client, nil, cfg, nil), client
}

func TestRegistry_CreatePool_RejectsOutOfRangeFee(t *testing.T) {
	r, _ := newTestRegistry(t)
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})

	_, err := r.CreatePool(context.Background(), tokenA, tokenB, creator, 0, 9, 9)
	require.Error(t, err)
}

func TestRegistry_MultipleAnchorPoolsPerPair(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator1 := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})
	creator2 := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x08})

	p1, err := r.CreatePool(ctx, tokenA, tokenB, creator1, 30, 9, 9)
	require.NoError(t, err)
	p2, err := r.CreatePool(ctx, tokenA, tokenB, creator2, 100, 9, 9)
	require.NoError(t, err)

	pools := r.PoolsForPair(tokenA, tokenB)
	require.Len(t, pools, 2)

	byCreator1 := r.PoolsByCreator(creator1)
	require.Len(t, byCreator1, 1)
	require.True(t, byCreator1[0].Address().Equal(p1.Address()))

	got, ok := r.GetPool(p2.Address())
	require.True(t, ok)
	require.Equal(t, uint32(100), got.FeeBps())
}

func TestRegistry_BestQuote_PrefersLowerFeePool(t *testing.T) {
	r, client := newTestRegistry(t)
	ctx := context.Background()
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator1 := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})
	creator2 := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x08})

	cheap, err := r.CreatePool(ctx, tokenA, tokenB, creator1, 10, 9, 9)
	require.NoError(t, err)
	expensive, err := r.CreatePool(ctx, tokenA, tokenB, creator2, 500, 9, 9)
	require.NoError(t, err)

	client.Fund(cheap.Address(), tokenA, bigFromDec(t, "1000000000000"))
	client.Fund(cheap.Address(), tokenB, bigFromDec(t, "1000000000000"))
	client.Fund(expensive.Address(), tokenA, bigFromDec(t, "1000000000000"))
	client.Fund(expensive.Address(), tokenB, bigFromDec(t, "1000000000000"))

	best, _, ok := r.BestQuote(ctx, tokenA, tokenB, u256Dec(t, "1000000"))
	require.True(t, ok)
	require.True(t, best.Address().Equal(cheap.Address()))
}

func TestRegistry_BestQuote_SkipsPausedPools(t *testing.T) {
	r, client := newTestRegistry(t)
	ctx := context.Background()
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})

	p, err := r.CreatePool(ctx, tokenA, tokenB, creator, 30, 9, 9)
	require.NoError(t, err)
	client.Fund(p.Address(), tokenA, bigFromDec(t, "1000000000000"))
	client.Fund(p.Address(), tokenB, bigFromDec(t, "1000000000000"))
	require.NoError(t, p.UpdateStatus(ctx, creator, StatusPaused))

	_, _, ok := r.BestQuote(ctx, tokenA, tokenB, u256Dec(t, "1000000"))
	require.False(t, ok)
}
