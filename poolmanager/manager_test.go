package poolmanager

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ammrelay/ledger"
	"ammrelay/pool"
)

func newTestManager(t *testing.T) (*Manager, *ledger.MemoryClient) {
	t.Helper()
	client := ledger.NewMemoryClient()
	cfg := Config{
		Treasury:   ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x06}),
		Operator:   client.Operator(),
		PoolConfig: pool.DefaultConfig(),
	}
	return New(client, nil, nil, cfg, nil), client
}

func TestCreatePool_RegistersAndPersistsNothingWithoutStores(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})

	p, err := m.CreatePool(ctx, tokenA, tokenB, creator)
	require.NoError(t, err)
	require.NotNil(t, p)

	got, ok := m.GetPool(tokenA, tokenB)
	require.True(t, ok)
	require.True(t, got.Address().Equal(p.Address()))

	byAddr, ok := m.GetPoolByAddress(p.Address())
	require.True(t, ok)
	require.True(t, byAddr.Address().Equal(p.Address()))

	require.True(t, m.HasPool(tokenA, tokenB))
	require.True(t, m.HasPool(tokenB, tokenA))

	route, ok := m.SwapRoute(tokenA, tokenB)
	require.True(t, ok)
	require.True(t, route.Address().Equal(p.Address()))

	require.Len(t, m.AllPools(), 1)
	_ = client
}

func TestCreatePool_DuplicatePairRejected(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})

	_, err := m.CreatePool(ctx, tokenA, tokenB, creator)
	require.NoError(t, err)

	_, err = m.CreatePool(ctx, tokenA, tokenB, creator)
	require.Error(t, err)
}

func TestUserPositions_FiltersDustAndFindsRealPosition(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	creator := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x07})
	user := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x08})

	p, err := m.CreatePool(ctx, tokenA, tokenB, creator)
	require.NoError(t, err)
	client.Fund(p.Address(), tokenA, big.NewInt(1_000_000_000))
	client.Fund(p.Address(), tokenB, big.NewInt(2_000_000_000))

	// A real position: 10% of a 2,000,000-share pool.
	require.NoError(t, client.MintSupply(ctx, p.LPTokenAddress(), ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x09}), big.NewInt(1_800_000)))
	require.NoError(t, client.MintSupply(ctx, p.LPTokenAddress(), user, big.NewInt(200_000)))

	// A dust position: 1 share of a 1,000,000,000,000-share pool redeems to
	// zero of either token and is far below the share-percent floor.
	tokenC := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xC3})
	tokenD := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xD4})
	dustPool, err := m.CreatePool(ctx, tokenC, tokenD, creator)
	require.NoError(t, err)
	client.Fund(dustPool.Address(), tokenC, big.NewInt(1_000_000_000))
	client.Fund(dustPool.Address(), tokenD, big.NewInt(1_000_000_000))
	require.NoError(t, client.MintSupply(ctx, dustPool.LPTokenAddress(), ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x09}), big.NewInt(999_999_999_999)))
	require.NoError(t, client.MintSupply(ctx, dustPool.LPTokenAddress(), user, big.NewInt(1)))

	positions, err := m.UserPositions(ctx, user)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.True(t, positions[0].PoolAddress.Equal(p.Address()))
	require.Equal(t, "100000000", positions[0].AmountA.Dec())
	require.Equal(t, "200000000", positions[0].AmountB.Dec())
}

func TestUserPositions_NoLPBalances_ReturnsEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	user := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x08})
	positions, err := m.UserPositions(context.Background(), user)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestDiscoverPoolsOnChain_RegistersCandidateWithTwoTokens(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	candidate := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x10})
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	tokenB := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xB2})
	client.Fund(candidate, tokenA, big.NewInt(1_000))
	client.Fund(candidate, tokenB, big.NewInt(2_000))

	m.cfg.CandidatePools = []ledger.Account{candidate}

	require.NoError(t, m.DiscoverPoolsOnChain(ctx))
	_, ok := m.GetPoolByAddress(candidate)
	require.True(t, ok)
}

func TestDiscoverPoolsOnChain_SkipsCandidateWithSingleToken(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	candidate := ledger.NewAccount(ledger.StoragePrefix, [20]byte{0x11})
	tokenA := ledger.NewAccount(ledger.TokenPrefix, [20]byte{0xA1})
	client.Fund(candidate, tokenA, big.NewInt(1_000))

	m.cfg.CandidatePools = []ledger.Account{candidate}

	require.NoError(t, m.DiscoverPoolsOnChain(ctx))
	_, ok := m.GetPoolByAddress(candidate)
	require.False(t, ok)
}
