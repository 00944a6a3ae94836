package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSavePool_UpsertByAddress(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)

	row := PoolRow{
		PoolAddress:    "lst1pool",
		TokenA:         "led1aaa",
		TokenB:         "led1bbb",
		LPTokenAddress: "led1lp",
		Creator:        "lst1creator",
		DecimalsA:      9,
		DecimalsB:      6,
	}
	require.NoError(t, repo.SavePool(ctx, row))

	row.DecimalsB = 18
	require.NoError(t, repo.SavePool(ctx, row))

	rows, err := repo.LoadPools(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 18, rows[0].DecimalsB)
}

func TestGetPoolByPair_OrdersTokens(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.SavePool(ctx, PoolRow{
		PoolAddress: "lst1pool", TokenA: "led1aaa", TokenB: "led1bbb", Creator: "lst1creator",
	}))

	row, err := repo.GetPoolByPair(ctx, "led1bbb", "led1aaa")
	require.NoError(t, err)
	require.Equal(t, "lst1pool", row.PoolAddress)

	_, err = repo.GetPoolByPair(ctx, "led1zzz", "led1yyy")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSnapshot_DedupsAtSecondResolution(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)

	ts := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, repo.SaveSnapshot(ctx, SnapshotRow{PoolAddress: "lst1pool", SnapshotTime: ts, ReserveA: "100", ReserveB: "200"}))
	require.NoError(t, repo.SaveSnapshot(ctx, SnapshotRow{PoolAddress: "lst1pool", SnapshotTime: ts, ReserveA: "999", ReserveB: "999"}))

	row, err := repo.GetSnapshotAt(ctx, "lst1pool", 0)
	require.NoError(t, err)
	require.Equal(t, "100", row.ReserveA)
}

func TestRecordSwapAndVolume24h(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.RecordSwap(ctx, SwapEventRow{
		PoolAddress: "lst1pool", TokenIn: "led1aaa", TokenOut: "led1bbb",
		AmountIn: "1000", AmountOut: "1900", FeeCollected: "3",
		User: "lst1user", TxHash: "deadbeef", Timestamp: time.Now().UTC(),
	}))

	rows, err := repo.Volume24hRows(ctx, "lst1pool")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1000", rows[0].AmountIn)
}

func TestAnchorPoolLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.SaveAnchorPool(ctx, AnchorPoolRow{
		PoolAddress: "lst1anchor", TokenA: "led1aaa", TokenB: "led1bbb",
		Creator: "lst1creator", FeeBps: 100, Status: "active",
	}))

	require.NoError(t, repo.UpdateAnchorPoolFee(ctx, "lst1anchor", 250))
	require.NoError(t, repo.UpdateAnchorPoolStatus(ctx, "lst1anchor", "paused"))

	row, err := repo.GetAnchorPoolByAddress(ctx, "lst1anchor")
	require.NoError(t, err)
	require.EqualValues(t, 250, row.FeeBps)
	require.Equal(t, "paused", row.Status)

	byCreator, err := repo.GetAnchorPoolsByCreator(ctx, "lst1creator")
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
}
