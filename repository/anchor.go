package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AnchorPoolRow mirrors PoolRow with the two anchor-specific fields (spec §4.6).
type AnchorPoolRow struct {
	PoolAddress    string
	TokenA         string
	TokenB         string
	LPTokenAddress string
	Creator        string
	DecimalsA      uint8
	DecimalsB      uint8
	FeeBps         uint32
	Status         string
}

// SaveAnchorPool upserts an anchor pool row keyed by pool_address.
func (r *Repository) SaveAnchorPool(ctx context.Context, row AnchorPoolRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anchor_pools(pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b, fee_bps, status)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_address) DO UPDATE SET
			token_a = excluded.token_a,
			token_b = excluded.token_b,
			lp_token_address = excluded.lp_token_address,
			creator = excluded.creator,
			decimals_a = excluded.decimals_a,
			decimals_b = excluded.decimals_b,
			fee_bps = excluded.fee_bps,
			status = excluded.status
	`, row.PoolAddress, row.TokenA, row.TokenB, row.LPTokenAddress, row.Creator, row.DecimalsA, row.DecimalsB, row.FeeBps, row.Status)
	if err != nil {
		return fmt.Errorf("repository: save anchor pool: %w", err)
	}
	return nil
}

// LoadAnchorPools returns every persisted anchor pool row.
func (r *Repository) LoadAnchorPools(ctx context.Context) ([]AnchorPoolRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b, fee_bps, status
		FROM anchor_pools
		ORDER BY pool_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: load anchor pools: %w", err)
	}
	defer rows.Close()
	var out []AnchorPoolRow
	for rows.Next() {
		var row AnchorPoolRow
		if err := rows.Scan(&row.PoolAddress, &row.TokenA, &row.TokenB, &row.LPTokenAddress, &row.Creator, &row.DecimalsA, &row.DecimalsB, &row.FeeBps, &row.Status); err != nil {
			return nil, fmt.Errorf("repository: scan anchor pool: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetAnchorPoolsByCreator returns every anchor pool created by creator.
func (r *Repository) GetAnchorPoolsByCreator(ctx context.Context, creator string) ([]AnchorPoolRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b, fee_bps, status
		FROM anchor_pools
		WHERE creator = ?
		ORDER BY pool_address ASC
	`, creator)
	if err != nil {
		return nil, fmt.Errorf("repository: get anchor pools by creator: %w", err)
	}
	defer rows.Close()
	var out []AnchorPoolRow
	for rows.Next() {
		var row AnchorPoolRow
		if err := rows.Scan(&row.PoolAddress, &row.TokenA, &row.TokenB, &row.LPTokenAddress, &row.Creator, &row.DecimalsA, &row.DecimalsB, &row.FeeBps, &row.Status); err != nil {
			return nil, fmt.Errorf("repository: scan anchor pool: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetAnchorPoolByAddress returns a single anchor pool row.
func (r *Repository) GetAnchorPoolByAddress(ctx context.Context, poolAddress string) (AnchorPoolRow, error) {
	var row AnchorPoolRow
	err := r.db.QueryRowContext(ctx, `
		SELECT pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b, fee_bps, status
		FROM anchor_pools
		WHERE pool_address = ?
	`, poolAddress).Scan(&row.PoolAddress, &row.TokenA, &row.TokenB, &row.LPTokenAddress, &row.Creator, &row.DecimalsA, &row.DecimalsB, &row.FeeBps, &row.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return AnchorPoolRow{}, ErrNotFound
	}
	if err != nil {
		return AnchorPoolRow{}, fmt.Errorf("repository: get anchor pool: %w", err)
	}
	return row, nil
}

// UpdateAnchorPoolFee updates only the fee_bps column.
func (r *Repository) UpdateAnchorPoolFee(ctx context.Context, poolAddress string, feeBps uint32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE anchor_pools SET fee_bps = ? WHERE pool_address = ?`, feeBps, poolAddress)
	if err != nil {
		return fmt.Errorf("repository: update anchor pool fee: %w", err)
	}
	return nil
}

// UpdateAnchorPoolStatus updates only the status column.
func (r *Repository) UpdateAnchorPoolStatus(ctx context.Context, poolAddress string, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE anchor_pools SET status = ? WHERE pool_address = ?`, status, poolAddress)
	if err != nil {
		return fmt.Errorf("repository: update anchor pool status: %w", err)
	}
	return nil
}

// SaveAnchorSnapshot mirrors SaveSnapshot for the anchor_pool_snapshots table.
func (r *Repository) SaveAnchorSnapshot(ctx context.Context, row SnapshotRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO anchor_pool_snapshots(pool_address, snapshot_time, reserve_a, reserve_b)
		VALUES(?, ?, ?, ?)
	`, row.PoolAddress, row.SnapshotTime.UTC().Unix(), row.ReserveA, row.ReserveB)
	if err != nil {
		return fmt.Errorf("repository: save anchor snapshot: %w", err)
	}
	return nil
}

// RecordAnchorSwap mirrors RecordSwap for the anchor_swaps table.
func (r *Repository) RecordAnchorSwap(ctx context.Context, row SwapEventRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anchor_swaps(pool_address, token_in, token_out, amount_in, amount_out, fee_collected, user_address, tx_hash, ts)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.PoolAddress, row.TokenIn, row.TokenOut, row.AmountIn, row.AmountOut, row.FeeCollected, row.User, row.TxHash, row.Timestamp.UTC().Unix())
	if err != nil {
		return fmt.Errorf("repository: record anchor swap: %w", err)
	}
	return nil
}

// AnchorVolume24hRows mirrors Volume24hRows for the anchor_swaps table.
func (r *Repository) AnchorVolume24hRows(ctx context.Context, poolAddress string) ([]SwapEventRow, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour).Unix()
	rows, err := r.db.QueryContext(ctx, `
		SELECT pool_address, token_in, token_out, amount_in, amount_out, fee_collected, user_address, tx_hash, ts
		FROM anchor_swaps
		WHERE pool_address = ? AND ts >= ?
	`, poolAddress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository: anchor volume 24h: %w", err)
	}
	defer rows.Close()
	var out []SwapEventRow
	for rows.Next() {
		var row SwapEventRow
		var ts int64
		if err := rows.Scan(&row.PoolAddress, &row.TokenIn, &row.TokenOut, &row.AmountIn, &row.AmountOut, &row.FeeCollected, &row.User, &row.TxHash, &ts); err != nil {
			return nil, fmt.Errorf("repository: scan anchor swap: %w", err)
		}
		row.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}
