// Package repository is the durable index over pools, LP-position hints,
// reserve snapshots, and swap events (spec §4.3/§6.4). The ledger remains the
// source of truth; every write here is best-effort bookkeeping that
// accelerates listings and analytics.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("repository: database path must be configured")

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("repository: row not found")

// Repository wraps the sqlite-backed persistence layer.
type Repository struct {
	db *sql.DB
}

// Open initialises the backing store at path, applying the embedded schema.
// An empty path is rejected; callers that want to fall back to the flat-file
// store (see the filestore package) should do so themselves when Open fails.
func Open(path string) (*Repository, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases database resources.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// PoolRow is the durable row backing Pool (spec §3).
type PoolRow struct {
	PoolAddress    string
	TokenA         string
	TokenB         string
	LPTokenAddress string
	Creator        string
	DecimalsA      uint8
	DecimalsB      uint8
}

// SavePool upserts a pool row keyed by pool_address.
func (r *Repository) SavePool(ctx context.Context, row PoolRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pools(pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_address) DO UPDATE SET
			token_a = excluded.token_a,
			token_b = excluded.token_b,
			lp_token_address = excluded.lp_token_address,
			creator = excluded.creator,
			decimals_a = excluded.decimals_a,
			decimals_b = excluded.decimals_b
	`, row.PoolAddress, row.TokenA, row.TokenB, row.LPTokenAddress, row.Creator, row.DecimalsA, row.DecimalsB)
	if err != nil {
		return fmt.Errorf("repository: save pool: %w", err)
	}
	return nil
}

// LoadPools returns every persisted pool row.
func (r *Repository) LoadPools(ctx context.Context) ([]PoolRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b
		FROM pools
		ORDER BY pool_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: load pools: %w", err)
	}
	defer rows.Close()
	var out []PoolRow
	for rows.Next() {
		var row PoolRow
		if err := rows.Scan(&row.PoolAddress, &row.TokenA, &row.TokenB, &row.LPTokenAddress, &row.Creator, &row.DecimalsA, &row.DecimalsB); err != nil {
			return nil, fmt.Errorf("repository: scan pool: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetPoolByPair returns the pool row for the ordered pair, using the same
// lexicographic key as the PoolManager's pair_key (spec §6.1).
func (r *Repository) GetPoolByPair(ctx context.Context, tokenA, tokenB string) (PoolRow, error) {
	lo, hi := tokenA, tokenB
	if hi < lo {
		lo, hi = hi, lo
	}
	var row PoolRow
	err := r.db.QueryRowContext(ctx, `
		SELECT pool_address, token_a, token_b, lp_token_address, creator, decimals_a, decimals_b
		FROM pools
		WHERE token_a = ? AND token_b = ?
	`, lo, hi).Scan(&row.PoolAddress, &row.TokenA, &row.TokenB, &row.LPTokenAddress, &row.Creator, &row.DecimalsA, &row.DecimalsB)
	if errors.Is(err, sql.ErrNoRows) {
		return PoolRow{}, ErrNotFound
	}
	if err != nil {
		return PoolRow{}, fmt.Errorf("repository: get pool by pair: %w", err)
	}
	return row, nil
}

// SaveLPPositionHint upserts the cached (pool, user) -> shares hint (spec §3).
func (r *Repository) SaveLPPositionHint(ctx context.Context, poolAddress, user string, shares string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lp_position_hints(pool_address, user_address, shares, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(pool_address, user_address) DO UPDATE SET
			shares = excluded.shares,
			updated_at = excluded.updated_at
	`, poolAddress, user, shares, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: save lp position hint: %w", err)
	}
	return nil
}

// SnapshotRow is an append-only (pool_address, snapshot_time, reserve_a,
// reserve_b) observation (spec §3).
type SnapshotRow struct {
	PoolAddress  string
	SnapshotTime time.Time
	ReserveA     string
	ReserveB     string
}

// SaveSnapshot inserts a snapshot row, no-op on a second-resolution
// (pool_address, snapshot_time) collision.
func (r *Repository) SaveSnapshot(ctx context.Context, row SnapshotRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pool_snapshots(pool_address, snapshot_time, reserve_a, reserve_b)
		VALUES(?, ?, ?, ?)
	`, row.PoolAddress, row.SnapshotTime.UTC().Unix(), row.ReserveA, row.ReserveB)
	if err != nil {
		return fmt.Errorf("repository: save snapshot: %w", err)
	}
	return nil
}

// GetSnapshotAt returns the latest snapshot at or before now minus hoursAgo.
func (r *Repository) GetSnapshotAt(ctx context.Context, poolAddress string, hoursAgo float64) (SnapshotRow, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hoursAgo * float64(time.Hour))).Unix()
	var row SnapshotRow
	var snapshotUnix int64
	err := r.db.QueryRowContext(ctx, `
		SELECT pool_address, snapshot_time, reserve_a, reserve_b
		FROM pool_snapshots
		WHERE pool_address = ? AND snapshot_time <= ?
		ORDER BY snapshot_time DESC
		LIMIT 1
	`, poolAddress, cutoff).Scan(&row.PoolAddress, &snapshotUnix, &row.ReserveA, &row.ReserveB)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRow{}, ErrNotFound
	}
	if err != nil {
		return SnapshotRow{}, fmt.Errorf("repository: get snapshot at: %w", err)
	}
	row.SnapshotTime = time.Unix(snapshotUnix, 0).UTC()
	return row, nil
}

// SwapEventRow is an append-only swap record (spec §3).
type SwapEventRow struct {
	PoolAddress  string
	TokenIn      string
	TokenOut     string
	AmountIn     string
	AmountOut    string
	FeeCollected string
	User         string
	TxHash       string
	Timestamp    time.Time
}

// RecordSwap appends a swap event row.
func (r *Repository) RecordSwap(ctx context.Context, row SwapEventRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO swap_events(pool_address, token_in, token_out, amount_in, amount_out, fee_collected, user_address, tx_hash, ts)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.PoolAddress, row.TokenIn, row.TokenOut, row.AmountIn, row.AmountOut, row.FeeCollected, row.User, row.TxHash, row.Timestamp.UTC().Unix())
	if err != nil {
		return fmt.Errorf("repository: record swap: %w", err)
	}
	return nil
}

// VolumeStats summarizes swap activity over a window (spec §4.7). Nothing in
// this module fills it; analytics sums Volume24hRows' rows itself.
type VolumeStats struct {
	SwapCount int64
	VolumeIn  map[string]string // token address -> summed amount_in, decimal string
	Fees      map[string]string // token address -> summed fee_collected, decimal string
}

// Volume24hRows returns the pool's swap_events from the trailing 24 hours.
// Amounts are summed with math/big by the caller; this query returns the raw
// per-token rows so analytics can do exact big-integer addition.
func (r *Repository) Volume24hRows(ctx context.Context, poolAddress string) ([]SwapEventRow, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour).Unix()
	rows, err := r.db.QueryContext(ctx, `
		SELECT pool_address, token_in, token_out, amount_in, amount_out, fee_collected, user_address, tx_hash, ts
		FROM swap_events
		WHERE pool_address = ? AND ts >= ?
	`, poolAddress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository: volume 24h: %w", err)
	}
	defer rows.Close()
	var out []SwapEventRow
	for rows.Next() {
		var row SwapEventRow
		var ts int64
		if err := rows.Scan(&row.PoolAddress, &row.TokenIn, &row.TokenOut, &row.AmountIn, &row.AmountOut, &row.FeeCollected, &row.User, &row.TxHash, &ts); err != nil {
			return nil, fmt.Errorf("repository: scan swap event: %w", err)
		}
		row.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_address TEXT PRIMARY KEY,
	token_a TEXT NOT NULL,
	token_b TEXT NOT NULL,
	lp_token_address TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL,
	decimals_a INTEGER NOT NULL DEFAULT 9,
	decimals_b INTEGER NOT NULL DEFAULT 9
);
CREATE INDEX IF NOT EXISTS idx_pools_pair ON pools(token_a, token_b);

CREATE TABLE IF NOT EXISTS lp_position_hints (
	pool_address TEXT NOT NULL,
	user_address TEXT NOT NULL,
	shares TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (pool_address, user_address)
);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pool_address TEXT NOT NULL,
	snapshot_time INTEGER NOT NULL,
	reserve_a TEXT NOT NULL,
	reserve_b TEXT NOT NULL,
	UNIQUE (pool_address, snapshot_time)
);
CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool_ts ON pool_snapshots(pool_address, snapshot_time);

CREATE TABLE IF NOT EXISTS swap_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pool_address TEXT NOT NULL,
	token_in TEXT NOT NULL,
	token_out TEXT NOT NULL,
	amount_in TEXT NOT NULL,
	amount_out TEXT NOT NULL,
	fee_collected TEXT NOT NULL,
	user_address TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_swap_events_pool_ts ON swap_events(pool_address, ts);

CREATE TABLE IF NOT EXISTS anchor_pools (
	pool_address TEXT PRIMARY KEY,
	token_a TEXT NOT NULL,
	token_b TEXT NOT NULL,
	lp_token_address TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL,
	decimals_a INTEGER NOT NULL DEFAULT 9,
	decimals_b INTEGER NOT NULL DEFAULT 9,
	fee_bps INTEGER NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anchor_pools_pair ON anchor_pools(token_a, token_b);
CREATE INDEX IF NOT EXISTS idx_anchor_pools_creator ON anchor_pools(creator);

CREATE TABLE IF NOT EXISTS anchor_pool_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pool_address TEXT NOT NULL,
	snapshot_time INTEGER NOT NULL,
	reserve_a TEXT NOT NULL,
	reserve_b TEXT NOT NULL,
	UNIQUE (pool_address, snapshot_time)
);
CREATE INDEX IF NOT EXISTS idx_anchor_pool_snapshots_pool_ts ON anchor_pool_snapshots(pool_address, snapshot_time);

CREATE TABLE IF NOT EXISTS anchor_swaps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pool_address TEXT NOT NULL,
	token_in TEXT NOT NULL,
	token_out TEXT NOT NULL,
	amount_in TEXT NOT NULL,
	amount_out TEXT NOT NULL,
	fee_collected TEXT NOT NULL,
	user_address TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anchor_swaps_pool_ts ON anchor_swaps(pool_address, ts);
`
