// Package poolmanager implements C5 of the specification: the registry of
// Pool instances keyed by unordered pair, the create-pool pipeline, and
// blockchain-first position/pool discovery (spec §4.5).
package poolmanager

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"ammrelay/ammmath"
	"ammrelay/apierr"
	"ammrelay/filestore"
	"ammrelay/ledger"
	"ammrelay/pool"
	"ammrelay/repository"
)

// discoveryDelay is the grace period after Initialize before the background
// discovery pass runs, giving the service time to finish its own startup
// sequence first (spec §4.5 initialize).
const discoveryDelay = 5 * time.Second

// Config carries the identities shared by every pool the manager creates or
// loads; individual pools only vary in their token pair and LP token.
type Config struct {
	Treasury       ledger.Account
	Operator       ledger.Account
	PoolConfig     pool.Config
	CandidatePools []ledger.Account
}

// Manager is the PoolManager of spec §4.5: a registry of *pool.Pool guarded
// by a single readers-writer lock, shared by every concurrent request
// handler (spec §5's "PoolManager exclusively owns the map of Pool
// instances").
type Manager struct {
	cfg    Config
	client ledger.Client
	repo   *repository.Repository
	store  *filestore.Store
	logger *slog.Logger

	mu        sync.RWMutex
	byPair    map[string]*pool.Pool
	byAddress map[string]*pool.Pool
}

// New constructs a Manager. Call Initialize before serving traffic.
func New(client ledger.Client, repo *repository.Repository, store *filestore.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		client:    client,
		repo:      repo,
		store:     store,
		logger:    logger.With(slog.String("component", "poolmanager")),
		byPair:    make(map[string]*pool.Pool),
		byAddress: make(map[string]*pool.Pool),
	}
}

// pairKey returns the canonical unordered-pair key (spec §6.1).
func pairKey(a, b ledger.Account) string {
	return filestore.PairKey(a.String(), b.String())
}

// Initialize loads every persisted pool (repository first, file fallback),
// skipping rows whose lp_token_address is absent, then schedules a
// background discovery pass after discoveryDelay (spec §4.5 initialize).
func (m *Manager) Initialize(ctx context.Context) error {
	rows, err := m.loadPoolRows(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.LPTokenAddress == "" {
			m.logger.Warn("skipping pool with no lp_token_address", slog.String("pool", row.PoolAddress))
			continue
		}
		if err := m.registerFromRow(row); err != nil {
			m.logger.Error("failed to register persisted pool", slog.String("pool", row.PoolAddress), slog.String("error", err.Error()))
			continue
		}
	}

	go m.runDiscoveryAfterDelay(ctx)
	return nil
}

func (m *Manager) runDiscoveryAfterDelay(ctx context.Context) {
	timer := time.NewTimer(discoveryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if err := m.DiscoverPoolsOnChain(ctx); err != nil {
		m.logger.Error("background pool discovery failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) loadPoolRows(ctx context.Context) ([]repository.PoolRow, error) {
	if m.repo != nil {
		rows, err := m.repo.LoadPools(ctx)
		if err == nil {
			return rows, nil
		}
		m.logger.Warn("repository load failed, falling back to file store", slog.String("error", err.Error()))
	}
	if m.store == nil {
		return nil, nil
	}
	records, err := m.store.All()
	if err != nil {
		return nil, fmt.Errorf("poolmanager: load file fallback: %w", err)
	}
	rows := make([]repository.PoolRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, repository.PoolRow{
			PoolAddress:    rec.PoolAddress,
			TokenA:         rec.TokenA,
			TokenB:         rec.TokenB,
			LPTokenAddress: rec.LPTokenAddress,
			Creator:        rec.Creator,
			DecimalsA:      9,
			DecimalsB:      9,
		})
	}
	return rows, nil
}

func (m *Manager) registerFromRow(row repository.PoolRow) error {
	poolAddress, err := m.client.AccountFromAddress(row.PoolAddress)
	if err != nil {
		return err
	}
	tokenA, err := m.client.AccountFromAddress(row.TokenA)
	if err != nil {
		return err
	}
	tokenB, err := m.client.AccountFromAddress(row.TokenB)
	if err != nil {
		return err
	}
	lpToken, err := m.client.AccountFromAddress(row.LPTokenAddress)
	if err != nil {
		return err
	}
	creator, err := m.client.AccountFromAddress(row.Creator)
	if err != nil {
		return err
	}

	p := pool.New(pool.Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Treasury:       m.cfg.Treasury,
		Operator:       m.cfg.Operator,
		Creator:        creator,
		DecimalsA:      row.DecimalsA,
		DecimalsB:      row.DecimalsB,
	}, m.client, m.repo, m.logger, m.cfg.PoolConfig)

	m.register(tokenA, tokenB, p)
	return nil
}

func (m *Manager) register(tokenA, tokenB ledger.Account, p *pool.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPair[pairKey(tokenA, tokenB)] = p
	m.byAddress[p.Address().String()] = p
}

// CreatePool runs the create-pool pipeline of spec §4.5: fetch token
// decimals, create the pool storage account, create the bound LP token,
// construct and register the Pool, then persist (non-critical). Failure in
// ledger account creation aborts; a persistence failure is logged but the
// pool is still considered created since its ledger accounts exist.
func (m *Manager) CreatePool(ctx context.Context, tokenA, tokenB, creator ledger.Account) (*pool.Pool, error) {
	if m.HasPool(tokenA, tokenB) {
		return nil, apierr.New(apierr.PoolAlreadyExists, nil)
	}

	decimalsA := m.tokenDecimals(ctx, tokenA)
	decimalsB := m.tokenDecimals(ctx, tokenB)

	poolAddress, err := m.client.CreateStorageAccount(ctx, "ammrelay-pool", "constant-product AMM pool", true, creator)
	if err != nil {
		return nil, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	lpToken, err := m.client.CreateLPToken(ctx, poolAddress, tokenA, tokenB)
	if err != nil {
		return nil, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}

	p := pool.New(pool.Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Treasury:       m.cfg.Treasury,
		Operator:       m.cfg.Operator,
		Creator:        creator,
		DecimalsA:      decimalsA,
		DecimalsB:      decimalsB,
	}, m.client, m.repo, m.logger, m.cfg.PoolConfig)

	m.register(tokenA, tokenB, p)
	m.persistPool(ctx, p, decimalsA, decimalsB)
	return p, nil
}

// tokenDecimals fetches a token's decimals via the adapter (spec §4.5 step
// 1). The ledger contract carried from the teacher exposes account metadata
// but no dedicated symbol/decimals call, so a token's own metadata is probed
// for the LP-token schema (which carries decimals); any token that doesn't
// decode that way is assumed to use the ledger's common 9-decimal scale.
func (m *Manager) tokenDecimals(ctx context.Context, token ledger.Account) uint8 {
	info, err := m.client.AccountInfo(ctx, token)
	if err != nil {
		return 9
	}
	if meta, ok := ledger.DecodeLPTokenMetadata(info.Metadata); ok {
		return meta.Decimals
	}
	return 9
}

func (m *Manager) persistPool(ctx context.Context, p *pool.Pool, decimalsA, decimalsB uint8) {
	row := repository.PoolRow{
		PoolAddress:    p.Address().String(),
		TokenA:         p.TokenA().String(),
		TokenB:         p.TokenB().String(),
		LPTokenAddress: p.LPTokenAddress().String(),
		Creator:        p.Creator().String(),
		DecimalsA:      decimalsA,
		DecimalsB:      decimalsB,
	}
	if m.repo != nil {
		if err := m.repo.SavePool(ctx, row); err != nil {
			m.logger.Warn("pool repository persist failed", slog.String("pool", row.PoolAddress), slog.String("error", err.Error()))
		}
	}
	if m.store != nil {
		if err := m.store.Save(filestore.Record{
			PoolAddress:    row.PoolAddress,
			TokenA:         row.TokenA,
			TokenB:         row.TokenB,
			LPTokenAddress: row.LPTokenAddress,
			Creator:        row.Creator,
		}); err != nil {
			m.logger.Warn("pool file-store persist failed", slog.String("pool", row.PoolAddress), slog.String("error", err.Error()))
		}
	}
}

// GetPool returns the pool for an unordered token pair, if registered.
func (m *Manager) GetPool(tokenA, tokenB ledger.Account) (*pool.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byPair[pairKey(tokenA, tokenB)]
	return p, ok
}

// GetPoolByAddress returns the pool registered under a storage-account
// address, if any.
func (m *Manager) GetPoolByAddress(address ledger.Account) (*pool.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byAddress[address.String()]
	return p, ok
}

// HasPool reports whether a pool is registered for the given pair.
func (m *Manager) HasPool(tokenA, tokenB ledger.Account) bool {
	_, ok := m.GetPool(tokenA, tokenB)
	return ok
}

// AllPools returns every registered pool, ordered by pool address for
// deterministic listing output.
func (m *Manager) AllPools() []*pool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*pool.Pool, 0, len(m.byAddress))
	for _, p := range m.byAddress {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address().String() < out[j].Address().String() })
	return out
}

// SwapRoute returns the unique direct pool for tokenIn/tokenOut, since this
// coordinator only supports direct-pair routing (spec §4.5 swap_route).
func (m *Manager) SwapRoute(tokenIn, tokenOut ledger.Account) (*pool.Pool, bool) {
	return m.GetPool(tokenIn, tokenOut)
}

// Position is one user's holding in a pool, surfaced by UserPositions.
type Position struct {
	PoolAddress  ledger.Account
	TokenA       ledger.Account
	TokenB       ledger.Account
	Shares       *uint256.Int
	AmountA      *uint256.Int
	AmountB      *uint256.Int
	SharePercent *big.Rat
}

// dustAmountThreshold is 10^-6 in human units; dustShareThreshold is
// 10^-4 in percent (spec §4.5 step 6).
var (
	dustAmountThreshold = big.NewRat(1, 1_000_000)
	dustShareThreshold  = big.NewRat(1, 10_000)
)

// UserPositions performs the blockchain-first discovery of spec §4.5: every
// LP token the user holds a balance of is decoded from its own metadata, not
// from any local index, so a user's positions are always complete even for
// a pool this process has not yet loaded.
func (m *Manager) UserPositions(ctx context.Context, user ledger.Account) ([]Position, error) {
	balances, err := m.client.BalancesOf(ctx, user)
	if err != nil {
		return nil, apierr.New(apierr.LedgerTimeout, ledger.ClassifyError(err))
	}

	var positions []Position
	for _, bal := range balances {
		info, err := m.client.AccountInfo(ctx, bal.Token)
		if err != nil {
			continue
		}
		meta, ok := ledger.DecodeLPTokenMetadata(info.Metadata)
		if !ok {
			continue
		}
		poolAddress, err := m.client.AccountFromAddress(meta.Pool)
		if err != nil {
			continue
		}
		tokenA, err := m.client.AccountFromAddress(meta.TokenA)
		if err != nil {
			continue
		}
		tokenB, err := m.client.AccountFromAddress(meta.TokenB)
		if err != nil {
			continue
		}

		p, err := m.lazyLoadPool(ctx, poolAddress, tokenA, tokenB, bal.Token)
		if err != nil {
			m.logger.Warn("lazy pool load failed during position scan", slog.String("pool", poolAddress.String()), slog.String("error", err.Error()))
			continue
		}

		shares, overflow := uint256.FromBig(bal.Amount)
		if overflow {
			continue
		}
		if err := p.RefreshReserves(ctx); err != nil {
			continue
		}
		reserveA, reserveB := p.Reserves()
		if info.Supply == nil {
			continue
		}
		totalShares, overflow := uint256.FromBig(info.Supply)
		if overflow || totalShares.IsZero() {
			continue
		}

		amountA, amountB := ammmath.BurnToAmounts(shares, totalShares, reserveA, reserveB)
		sharePercent := new(big.Rat).SetFrac(
			new(big.Int).Mul(shares.ToBig(), big.NewInt(10_000)),
			new(big.Int).Mul(totalShares.ToBig(), big.NewInt(100)),
		)

		if isDustPosition(amountA, meta.Decimals, sharePercent) && isDustPosition(amountB, meta.Decimals, sharePercent) {
			continue
		}

		positions = append(positions, Position{
			PoolAddress:  poolAddress,
			TokenA:       tokenA,
			TokenB:       tokenB,
			Shares:       shares,
			AmountA:      amountA,
			AmountB:      amountB,
			SharePercent: sharePercent,
		})
	}
	return positions, nil
}

// isDustPosition reports whether amount (scaled by decimals) is below the
// human-unit dust floor and sharePercent is below the share-percent dust
// floor; both must hold for a side to be considered dust (spec §4.5 step 6
// filters positions where *both* amounts and share_percent are dust).
func isDustPosition(amount *uint256.Int, decimals uint8, sharePercent *big.Rat) bool {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	human := new(big.Rat).SetFrac(amount.ToBig(), scale)
	return human.Cmp(dustAmountThreshold) < 0 && sharePercent.Cmp(dustShareThreshold) < 0
}

func (m *Manager) lazyLoadPool(ctx context.Context, poolAddress, tokenA, tokenB, lpToken ledger.Account) (*pool.Pool, error) {
	if p, ok := m.GetPoolByAddress(poolAddress); ok {
		return p, nil
	}
	decimalsA := m.tokenDecimals(ctx, tokenA)
	decimalsB := m.tokenDecimals(ctx, tokenB)
	p := pool.New(pool.Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Treasury:       m.cfg.Treasury,
		Operator:       m.cfg.Operator,
		DecimalsA:      decimalsA,
		DecimalsB:      decimalsB,
	}, m.client, m.repo, m.logger, m.cfg.PoolConfig)
	m.register(tokenA, tokenB, p)
	m.persistPool(ctx, p, decimalsA, decimalsB)
	return p, nil
}

// DiscoverPoolsOnChain probes every configured candidate address for a pool:
// if the address holds balances of two or more distinct tokens, it is
// registered as a pool for that pair (spec §4.5 discover_pools_on_chain).
func (m *Manager) DiscoverPoolsOnChain(ctx context.Context) error {
	for _, candidate := range m.cfg.CandidatePools {
		if _, ok := m.GetPoolByAddress(candidate); ok {
			continue
		}
		balances, err := m.client.BalancesOf(ctx, candidate)
		if err != nil {
			m.logger.Warn("discovery balance read failed", slog.String("candidate", candidate.String()), slog.String("error", err.Error()))
			continue
		}
		if len(balances) < 2 {
			continue
		}
		tokenA, tokenB := balances[0].Token, balances[1].Token
		if m.HasPool(tokenA, tokenB) {
			continue
		}

		decimalsA := m.tokenDecimals(ctx, tokenA)
		decimalsB := m.tokenDecimals(ctx, tokenB)
		p := pool.New(pool.Identity{
			PoolAddress: candidate,
			TokenA:      tokenA,
			TokenB:      tokenB,
			Treasury:    m.cfg.Treasury,
			Operator:    m.cfg.Operator,
			DecimalsA:   decimalsA,
			DecimalsB:   decimalsB,
		}, m.client, m.repo, m.logger, m.cfg.PoolConfig)
		m.register(tokenA, tokenB, p)
		m.persistPool(ctx, p, decimalsA, decimalsB)
	}
	return nil
}
