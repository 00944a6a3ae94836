package anchor

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"ammrelay/apierr"
	"ammrelay/ledger"
	"ammrelay/repository"
)

// RegistryConfig carries the identities shared by every anchor pool this
// registry creates or loads.
type RegistryConfig struct {
	Operator ledger.Account
	PoolCfg  Config
}

// Registry is the AnchorRegistry of spec §4.6: unlike poolmanager.Manager,
// it keys pools by pool_address rather than by unordered pair, since a
// single token pair may have several independently priced, independently
// owned anchor pools.
type Registry struct {
	cfg    RegistryConfig
	client ledger.Client
	repo   *repository.Repository
	logger *slog.Logger

	mu        sync.RWMutex
	byAddress map[string]*Pool
	byPair    map[string][]*Pool
}

// NewRegistry constructs a Registry. Call Initialize before serving traffic.
func NewRegistry(client ledger.Client, repo *repository.Repository, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:       cfg,
		client:    client,
		repo:      repo,
		logger:    logger.With(slog.String("component", "anchor_registry")),
		byAddress: make(map[string]*Pool),
		byPair:    make(map[string][]*Pool),
	}
}

func pairKey(a, b ledger.Account) string {
	if a.String() <= b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}

// Initialize loads every persisted anchor pool from the repository.
func (r *Registry) Initialize(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	rows, err := r.repo.LoadAnchorPools(ctx)
	if err != nil {
		return apierr.New(apierr.Internal, err)
	}
	for _, row := range rows {
		if err := r.registerFromRow(row); err != nil {
			r.logger.Error("failed to register persisted anchor pool", slog.String("pool", row.PoolAddress), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Registry) registerFromRow(row repository.AnchorPoolRow) error {
	poolAddress, err := r.client.AccountFromAddress(row.PoolAddress)
	if err != nil {
		return err
	}
	tokenA, err := r.client.AccountFromAddress(row.TokenA)
	if err != nil {
		return err
	}
	tokenB, err := r.client.AccountFromAddress(row.TokenB)
	if err != nil {
		return err
	}
	lpToken, err := r.client.AccountFromAddress(row.LPTokenAddress)
	if err != nil {
		return err
	}
	creator, err := r.client.AccountFromAddress(row.Creator)
	if err != nil {
		return err
	}

	p := New(Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Operator:       r.cfg.Operator,
		Creator:        creator,
		DecimalsA:      row.DecimalsA,
		DecimalsB:      row.DecimalsB,
		FeeBps:         row.FeeBps,
		Status:         Status(row.Status),
	}, r.client, r.repo, r.logger, r.cfg.PoolCfg)

	r.register(p)
	return nil
}

func (r *Registry) register(p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAddress[p.Address().String()] = p
	key := pairKey(p.TokenA(), p.TokenB())
	r.byPair[key] = append(r.byPair[key], p)
}

// CreatePool creates a new anchor pool owned by creator with the given
// initial fee_bps (spec §4.6). Multiple anchor pools may coexist for the
// same pair, each under a distinct creator and fee.
func (r *Registry) CreatePool(ctx context.Context, tokenA, tokenB, creator ledger.Account, feeBps uint32, decimalsA, decimalsB uint8) (*Pool, error) {
	if feeBps < MinFeeBps || feeBps > MaxFeeBps {
		return nil, apierr.Newf(apierr.InvalidInput, "fee_bps must be in [%d, %d]", MinFeeBps, MaxFeeBps)
	}

	poolAddress, err := r.client.CreateStorageAccount(ctx, "ammrelay-anchor-pool", "creator-owned constant-product AMM pool", true, creator)
	if err != nil {
		return nil, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	lpToken, err := r.client.CreateLPToken(ctx, poolAddress, tokenA, tokenB)
	if err != nil {
		return nil, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}

	p := New(Identity{
		PoolAddress:    poolAddress,
		TokenA:         tokenA,
		TokenB:         tokenB,
		LPTokenAddress: lpToken,
		Operator:       r.cfg.Operator,
		Creator:        creator,
		DecimalsA:      decimalsA,
		DecimalsB:      decimalsB,
		FeeBps:         feeBps,
		Status:         StatusActive,
	}, r.client, r.repo, r.logger, r.cfg.PoolCfg)

	r.register(p)
	r.persist(ctx, p, decimalsA, decimalsB)
	return p, nil
}

func (r *Registry) persist(ctx context.Context, p *Pool, decimalsA, decimalsB uint8) {
	if r.repo == nil {
		return
	}
	row := repository.AnchorPoolRow{
		PoolAddress:    p.Address().String(),
		TokenA:         p.TokenA().String(),
		TokenB:         p.TokenB().String(),
		LPTokenAddress: p.LPTokenAddress().String(),
		Creator:        p.Creator().String(),
		DecimalsA:      decimalsA,
		DecimalsB:      decimalsB,
		FeeBps:         p.FeeBps(),
		Status:         string(p.Status()),
	}
	if err := r.repo.SaveAnchorPool(ctx, row); err != nil {
		r.logger.Warn("anchor pool persist failed", slog.String("pool", row.PoolAddress), slog.String("error", err.Error()))
	}
}

// GetPool returns the anchor pool registered at address, if any.
func (r *Registry) GetPool(address ledger.Account) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byAddress[address.String()]
	return p, ok
}

// PoolsForPair returns every anchor pool (any status) registered for an
// unordered token pair, sorted by address for deterministic output.
func (r *Registry) PoolsForPair(tokenA, tokenB ledger.Account) []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pools := append([]*Pool(nil), r.byPair[pairKey(tokenA, tokenB)]...)
	sort.Slice(pools, func(i, j int) bool { return pools[i].Address().String() < pools[j].Address().String() })
	return pools
}

// PoolsByCreator returns every anchor pool this registry holds for creator,
// regardless of pair.
func (r *Registry) PoolsByCreator(creator ledger.Account) []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Pool
	for _, p := range r.byAddress {
		if p.Creator().Equal(creator) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address().String() < out[j].Address().String() })
	return out
}

// AllPools returns every registered anchor pool, sorted by address.
func (r *Registry) AllPools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pool, 0, len(r.byAddress))
	for _, p := range r.byAddress {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address().String() < out[j].Address().String() })
	return out
}

// BestQuote selects, among this pair's active anchor pools, the one quoting
// the highest amount_out for amountIn of tokenIn (spec §4.6: "the quote path
// offering anchor routes selects the best among active pools"). Paused and
// closed pools are skipped; a pool whose Quote call errors (e.g. empty
// reserves) is skipped rather than failing the whole selection.
func (r *Registry) BestQuote(ctx context.Context, tokenIn, tokenOut ledger.Account, amountIn *uint256.Int) (*Pool, QuoteResult, bool) {
	var best *Pool
	var bestQuote QuoteResult
	for _, p := range r.PoolsForPair(tokenIn, tokenOut) {
		if p.Status() != StatusActive {
			continue
		}
		quote, err := p.Quote(ctx, tokenIn, amountIn, 0)
		if err != nil {
			continue
		}
		if best == nil || quote.AmountOut.Gt(bestQuote.AmountOut) {
			best = p
			bestQuote = quote
		}
	}
	return best, bestQuote, best != nil
}
