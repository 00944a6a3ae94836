// Package anchor implements C6 of the specification: AnchorPool and
// AnchorRegistry. An anchor pool is structurally the same TX1/TX2
// constant-product engine as package pool, with a per-pool fee_bps and a
// status gate layered on top rather than a separate algorithm (spec §4.6).
package anchor

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"ammrelay/ammmath"
	"ammrelay/apierr"
	"ammrelay/ledger"
	"ammrelay/repository"
)

// Status gates whether an anchor pool accepts swaps (spec §4.6).
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusClosed Status = "closed"
)

// Valid reports whether s is one of the three defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusClosed:
		return true
	default:
		return false
	}
}

// MinFeeBps and MaxFeeBps bound update_fee's new_fee_bps (spec §4.6).
const (
	MinFeeBps uint32 = 1
	MaxFeeBps uint32 = 1000
)

// Identity describes an anchor pool's durable fields.
type Identity struct {
	PoolAddress    ledger.Account
	TokenA         ledger.Account
	TokenB         ledger.Account
	LPTokenAddress ledger.Account
	Operator       ledger.Account
	Creator        ledger.Account
	DecimalsA      uint8
	DecimalsB      uint8
	FeeBps         uint32
	Status         Status
}

// Config bounds an AnchorPool's ledger-call tunables, shared with package
// pool's Config shape.
type Config struct {
	LedgerCallDeadline     time.Duration
	SettlementPollInterval time.Duration
	SettlementPollTimeout  time.Duration
	DefaultSlippagePercent float64
}

// DefaultConfig mirrors pool.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		LedgerCallDeadline:     10 * time.Second,
		SettlementPollInterval: 250 * time.Millisecond,
		SettlementPollTimeout:  1 * time.Second,
		DefaultSlippagePercent: 0.5,
	}
}

// Pool is a single anchor pool instance (spec §4.6).
type Pool struct {
	cfg Config

	poolAddress    ledger.Account
	tokenA         ledger.Account
	tokenB         ledger.Account
	lpTokenAddress ledger.Account
	operator       ledger.Account
	creator        ledger.Account
	decimalsA      uint8
	decimalsB      uint8

	client ledger.Client
	repo   *repository.Repository
	logger *slog.Logger

	stateMu sync.Mutex
	feeBps  uint32
	status  Status

	reserveMu sync.Mutex
	reserveA  *uint256.Int
	reserveB  *uint256.Int
}

// New constructs an anchor Pool. Reserves start at zero; RefreshReserves (or
// Quote) populates them.
func New(id Identity, client ledger.Client, repo *repository.Repository, logger *slog.Logger, cfg Config) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	status := id.Status
	if !status.Valid() {
		status = StatusActive
	}
	return &Pool{
		cfg:            cfg,
		poolAddress:    id.PoolAddress,
		tokenA:         id.TokenA,
		tokenB:         id.TokenB,
		lpTokenAddress: id.LPTokenAddress,
		operator:       id.Operator,
		creator:        id.Creator,
		decimalsA:      id.DecimalsA,
		decimalsB:      id.DecimalsB,
		client:         client,
		repo:           repo,
		logger:         logger.With(slog.String("component", "anchor")),
		feeBps:         id.FeeBps,
		status:         status,
		reserveA:       uint256.NewInt(0),
		reserveB:       uint256.NewInt(0),
	}
}

func (p *Pool) Address() ledger.Account        { return p.poolAddress }
func (p *Pool) TokenA() ledger.Account         { return p.tokenA }
func (p *Pool) TokenB() ledger.Account         { return p.tokenB }
func (p *Pool) LPTokenAddress() ledger.Account { return p.lpTokenAddress }
func (p *Pool) Creator() ledger.Account        { return p.creator }

// FeeBps and Status return the pool's current mutable fields.
func (p *Pool) FeeBps() uint32 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.feeBps
}

func (p *Pool) Status() Status {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.status
}

// UpdateFee sets a new fee_bps; only the pool's creator may call this (spec
// §4.6). new_fee_bps must be in [MinFeeBps, MaxFeeBps].
func (p *Pool) UpdateFee(ctx context.Context, caller ledger.Account, newFeeBps uint32) error {
	if !caller.Equal(p.creator) {
		return apierr.New(apierr.Unauthorized, nil)
	}
	if newFeeBps < MinFeeBps || newFeeBps > MaxFeeBps {
		return apierr.Newf(apierr.InvalidInput, "fee_bps must be in [%d, %d]", MinFeeBps, MaxFeeBps)
	}
	p.stateMu.Lock()
	p.feeBps = newFeeBps
	p.stateMu.Unlock()

	if p.repo != nil {
		if err := p.repo.UpdateAnchorPoolFee(ctx, p.poolAddress.String(), newFeeBps); err != nil {
			p.logger.Warn("anchor fee persist failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		}
	}
	return nil
}

// UpdateStatus transitions the pool's status; only the creator may call
// this. closed is terminal (no re-open); paused is reversible to active
// (spec §4.6).
func (p *Pool) UpdateStatus(ctx context.Context, caller ledger.Account, newStatus Status) error {
	if !caller.Equal(p.creator) {
		return apierr.New(apierr.Unauthorized, nil)
	}
	if !newStatus.Valid() {
		return apierr.Newf(apierr.InvalidInput, "unknown status %q", newStatus)
	}
	p.stateMu.Lock()
	if p.status == StatusClosed {
		p.stateMu.Unlock()
		return apierr.New(apierr.InvalidInput, errClosedIsTerminal)
	}
	p.status = newStatus
	p.stateMu.Unlock()

	if p.repo != nil {
		if err := p.repo.UpdateAnchorPoolStatus(ctx, p.poolAddress.String(), string(newStatus)); err != nil {
			p.logger.Warn("anchor status persist failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		}
	}
	return nil
}

var errClosedIsTerminal = apierr.Newf(apierr.InvalidInput, "closed anchor pools cannot be reopened").Err

// Reserves returns a snapshot of the cached reserves without refreshing.
func (p *Pool) Reserves() (a, b *uint256.Int) {
	p.reserveMu.Lock()
	defer p.reserveMu.Unlock()
	return new(uint256.Int).Set(p.reserveA), new(uint256.Int).Set(p.reserveB)
}

// RefreshReserves re-reads reserve_a/reserve_b from the ledger's balances of
// pool_address, same invariant as pool.Pool.RefreshReserves (spec R1).
func (p *Pool) RefreshReserves(ctx context.Context) error {
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	balances, err := p.client.BalancesOf(callCtx, p.poolAddress)
	if err != nil {
		return apierr.New(apierr.LedgerTimeout, ledger.ClassifyError(err))
	}
	a := uint256.NewInt(0)
	b := uint256.NewInt(0)
	for _, bal := range balances {
		if bal.Token.Equal(p.tokenA) {
			if v, overflow := uint256.FromBig(bal.Amount); !overflow {
				a = v
			}
		}
		if bal.Token.Equal(p.tokenB) {
			if v, overflow := uint256.FromBig(bal.Amount); !overflow {
				b = v
			}
		}
	}
	p.reserveMu.Lock()
	p.reserveA = a
	p.reserveB = b
	p.reserveMu.Unlock()

	if p.repo != nil {
		if err := p.repo.SaveAnchorSnapshot(ctx, repository.SnapshotRow{
			PoolAddress:  p.poolAddress.String(),
			SnapshotTime: time.Now().UTC(),
			ReserveA:     a.Dec(),
			ReserveB:     b.Dec(),
		}); err != nil {
			p.logger.Warn("anchor snapshot write failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		}
	}
	return nil
}

// QuoteResult mirrors pool.QuoteResult.
type QuoteResult struct {
	AmountOut    *uint256.Int
	FeeAmount    *uint256.Int
	PriceImpact  *big.Rat
	MinAmountOut *uint256.Int
}

// Quote computes the swap output for amountIn of tokenIn against this pool's
// own fee_bps (spec §4.6 "total_fee_bps := fee_bps"), refusing to quote a
// non-active pool.
func (p *Pool) Quote(ctx context.Context, tokenIn ledger.Account, amountIn *uint256.Int, slippagePercent float64) (QuoteResult, error) {
	if p.Status() != StatusActive {
		return QuoteResult{}, apierr.Newf(apierr.InvalidInput, "anchor pool is not active")
	}
	if err := p.RefreshReserves(ctx); err != nil {
		return QuoteResult{}, err
	}
	reserveIn, reserveOut, err := p.reservesFor(tokenIn)
	if err != nil {
		return QuoteResult{}, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return QuoteResult{}, apierr.New(apierr.InsufficientLiquidity, ammmath.ErrEmptyReserves)
	}

	result, err := ammmath.SwapOutput(amountIn, reserveIn, reserveOut, uint64(p.FeeBps()))
	if err != nil {
		return QuoteResult{}, apierr.New(apierr.InsufficientLiquidity, err)
	}
	if slippagePercent <= 0 {
		slippagePercent = p.cfg.DefaultSlippagePercent
	}
	return QuoteResult{
		AmountOut:    result.AmountOut,
		FeeAmount:    result.FeeAmount,
		PriceImpact:  result.PriceImpactRatio,
		MinAmountOut: ammmath.MinAmountOut(result.AmountOut, slippagePercent),
	}, nil
}

func (p *Pool) reservesFor(tokenIn ledger.Account) (*uint256.Int, *uint256.Int, error) {
	a, b := p.Reserves()
	switch {
	case tokenIn.Equal(p.tokenA):
		return a, b, nil
	case tokenIn.Equal(p.tokenB):
		return b, a, nil
	default:
		return nil, nil, apierr.Newf(apierr.InvalidInput, "token %s is not part of this anchor pool", tokenIn.String())
	}
}

func (p *Pool) otherToken(tokenIn ledger.Account) ledger.Account {
	if tokenIn.Equal(p.tokenA) {
		return p.tokenB
	}
	return p.tokenA
}
