// Package pool implements C4 of the specification: one instance per pair,
// holding cached reserves and the two-phase swap/liquidity protocols against
// the ledger (spec §4.4).
package pool

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

// Config bounds the tunables a Pool needs beyond its identity, grounded on
// spec §4.4.2's settlement-delay allowance (Q2) and §4.1's default slippage.
type Config struct {
	// LedgerCallDeadline bounds every individual ledger read/publish call.
	LedgerCallDeadline time.Duration
	// SettlementPollInterval is how often the pool polls for TX1 inclusion.
	SettlementPollInterval time.Duration
	// SettlementPollTimeout bounds the total time spent waiting for TX1
	// inclusion before proceeding to TX2 anyway (the pool is
	// over-collateralized regardless, per spec §4.4.2).
	SettlementPollTimeout time.Duration
	// DefaultSlippagePercent is applied when a caller requests a quote
	// without specifying its own slippage tolerance.
	DefaultSlippagePercent float64
	// HistoryLogPath is the rotated on-disk transaction-history file; empty
	// disables file logging (in-memory ring buffer is always kept).
	HistoryLogPath string
}

// DefaultConfig mirrors spec §4.4.1's 0.5% default slippage and §4.4.2's
// 1-second settlement-delay floor.
func DefaultConfig() Config {
	return Config{
		LedgerCallDeadline:     10 * time.Second,
		SettlementPollInterval: 250 * time.Millisecond,
		SettlementPollTimeout:  1 * time.Second,
		DefaultSlippagePercent: 0.5,
	}
}

// Pool is one constant-product pair instance (spec §4.4).
type Pool struct {
	cfg Config

	poolAddress    ledger.Account
	tokenA         ledger.Account
	tokenB         ledger.Account
	lpTokenAddress ledger.Account
	treasury       ledger.Account
	operator       ledger.Account
	creator        ledger.Account
	decimalsA      uint8
	decimalsB      uint8

	client ledger.Client
	repo   *repository.Repository
	logger *slog.Logger
	hist   *history

	reserveMu sync.Mutex
	reserveA  *uint256.Int
	reserveB  *uint256.Int

	refreshMu  sync.Mutex
	refreshing chan struct{}
}

// Identity describes a pool's durable fields, used by New and by
// PoolManager's create/load pipelines.
type Identity struct {
	PoolAddress    ledger.Account
	TokenA         ledger.Account
	TokenB         ledger.Account
	LPTokenAddress ledger.Account
	Treasury       ledger.Account
	Operator       ledger.Account
	Creator        ledger.Account
	DecimalsA      uint8
	DecimalsB      uint8
}

// New constructs a Pool. Reserves start at zero; call RefreshReserves (or
// Quote, which refreshes first) before relying on them.
func New(id Identity, client ledger.Client, repo *repository.Repository, logger *slog.Logger, cfg Config) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:            cfg,
		poolAddress:    id.PoolAddress,
		tokenA:         id.TokenA,
		tokenB:         id.TokenB,
		lpTokenAddress: id.LPTokenAddress,
		treasury:       id.Treasury,
		operator:       id.Operator,
		creator:        id.Creator,
		decimalsA:      id.DecimalsA,
		decimalsB:      id.DecimalsB,
		client:         client,
		repo:           repo,
		logger:         logger.With(slog.String("component", "pool")),
		hist:           newHistory(cfg.HistoryLogPath),
		reserveA:       uint256.NewInt(0),
		reserveB:       uint256.NewInt(0),
	}
}

// Address returns the pool's storage-account address.
func (p *Pool) Address() ledger.Account { return p.poolAddress }

// TokenA returns the pool's first token (spec's pair-key-ordered token_a).
func (p *Pool) TokenA() ledger.Account { return p.tokenA }

// TokenB returns the pool's second token.
func (p *Pool) TokenB() ledger.Account { return p.tokenB }

// LPTokenAddress returns the pool's LP token, or the zero Account for a
// legacy pool that has not yet had one assigned.
func (p *Pool) LPTokenAddress() ledger.Account { return p.lpTokenAddress }

// SetLPTokenAddress binds a previously-missing LP token address, used when a
// discovered-legacy pool is backfilled (spec §4.4.4).
func (p *Pool) SetLPTokenAddress(addr ledger.Account) { p.lpTokenAddress = addr }

// Creator returns the pool's creator address.
func (p *Pool) Creator() ledger.Account { return p.creator }

// Reserves returns a snapshot of the cached reserves without refreshing.
func (p *Pool) Reserves() (a, b *uint256.Int) {
	p.reserveMu.Lock()
	defer p.reserveMu.Unlock()
	return new(uint256.Int).Set(p.reserveA), new(uint256.Int).Set(p.reserveB)
}

// RefreshReserves re-reads reserve_a/reserve_b from the ledger's balances of
// pool_address (spec invariant R1). Concurrent callers collapse onto one
// in-flight refresh (spec §5 "single-flight").
func (p *Pool) RefreshReserves(ctx context.Context) error {
	p.refreshMu.Lock()
	if p.refreshing != nil {
		done := p.refreshing
		p.refreshMu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	p.refreshing = done
	p.refreshMu.Unlock()

	err := p.doRefresh(ctx)

	p.refreshMu.Lock()
	p.refreshing = nil
	p.refreshMu.Unlock()
	close(done)
	return err
}

func (p *Pool) doRefresh(ctx context.Context) error {
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
		if err := p.repo.SaveSnapshot(ctx, repository.SnapshotRow{
			PoolAddress:  p.poolAddress.String(),
			SnapshotTime: time.Now().UTC(),
			ReserveA:     a.Dec(),
			ReserveB:     b.Dec(),
		}); err != nil {
			p.logger.Warn("snapshot write failed", slog.String("error", err.Error()), slog.String("pool", p.poolAddress.String()))
		}
	}
	return nil
}

// QuoteResult is the pure-read output of Quote (spec §4.4.1).
type QuoteResult struct {
	AmountOut     *uint256.Int
	FeeAmount     *uint256.Int
	PriceImpact   *big.Rat
	MinAmountOut  *uint256.Int
}

// Quote refreshes reserves, then computes the swap output for amountIn of
// tokenIn (spec §4.4.1). slippagePercent of 0 uses the pool's configured
// default (spec's "0.5% default slippage").
func (p *Pool) Quote(ctx context.Context, tokenIn ledger.Account, amountIn *uint256.Int, slippagePercent float64) (QuoteResult, error) {
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

	result, err := ammmath.SwapOutput(amountIn, reserveIn, reserveOut, ammmath.TotalFeeBps)
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

// reservesFor returns (reserveIn, reserveOut) ordered for a swap of tokenIn,
// failing InvalidInput if tokenIn is neither of the pool's tokens.
func (p *Pool) reservesFor(tokenIn ledger.Account) (*uint256.Int, *uint256.Int, error) {
	a, b := p.Reserves()
	switch {
	case tokenIn.Equal(p.tokenA):
		return a, b, nil
	case tokenIn.Equal(p.tokenB):
		return b, a, nil
	default:
		return nil, nil, apierr.Newf(apierr.InvalidInput, "token %s is not part of this pool", tokenIn.String())
	}
}

func (p *Pool) otherToken(tokenIn ledger.Account) ledger.Account {
	if tokenIn.Equal(p.tokenA) {
		return p.tokenB
	}
	return p.tokenA
}

// RecentHistory returns up to n of the most recently logged transactions.
func (p *Pool) RecentHistory(n int) []historyEntry {
	return p.hist.recent(n)
}

// Close releases the pool's on-disk history log handle.
func (p *Pool) Close() error {
	return p.hist.close()
}
