package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"ammrelay/ammmath"
	"ammrelay/apierr"
	"ammrelay/ledger"
)

// LiquidityResult is the outcome of an add/remove liquidity operation
// (spec §4.4.3/§4.4.4).
type LiquidityResult struct {
	AmountA *uint256.Int
	AmountB *uint256.Int
	Shares  *uint256.Int
	TX1Hash []byte
	TX2Hash []byte
}

// lpBurnSink is the permanent, unspendable account credited with the first
// deposit's minimum-liquidity lock, so that the LP token's total supply
// tracks isqrt(a*b) exactly and later proportional mints (spec §4.1
// "Subsequent deposits") read a total_shares consistent with that root.
var lpBurnSink = ledger.NewAccount(ledger.StoragePrefix, [20]byte{})

// totalShares reads the LP token's current supply from the ledger, the
// single source of truth for total_shares (spec §4.4.3).
func (p *Pool) totalShares(ctx context.Context) (*uint256.Int, error) {
	if p.lpTokenAddress.IsZero() {
		return uint256.NewInt(0), nil
	}
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()
	info, err := p.client.AccountInfo(callCtx, p.lpTokenAddress)
	if err != nil {
		return nil, apierr.New(apierr.LedgerTimeout, ledger.ClassifyError(err))
	}
	if info.Supply == nil {
		return uint256.NewInt(0), nil
	}
	supply, overflow := uint256.FromBig(info.Supply)
	if overflow {
		return nil, apierr.Newf(apierr.LedgerRejected, "lp token supply overflows 256 bits")
	}
	return supply, nil
}

// AddLiquidity runs the seed-wallet add-liquidity flow: TX1 (both token
// sends to the pool) followed by TX2 (mint) are both published by the
// coordinator (spec §4.4.3).
func (p *Pool) AddLiquidity(ctx context.Context, user ledger.Account, aDesired, bDesired, aMin, bMin *uint256.Int) (LiquidityResult, error) {
	if err := p.RefreshReserves(ctx); err != nil {
		return LiquidityResult{}, err
	}
	reserveA, reserveB := p.Reserves()

	a, b := ammmath.OptimalLiquidity(aDesired, bDesired, reserveA, reserveB)
	if a.Lt(aMin) || b.Lt(bMin) {
		return LiquidityResult{}, apierr.New(apierr.SlippageExceeded, nil)
	}

	totalShares, err := p.totalShares(ctx)
	if err != nil {
		return LiquidityResult{}, err
	}
	shares, err := ammmath.LPToMint(a, b, reserveA, reserveB, totalShares)
	if err != nil {
		return LiquidityResult{}, apierr.New(apierr.InsufficientShares, err)
	}

	before := p.balanceOf(ctx, p.poolAddress, p.tokenA)

	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	builder := p.client.NewTransaction(user).
		Send(p.poolAddress, a.ToBig(), p.tokenA, ledger.Account{}).
		Send(p.poolAddress, b.ToBig(), p.tokenB, ledger.Account{})
	tx1Result, err := p.client.Publish(callCtx, user, builder)
	cancel()
	if err != nil {
		return LiquidityResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	var tx1Hash []byte
	if len(tx1Result.BlockHashes) > 0 {
		tx1Hash = tx1Result.BlockHashes[0]
	}

	p.waitForInclusion(ctx, p.poolAddress, p.tokenA, before, a)

	return p.mintLPTokens(ctx, user, a, b, shares, totalShares.IsZero(), tx1Hash)
}

// CompleteAddLiquidity performs only TX2 (mint) of the user-signed-wallet
// add-liquidity flow; the caller attests that TX1 (both token sends) has
// already settled (spec §4.8 POST /liquidity/keythings/complete).
func (p *Pool) CompleteAddLiquidity(ctx context.Context, user ledger.Account, a, b *uint256.Int) (LiquidityResult, error) {
	if err := p.RefreshReserves(ctx); err != nil {
		return LiquidityResult{}, err
	}
	reserveA, reserveB := p.Reserves()

	totalShares, err := p.totalShares(ctx)
	if err != nil {
		return LiquidityResult{}, err
	}
	shares, err := ammmath.LPToMint(a, b, reserveA, reserveB, totalShares)
	if err != nil {
		return LiquidityResult{}, apierr.New(apierr.InsufficientShares, err)
	}
	return p.mintLPTokens(ctx, user, a, b, shares, totalShares.IsZero(), nil)
}

func (p *Pool) mintLPTokens(ctx context.Context, user ledger.Account, a, b, shares *uint256.Int, isFirstDeposit bool, tx1Hash []byte) (LiquidityResult, error) {
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	if isFirstDeposit {
		if err := p.client.MintSupply(callCtx, p.lpTokenAddress, lpBurnSink, new(uint256.Int).SetUint64(ammmath.MinLiquidityLock).ToBig()); err != nil {
			p.logger.Error("lp lock mint failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
			return LiquidityResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
		}
	}

	if err := p.client.MintSupply(callCtx, p.lpTokenAddress, user, shares.ToBig()); err != nil {
		p.logger.Error("lp mint failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		return LiquidityResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}

	p.saveLPPositionHint(ctx, user)
	p.hist.record(historyEntry{
		Time: time.Now().UTC(), Kind: "add_liquidity", User: user.String(),
		AmountIn: a.Dec(), AmountOut: b.Dec(), Note: "shares=" + shares.Dec(),
	})
	return LiquidityResult{AmountA: a, AmountB: b, Shares: shares, TX1Hash: tx1Hash}, nil
}

// RemoveLiquidity runs the seed-wallet remove-liquidity flow: TX1 (shares to
// the LP-token account) then TX2 (burn + payout), both published by the
// coordinator (spec §4.4.4).
func (p *Pool) RemoveLiquidity(ctx context.Context, user ledger.Account, sharesToBurn, aMin, bMin *uint256.Int) (LiquidityResult, error) {
	before := p.balanceOf(ctx, p.lpTokenAddress, p.lpTokenAddress)

	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	builder := p.client.NewTransaction(user).
		Send(p.lpTokenAddress, sharesToBurn.ToBig(), p.lpTokenAddress, ledger.Account{})
	tx1Result, err := p.client.Publish(callCtx, user, builder)
	cancel()
	if err != nil {
		return LiquidityResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	var tx1Hash []byte
	if len(tx1Result.BlockHashes) > 0 {
		tx1Hash = tx1Result.BlockHashes[0]
	}

	p.waitForInclusion(ctx, p.lpTokenAddress, p.lpTokenAddress, before, sharesToBurn)

	return p.burnAndPayout(ctx, user, sharesToBurn, aMin, bMin, tx1Hash)
}

// CompleteRemoveLiquidity performs only TX2 (burn + payout) of the
// user-signed-wallet remove-liquidity flow (spec §4.8 POST
// /liquidity/keythings/remove-complete).
func (p *Pool) CompleteRemoveLiquidity(ctx context.Context, user ledger.Account, sharesToBurn, aMin, bMin *uint256.Int) (LiquidityResult, error) {
	return p.burnAndPayout(ctx, user, sharesToBurn, aMin, bMin, nil)
}

func (p *Pool) burnAndPayout(ctx context.Context, user ledger.Account, sharesToBurn, aMin, bMin *uint256.Int, tx1Hash []byte) (LiquidityResult, error) {
	if err := p.RefreshReserves(ctx); err != nil {
		return LiquidityResult{}, err
	}
	reserveA, reserveB := p.Reserves()

	totalShares, err := p.totalShares(ctx)
	if err != nil {
		return LiquidityResult{}, err
	}
	if totalShares.IsZero() {
		return LiquidityResult{}, apierr.New(apierr.InsufficientShares, nil)
	}

	a, b := ammmath.BurnToAmounts(sharesToBurn, totalShares, reserveA, reserveB)
	if a.Lt(aMin) || b.Lt(bMin) {
		return LiquidityResult{}, apierr.New(apierr.SlippageExceeded, nil)
	}

	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	if err := p.client.BurnSupply(callCtx, p.lpTokenAddress, p.lpTokenAddress, sharesToBurn.ToBig()); err != nil {
		return LiquidityResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}

	builder := p.client.NewTransaction(p.operator).
		Send(user, a.ToBig(), p.tokenA, p.poolAddress).
		Send(user, b.ToBig(), p.tokenB, p.poolAddress)
	tx2Result, err := p.client.Publish(callCtx, p.operator, builder)
	if err != nil {
		p.logger.Error("remove-liquidity payout failed after burn", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		return LiquidityResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	var tx2Hash []byte
	if len(tx2Result.BlockHashes) > 0 {
		tx2Hash = tx2Result.BlockHashes[0]
	}

	p.saveLPPositionHint(ctx, user)
	p.hist.record(historyEntry{
		Time: time.Now().UTC(), Kind: "remove_liquidity", User: user.String(),
		AmountIn: sharesToBurn.Dec(), AmountOut: a.Dec() + "," + b.Dec(),
	})
	return LiquidityResult{AmountA: a, AmountB: b, Shares: sharesToBurn, TX1Hash: tx1Hash, TX2Hash: tx2Hash}, nil
}

// saveLPPositionHint re-reads the user's current LP-token balance from the
// ledger and caches it, since the hint table stores the absolute share
// count, not a delta; the ledger balance remains authoritative (spec §3).
func (p *Pool) saveLPPositionHint(ctx context.Context, user ledger.Account) {
	if p.repo == nil || p.lpTokenAddress.IsZero() {
		return
	}
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	balances, err := p.client.BalancesOf(callCtx, user)
	cancel()
	if err != nil {
		p.logger.Warn("lp position hint refresh failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		return
	}
	shares := uint256.NewInt(0)
	for _, bal := range balances {
		if bal.Token.Equal(p.lpTokenAddress) {
			if v, overflow := uint256.FromBig(bal.Amount); !overflow {
				shares = v
			}
		}
	}
	if err := p.repo.SaveLPPositionHint(ctx, p.poolAddress.String(), user.String(), shares.Dec()); err != nil {
		p.logger.Warn("lp position hint write failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
	}
}
