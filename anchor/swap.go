package anchor

import (
	"context"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"ammrelay/apierr"
	"ammrelay/ledger"
	"ammrelay/repository"
)

// SwapResult mirrors pool.SwapResult.
type SwapResult struct {
	AmountOut *uint256.Int
	FeeAmount *uint256.Int
	TX1Hash   []byte
	TX2Hash   []byte
	Refunded  bool
}

// Swap runs the seed-wallet swap against an anchor pool: the entire amountIn
// settles to the pool in TX1 (no protocol-fee leg, since all fee accrues as
// LP fee per spec §4.6), then the operator pays amountOut in TX2.
func (p *Pool) Swap(ctx context.Context, user, tokenIn ledger.Account, amountIn, minAmountOut *uint256.Int) (SwapResult, error) {
	tokenOut := p.otherToken(tokenIn)

	quote, err := p.Quote(ctx, tokenIn, amountIn, 0)
	if err != nil {
		return SwapResult{}, err
	}
	if quote.AmountOut.Lt(minAmountOut) {
		return SwapResult{}, apierr.New(apierr.SlippageExceeded, nil)
	}

	before := p.balanceOf(ctx, p.poolAddress, tokenIn)

	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	builder := p.client.NewTransaction(user).Send(p.poolAddress, amountIn.ToBig(), tokenIn, ledger.Account{})
	tx1Result, err := p.client.Publish(callCtx, user, builder)
	cancel()
	if err != nil {
		return SwapResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	var tx1Hash []byte
	if len(tx1Result.BlockHashes) > 0 {
		tx1Hash = tx1Result.BlockHashes[0]
	}

	p.waitForInclusion(ctx, p.poolAddress, tokenIn, before, amountIn)

	return p.completeSwapPhase2(ctx, user, tokenIn, tokenOut, amountIn, quote.AmountOut, minAmountOut, quote.FeeAmount, tx1Hash)
}

// CompleteSwap performs only TX2 of the user-signed-wallet path.
func (p *Pool) CompleteSwap(ctx context.Context, user, tokenIn, tokenOut ledger.Account, amountIn, amountOut *uint256.Int) (SwapResult, error) {
	quote, err := p.Quote(ctx, tokenIn, amountIn, 0)
	if err != nil {
		return SwapResult{}, err
	}
	if amountOut.Gt(quote.AmountOut) {
		return SwapResult{}, apierr.New(apierr.SlippageExceeded, nil)
	}
	return p.completeSwapPhase2(ctx, user, tokenIn, tokenOut, amountIn, amountOut, amountOut, quote.FeeAmount, nil)
}

func (p *Pool) completeSwapPhase2(ctx context.Context, user, tokenIn, tokenOut ledger.Account, amountIn, amountOut, minAmountOut, feeAmount *uint256.Int, tx1Hash []byte) (SwapResult, error) {
	if amountOut.Lt(minAmountOut) {
		p.refundSwap(ctx, user, tokenIn, amountIn, "slippage exceeded at TX2")
		return SwapResult{Refunded: true}, apierr.New(apierr.SlippageExceeded, nil)
	}

	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	builder := p.client.NewTransaction(p.operator).Send(user, amountOut.ToBig(), tokenOut, p.poolAddress)
	publishResult, err := p.client.Publish(callCtx, p.operator, builder)
	if err != nil {
		p.logger.Warn("anchor tx2 publish failed, issuing refund", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		p.refundSwap(ctx, user, tokenIn, amountIn, "tx2 publish failed")
		return SwapResult{Refunded: true}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}
	var tx2Hash []byte
	if len(publishResult.BlockHashes) > 0 {
		tx2Hash = publishResult.BlockHashes[0]
	}

	p.recordSwapEvent(ctx, tokenIn, tokenOut, amountIn, amountOut, feeAmount, user, tx2Hash)
	return SwapResult{AmountOut: amountOut, FeeAmount: feeAmount, TX1Hash: tx1Hash, TX2Hash: tx2Hash}, nil
}

func (p *Pool) refundSwap(ctx context.Context, user, tokenIn ledger.Account, amountIn *uint256.Int, reason string) {
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()
	builder := p.client.NewTransaction(p.operator).Send(user, amountIn.ToBig(), tokenIn, p.poolAddress)
	if _, err := p.client.Publish(callCtx, p.operator, builder); err != nil {
		p.logger.Error("anchor refund failed", slog.String("pool", p.poolAddress.String()), slog.String("reason", reason), slog.String("error", err.Error()))
	}
}

// waitForInclusion mirrors pool.Pool.waitForInclusion (spec §4.4.2 Q2).
func (p *Pool) waitForInclusion(ctx context.Context, account, token ledger.Account, before, amount *uint256.Int) {
	timeout := p.cfg.SettlementPollTimeout
	if timeout < time.Second {
		timeout = time.Second
	}
	interval := p.cfg.SettlementPollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	expected := new(uint256.Int).Add(before, amount)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.balanceOf(ctx, account, token).Cmp(expected) >= 0 {
			return
		}
	}
}

func (p *Pool) balanceOf(ctx context.Context, account, token ledger.Account) *uint256.Int {
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	balances, err := p.client.BalancesOf(callCtx, account)
	cancel()
	if err != nil {
		return uint256.NewInt(0)
	}
	for _, bal := range balances {
		if bal.Token.Equal(token) {
			if v, overflow := uint256.FromBig(bal.Amount); !overflow {
				return v
			}
		}
	}
	return uint256.NewInt(0)
}

func (p *Pool) recordSwapEvent(ctx context.Context, tokenIn, tokenOut ledger.Account, amountIn, amountOut, feeAmount *uint256.Int, user ledger.Account, txHash []byte) {
	if p.repo == nil {
		return
	}
	err := p.repo.RecordAnchorSwap(ctx, repository.SwapEventRow{
		PoolAddress:  p.poolAddress.String(),
		TokenIn:      tokenIn.String(),
		TokenOut:     tokenOut.String(),
		AmountIn:     amountIn.Dec(),
		AmountOut:    amountOut.Dec(),
		FeeCollected: feeAmount.Dec(),
		User:         user.String(),
		TxHash:       hashHex(txHash),
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("anchor swap event write failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
	}
}

func hashHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
