package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"ammrelay/ammmath"
	"ammrelay/apierr"
	"ammrelay/ledger"
	"ammrelay/repository"
)

// SwapResult is the outcome of a completed two-phase swap (spec §4.4.2).
type SwapResult struct {
	AmountOut *uint256.Int
	FeeAmount *uint256.Int
	TX1Hash   []byte
	TX2Hash   []byte
	Refunded  bool
}

// Swap runs the full seed-wallet swap: the pool signs TX1 on the user's
// behalf (the server holds the seed, spec §6.3), waits for settlement, then
// publishes TX2 itself. tokenIn must be one of the pool's two tokens.
func (p *Pool) Swap(ctx context.Context, user ledger.Account, tokenIn ledger.Account, amountIn, minAmountOut *uint256.Int) (SwapResult, error) {
	tokenOut := p.otherToken(tokenIn)

	quote, err := p.Quote(ctx, tokenIn, amountIn, 0)
	if err != nil {
		return SwapResult{}, err
	}
	if quote.AmountOut.Lt(minAmountOut) {
		return SwapResult{}, apierr.New(apierr.SlippageExceeded, nil)
	}

	protocolFee, amountToPool := ammmath.FeeSplit(amountIn, ammmath.ProtocolFeeBps)

	before := p.balanceOf(ctx, p.poolAddress, tokenIn)
	tx1Hash, err := p.publishTX1(ctx, user, tokenIn, amountToPool, protocolFee)
	if err != nil {
		return SwapResult{}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}

	p.waitForInclusion(ctx, p.poolAddress, tokenIn, before, amountToPool)

	result, err := p.completeSwapPhase2(ctx, user, tokenIn, tokenOut, amountIn, quote.AmountOut, minAmountOut, amountToPool, tx1Hash)
	return result, err
}

// CompleteSwap performs only TX2 of the user-signed-wallet path: the caller
// attests that TX1 has already been published externally (spec §4.4.2,
// §4.8 POST /swap/keythings/complete). amountIn/tokenIn are supplied
// alongside the spec's literal {tokenOut, amountOut} fields so that a TX2
// rejection can be refunded correctly (see DESIGN.md's note on this
// addition).
func (p *Pool) CompleteSwap(ctx context.Context, user ledger.Account, tokenIn, tokenOut ledger.Account, amountIn, amountOut *uint256.Int) (SwapResult, error) {
	// Re-derive the quote against current reserves; the attested amountOut
	// must not exceed what the pool can honestly pay under today's curve,
	// protecting against a stale or manipulated client-side quote.
	quote, err := p.Quote(ctx, tokenIn, amountIn, 0)
	if err != nil {
		return SwapResult{}, err
	}
	if amountOut.Gt(quote.AmountOut) {
		return SwapResult{}, apierr.New(apierr.SlippageExceeded, nil)
	}

	protocolFee, amountToPool := ammmath.FeeSplit(amountIn, ammmath.ProtocolFeeBps)
	return p.completeSwapPhase2(ctx, user, tokenIn, tokenOut, amountIn, amountOut, amountOut, amountToPool, nil)
}

// completeSwapPhase2 publishes TX2 (operator pays tokenOut to user via
// SEND_ON_BEHALF) and refunds amountToPool back to the user on failure.
func (p *Pool) completeSwapPhase2(ctx context.Context, user, tokenIn, tokenOut ledger.Account, amountIn, amountOut, minAmountOut, amountToPool *uint256.Int, tx1Hash []byte) (SwapResult, error) {
	if amountOut.Lt(minAmountOut) {
		p.refundSwap(ctx, user, tokenIn, amountToPool, "slippage exceeded at TX2")
		return SwapResult{Refunded: true}, apierr.New(apierr.SlippageExceeded, nil)
	}

	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	builder := p.client.NewTransaction(p.operator).
		Send(user, amountOut.ToBig(), tokenOut, p.poolAddress)
	publishResult, err := p.client.Publish(callCtx, p.operator, builder)
	if err != nil {
		p.logger.Warn("tx2 publish failed, issuing refund",
			slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
		p.refundSwap(ctx, user, tokenIn, amountToPool, "tx2 publish failed")
		return SwapResult{Refunded: true}, apierr.New(apierr.LedgerRejected, ledger.ClassifyError(err))
	}

	var tx2Hash []byte
	if len(publishResult.BlockHashes) > 0 {
		tx2Hash = publishResult.BlockHashes[0]
	}

	p.recordSwapEvent(ctx, tokenIn, tokenOut, amountIn, amountOut, amountToPool, user, tx2Hash)
	p.hist.record(historyEntry{
		Time: time.Now().UTC(), Kind: "swap", User: user.String(),
		TokenIn: tokenIn.String(), TokenOut: tokenOut.String(),
		AmountIn: amountIn.Dec(), AmountOut: amountOut.Dec(),
	})

	feeAmount := new(uint256.Int).Mul(amountIn, uint256.NewInt(ammmath.TotalFeeBps))
	feeAmount.Div(feeAmount, uint256.NewInt(10_000))
	return SwapResult{AmountOut: amountOut, FeeAmount: feeAmount, TX1Hash: tx1Hash, TX2Hash: tx2Hash}, nil
}

// publishTX1 sends amountToPool of tokenIn to the pool and protocolFee (if
// nonzero) to the treasury, in a single atomic transaction (spec §4.4.2).
func (p *Pool) publishTX1(ctx context.Context, user, tokenIn ledger.Account, amountToPool, protocolFee *uint256.Int) ([]byte, error) {
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	builder := p.client.NewTransaction(user).
		Send(p.poolAddress, amountToPool.ToBig(), tokenIn, ledger.Account{})
	if !protocolFee.IsZero() {
		builder = builder.Send(p.treasury, protocolFee.ToBig(), tokenIn, ledger.Account{})
	}

	result, err := p.client.Publish(callCtx, user, builder)
	if err != nil {
		return nil, err
	}
	if len(result.BlockHashes) > 0 {
		return result.BlockHashes[0], nil
	}
	return nil, nil
}

// refundSwap returns amountToPool to the user, best-effort, per spec §7's
// recovery path for a post-TX1 failure.
func (p *Pool) refundSwap(ctx context.Context, user, tokenIn ledger.Account, amountToPool *uint256.Int, reason string) {
	callCtx, cancel := ledger.WithDeadline(ctx, p.cfg.LedgerCallDeadline)
	defer cancel()

	builder := p.client.NewTransaction(p.operator).
		Send(user, amountToPool.ToBig(), tokenIn, p.poolAddress)
	result, err := p.client.Publish(callCtx, p.operator, builder)
	if err != nil {
		p.logger.Error("refund failed", slog.String("pool", p.poolAddress.String()), slog.String("reason", reason), slog.String("error", err.Error()))
		return
	}
	var txHash []byte
	if len(result.BlockHashes) > 0 {
		txHash = result.BlockHashes[0]
	}
	p.hist.record(historyEntry{
		Time: time.Now().UTC(), Kind: "refund", User: user.String(),
		TokenIn: tokenIn.String(), AmountIn: amountToPool.Dec(),
		TxHash: hashHex(txHash), Note: reason,
	})
}

// waitForInclusion polls account's balance of token until it reaches
// before+amount, resolving the Q2 open question by polling rather than
// sleeping, bounded by SettlementPollTimeout with a 1s floor (spec §4.4.2).
// before must be captured prior to publishing the transaction being waited
// on, since a real ledger's BalancesOf may lag the block that included it.
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

// balanceOf returns account's balance of token, or zero if unreadable.
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

// recordSwapEvent persists a swap_events row. Repository failures are
// logged, never surfaced to the caller, per spec §4.3's non-critical
// failure policy ("the ledger is the source of truth").
func (p *Pool) recordSwapEvent(ctx context.Context, tokenIn, tokenOut ledger.Account, amountIn, amountOut, amountToPool *uint256.Int, user ledger.Account, txHash []byte) {
	if p.repo == nil {
		return
	}
	err := p.repo.RecordSwap(ctx, repository.SwapEventRow{
		PoolAddress:  p.poolAddress.String(),
		TokenIn:      tokenIn.String(),
		TokenOut:     tokenOut.String(),
		AmountIn:     amountIn.Dec(),
		AmountOut:    amountOut.Dec(),
		FeeCollected: new(uint256.Int).Sub(amountIn, amountToPool).Dec(),
		User:         user.String(),
		TxHash:       hashHex(txHash),
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("swap event write failed", slog.String("pool", p.poolAddress.String()), slog.String("error", err.Error()))
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
