package server

import (
	"encoding/hex"
	"net/http"

	"github.com/holiman/uint256"

	"ammrelay/apierr"
	"ammrelay/ledger"
)

type swapExecuteRequest struct {
	PoolAddress  string `json:"pool_address"`
	User         string `json:"user"`
	TokenIn      string `json:"token_in"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
}

type swapResponse struct {
	AmountOut string `json:"amount_out"`
	FeeAmount string `json:"fee_amount"`
	TX1Hash   string `json:"tx1_hash"`
	TX2Hash   string `json:"tx2_hash,omitempty"`
	Refunded  bool   `json:"refunded"`
}

// handleSwapExecute serves POST /swap/execute: the seed-wallet swap path of
// spec §4.4.2, where the coordinator signs TX1 on the user's behalf.
func (s *Server) handleSwapExecute(w http.ResponseWriter, r *http.Request) {
	var req swapExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	poolAddr, user, tokenIn, amountIn, minOut, err := parseSwapFields(req.PoolAddress, req.User, req.TokenIn, req.AmountIn, req.MinAmountOut)
	if err != nil {
		writeError(w, err)
		return
	}

	if p, ok := s.cfg.Pools.GetPoolByAddress(poolAddr); ok {
		result, err := p.Swap(r.Context(), user, tokenIn, amountIn, minOut)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, swapResultView(result.AmountOut.Dec(), result.FeeAmount.Dec(), result.TX1Hash, result.TX2Hash, result.Refunded))
		return
	}
	if p, ok := s.cfg.Anchors.GetPool(poolAddr); ok {
		result, err := p.Swap(r.Context(), user, tokenIn, amountIn, minOut)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, swapResultView(result.AmountOut.Dec(), result.FeeAmount.Dec(), result.TX1Hash, result.TX2Hash, result.Refunded))
		return
	}
	writeError(w, apierr.New(apierr.PoolNotFound, nil))
}

type swapCompleteRequest struct {
	PoolAddress string `json:"pool_address"`
	User        string `json:"user"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
}

// handleSwapComplete serves the TX2 phase for user-wallet swaps, where the
// caller already published TX1 externally and the coordinator only
// completes settlement (spec §4.4.2's two-phase protocol).
func (s *Server) handleSwapComplete(w http.ResponseWriter, r *http.Request) {
	var req swapCompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	poolAddr, err := parseAccount(req.PoolAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := parseAccount(req.User)
	if err != nil {
		writeError(w, err)
		return
	}
	tokenIn, err := parseAccount(req.TokenIn)
	if err != nil {
		writeError(w, err)
		return
	}
	tokenOut, err := parseAccount(req.TokenOut)
	if err != nil {
		writeError(w, err)
		return
	}
	amountIn, err := parseAmount(req.AmountIn)
	if err != nil {
		writeError(w, err)
		return
	}
	amountOut, err := parseAmount(req.AmountOut)
	if err != nil {
		writeError(w, err)
		return
	}

	if p, ok := s.cfg.Pools.GetPoolByAddress(poolAddr); ok {
		result, err := p.CompleteSwap(r.Context(), user, tokenIn, tokenOut, amountIn, amountOut)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, swapResultView(result.AmountOut.Dec(), result.FeeAmount.Dec(), result.TX1Hash, result.TX2Hash, result.Refunded))
		return
	}
	if p, ok := s.cfg.Anchors.GetPool(poolAddr); ok {
		result, err := p.CompleteSwap(r.Context(), user, tokenIn, tokenOut, amountIn, amountOut)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, swapResultView(result.AmountOut.Dec(), result.FeeAmount.Dec(), result.TX1Hash, result.TX2Hash, result.Refunded))
		return
	}
	writeError(w, apierr.New(apierr.PoolNotFound, nil))
}

func parseSwapFields(poolAddress, user, tokenIn, amountIn, minAmountOut string) (pool, userAcct, token ledger.Account, amt, min *uint256.Int, err error) {
	if pool, err = parseAccount(poolAddress); err != nil {
		return
	}
	if userAcct, err = parseAccount(user); err != nil {
		return
	}
	if token, err = parseAccount(tokenIn); err != nil {
		return
	}
	if amt, err = parseAmount(amountIn); err != nil {
		return
	}
	min, err = parseAmount(minAmountOut)
	return
}

func swapResultView(amountOut, feeAmount string, tx1, tx2 []byte, refunded bool) swapResponse {
	v := swapResponse{AmountOut: amountOut, FeeAmount: feeAmount, TX1Hash: hex.EncodeToString(tx1), Refunded: refunded}
	if len(tx2) > 0 {
		v.TX2Hash = hex.EncodeToString(tx2)
	}
	return v
}
