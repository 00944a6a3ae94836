package server

import (
	"net/http"

	"ammrelay/apierr"
)

type quoteRequest struct {
	PoolAddress     string  `json:"pool_address"`
	TokenIn         string  `json:"token_in"`
	AmountIn        string  `json:"amount_in"`
	SlippagePercent float64 `json:"slippage_percent"`
}

type quoteResponse struct {
	AmountOut    string `json:"amount_out"`
	FeeAmount    string `json:"fee_amount"`
	MinAmountOut string `json:"min_amount_out"`
	PriceImpact  string `json:"price_impact_percent"`
}

// handleQuote serves POST /quote (spec §4.4.1), routing to whichever of the
// standard or anchor pool registries owns PoolAddress.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	poolAddr, err := parseAccount(req.PoolAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	tokenIn, err := parseAccount(req.TokenIn)
	if err != nil {
		writeError(w, err)
		return
	}
	amountIn, err := parseAmount(req.AmountIn)
	if err != nil {
		writeError(w, err)
		return
	}
	slippage := req.SlippagePercent
	if slippage <= 0 {
		slippage = s.cfg.DefaultSlippagePercent
	}

	if p, ok := s.cfg.Pools.GetPoolByAddress(poolAddr); ok {
		q, err := p.Quote(r.Context(), tokenIn, amountIn, slippage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quoteResponse{
			AmountOut:    q.AmountOut.Dec(),
			FeeAmount:    q.FeeAmount.Dec(),
			MinAmountOut: q.MinAmountOut.Dec(),
			PriceImpact:  q.PriceImpact.FloatString(6),
		})
		return
	}
	if p, ok := s.cfg.Anchors.GetPool(poolAddr); ok {
		q, err := p.Quote(r.Context(), tokenIn, amountIn, slippage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quoteResponse{
			AmountOut:    q.AmountOut.Dec(),
			FeeAmount:    q.FeeAmount.Dec(),
			MinAmountOut: q.MinAmountOut.Dec(),
			PriceImpact:  q.PriceImpact.FloatString(6),
		})
		return
	}
	writeError(w, apierr.New(apierr.PoolNotFound, nil))
}
