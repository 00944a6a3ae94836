package server

import (
	"encoding/hex"
	"net/http"

	"ammrelay/apierr"
)

type liquidityAddRequest struct {
	PoolAddress string `json:"pool_address"`
	User        string `json:"user"`
	ADesired    string `json:"a_desired"`
	BDesired    string `json:"b_desired"`
	AMin        string `json:"a_min"`
	BMin        string `json:"b_min"`
}

type liquidityResponse struct {
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
	Shares  string `json:"shares"`
	TX1Hash string `json:"tx1_hash"`
	TX2Hash string `json:"tx2_hash,omitempty"`
}

func liquidityView(amountA, amountB, shares string, tx1, tx2 []byte) liquidityResponse {
	v := liquidityResponse{AmountA: amountA, AmountB: amountB, Shares: shares, TX1Hash: hex.EncodeToString(tx1)}
	if len(tx2) > 0 {
		v.TX2Hash = hex.EncodeToString(tx2)
	}
	return v
}

// handleLiquidityAdd serves POST /liquidity/add (spec §4.4.3's seed-wallet
// add path).
func (s *Server) handleLiquidityAdd(w http.ResponseWriter, r *http.Request) {
	var req liquidityAddRequest
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
	aDesired, err := parseAmount(req.ADesired)
	if err != nil {
		writeError(w, err)
		return
	}
	bDesired, err := parseAmount(req.BDesired)
	if err != nil {
		writeError(w, err)
		return
	}
	aMin, err := parseAmount(req.AMin)
	if err != nil {
		writeError(w, err)
		return
	}
	bMin, err := parseAmount(req.BMin)
	if err != nil {
		writeError(w, err)
		return
	}

	if p, ok := s.cfg.Pools.GetPoolByAddress(poolAddr); ok {
		result, err := p.AddLiquidity(r.Context(), user, aDesired, bDesired, aMin, bMin)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
		return
	}
	if p, ok := s.cfg.Anchors.GetPool(poolAddr); ok {
		result, err := p.AddLiquidity(r.Context(), user, aDesired, bDesired, aMin, bMin)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
		return
	}
	writeError(w, apierr.New(apierr.PoolNotFound, nil))
}

type liquidityCompleteRequest struct {
	PoolAddress string `json:"pool_address"`
	User        string `json:"user"`
	A           string `json:"a"`
	B           string `json:"b"`
}

// handleLiquidityAddComplete serves the TX2 phase for user-wallet deposits.
func (s *Server) handleLiquidityAddComplete(w http.ResponseWriter, r *http.Request) {
	var req liquidityCompleteRequest
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
	a, err := parseAmount(req.A)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := parseAmount(req.B)
	if err != nil {
		writeError(w, err)
		return
	}

	if p, ok := s.cfg.Pools.GetPoolByAddress(poolAddr); ok {
		result, err := p.CompleteAddLiquidity(r.Context(), user, a, b)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
		return
	}
	if p, ok := s.cfg.Anchors.GetPool(poolAddr); ok {
		result, err := p.CompleteAddLiquidity(r.Context(), user, a, b)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
		return
	}
	writeError(w, apierr.New(apierr.PoolNotFound, nil))
}

type liquidityRemoveRequest struct {
	PoolAddress  string `json:"pool_address"`
	User         string `json:"user"`
	SharesToBurn string `json:"shares_to_burn"`
	AMin         string `json:"a_min"`
	BMin         string `json:"b_min"`
}

// handleLiquidityRemoveComplete serves the TX2 phase for user-wallet
// withdrawals, reusing liquidityRemoveRequest's shape.
func (s *Server) handleLiquidityRemoveComplete(w http.ResponseWriter, r *http.Request) {
	var req liquidityRemoveRequest
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
	shares, err := parseAmount(req.SharesToBurn)
	if err != nil {
		writeError(w, err)
		return
	}
	aMin, err := parseAmount(req.AMin)
	if err != nil {
		writeError(w, err)
		return
	}
	bMin, err := parseAmount(req.BMin)
	if err != nil {
		writeError(w, err)
		return
	}

	if p, ok := s.cfg.Pools.GetPoolByAddress(poolAddr); ok {
		result, err := p.CompleteRemoveLiquidity(r.Context(), user, shares, aMin, bMin)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
		return
	}
	if p, ok := s.cfg.Anchors.GetPool(poolAddr); ok {
		result, err := p.CompleteRemoveLiquidity(r.Context(), user, shares, aMin, bMin)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
		return
	}
	writeError(w, apierr.New(apierr.PoolNotFound, nil))
}

type positionView struct {
	PoolAddress  string `json:"pool_address"`
	TokenA       string `json:"token_a"`
	TokenB       string `json:"token_b"`
	Shares       string `json:"shares"`
	AmountA      string `json:"amount_a"`
	AmountB      string `json:"amount_b"`
	SharePercent string `json:"share_percent"`
}

// handleUserPositions serves GET /liquidity/positions/:address (spec
// §4.5's blockchain-first discovery, covering both standard and anchor
// pools since poolmanager.UserPositions decodes LP metadata directly).
func (s *Server) handleUserPositions(w http.ResponseWriter, r *http.Request) {
	user, err := parseAccount(chiURLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	positions, err := s.cfg.Pools.UserPositions(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionView{
			PoolAddress:  p.PoolAddress.String(),
			TokenA:       p.TokenA.String(),
			TokenB:       p.TokenB.String(),
			Shares:       p.Shares.Dec(),
			AmountA:      p.AmountA.Dec(),
			AmountB:      p.AmountB.Dec(),
			SharePercent: p.SharePercent.FloatString(6),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}
