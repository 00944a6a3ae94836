package server

import (
	"fmt"
	"net/http"

	"ammrelay/anchor"
	"ammrelay/apierr"
	"ammrelay/httpmw"
)

type anchorPoolView struct {
	Address        string `json:"address"`
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	LPTokenAddress string `json:"lp_token_address"`
	Creator        string `json:"creator"`
	FeeBps         uint32 `json:"fee_bps"`
	Status         string `json:"status"`
}

func anchorView(p *anchor.Pool) anchorPoolView {
	return anchorPoolView{
		Address:        p.Address().String(),
		TokenA:         p.TokenA().String(),
		TokenB:         p.TokenB().String(),
		LPTokenAddress: p.LPTokenAddress().String(),
		Creator:        p.Creator().String(),
		FeeBps:         p.FeeBps(),
		Status:         string(p.Status()),
	}
}

// handleAnchorList serves GET /anchor-pools.
func (s *Server) handleAnchorList(w http.ResponseWriter, r *http.Request) {
	pools := s.cfg.Anchors.AllPools()
	views := make([]anchorPoolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, anchorView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"anchor_pools": views})
}

// handleAnchorByCreator serves GET /anchor-pools/creator/:address.
func (s *Server) handleAnchorByCreator(w http.ResponseWriter, r *http.Request) {
	creator, err := parseAccount(chiURLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	pools := s.cfg.Anchors.PoolsByCreator(creator)
	views := make([]anchorPoolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, anchorView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"anchor_pools": views})
}

// handleAnchorGet serves GET /anchor-pools/:address.
func (s *Server) handleAnchorGet(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount(chiURLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, ok := s.cfg.Anchors.GetPool(addr)
	if !ok {
		writeError(w, apierr.New(apierr.PoolNotFound, nil))
		return
	}
	writeJSON(w, http.StatusOK, anchorView(p))
}

type anchorCreateRequest struct {
	TokenA    string `json:"token_a"`
	TokenB    string `json:"token_b"`
	Creator   string `json:"creator"`
	FeeBps    uint32 `json:"fee_bps"`
	DecimalsA uint8  `json:"decimals_a"`
	DecimalsB uint8  `json:"decimals_b"`
}

// handleAnchorCreate serves POST /anchor-pools/create (spec §4.6).
func (s *Server) handleAnchorCreate(w http.ResponseWriter, r *http.Request) {
	var req anchorCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tokenA, err := parseAccount(req.TokenA)
	if err != nil {
		writeError(w, err)
		return
	}
	tokenB, err := parseAccount(req.TokenB)
	if err != nil {
		writeError(w, err)
		return
	}
	creator, err := parseAccount(req.Creator)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.cfg.Anchors.CreatePool(r.Context(), tokenA, tokenB, creator, req.FeeBps, req.DecimalsA, req.DecimalsB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, anchorView(p))
}

// handleAnchorMintLP serves POST /anchor-pools/mint-lp: a creator-owned
// pool's seed-wallet liquidity deposit, minting LP tokens in a single call
// (spec §4.6 gives the creator no separate TX1/TX2 split for this action).
func (s *Server) handleAnchorMintLP(w http.ResponseWriter, r *http.Request) {
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
	p, ok := s.cfg.Anchors.GetPool(poolAddr)
	if !ok {
		writeError(w, apierr.New(apierr.PoolNotFound, nil))
		return
	}
	result, err := p.AddLiquidity(r.Context(), user, aDesired, bDesired, aMin, bMin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
}

type anchorUpdateFeeRequest struct {
	PoolAddress string `json:"pool_address"`
	Caller      string `json:"caller"`
	NewFeeBps   uint32 `json:"new_fee_bps"`
}

// handleAnchorUpdateFee serves POST /anchor-pools/update-fee, admin-gated;
// the creator-only check itself is enforced inside anchor.Pool.UpdateFee.
func (s *Server) handleAnchorUpdateFee(w http.ResponseWriter, r *http.Request) {
	var req anchorUpdateFeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	poolAddr, err := parseAccount(req.PoolAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAccount(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	p, ok := s.cfg.Anchors.GetPool(poolAddr)
	if !ok {
		writeError(w, apierr.New(apierr.PoolNotFound, nil))
		return
	}
	if err := p.UpdateFee(r.Context(), caller, req.NewFeeBps); err != nil {
		writeError(w, err)
		return
	}
	s.recordAdminMutation(httpmw.RequestIDFromContext(r.Context()), poolAddr.String(), caller.String(), "fee_bps", fmt.Sprint(req.NewFeeBps))
	writeJSON(w, http.StatusOK, anchorView(p))
}

type anchorUpdateStatusRequest struct {
	PoolAddress string `json:"pool_address"`
	Caller      string `json:"caller"`
	NewStatus   string `json:"new_status"`
}

// handleAnchorUpdateStatus serves POST /anchor-pools/update-status.
func (s *Server) handleAnchorUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req anchorUpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	poolAddr, err := parseAccount(req.PoolAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := parseAccount(req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	status := anchor.Status(req.NewStatus)
	if !status.Valid() {
		writeError(w, apierr.Newf(apierr.InvalidInput, "invalid status %q", req.NewStatus))
		return
	}
	p, ok := s.cfg.Anchors.GetPool(poolAddr)
	if !ok {
		writeError(w, apierr.New(apierr.PoolNotFound, nil))
		return
	}
	if err := p.UpdateStatus(r.Context(), caller, status); err != nil {
		writeError(w, err)
		return
	}
	s.recordAdminMutation(httpmw.RequestIDFromContext(r.Context()), poolAddr.String(), caller.String(), "status", string(status))
	writeJSON(w, http.StatusOK, anchorView(p))
}

// handleAnchorRemoveLiquidity serves POST /anchor-pools/remove-liquidity,
// the seed-wallet counterpart of handleAnchorMintLP.
func (s *Server) handleAnchorRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
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
	p, ok := s.cfg.Anchors.GetPool(poolAddr)
	if !ok {
		writeError(w, apierr.New(apierr.PoolNotFound, nil))
		return
	}
	result, err := p.RemoveLiquidity(r.Context(), user, shares, aMin, bMin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityView(result.AmountA.Dec(), result.AmountB.Dec(), result.Shares.Dec(), result.TX1Hash, result.TX2Hash))
}
