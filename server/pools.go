package server

import (
	"context"
	"net/http"

	"ammrelay/analytics"
	"ammrelay/apierr"
	"ammrelay/ledger"
	"ammrelay/repository"
)

type poolView struct {
	Address        string `json:"address"`
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	LPTokenAddress string `json:"lp_token_address"`
	Creator        string `json:"creator"`
}

// handleListPools serves GET /pools: the registered standard pools known to
// this process (spec §4.8's pool directory).
func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.cfg.Pools.AllPools()
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, poolView{
			Address:        p.Address().String(),
			TokenA:         p.TokenA().String(),
			TokenB:         p.TokenB().String(),
			LPTokenAddress: p.LPTokenAddress().String(),
			Creator:        p.Creator().String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": views})
}

type statsView struct {
	PoolAddress     string  `json:"pool_address"`
	ReserveA        string  `json:"reserve_a"`
	ReserveB        string  `json:"reserve_b"`
	TVL             *string `json:"tvl,omitempty"`
	Volume24h       *string `json:"volume_24h,omitempty"`
	FeesCollected24 *string `json:"fees_collected_24h,omitempty"`
	APYPercent      *string `json:"apy_percent,omitempty"`
}

// handlePoolStats serves GET /pools/:address/stats: current reserves plus
// the analytics.Calc snapshot (spec §4.7), gated on whether the server has
// a PriceFeed configured.
func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount(chiURLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, ok := s.cfg.Pools.GetPoolByAddress(addr)
	if !ok {
		writeError(w, apierr.New(apierr.PoolNotFound, nil))
		return
	}
	if err := p.RefreshReserves(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	reserveA, reserveB := p.Reserves()

	row, err := findPoolRow(r.Context(), s.repository(), addr)
	if err != nil {
		writeError(w, err)
		return
	}

	view := statsView{
		PoolAddress: addr.String(),
		ReserveA:    reserveA.Dec(),
		ReserveB:    reserveB.Dec(),
	}
	if s.cfg.PriceFeed != nil {
		rows, err := s.repository().Volume24hRows(r.Context(), addr.String())
		if err != nil {
			writeError(w, err)
			return
		}
		snap := analytics.Calc(analytics.Input{
			PoolAddress: addr.String(),
			TokenA:      row.TokenA,
			TokenB:      row.TokenB,
			DecimalsA:   row.DecimalsA,
			DecimalsB:   row.DecimalsB,
			ReserveA:    reserveA.ToBig(),
			ReserveB:    reserveB.ToBig(),
		}, rows, s.cfg.PriceFeed.Prices())
		applySnapshot(&view, snap)
	}
	writeJSON(w, http.StatusOK, view)
}

func applySnapshot(view *statsView, snap analytics.Snapshot) {
	if snap.TVLKnown {
		v := snap.TVL.FloatString(8)
		view.TVL = &v
	}
	if snap.Volume24hKnown {
		v := snap.Volume24h.FloatString(8)
		view.Volume24h = &v
		fees := snap.FeesCollected24.FloatString(8)
		view.FeesCollected24 = &fees
	}
	if snap.APYKnown {
		v := snap.APY.FloatString(4)
		view.APYPercent = &v
	}
}

func (s *Server) repository() *repository.Repository {
	return s.cfg.Repo
}

func findPoolRow(ctx context.Context, repo *repository.Repository, addr ledger.Account) (repository.PoolRow, error) {
	rows, err := repo.LoadPools(ctx)
	if err != nil {
		return repository.PoolRow{}, apierr.New(apierr.Internal, err)
	}
	for _, row := range rows {
		if row.PoolAddress == addr.String() {
			return row, nil
		}
	}
	return repository.PoolRow{}, apierr.New(apierr.PoolNotFound, nil)
}
