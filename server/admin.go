package server

import (
	"net/http"
	"time"

	"ammrelay/analytics"
	"ammrelay/apierr"
)

// handleAnalyticsExport serves GET /admin/analytics/export: a parquet
// snapshot of every known pool's current TVL/volume/APY (spec §4.7's
// reporting surface), streamed directly to the response rather than
// buffered on disk.
func (s *Server) handleAnalyticsExport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.PriceFeed == nil {
		writeError(w, apierr.Newf(apierr.InvalidInput, "no price feed configured"))
		return
	}
	prices := s.cfg.PriceFeed.Prices()
	generatedAt := time.Now()

	var snapshotRows []analytics.SnapshotRow
	for _, p := range s.cfg.Pools.AllPools() {
		if err := p.RefreshReserves(r.Context()); err != nil {
			continue
		}
		row, err := findPoolRow(r.Context(), s.repository(), p.Address())
		if err != nil {
			continue
		}
		rows, err := s.repository().Volume24hRows(r.Context(), row.PoolAddress)
		if err != nil {
			continue
		}
		reserveA, reserveB := p.Reserves()
		snap := analytics.Calc(analytics.Input{
			PoolAddress: row.PoolAddress,
			TokenA:      row.TokenA,
			TokenB:      row.TokenB,
			DecimalsA:   row.DecimalsA,
			DecimalsB:   row.DecimalsB,
			ReserveA:    reserveA.ToBig(),
			ReserveB:    reserveB.ToBig(),
		}, rows, prices)
		snapshotRows = append(snapshotRows, snap.ToRow(generatedAt))
	}

	for _, p := range s.cfg.Anchors.AllPools() {
		if err := p.RefreshReserves(r.Context()); err != nil {
			continue
		}
		row, err := s.repository().GetAnchorPoolByAddress(r.Context(), p.Address().String())
		if err != nil {
			continue
		}
		rows, err := s.repository().AnchorVolume24hRows(r.Context(), p.Address().String())
		if err != nil {
			continue
		}
		reserveA, reserveB := p.Reserves()
		snap := analytics.Calc(analytics.Input{
			PoolAddress: row.PoolAddress,
			TokenA:      row.TokenA,
			TokenB:      row.TokenB,
			DecimalsA:   row.DecimalsA,
			DecimalsB:   row.DecimalsB,
			ReserveA:    reserveA.ToBig(),
			ReserveB:    reserveB.ToBig(),
			FeeBps:      row.FeeBps,
		}, rows, prices)
		snapshotRows = append(snapshotRows, snap.ToRow(generatedAt))
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="ammrelay-analytics.parquet"`)
	if err := analytics.ExportParquet(w, snapshotRows); err != nil {
		s.logger.Error("analytics export failed", "error", err)
	}
}
