// Package server implements C8 of the specification: the HTTP surface
// through which wallets and operators drive the pool and anchor-pool
// managers (spec §4.8). It is a thin transport layer; every invariant it
// enforces (slippage, fee gating, creator-only mutation) lives in pool,
// anchor, and poolmanager, and is merely rendered here as apierr's status
// codes.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ammrelay/analytics"
	"ammrelay/anchor"
	"ammrelay/httpmw"
	"ammrelay/ledger"
	"ammrelay/poolmanager"
	"ammrelay/repository"
)

// Config wires the server to its collaborators. PriceFeed is optional; a
// nil feed makes every analytics snapshot return with its TVL/volume/APY
// fields unknown, per spec §4.7.
type Config struct {
	Pools   *poolmanager.Manager
	Anchors *anchor.Registry
	Repo    *repository.Repository

	// OperatorKey, when set, signs the audit digest attached to every
	// admin mutation (update_fee, update_status); nil disables signing
	// without disabling the mutation itself.
	OperatorKey *ledger.OperatorKey

	PriceFeed PriceFeed

	CORS          httpmw.CORSConfig
	RateLimits    map[string]httpmw.RateLimit
	Observability httpmw.ObservabilityConfig
	Admin         AdminAuth

	DefaultSlippagePercent float64
}

// PriceFeed supplies the reference-unit prices analytics.Calc needs. The
// coordinator holds no oracle of its own; callers inject whatever feed they
// operate (spec §4.7).
type PriceFeed interface {
	Prices() analytics.PriceMap
}

// Server is the coordinator's HTTP surface.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New builds a Server and its full route table. logger defaults to
// slog.Default() when nil.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultSlippagePercent <= 0 {
		cfg.DefaultSlippagePercent = 0.5
	}
	s := &Server{cfg: cfg, logger: logger}
	s.router = s.buildRouter()
	return s
}

// Handler returns the assembled http.Handler, ready for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)

	obs := httpmw.NewObservability(s.cfg.Observability, s.logger)
	limiter := httpmw.NewRateLimiter(s.cfg.RateLimits)
	cors := httpmw.CORS(s.cfg.CORS)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", obs.MetricsHandler())

	r.Route("/", func(pub chi.Router) {
		pub.Use(cors)

		mount := func(method, path, route string, h http.HandlerFunc) {
			wrapped := obs.Middleware(route)(limiter.Middleware(route)(h))
			pub.Method(method, path, wrapped)
		}

		mount(http.MethodGet, "/pools", "pools.list", s.handleListPools)
		mount(http.MethodGet, "/pools/{address}/stats", "pools.stats", s.handlePoolStats)
		mount(http.MethodPost, "/quote", "quote", s.handleQuote)

		mount(http.MethodPost, "/swap/execute", "swap.execute", s.handleSwapExecute)
		mount(http.MethodPost, "/swap/keythings/complete", "swap.keythings_complete", s.handleSwapComplete)

		mount(http.MethodPost, "/liquidity/add", "liquidity.add", s.handleLiquidityAdd)
		mount(http.MethodPost, "/liquidity/keythings/complete", "liquidity.keythings_complete", s.handleLiquidityAddComplete)
		mount(http.MethodPost, "/liquidity/keythings/remove-complete", "liquidity.keythings_remove_complete", s.handleLiquidityRemoveComplete)
		mount(http.MethodGet, "/liquidity/positions/{address}", "liquidity.positions", s.handleUserPositions)

		mount(http.MethodGet, "/anchor-pools", "anchor.list", s.handleAnchorList)
		mount(http.MethodGet, "/anchor-pools/creator/{address}", "anchor.by_creator", s.handleAnchorByCreator)
		mount(http.MethodGet, "/anchor-pools/{address}", "anchor.get", s.handleAnchorGet)
		mount(http.MethodPost, "/anchor-pools/create", "anchor.create", s.handleAnchorCreate)
		mount(http.MethodPost, "/anchor-pools/mint-lp", "anchor.mint_lp", s.handleAnchorMintLP)

		pub.Group(func(admin chi.Router) {
			admin.Use(s.cfg.Admin.Middleware())
			adminMount := func(method, path, route string, h http.HandlerFunc) {
				wrapped := obs.Middleware(route)(h)
				admin.Method(method, path, wrapped)
			}
			adminMount(http.MethodPost, "/anchor-pools/update-fee", "anchor.update_fee", s.handleAnchorUpdateFee)
			adminMount(http.MethodPost, "/anchor-pools/update-status", "anchor.update_status", s.handleAnchorUpdateStatus)
			adminMount(http.MethodPost, "/anchor-pools/remove-liquidity", "anchor.remove_liquidity", s.handleAnchorRemoveLiquidity)
			adminMount(http.MethodGet, "/admin/analytics/export", "admin.analytics_export", s.handleAnalyticsExport)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
