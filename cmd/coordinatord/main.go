// Command coordinatord runs the AMM coordinator service: it loads the YAML
// config, opens the pool/anchor repositories, builds the PoolManager and
// AnchorRegistry, and serves the HTTP surface described in spec §4.8.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ammrelay/anchor"
	"ammrelay/cmd/internal/passphrase"
	"ammrelay/config"
	"ammrelay/filestore"
	"ammrelay/httpmw"
	"ammrelay/ledger"
	"ammrelay/observability"
	"ammrelay/pool"
	"ammrelay/poolmanager"
	"ammrelay/repository"
	"ammrelay/server"
)

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to coordinatord configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	if strings.TrimSpace(cfgPath) == "" {
		fmt.Fprintln(os.Stderr, "coordinatord: -config is required")
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("AMMRELAY_ENV"))
	logger := observability.Setup("coordinatord", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName: "coordinatord",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	treasury, err := ledger.AccountFromAddress(cfg.TreasuryAddress)
	if err != nil {
		logger.Error("parse treasury_address", "error", err)
		os.Exit(1)
	}

	configDir := filepath.Dir(cfgPath)

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		logger.Error("database_path is required", "reason", "poolmanager and anchor both require a repository")
		os.Exit(1)
	}
	repo, err := repository.Open(resolvePath(configDir, cfg.DatabasePath))
	if err != nil {
		logger.Error("open repository", "error", err)
		os.Exit(1)
	}

	store := filestore.Open(resolvePath(configDir, cfg.FileStorePath))

	var candidates []ledger.Account
	if strings.TrimSpace(cfg.CandidatePoolsFile) != "" {
		candidates, err = poolmanager.LoadCandidates(resolvePath(configDir, cfg.CandidatePoolsFile))
		if err != nil {
			logger.Error("load candidate pools", "error", err)
			os.Exit(1)
		}
	}

	client := ledger.NewMemoryClient()

	var operatorKey *ledger.OperatorKey
	if strings.TrimSpace(cfg.OperatorKeystorePath) != "" {
		source := passphrase.NewSource(cfg.OperatorKeystorePassphraseEnv, resolvePath(configDir, cfg.OperatorKeystorePassphraseFile))
		phrase, err := source.Get()
		if err != nil {
			logger.Error("resolve operator keystore passphrase", "error", err)
			os.Exit(1)
		}
		operatorKey, err = ledger.LoadOperatorKeyFromKeystore(resolvePath(configDir, cfg.OperatorKeystorePath), phrase)
		if err != nil {
			logger.Error("load operator keystore", "error", err)
			os.Exit(1)
		}
	}

	operator := treasury
	if operatorKey != nil {
		operator = operatorKey.Account()
	}

	poolCfg := poolmanager.Config{
		Treasury: treasury,
		Operator: operator,
		PoolConfig: pool.Config{
			LedgerCallDeadline:     cfg.Pool.LedgerCallDeadline.Duration,
			SettlementPollInterval: cfg.Pool.SettlementPollInterval.Duration,
			SettlementPollTimeout:  cfg.Pool.SettlementPollTimeout.Duration,
			DefaultSlippagePercent: cfg.Pool.DefaultSlippagePercent,
			HistoryLogPath:         resolvePath(configDir, cfg.Pool.HistoryLogPath),
		},
		CandidatePools: candidates,
	}
	pools := poolmanager.New(client, repo, store, poolCfg, logger)
	if err := pools.Initialize(ctx); err != nil {
		logger.Error("initialize pool manager", "error", err)
		os.Exit(1)
	}

	anchors := anchor.NewRegistry(client, repo, anchor.RegistryConfig{
		Operator: operator,
		PoolCfg: anchor.Config{
			LedgerCallDeadline:     cfg.Pool.LedgerCallDeadline.Duration,
			SettlementPollInterval: cfg.Pool.SettlementPollInterval.Duration,
			SettlementPollTimeout:  cfg.Pool.SettlementPollTimeout.Duration,
			DefaultSlippagePercent: cfg.Pool.DefaultSlippagePercent,
		},
	}, logger)
	if err := anchors.Initialize(ctx); err != nil {
		logger.Error("initialize anchor registry", "error", err)
		os.Exit(1)
	}

	rateLimits := make(map[string]httpmw.RateLimit, len(cfg.RateLimit))
	for route, rl := range cfg.RateLimit {
		rateLimits[route] = httpmw.RateLimit{RatePerSecond: rl.RatePerSecond, Burst: rl.Burst}
	}

	srv := server.New(server.Config{
		Pools:       pools,
		Anchors:     anchors,
		Repo:        repo,
		OperatorKey: operatorKey,
		CORS: httpmw.CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: false,
		},
		RateLimits: rateLimits,
		Observability: httpmw.ObservabilityConfig{
			ServiceName: "coordinatord",
			LogRequests: true,
			Enabled:     true,
		},
		Admin: server.AdminAuth{
			BearerToken: cfg.Admin.BearerToken,
			RequireMTLS: cfg.Admin.MTLS.Enabled,
		},
		DefaultSlippagePercent: cfg.Pool.DefaultSlippagePercent,
	}, logger)

	tlsConfig, err := buildTLSConfig(configDir, cfg.Admin)
	if err != nil {
		logger.Error("configure TLS", "error", err)
		os.Exit(1)
	}
	if tlsConfig == nil && !allowInsecureFlag {
		if !strings.EqualFold(env, "dev") && !isLoopbackAddress(cfg.ListenAddr) {
			logger.Error("plaintext coordinatord mode is restricted to loopback listeners or dev environment")
			os.Exit(1)
		}
	}

	handler := srv.Handler()
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(handler, "coordinatord")
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if tlsConfig != nil {
		httpServer.TLSConfig = tlsConfig
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}

	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
		}
		logger.Info("listening", "scheme", scheme, "addr", listener.Addr().String())
		var serveErr error
		if tlsConfig != nil {
			serveErr = httpServer.Serve(tls.NewListener(listener, tlsConfig))
		} else {
			serveErr = httpServer.Serve(listener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve", "error", serveErr)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func buildTLSConfig(baseDir string, admin config.AdminConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, admin.TLS.CertFile)
	keyPath := resolvePath(baseDir, admin.TLS.KeyFile)
	if strings.TrimSpace(certPath) == "" && strings.TrimSpace(keyPath) == "" {
		return nil, nil
	}
	if strings.TrimSpace(certPath) == "" || strings.TrimSpace(keyPath) == "" {
		return nil, fmt.Errorf("admin.tls.cert_file and admin.tls.key_file must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if admin.MTLS.Enabled {
		caPath := resolvePath(baseDir, admin.MTLS.ClientCAFile)
		if strings.TrimSpace(caPath) == "" {
			return nil, fmt.Errorf("admin.mtls.enabled requires admin.mtls.client_ca_file")
		}
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse client CA file %s", caPath)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
