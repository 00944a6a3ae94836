// Package config loads the coordinator's YAML service configuration (spec
// §2.3's main config, kept separate from the candidate-pool TOML file
// poolmanager.LoadCandidates reads).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration unmarshals a human-readable duration string ("5s", "250ms") from
// YAML into a time.Duration.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// TLSConfig names the certificate/key pair the admin listener serves.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

func (t TLSConfig) disabled() bool {
	return strings.TrimSpace(t.CertFile) == "" && strings.TrimSpace(t.KeyFile) == ""
}

// MTLSConfig gates the admin listener's client-certificate requirement.
type MTLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientCAFile string `yaml:"client_ca_file"`
}

// AdminConfig configures access to the admin-only anchor-pool mutation and
// analytics-export endpoints (spec §4.6 "only the creator may call
// update_fee/update_status" is enforced in the anchor package itself; this
// layer gates *which caller* is even allowed to present a creator address).
type AdminConfig struct {
	BearerToken     string     `yaml:"bearer_token"`
	BearerTokenFile string     `yaml:"bearer_token_file"`
	MTLS            MTLSConfig `yaml:"mtls"`
	TLS             TLSConfig  `yaml:"tls"`
}

// normalise resolves BearerTokenFile (if set) relative to baseDir and
// enforces the "auth requires TLS" invariant, auto-disabling mTLS when no
// TLS cert/key is configured. With TLS configured, at least one of
// bearer_token or mtls is required, and mtls requires client_ca_file.
func (a *AdminConfig) normalise(baseDir string) error {
	if strings.TrimSpace(a.BearerTokenFile) != "" {
		path := a.BearerTokenFile
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read admin.bearer_token_file: %w", err)
		}
		a.BearerToken = strings.TrimSpace(string(data))
	}
	if !filepath.IsAbs(a.TLS.CertFile) && a.TLS.CertFile != "" && baseDir != "" {
		a.TLS.CertFile = filepath.Join(baseDir, a.TLS.CertFile)
	}
	if !filepath.IsAbs(a.TLS.KeyFile) && a.TLS.KeyFile != "" && baseDir != "" {
		a.TLS.KeyFile = filepath.Join(baseDir, a.TLS.KeyFile)
	}
	if a.TLS.disabled() {
		a.MTLS.Enabled = false
	}
	if a.BearerToken != "" && a.TLS.disabled() {
		return fmt.Errorf("config: admin.bearer_token requires admin.tls to be configured")
	}
	if a.MTLS.Enabled && a.TLS.disabled() {
		return fmt.Errorf("config: admin.mtls requires admin.tls to be configured")
	}
	if a.MTLS.Enabled && strings.TrimSpace(a.MTLS.ClientCAFile) == "" {
		return fmt.Errorf("config: admin.mtls requires admin.mtls.client_ca_file")
	}
	if a.BearerToken == "" && !a.MTLS.Enabled && !a.TLS.disabled() {
		return fmt.Errorf("config: admin requires at least one of bearer_token or mtls")
	}
	return nil
}

// RateLimitConfig mirrors httpmw.RateLimit, kept as a distinct YAML-facing
// type so the wire format doesn't couple to httpmw's internal shape.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// PoolConfig is the YAML projection of pool.Config (spec §4.4.2's
// settlement-delay/default-slippage tunables).
type PoolConfig struct {
	LedgerCallDeadline     Duration `yaml:"ledger_call_deadline"`
	SettlementPollInterval Duration `yaml:"settlement_poll_interval"`
	SettlementPollTimeout  Duration `yaml:"settlement_poll_timeout"`
	DefaultSlippagePercent float64  `yaml:"default_slippage_percent"`
	HistoryLogPath         string   `yaml:"history_log_path"`
}

// TelemetryConfig is the YAML projection of observability.TelemetryConfig.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// Config is the coordinator's top-level service configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	Environment string `yaml:"environment"`

	DatabasePath       string `yaml:"database_path"`
	FileStorePath      string `yaml:"file_store_path"`
	CandidatePoolsFile string `yaml:"candidate_pools_file"`

	TreasuryAddress                string `yaml:"treasury_address"`
	OperatorKeystorePath           string `yaml:"operator_keystore_path"`
	OperatorKeystorePassphraseEnv  string `yaml:"operator_keystore_passphrase_env"`
	OperatorKeystorePassphraseFile string `yaml:"operator_keystore_passphrase_file"`

	Pool      PoolConfig                 `yaml:"pool"`
	Admin     AdminConfig                `yaml:"admin"`
	RateLimit map[string]RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig            `yaml:"telemetry"`

	AnalyticsExportDir string `yaml:"analytics_export_dir"`
}

// Option customises Load's behavior; currently only used by tests to skip
// admin normalisation against a fixture with no TLS material.
type Option func(*loadOptions)

type loadOptions struct {
	skipAdminNormalise bool
}

// SkipAdminNormalise disables AdminConfig.normalise, for tests that only
// care about the non-admin fields.
func SkipAdminNormalise() Option {
	return func(o *loadOptions) { o.skipAdminNormalise = true }
}

// Load reads and validates the coordinator's YAML config from path.
func Load(path string, opts ...Option) (Config, error) {
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)

	if !options.skipAdminNormalise {
		if err := cfg.Admin.normalise(filepath.Dir(path)); err != nil {
			return Config{}, err
		}
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.FileStorePath == "" {
		cfg.FileStorePath = "pools.json"
	}
	if cfg.Pool.LedgerCallDeadline.Duration == 0 {
		cfg.Pool.LedgerCallDeadline = Duration{10 * time.Second}
	}
	if cfg.Pool.SettlementPollInterval.Duration == 0 {
		cfg.Pool.SettlementPollInterval = Duration{250 * time.Millisecond}
	}
	if cfg.Pool.SettlementPollTimeout.Duration == 0 {
		cfg.Pool.SettlementPollTimeout = Duration{time.Second}
	}
	if cfg.Pool.DefaultSlippagePercent == 0 {
		cfg.Pool.DefaultSlippagePercent = 0.5
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.TreasuryAddress) == "" {
		return fmt.Errorf("config: treasury_address is required")
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" && strings.TrimSpace(cfg.FileStorePath) == "" {
		return fmt.Errorf("config: at least one of database_path or file_store_path must be set")
	}
	if cfg.Pool.DefaultSlippagePercent < 0 || cfg.Pool.DefaultSlippagePercent > 50 {
		return fmt.Errorf("config: pool.default_slippage_percent must be in [0, 50]")
	}
	for key, rl := range cfg.RateLimit {
		if rl.RatePerSecond <= 0 || rl.Burst <= 0 {
			return fmt.Errorf("config: rate_limit[%s] must have positive rate_per_second and burst", key)
		}
	}
	return nil
}
