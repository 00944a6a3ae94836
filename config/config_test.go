package config

import "testing"

func TestAdminConfigNormaliseRequiresClientCAForMTLS(t *testing.T) {
	cfg := AdminConfig{
		MTLS: MTLSConfig{Enabled: true},
		TLS:  TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"},
	}

	err := cfg.normalise("")
	if err == nil {
		t.Fatalf("expected error when mTLS is enabled without a client CA file")
	}
}

func TestAdminConfigNormaliseAllowsMTLSWithClientCA(t *testing.T) {
	cfg := AdminConfig{
		MTLS: MTLSConfig{Enabled: true, ClientCAFile: "ca.pem"},
		TLS:  TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"},
	}

	if err := cfg.normalise(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.MTLS.Enabled {
		t.Fatalf("expected mTLS to remain enabled")
	}
}

func TestAdminConfigNormaliseDisablesMTLSWhenTLSAbsent(t *testing.T) {
	cfg := AdminConfig{MTLS: MTLSConfig{Enabled: true, ClientCAFile: "ca.pem"}}

	if err := cfg.normalise(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MTLS.Enabled {
		t.Fatalf("expected mTLS to be auto-disabled without TLS configured")
	}
}

func TestAdminConfigNormaliseRejectsBearerTokenWithoutTLS(t *testing.T) {
	cfg := AdminConfig{BearerToken: "secret"}

	if err := cfg.normalise(""); err == nil {
		t.Fatalf("expected error when bearer_token is set without TLS")
	}
}

func TestAdminConfigNormaliseRequiresAtLeastOneAuthMechanism(t *testing.T) {
	cfg := AdminConfig{TLS: TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}}

	if err := cfg.normalise(""); err == nil {
		t.Fatalf("expected error when neither bearer_token nor mtls is configured")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected default listen addr: %q", cfg.ListenAddr)
	}
	if cfg.Pool.DefaultSlippagePercent != 0.5 {
		t.Fatalf("unexpected default slippage: %v", cfg.Pool.DefaultSlippagePercent)
	}
	if cfg.Telemetry.Endpoint != "localhost:4318" {
		t.Fatalf("unexpected default telemetry endpoint: %q", cfg.Telemetry.Endpoint)
	}
}

func TestValidateRequiresTreasuryAddress(t *testing.T) {
	cfg := Config{DatabasePath: "coordinator.db"}
	applyDefaults(&cfg)

	if err := validate(cfg); err == nil {
		t.Fatalf("expected error when treasury_address is empty")
	}
}

func TestValidateRejectsNonPositiveRateLimit(t *testing.T) {
	cfg := Config{
		TreasuryAddress: "led1dummyaddress",
		DatabasePath:    "coordinator.db",
		RateLimit: map[string]RateLimitConfig{
			"quote": {RatePerSecond: 0, Burst: 10},
		},
	}
	applyDefaults(&cfg)

	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for a zero rate_per_second")
	}
}
