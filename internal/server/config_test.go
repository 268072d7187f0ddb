package server

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %q, want :5000", cfg.ListenAddr)
	}
	if cfg.Codec != "xor" {
		t.Errorf("Codec = %q, want xor", cfg.Codec)
	}
	if cfg.MaxConnections <= 0 || cfg.MaxLineLength <= 0 {
		t.Error("default caps must be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("CHATLINE_LISTEN_ADDR", ":6001")
	t.Setenv("CHATLINE_HTTP_ADDR", ":6002")
	t.Setenv("CHATLINE_KEY", "env-key")
	t.Setenv("CHATLINE_CODEC", "secretbox")
	t.Setenv("CHATLINE_MAX_CONNECTIONS", "7")
	t.Setenv("CHATLINE_READ_DEADLINE", "90")
	t.Setenv("CHATLINE_RATE_LIMIT_BURST", "3")
	t.Setenv("CHATLINE_RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("CHATLINE_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CHATLINE_CONNECTION_LOG", "/tmp/conn.log")

	cfg := NewConfigFromEnv()

	if cfg.ListenAddr != ":6001" || cfg.HTTPAddr != ":6002" {
		t.Errorf("addresses = %q/%q", cfg.ListenAddr, cfg.HTTPAddr)
	}
	if cfg.Key != "env-key" || cfg.Codec != "secretbox" {
		t.Errorf("key/codec = %q/%q", cfg.Key, cfg.Codec)
	}
	if cfg.MaxConnections != 7 {
		t.Errorf("MaxConnections = %d, want 7", cfg.MaxConnections)
	}
	if cfg.ReadDeadline != 90*time.Second {
		t.Errorf("ReadDeadline = %v, want 90s", cfg.ReadDeadline)
	}
	if cfg.RateLimit.Burst != 3 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.ConnectionLog != "/tmp/conn.log" {
		t.Errorf("ConnectionLog = %q", cfg.ConnectionLog)
	}
}

func TestNewConfigFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("CHATLINE_MAX_CONNECTIONS", "many")
	t.Setenv("CHATLINE_READ_DEADLINE", "-5")

	cfg := NewConfigFromEnv()
	def := NewConfig()

	if cfg.MaxConnections != def.MaxConnections {
		t.Errorf("MaxConnections = %d, want default %d", cfg.MaxConnections, def.MaxConnections)
	}
	if cfg.ReadDeadline != def.ReadDeadline {
		t.Errorf("ReadDeadline = %v, want default %v", cfg.ReadDeadline, def.ReadDeadline)
	}
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	cfg.Key = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an empty key")
	}

	cfg = NewConfig()
	cfg.Codec = "rot13"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an unknown codec")
	}

	cfg = NewConfig()
	cfg.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an empty listen address")
	}
}

func TestSanitizedRepairsBadValues(t *testing.T) {
	cfg := &Config{
		ListenAddr: ":5000",
		Key:        "k",
		RateLimit:  RateLimitConfig{Burst: -1, RefillInterval: -1},
	}
	sane := cfg.sanitized()

	if sane.MaxConnections <= 0 || sane.MaxLineLength <= 0 {
		t.Error("sanitized left non-positive caps")
	}
	if sane.RateLimit.Burst <= 0 || sane.RateLimit.RefillInterval <= 0 {
		t.Error("sanitized left non-positive rate limit")
	}
	if sane.Codec != "xor" {
		t.Errorf("sanitized Codec = %q, want xor", sane.Codec)
	}
}
