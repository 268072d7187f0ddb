// Package server provides configuration helpers that define runtime
// defaults, validation, and throttling parameters for the chatline relay.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration. HTTPAddr may be empty to disable the
// health/metrics/WebSocket sidecar entirely.
type Config struct {
	ListenAddr     string
	HTTPAddr       string
	Key            string
	Codec          string
	MaxConnections int
	MaxLineLength  int
	ReadDeadline   time.Duration
	AgentTimeout   time.Duration
	RateLimit      RateLimitConfig
	AllowedOrigins []string
	ConnectionLog  string
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		ListenAddr:     ":5000",
		HTTPAddr:       "",
		Key:            "demo-key",
		Codec:          "xor",
		MaxConnections: 256,
		MaxLineLength:  64 * 1024,
		ReadDeadline:   5 * time.Minute,
		AgentTimeout:   5 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		AllowedOrigins: []string{"http://localhost:8080"},
		ConnectionLog:  "server_connections.log",
	}
}

// NewConfigFromEnv creates a Config from CHATLINE_* environment variables,
// falling back to defaults for anything unset.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()

	if addr := os.Getenv("CHATLINE_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if addr := os.Getenv("CHATLINE_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if key := os.Getenv("CHATLINE_KEY"); key != "" {
		cfg.Key = key
	}
	if name := os.Getenv("CHATLINE_CODEC"); name != "" {
		cfg.Codec = name
	}
	if v := os.Getenv("CHATLINE_MAX_CONNECTIONS"); v != "" {
		cfg.MaxConnections = parseIntValue(v, cfg.MaxConnections)
	}
	if v := os.Getenv("CHATLINE_MAX_LINE_LENGTH"); v != "" {
		cfg.MaxLineLength = parseIntValue(v, cfg.MaxLineLength)
	}
	if v := os.Getenv("CHATLINE_READ_DEADLINE"); v != "" {
		cfg.ReadDeadline = parseSeconds(v, cfg.ReadDeadline)
	}
	if v := os.Getenv("CHATLINE_AGENT_TIMEOUT"); v != "" {
		cfg.AgentTimeout = parseSeconds(v, cfg.AgentTimeout)
	}
	if v := os.Getenv("CHATLINE_RATE_LIMIT_BURST"); v != "" {
		cfg.RateLimit.Burst = parseIntValue(v, cfg.RateLimit.Burst)
	}
	if v := os.Getenv("CHATLINE_RATE_LIMIT_REFILL_INTERVAL"); v != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(v, cfg.RateLimit.RefillInterval)
	}
	if origins := os.Getenv("CHATLINE_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if path := os.Getenv("CHATLINE_CONNECTION_LOG"); path != "" {
		cfg.ConnectionLog = path
	}

	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Key == "" {
		return fmt.Errorf("shared key is required")
	}
	switch c.Codec {
	case "", "xor", "secretbox":
	default:
		return fmt.Errorf("unknown codec %q (want xor or secretbox)", c.Codec)
	}
	return nil
}

// sanitized returns a copy with out-of-range values replaced by defaults so
// the rest of the package never re-checks them.
func (c *Config) sanitized() Config {
	cfg := *c
	cfg.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)

	def := NewConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Codec == "" {
		cfg.Codec = def.Codec
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = def.MaxLineLength
	}
	if cfg.ReadDeadline < 0 {
		cfg.ReadDeadline = def.ReadDeadline
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = def.AgentTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
