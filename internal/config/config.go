// Copyright 2025 Joseph Cumines
//
// Configuration package for the operations client and tools

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"google.golang.org/grpc/codes"
)

// Config holds the configuration for the operations client, the CLI and the
// MCP server.
//
// Values are read from an optional TOML file named by LRO_CONFIG_FILE, then
// overridden by environment variables.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	ServerAddr     string        `toml:"server_addr"`
	ServerCertFile string        `toml:"server_cert_file"`
	Token          string        `toml:"token"`
	AuditLogFile   string        `toml:"audit_log_file"`
	MetricsAddr    string        `toml:"metrics_addr"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	PollInterval   time.Duration `toml:"poll_interval"`
	Retry          RetryConfig   `toml:"retry"`
	RateLimit      float64       `toml:"rate_limit"`
	ServerTLS      bool          `toml:"server_tls"`
	Debug          bool          `toml:"debug"`
}

// RetryConfig is the retry policy applied to idempotent calls. An empty
// Codes list disables retries.
type RetryConfig struct {
	Codes      []string      `toml:"codes"`
	Initial    time.Duration `toml:"initial"`
	Max        time.Duration `toml:"max"`
	Multiplier float64       `toml:"multiplier"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerAddr:     "localhost:50051",
		RequestTimeout: 30 * time.Second,
		PollInterval:   time.Second,
		Retry: RetryConfig{
			Codes:      []string{"Unavailable"},
			Initial:    100 * time.Millisecond,
			Max:        10 * time.Second,
			Multiplier: 1.3,
		},
	}
}

// Load loads the configuration from the optional config file and environment
// variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("LRO_CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	var err error
	cfg.ServerAddr = getEnv("LRO_SERVER_ADDR", cfg.ServerAddr)
	cfg.ServerTLS = getEnvAsBool("LRO_SERVER_TLS", cfg.ServerTLS)
	cfg.ServerCertFile = getEnv("LRO_SERVER_CERT_FILE", cfg.ServerCertFile)
	cfg.Token = getEnv("LRO_TOKEN", cfg.Token)
	cfg.Debug = getEnvAsBool("LRO_DEBUG", cfg.Debug)
	cfg.AuditLogFile = getEnv("LRO_AUDIT_LOG_FILE", cfg.AuditLogFile)
	cfg.MetricsAddr = getEnv("LRO_METRICS_ADDR", cfg.MetricsAddr)

	if cfg.RequestTimeout, err = getEnvAsDuration("LRO_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvAsDuration("LRO_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getEnvAsFloat("LRO_RATE_LIMIT", cfg.RateLimit); err != nil {
		return nil, err
	}
	if cfg.Retry.Initial, err = getEnvAsDuration("LRO_RETRY_INITIAL", cfg.Retry.Initial); err != nil {
		return nil, err
	}
	if cfg.Retry.Max, err = getEnvAsDuration("LRO_RETRY_MAX", cfg.Retry.Max); err != nil {
		return nil, err
	}
	if cfg.Retry.Multiplier, err = getEnvAsFloat("LRO_RETRY_MULTIPLIER", cfg.Retry.Multiplier); err != nil {
		return nil, err
	}
	if value, ok := os.LookupEnv("LRO_RETRY_CODES"); ok {
		cfg.Retry.Codes = splitList(value)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.Token != "" && !c.ServerTLS {
		return fmt.Errorf("LRO_TOKEN requires LRO_SERVER_TLS: bearer tokens are not sent over insecure connections")
	}
	if c.ServerCertFile != "" && !c.ServerTLS {
		return fmt.Errorf("LRO_SERVER_CERT_FILE requires LRO_SERVER_TLS")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid value for LRO_REQUEST_TIMEOUT: %s (must not be negative)", c.RequestTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid value for LRO_POLL_INTERVAL: %s (must be positive)", c.PollInterval)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid value for LRO_RATE_LIMIT: %g (must not be negative)", c.RateLimit)
	}
	if len(c.Retry.Codes) > 0 {
		if c.Retry.Initial <= 0 || c.Retry.Max < c.Retry.Initial {
			return fmt.Errorf("invalid retry backoff: initial %s, max %s", c.Retry.Initial, c.Retry.Max)
		}
		if c.Retry.Multiplier < 1 {
			return fmt.Errorf("invalid value for LRO_RETRY_MULTIPLIER: %g (must be at least 1)", c.Retry.Multiplier)
		}
	}
	if _, err := c.Retry.GRPCCodes(); err != nil {
		return err
	}
	return nil
}

// GRPCCodes parses Codes into grpc status codes. Names are matched case
// insensitively and may use either "Unavailable" or "UNAVAILABLE" style.
func (r RetryConfig) GRPCCodes() ([]codes.Code, error) {
	out := make([]codes.Code, 0, len(r.Codes))
	for _, name := range r.Codes {
		code, ok := codeByName[strings.ToLower(strings.ReplaceAll(name, "_", ""))]
		if !ok {
			return nil, fmt.Errorf("invalid value for LRO_RETRY_CODES: unknown code %q", name)
		}
		out = append(out, code)
	}
	return out, nil
}

var codeByName = func() map[string]codes.Code {
	m := make(map[string]codes.Code, 17)
	for c := codes.OK; c <= codes.Unauthenticated; c++ {
		m[strings.ToLower(c.String())] = c
	}
	// codes.Canceled.String() is "Canceled"; accept the proto spelling too
	m["cancelled"] = codes.Canceled
	return m
}()

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected number)", key, value)
	}
	return f, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected duration, e.g., '30s', '5m')", key, value)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
