// Package config loads engine configuration from an optional JSON5 file
// with environment-variable overrides, and hot-reloads the file on change.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/helperd/internal/directory"
)

// Config is the engine's runtime configuration.
type Config struct {
	RedisURL     string `json:"redisUrl"`
	DirectoryDSN string `json:"directoryDsn"` // empty = static directory from SeedUsers
	ListenAddr   string `json:"listenAddr"`

	JWTSecret string `json:"jwtSecret"`

	LookaheadHours       int `json:"lookaheadHours"`
	ExpansionIntervalMin int `json:"expansionIntervalMin"`
	RetentionHours       int `json:"retentionHours"`
	ExecutorConcurrency  int `json:"executorConcurrency"`

	RateLimitRPM   int `json:"rateLimitRpm"`
	RateLimitBurst int `json:"rateLimitBurst"`

	LogLevel string `json:"logLevel"` // debug, info, warn, error

	OTLPEndpoint string `json:"otlpEndpoint"` // empty = span export disabled
	OTLPProtocol string `json:"otlpProtocol"` // grpc or http
	OTLPInsecure bool   `json:"otlpInsecure"`

	// SeedUsers backs the static directory in standalone dev mode.
	SeedUsers []directory.User `json:"seedUsers,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RedisURL:             "redis://localhost:6379/0",
		ListenAddr:           ":8480",
		LookaheadHours:       2,
		ExpansionIntervalMin: 10,
		RetentionHours:       24,
		ExecutorConcurrency:  16,
		RateLimitRPM:         120,
		RateLimitBurst:       10,
		LogLevel:             "info",
		OTLPProtocol:         "grpc",
	}
}

// Load reads the config file at path (optional: a missing file yields the
// defaults), then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults + env only.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := json5.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("HELPERD_REDIS_URL", &cfg.RedisURL)
	envStr("HELPERD_DIRECTORY_DSN", &cfg.DirectoryDSN)
	envStr("HELPERD_LISTEN_ADDR", &cfg.ListenAddr)
	envStr("HELPERD_JWT_SECRET", &cfg.JWTSecret)
	envStr("HELPERD_LOG_LEVEL", &cfg.LogLevel)
	envStr("HELPERD_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	envStr("HELPERD_OTLP_PROTOCOL", &cfg.OTLPProtocol)
	envInt("HELPERD_LOOKAHEAD_HOURS", &cfg.LookaheadHours)
	envInt("HELPERD_EXPANSION_INTERVAL_MIN", &cfg.ExpansionIntervalMin)
	envInt("HELPERD_RETENTION_HOURS", &cfg.RetentionHours)
	envInt("HELPERD_EXECUTOR_CONCURRENCY", &cfg.ExecutorConcurrency)
	envInt("HELPERD_RATE_LIMIT_RPM", &cfg.RateLimitRPM)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("config: redisUrl is required")
	}
	if c.LookaheadHours <= 0 {
		return fmt.Errorf("config: lookaheadHours must be positive")
	}
	if c.ExpansionIntervalMin <= 0 {
		return fmt.Errorf("config: expansionIntervalMin must be positive")
	}
	if c.RetentionHours <= 0 {
		return fmt.Errorf("config: retentionHours must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// Lookahead is the planning horizon.
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.LookaheadHours) * time.Hour
}

// ExpansionInterval is the window-expansion cadence.
func (c *Config) ExpansionInterval() time.Duration {
	return time.Duration(c.ExpansionIntervalMin) * time.Minute
}

// Retention is how long terminal job records are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
