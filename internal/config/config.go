// Package config loads process configuration from LOREKEEPER_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/dshills/lorekeeper/internal/cache"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Prefix is the environment variable prefix
const Prefix = "LOREKEEPER"

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for lorekeeper.
// Environment variables are parsed from the LOREKEEPER_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Catalog store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"lorekeeper.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Change feed; auto follows the store driver
	FeedDriver   string `envconfig:"FEED_DRIVER" default:"auto"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"lorekeeper"`

	// Live sync
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollBackstop     string        `envconfig:"POLL_BACKSTOP" default:"auto"`
	ReconnectInitial time.Duration `envconfig:"RECONNECT_INITIAL" default:"500ms"`
	ReconnectMax     time.Duration `envconfig:"RECONNECT_MAX" default:"30s"`
	DeletePolicy     string        `envconfig:"DELETE_POLICY" default:"retain"`

	// Search
	DefaultStrategy     string        `envconfig:"DEFAULT_STRATEGY" default:"hybrid"`
	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.3"`
	QueryCacheSize      int           `envconfig:"QUERY_CACHE_SIZE" default:"1000"`
	QueryCacheTTL       time.Duration `envconfig:"QUERY_CACHE_TTL" default:"1m"`

	// Observability
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	// Derived by ResolveDefaults
	Poll   bool               `ignored:"true"`
	Delete cache.DeletePolicy `ignored:"true"`
}

// New creates a Config from the environment
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults validates the configuration and derives FeedDriver, Poll
// and Delete
func (c *Config) ResolveDefaults() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return fmt.Errorf("unsupported ENVIRONMENT: %s", c.Environment)
	}

	switch c.StoreDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	if c.FeedDriver == "" || c.FeedDriver == "auto" {
		// The sqlite store publishes in-process; postgres has LISTEN/NOTIFY
		c.FeedDriver = "memory"
		if c.StoreDriver == "postgres" {
			c.FeedDriver = "postgres"
		}
	}
	switch c.FeedDriver {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis feed")
		}
	case "postgres":
		if c.StoreDriver != "postgres" {
			return fmt.Errorf("FEED_DRIVER postgres requires STORE_DRIVER postgres")
		}
	default:
		return fmt.Errorf("unsupported FEED_DRIVER: %s", c.FeedDriver)
	}

	switch c.PollBackstop {
	case "", "auto":
		c.PollBackstop = "auto"
		c.Poll = c.Environment != EnvProduction
	case "on":
		c.Poll = true
	case "off":
		c.Poll = false
	default:
		return fmt.Errorf("unsupported POLL_BACKSTOP: %s", c.PollBackstop)
	}

	policy, err := cache.ParseDeletePolicy(c.DeletePolicy)
	if err != nil {
		return fmt.Errorf("invalid DELETE_POLICY: %w", err)
	}
	c.Delete = policy

	switch types.StrategyName(c.DefaultStrategy) {
	case types.StrategyExact, types.StrategyTrigram, types.StrategyVector, types.StrategyHybrid:
	default:
		return fmt.Errorf("unsupported DEFAULT_STRATEGY: %s", c.DefaultStrategy)
	}

	if c.SimilarityThreshold < types.MinSimilarityThreshold || c.SimilarityThreshold > types.MaxSimilarityThreshold {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be within [%.1f, %.1f]",
			types.MinSimilarityThreshold, types.MaxSimilarityThreshold)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("RECONNECT_MAX must be at least RECONNECT_INITIAL")
	}
	return nil
}

// NewForTesting creates an in-memory config for tests
func NewForTesting() *Config {
	cfg := &Config{
		Environment:         EnvTesting,
		StoreDriver:         "sqlite",
		SQLitePath:          ":memory:",
		FeedDriver:          "memory",
		RedisChannel:        "lorekeeper",
		PollInterval:        50 * time.Millisecond,
		PollBackstop:        "on",
		ReconnectInitial:    10 * time.Millisecond,
		ReconnectMax:        100 * time.Millisecond,
		DeletePolicy:        string(cache.DeleteRetain),
		DefaultStrategy:     string(types.StrategyHybrid),
		SimilarityThreshold: types.DefaultSimilarityThreshold,
		QueryCacheSize:      100,
		QueryCacheTTL:       time.Minute,
		LogLevel:            "debug",
		LogFormat:           "console",
		Poll:                true,
		Delete:              cache.DeleteRetain,
	}
	return cfg
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
