package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/cache"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "memory", cfg.FeedDriver)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectInitial)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMax)
	assert.True(t, cfg.Poll, "poll backstop is on outside production")
	assert.Equal(t, cache.DeleteRetain, cfg.Delete)
	assert.Equal(t, "hybrid", cfg.DefaultStrategy)
	assert.InDelta(t, 0.3, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, 1000, cfg.QueryCacheSize)
}

func TestNew_ProductionDisablesPoll(t *testing.T) {
	t.Setenv("LOREKEEPER_ENVIRONMENT", "production")

	cfg, err := New()
	require.NoError(t, err)
	assert.False(t, cfg.Poll)
	assert.True(t, cfg.IsProduction())

	t.Setenv("LOREKEEPER_POLL_BACKSTOP", "on")
	cfg, err = New()
	require.NoError(t, err)
	assert.True(t, cfg.Poll)
}

func TestNew_PostgresDerivesFeed(t *testing.T) {
	t.Setenv("LOREKEEPER_STORE_DRIVER", "postgres")
	t.Setenv("LOREKEEPER_POSTGRES_DSN", "postgres://localhost/lorekeeper")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.FeedDriver)

	t.Setenv("LOREKEEPER_FEED_DRIVER", "redis")
	cfg, err = New()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.FeedDriver)
}

func TestResolveDefaults_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"environment", func(c *Config) { c.Environment = "staging" }},
		{"store driver", func(c *Config) { c.StoreDriver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = "postgres"; c.FeedDriver = "auto" }},
		{"pg feed on sqlite", func(c *Config) { c.FeedDriver = "postgres" }},
		{"feed driver", func(c *Config) { c.FeedDriver = "kafka" }},
		{"poll backstop", func(c *Config) { c.PollBackstop = "sometimes" }},
		{"delete policy", func(c *Config) { c.DeletePolicy = "shred" }},
		{"strategy", func(c *Config) { c.DefaultStrategy = "semantic" }},
		{"threshold", func(c *Config) { c.SimilarityThreshold = 0.05 }},
		{"poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"reconnect", func(c *Config) { c.ReconnectMax = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewForTesting()
			tt.mutate(cfg)
			assert.Error(t, cfg.ResolveDefaults())
		})
	}
}

func TestNewForTesting(t *testing.T) {
	cfg := NewForTesting()
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, ":memory:", cfg.SQLitePath)
	assert.Equal(t, "memory", cfg.FeedDriver)
	assert.True(t, cfg.Poll)
	assert.False(t, cfg.IsProduction())
}
