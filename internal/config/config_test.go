package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
service:
  cache_enabled: true
  timeout_ms: 3000
providers:
  quotable:
    enabled: true
    weight: 7
breaker:
  consecutive_failures: 2
`)

	c, err := Load(path)
	require.NoError(t, err)

	// Explicit values survive.
	assert.True(t, c.Service.CacheEnabled)
	assert.Equal(t, 3000, c.Service.TimeoutMs)
	assert.Equal(t, 7.0, c.Providers.Quotable.Weight)
	assert.Equal(t, 2, c.Breaker.ConsecutiveFailures)

	// Omitted values get defaults.
	assert.Equal(t, 300, c.Service.CacheTTLSeconds)
	assert.Equal(t, 2, c.Service.RetryAttempts)
	assert.Equal(t, 5000, c.Service.HighLatencyThresholdMs)
	assert.Equal(t, 0.10, c.Service.ErrorRateThreshold)
	assert.Equal(t, 60, c.Breaker.CooldownSeconds)
	assert.Equal(t, "https://api.quotable.io", c.Providers.Quotable.BaseURL)
	assert.Equal(t, 2.0, c.Providers.ZenQuotes.Weight)
	assert.Equal(t, 1.0, c.Providers.FavQs.Weight)
	assert.Equal(t, ":8085", c.Server.Addr)
	assert.Equal(t, "data/quote-service-state.json", c.Storage.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "service: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.True(t, c.Service.CacheEnabled)
	assert.True(t, c.Service.MonitoringEnabled)
	assert.Equal(t, 8000, c.Service.TimeoutMs)

	assert.True(t, c.Providers.Quotable.Enabled)
	assert.True(t, c.Providers.ZenQuotes.Enabled)
	assert.True(t, c.Providers.FavQs.Enabled)
	assert.Equal(t, 3.0, c.Providers.Quotable.Weight)
	assert.Equal(t, 30, c.Providers.Quotable.RateLimitPerMinute)
	assert.Equal(t, 30, c.Providers.Quotable.WindowMaxRequests, "window cap follows the per-minute rate")

	assert.Equal(t, 5, c.Breaker.ConsecutiveFailures)
	assert.Equal(t, 60, c.Breaker.CooldownSeconds)
	assert.Equal(t, 30000, c.Storage.FlushIntervalMs)
}

func TestWindowCapFollowsCustomRate(t *testing.T) {
	path := writeConfig(t, `
providers:
  zenquotes:
    rate_limit_per_minute: 5
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Providers.ZenQuotes.WindowMaxRequests)
}
