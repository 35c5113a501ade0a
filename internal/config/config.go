package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Service struct {
	CacheEnabled           bool    `yaml:"cache_enabled"`
	CacheTTLSeconds        int     `yaml:"cache_ttl_seconds"`
	RetryAttempts          int     `yaml:"retry_attempts"`
	TimeoutMs              int     `yaml:"timeout_ms"`
	MonitoringEnabled      bool    `yaml:"monitoring_enabled"`
	HighLatencyThresholdMs int     `yaml:"high_latency_threshold_ms"`
	ErrorRateThreshold     float64 `yaml:"error_rate_threshold"`
}

type Provider struct {
	Enabled            bool    `yaml:"enabled"`
	BaseURL            string  `yaml:"base_url"`
	Weight             float64 `yaml:"weight"`
	RateLimitPerMinute int     `yaml:"rate_limit_per_minute"`
	WindowSeconds      int     `yaml:"window_seconds"`
	WindowMaxRequests  int     `yaml:"window_max_requests"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	MaxRetries         int     `yaml:"max_retries"`
	BackoffBaseMs      int     `yaml:"backoff_base_ms"`
}

type Providers struct {
	Quotable  Provider `yaml:"quotable"`
	ZenQuotes Provider `yaml:"zenquotes"`
	FavQs     Provider `yaml:"favqs"`
}

type Breaker struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	CooldownSeconds     int `yaml:"cooldown_seconds"`
}

type Storage struct {
	Path            string `yaml:"path"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	Service   Service   `yaml:"service"`
	Providers Providers `yaml:"providers"`
	Breaker   Breaker   `yaml:"breaker"`
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	return c, nil
}

// Default returns the configuration used when no file is supplied.
func Default() Root {
	var c Root
	c.Service.CacheEnabled = true
	c.Service.MonitoringEnabled = true
	c.Providers.Quotable.Enabled = true
	c.Providers.ZenQuotes.Enabled = true
	c.Providers.FavQs.Enabled = true
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	if c.Service.CacheTTLSeconds == 0 {
		c.Service.CacheTTLSeconds = 300
	}
	if c.Service.RetryAttempts == 0 {
		c.Service.RetryAttempts = 2
	}
	if c.Service.TimeoutMs == 0 {
		c.Service.TimeoutMs = 8000
	}
	if c.Service.HighLatencyThresholdMs == 0 {
		c.Service.HighLatencyThresholdMs = 5000
	}
	if c.Service.ErrorRateThreshold == 0 {
		c.Service.ErrorRateThreshold = 0.10
	}

	applyProviderDefaults(&c.Providers.Quotable, "https://api.quotable.io", 3.0)
	applyProviderDefaults(&c.Providers.ZenQuotes, "https://zenquotes.io/api", 2.0)
	applyProviderDefaults(&c.Providers.FavQs, "https://favqs.com/api", 1.0)

	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
	if c.Breaker.CooldownSeconds == 0 {
		c.Breaker.CooldownSeconds = 60
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/quote-service-state.json"
	}
	if c.Storage.FlushIntervalMs == 0 {
		c.Storage.FlushIntervalMs = 30000
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8085"
	}
}

func applyProviderDefaults(p *Provider, baseURL string, weight float64) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Weight == 0 {
		p.Weight = weight
	}
	if p.RateLimitPerMinute == 0 {
		p.RateLimitPerMinute = 30
	}
	if p.WindowSeconds == 0 {
		p.WindowSeconds = 60
	}
	if p.WindowMaxRequests == 0 {
		p.WindowMaxRequests = p.RateLimitPerMinute
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = 5000
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.BackoffBaseMs == 0 {
		p.BackoffBaseMs = 250
	}
}
