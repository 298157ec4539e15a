package upstream

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.mau.fi/util/ptr"
	"gopkg.in/yaml.v3"

	"github.com/crawlgate/crawlgate/pkg/crawlerrors"
)

const (
	DefaultBaseURL      = "http://localhost:11235"
	DefaultTimeoutSecs  = 60
	DefaultMaxRetries   = 3
	DefaultCacheTTLSecs = 300
	DefaultCacheSize    = 256
)

// Config controls the upstream connection, retry policy and cache.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
	// Mode selects error-detail verbosity: production strips raw upstream
	// bodies from diagnostics, development keeps them.
	Mode  string      `yaml:"mode"`
	Retry RetryConfig `yaml:"retry"`
	Cache CacheConfig `yaml:"cache"`
}

type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
}

type CacheConfig struct {
	Enabled    *bool `yaml:"enabled"`
	TTLSeconds int   `yaml:"ttl_seconds"`
	Capacity   int   `yaml:"capacity"`
}

// WithDefaults fills unset fields and returns the config for chaining.
func (c *Config) WithDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSecs <= 0 {
		c.TimeoutSecs = DefaultTimeoutSecs
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = string(crawlerrors.ModeProduction)
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.InitialDelayMS <= 0 {
		c.Retry.InitialDelayMS = 1000
	}
	if c.Retry.BackoffFactor <= 1 {
		c.Retry.BackoffFactor = 2
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = 10_000
	}
	if c.Cache.Enabled == nil {
		c.Cache.Enabled = ptr.Ptr(true)
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = DefaultCacheTTLSecs
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = DefaultCacheSize
	}
	return c
}

// ClassifyMode returns the error-detail mode the config selects.
func (c *Config) ClassifyMode() crawlerrors.Mode {
	if strings.EqualFold(c.Mode, string(crawlerrors.ModeDevelopment)) {
		return crawlerrors.ModeDevelopment
	}
	return crawlerrors.ModeProduction
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c *Config) cacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) initialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMS) * time.Millisecond
}

func (c *Config) maxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

// LoadConfig reads a yaml config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg.WithDefaults(), nil
}
