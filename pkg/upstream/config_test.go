package upstream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crawlgate/crawlgate/pkg/crawlerrors"
)

func TestWithDefaults(t *testing.T) {
	cfg := (&Config{}).WithDefaults()
	if cfg.BaseURL != "http://localhost:11235" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.TimeoutSecs != 60 {
		t.Fatalf("unexpected timeout %d", cfg.TimeoutSecs)
	}
	if cfg.Mode != "production" {
		t.Fatalf("unexpected mode %q", cfg.Mode)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.InitialDelayMS != 1000 || cfg.Retry.BackoffFactor != 2 || cfg.Retry.MaxDelayMS != 10_000 {
		t.Fatalf("unexpected retry defaults %+v", cfg.Retry)
	}
	if cfg.Cache.Enabled == nil || !*cfg.Cache.Enabled {
		t.Fatal("expected cache enabled by default")
	}
	if cfg.Cache.TTLSeconds != 300 || cfg.Cache.Capacity != 256 {
		t.Fatalf("unexpected cache defaults %+v", cfg.Cache)
	}
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := (&Config{
		BaseURL:     "https://crawler.internal/",
		TimeoutSecs: 5,
		Retry:       RetryConfig{MaxRetries: 1},
	}).WithDefaults()
	if cfg.BaseURL != "https://crawler.internal" {
		t.Fatalf("expected trailing slash stripped, got %q", cfg.BaseURL)
	}
	if cfg.TimeoutSecs != 5 || cfg.Retry.MaxRetries != 1 {
		t.Fatalf("expected explicit values kept, got %+v", cfg)
	}
}

func TestConfigFromEnvOverlay(t *testing.T) {
	t.Setenv("CRAWLGATE_BASE_URL", "https://crawler.example/")
	t.Setenv("CRAWLGATE_API_KEY", "env-key")
	t.Setenv("CRAWLGATE_MODE", "development")
	t.Setenv("CRAWLGATE_TIMEOUT_SECONDS", "15")
	t.Setenv("CRAWLGATE_MAX_RETRIES", "7")
	t.Setenv("CRAWLGATE_CACHE_TTL_SECONDS", "30")
	t.Setenv("CRAWLGATE_RETRY_BACKOFF_FACTOR", "1.5")

	cfg := ConfigFromEnv()
	if cfg.BaseURL != "https://crawler.example" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("unexpected api key %q", cfg.APIKey)
	}
	if cfg.TimeoutSecs != 15 || cfg.Retry.MaxRetries != 7 || cfg.Cache.TTLSeconds != 30 {
		t.Fatalf("unexpected overlaid values %+v", cfg)
	}
	if cfg.Retry.BackoffFactor != 1.5 {
		t.Fatalf("unexpected backoff factor %v", cfg.Retry.BackoffFactor)
	}
	if cfg.ClassifyMode() != crawlerrors.ModeDevelopment {
		t.Fatalf("unexpected mode %q", cfg.Mode)
	}
}

func TestEnvWinsOverFileValues(t *testing.T) {
	t.Setenv("CRAWLGATE_BASE_URL", "https://from-env.example")
	cfg := ApplyEnvDefaults(&Config{BaseURL: "https://from-file.example"})
	if cfg.BaseURL != "https://from-env.example" {
		t.Fatalf("expected environment to win, got %q", cfg.BaseURL)
	}
}

func TestInvalidEnvIntegerIsIgnored(t *testing.T) {
	t.Setenv("CRAWLGATE_MAX_RETRIES", "not-a-number")
	cfg := ConfigFromEnv()
	if cfg.Retry.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default retained, got %d", cfg.Retry.MaxRetries)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("base_url: https://crawler.internal\napi_key: file-key\nretry:\n  max_retries: 2\ncache:\n  enabled: false\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.BaseURL != "https://crawler.internal" || cfg.APIKey != "file-key" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Fatalf("unexpected retries %d", cfg.Retry.MaxRetries)
	}
	if cfg.Cache.Enabled == nil || *cfg.Cache.Enabled {
		t.Fatal("expected cache disabled by the file")
	}
	if cfg.Cache.TTLSeconds != DefaultCacheTTLSecs {
		t.Fatalf("expected TTL default applied, got %d", cfg.Cache.TTLSeconds)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestClassifyModeCaseInsensitive(t *testing.T) {
	cfg := &Config{Mode: "Development"}
	if cfg.ClassifyMode() != crawlerrors.ModeDevelopment {
		t.Fatal("expected development mode")
	}
	cfg.Mode = "anything-else"
	if cfg.ClassifyMode() != crawlerrors.ModeProduction {
		t.Fatal("expected production fallback")
	}
}
