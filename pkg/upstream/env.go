package upstream

import (
	"os"
	"strconv"
	"strings"
)

// ConfigFromEnv builds a config from CRAWLGATE_* environment variables.
func ConfigFromEnv() *Config {
	cfg := (&Config{}).WithDefaults()
	return overlayEnv(cfg)
}

// ApplyEnvDefaults overlays environment variables on cfg; a set variable
// wins over the file value.
func ApplyEnvDefaults(cfg *Config) *Config {
	if cfg == nil {
		return ConfigFromEnv()
	}
	return overlayEnv(cfg.WithDefaults())
}

func overlayEnv(cfg *Config) *Config {
	cfg.BaseURL = envOr(cfg.BaseURL, os.Getenv("CRAWLGATE_BASE_URL"))
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.APIKey = envOr(cfg.APIKey, os.Getenv("CRAWLGATE_API_KEY"))
	cfg.Mode = envOr(cfg.Mode, os.Getenv("CRAWLGATE_MODE"))

	cfg.TimeoutSecs = envIntOr(cfg.TimeoutSecs, "CRAWLGATE_TIMEOUT_SECONDS")
	cfg.Retry.MaxRetries = envIntOr(cfg.Retry.MaxRetries, "CRAWLGATE_MAX_RETRIES")
	cfg.Retry.InitialDelayMS = envIntOr(cfg.Retry.InitialDelayMS, "CRAWLGATE_RETRY_INITIAL_DELAY_MS")
	cfg.Retry.MaxDelayMS = envIntOr(cfg.Retry.MaxDelayMS, "CRAWLGATE_RETRY_MAX_DELAY_MS")
	cfg.Cache.TTLSeconds = envIntOr(cfg.Cache.TTLSeconds, "CRAWLGATE_CACHE_TTL_SECONDS")
	cfg.Cache.Capacity = envIntOr(cfg.Cache.Capacity, "CRAWLGATE_CACHE_CAPACITY")

	if factor := strings.TrimSpace(os.Getenv("CRAWLGATE_RETRY_BACKOFF_FACTOR")); factor != "" {
		if parsed, err := strconv.ParseFloat(factor, 64); err == nil && parsed > 1 {
			cfg.Retry.BackoffFactor = parsed
		}
	}
	return cfg
}

func envOr(existing, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return existing
	}
	return value
}

func envIntOr(existing int, name string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return existing
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return existing
	}
	return parsed
}
