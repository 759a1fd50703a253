package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/envhealth/exposure-api/internal/exposure"
	"github.com/envhealth/exposure-api/internal/ratelimit"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	OpenAIAPIKey      string
	GeocoderAPIKey    string
	NewsModel         string

	// Outbound HTTP client timeout for source calls.
	HTTPTimeout time.Duration

	// Fan-out budgets. BatchTimeout must be >= CallTimeout.
	CallTimeout  time.Duration
	BatchTimeout time.Duration

	// Record freshness windows per tier, plus the independent news window.
	FreeTTL    time.Duration
	PremiumTTL time.Duration
	NewsTTL    time.Duration

	// Hourly request quotas per tier.
	FreeLimit    int
	PremiumLimit int

	// Background news refresher.
	RefreshInterval  time.Duration
	RefreshBatchSize int

	// Key-value store location. Empty selects the in-memory store.
	DBPath string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.NewsModel = os.Getenv("NEWS_MODEL")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = getenvDuration("SOURCE_CALL_TIMEOUT", "8s"); err != nil {
		return nil, err
	}
	if cfg.BatchTimeout, err = getenvDuration("SOURCE_BATCH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.BatchTimeout < cfg.CallTimeout {
		return nil, fmt.Errorf("SOURCE_BATCH_TIMEOUT must be at least SOURCE_CALL_TIMEOUT")
	}

	if cfg.FreeTTL, err = getenvDuration("FREE_TTL", "1h"); err != nil {
		return nil, err
	}
	if cfg.PremiumTTL, err = getenvDuration("PREMIUM_TTL", "5m"); err != nil {
		return nil, err
	}
	if cfg.NewsTTL, err = getenvDuration("NEWS_TTL", "6h"); err != nil {
		return nil, err
	}

	cfg.FreeLimit = getenvInt("FREE_RATE_LIMIT", ratelimit.DefaultFreeLimit)
	cfg.PremiumLimit = getenvInt("PREMIUM_RATE_LIMIT", ratelimit.DefaultPremiumLimit)
	if cfg.FreeLimit <= 0 || cfg.PremiumLimit <= 0 {
		return nil, fmt.Errorf("rate limits must be positive")
	}

	if cfg.RefreshInterval, err = getenvDuration("NEWS_REFRESH_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	cfg.RefreshBatchSize = getenvInt("NEWS_REFRESH_BATCH_SIZE", 10)

	cfg.DBPath = getenvDefault("DB_PATH", "data/exposure.db")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// FreshnessPolicy builds the policy the orchestrator and refresher share.
func (c *AppConfig) FreshnessPolicy() exposure.FreshnessPolicy {
	return exposure.FreshnessPolicy{
		FreeTTL:    c.FreeTTL,
		PremiumTTL: c.PremiumTTL,
		NewsTTL:    c.NewsTTL,
	}
}

// RateLimits builds the per-tier quota table.
func (c *AppConfig) RateLimits() map[string]int {
	return map[string]int{
		string(exposure.TierFree):    c.FreeLimit,
		string(exposure.TierPremium): c.PremiumLimit,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
