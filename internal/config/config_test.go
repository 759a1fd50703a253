package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.FreeTTL != time.Hour {
		t.Fatalf("FreeTTL = %v, want 1h", cfg.FreeTTL)
	}
	if cfg.PremiumTTL != 5*time.Minute {
		t.Fatalf("PremiumTTL = %v, want 5m", cfg.PremiumTTL)
	}
	if cfg.NewsTTL != 6*time.Hour {
		t.Fatalf("NewsTTL = %v, want 6h", cfg.NewsTTL)
	}
	if cfg.FreeLimit != 100 || cfg.PremiumLimit != 1000 {
		t.Fatalf("limits = %d/%d, want 100/1000", cfg.FreeLimit, cfg.PremiumLimit)
	}
	if cfg.BatchTimeout < cfg.CallTimeout {
		t.Fatal("batch timeout must cover the per-call timeout")
	}
}

func TestLoadRejectsInvertedTimeouts(t *testing.T) {
	t.Setenv("SOURCE_CALL_TIMEOUT", "30s")
	t.Setenv("SOURCE_BATCH_TIMEOUT", "5s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when batch timeout is below call timeout")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("FREE_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadRejectsNonPositiveLimit(t *testing.T) {
	t.Setenv("FREE_RATE_LIMIT", "-5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative rate limit")
	}
}

func TestRateLimitsTable(t *testing.T) {
	t.Setenv("FREE_RATE_LIMIT", "7")
	t.Setenv("PREMIUM_RATE_LIMIT", "70")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	limits := cfg.RateLimits()
	if limits["free"] != 7 || limits["premium"] != 70 {
		t.Fatalf("unexpected limits table %v", limits)
	}
}
