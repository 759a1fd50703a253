// Package ratelimit enforces a fixed hourly request quota per caller tier,
// persisted in the shared key-value store. The quota is deliberately soft:
// when the backend offers an atomic counter it is exact, otherwise a
// read-modify-write with a small race window is accepted, and any storage
// failure fails open so a broken quota store can never take down the
// service.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/envhealth/exposure-api/internal/kv"
)

// Default hourly limits per tier.
const (
	DefaultFreeLimit    = 100
	DefaultPremiumLimit = 1000
)

// windowTTL keeps a window readable past its hour so lazy expiry works even
// when clocks drift; the key changes every hour, so no active eviction is
// needed.
const windowTTL = 2 * time.Hour

// Result is the outcome of one quota check. Remaining and ResetAt are
// attached to every response so callers can self-throttle.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// window is the persisted per-(tier,hour) counter for backends without an
// atomic increment.
type window struct {
	Count     int   `json:"count"`
	Hour      int64 `json:"hour"`
	UpdatedAt int64 `json:"updatedAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

// Limiter checks and counts requests against per-tier hourly limits.
type Limiter struct {
	store  kv.Store
	limits map[string]int

	now func() time.Time
}

// New creates a Limiter. Tiers missing from limits fall back to the free
// limit.
func New(store kv.Store, limits map[string]int) *Limiter {
	if limits == nil {
		limits = map[string]int{
			"free":    DefaultFreeLimit,
			"premium": DefaultPremiumLimit,
		}
	}
	return &Limiter{store: store, limits: limits, now: time.Now}
}

func (l *Limiter) limit(tier string) int {
	if n, ok := l.limits[tier]; ok {
		return n
	}
	return l.limits["free"]
}

// Check consumes one request from the tier's current hourly window. Any
// storage error fails open: the request is allowed with the full limit
// reported as remaining.
func (l *Limiter) Check(ctx context.Context, tier string) Result {
	now := l.now()
	bucketStart := now.Unix() / 3600 * 3600
	resetAt := time.Unix(bucketStart+3600, 0)
	limit := l.limit(tier)
	key := fmt.Sprintf("rate-limits/%s/%d.json", tier, bucketStart)

	failOpen := Result{Allowed: true, Remaining: limit, ResetAt: resetAt}

	if inc, ok := l.store.(kv.Incrementer); ok {
		count, err := inc.Increment(ctx, key, now.Add(windowTTL))
		if err != nil {
			log.Printf("rate limit: increment failed, failing open: %v", err)
			return failOpen
		}
		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		return Result{Allowed: count <= int64(limit), Remaining: remaining, ResetAt: resetAt}
	}

	// Read-modify-write fallback: a small race window is accepted, the quota
	// is a soft limit rather than a hard security boundary.
	var w window
	raw, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &w); err != nil || w.ExpiresAt < now.Unix() || w.Count < 0 {
			w = window{}
		}
	case errors.Is(err, kv.ErrNotFound):
		// First request of the hour.
	default:
		log.Printf("rate limit: read failed, failing open: %v", err)
		return failOpen
	}

	if w.Count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.Count++
	w.Hour = bucketStart
	w.UpdatedAt = now.Unix()
	w.ExpiresAt = now.Add(windowTTL).Unix()

	raw, marshalErr := json.Marshal(w)
	if marshalErr == nil {
		err = l.store.Put(ctx, key, raw, &kv.Metadata{ContentType: "application/json"})
	}
	if marshalErr != nil || err != nil {
		log.Printf("rate limit: write failed, failing open: %v", err)
		return failOpen
	}

	return Result{Allowed: true, Remaining: limit - w.Count, ResetAt: resetAt}
}
