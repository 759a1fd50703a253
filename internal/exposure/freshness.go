package exposure

import (
	"time"
)

// Decision is the outcome of evaluating a cached record against a request.
type Decision int

const (
	// DecisionServe: the record is fresh for the caller's tier; serve as-is.
	DecisionServe Decision = iota
	// DecisionRefreshNews: the record is fresh but its news sub-record has
	// aged out; refresh only the news before serving.
	DecisionRefreshNews
	// DecisionFullRefresh: no record, stale record, or forced refresh; run a
	// full fan-out and overwrite.
	DecisionFullRefresh
)

func (d Decision) String() string {
	switch d {
	case DecisionServe:
		return "serve"
	case DecisionRefreshNews:
		return "refresh-news"
	case DecisionFullRefresh:
		return "full-refresh"
	}
	return "unknown"
}

// FreshnessPolicy decides whether a cached record is servable for a tier.
// Premium callers get a shorter TTL as a quality-of-service differentiator;
// news carries an independent, longer window.
type FreshnessPolicy struct {
	FreeTTL    time.Duration
	PremiumTTL time.Duration
	NewsTTL    time.Duration
}

// DefaultFreshnessPolicy matches the production windows: 1h free, 5m premium,
// 6h news.
func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{
		FreeTTL:    time.Hour,
		PremiumTTL: 5 * time.Minute,
		NewsTTL:    6 * time.Hour,
	}
}

// TTL returns the record freshness window for a tier. Unknown tiers get the
// free window.
func (p FreshnessPolicy) TTL(tier Tier) time.Duration {
	if tier == TierPremium {
		return p.PremiumTTL
	}
	return p.FreeTTL
}

// Evaluate classifies a record for one request.
func (p FreshnessPolicy) Evaluate(rec *Record, now time.Time, tier Tier, force bool) Decision {
	if rec == nil || force {
		return DecisionFullRefresh
	}
	if rec.Age(now) > p.TTL(tier) {
		return DecisionFullRefresh
	}
	if p.newsStale(rec, now) {
		return DecisionRefreshNews
	}
	return DecisionServe
}

func (p FreshnessPolicy) newsStale(rec *Record, now time.Time) bool {
	if rec.News == nil {
		return true
	}
	return now.Sub(rec.News.FetchedAt) > p.NewsTTL
}
