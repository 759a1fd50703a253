package exposure

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/envhealth/exposure-api/internal/cell"
	"github.com/envhealth/exposure-api/internal/geocode"
	"github.com/envhealth/exposure-api/internal/ratelimit"
)

// QuotaChecker is the slice of the rate limiter the orchestrator needs.
type QuotaChecker interface {
	Check(ctx context.Context, tier string) ratelimit.Result
}

// Quota is the metadata attached to every response, hit or miss, so callers
// can self-throttle.
type Quota struct {
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
}

// QuotaError signals a denied request together with its reset metadata.
type QuotaError struct {
	Quota Quota
}

func (e *QuotaError) Error() string {
	return "hourly request quota exceeded"
}

// LookupInput is a validated, normalized lookup request. CellID, when set,
// takes precedence over the coordinate pair.
type LookupInput struct {
	Lat          float64
	Lon          float64
	CellID       string
	Tier         Tier
	ForceRefresh bool
}

// LookupResponse carries the aggregate record plus quota metadata. Cached
// reports whether the record was served from storage without a fan-out.
type LookupResponse struct {
	Record *Record `json:"record"`
	Quota  Quota   `json:"quota"`
	Cached bool    `json:"cached"`
}

// ServiceConfig wires the orchestrator's collaborators.
type ServiceConfig struct {
	Store    *RecordStore
	Quota    QuotaChecker
	Sources  []Source
	News     NewsFetcher
	Geocoder geocode.ReverseGeocoder
	Policy   FreshnessPolicy
	Fanout   FanoutConfig
}

// Service is the read-through-cache orchestrator: quota check, cell
// resolution, freshness evaluation, fan-out, merge, persist.
type Service struct {
	store    *RecordStore
	quota    QuotaChecker
	sources  []Source
	news     NewsFetcher
	geocoder geocode.ReverseGeocoder
	policy   FreshnessPolicy
	engine   *FanoutEngine
}

// NewService creates a Service from its configuration.
func NewService(cfg ServiceConfig) *Service {
	engine := NewFanoutEngine(cfg.Fanout)
	return &Service{
		store:    cfg.Store,
		quota:    cfg.Quota,
		sources:  cfg.Sources,
		news:     cfg.News,
		geocoder: cfg.Geocoder,
		policy:   cfg.Policy,
		engine:   engine,
	}
}

// Lookup answers one exposure request. Partial upstream data is preferred
// over no data: per-source failures surface as error markers inside the
// record, never as a request failure.
func (s *Service) Lookup(ctx context.Context, in LookupInput) (*LookupResponse, error) {
	res := s.quota.Check(ctx, string(in.Tier))
	quota := Quota{Remaining: res.Remaining, ResetAt: res.ResetAt.Unix()}
	if !res.Allowed {
		return nil, &QuotaError{Quota: quota}
	}

	var (
		c   cell.Cell
		err error
	)
	if in.CellID != "" {
		c, err = cell.ResolveIndex(in.CellID)
	} else {
		c, err = cell.Resolve(in.Lat, in.Lon)
	}
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, c.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Storage read failure is treated as a cache miss.
		log.Printf("record read failed for %s, regenerating: %v", c.ID, err)
		rec = nil
	}

	now := time.Now().UTC()
	switch s.policy.Evaluate(rec, now, in.Tier, in.ForceRefresh) {
	case DecisionServe:
		return &LookupResponse{Record: rec, Quota: quota, Cached: true}, nil

	case DecisionRefreshNews:
		// Refresh synchronously before responding; the added latency is
		// accepted in this branch only. On failure the stale news is served.
		s.refreshNews(ctx, rec, c, in.Tier)
		return &LookupResponse{Record: rec, Quota: quota, Cached: true}, nil

	default:
		fresh := s.regenerate(ctx, c, in.Tier, rec)
		return &LookupResponse{Record: fresh, Quota: quota}, nil
	}
}

// regenerate runs a full fan-out and overwrites the stored record. A
// per-cell lease keeps concurrent misses from duplicating upstream calls: the
// loser waits for the winner's record and only fans out itself if that record
// never materializes.
func (s *Service) regenerate(ctx context.Context, c cell.Cell, tier Tier, prior *Record) *Record {
	leaseTTL := s.engine.cfg.BatchTimeout + 5*time.Second

	acquired := s.store.AcquireLease(ctx, c.ID, leaseTTL)
	if !acquired {
		if rec := s.awaitRegeneration(ctx, c.ID, tier); rec != nil {
			return rec
		}
		log.Printf("in-flight regeneration for %s did not surface a record, fanning out anyway", c.ID)
	} else {
		defer s.store.ReleaseLease(ctx, c.ID)
	}

	now := time.Now().UTC()
	req := Request{Lat: c.Lat, Lon: c.Lon, CellID: c.ID, Tier: tier}

	fields := s.engine.Run(ctx, req, s.sources)

	rec := &Record{
		CellID:      c.ID,
		Location:    s.locate(ctx, c, prior),
		Version:     uuid.NewString(),
		GeneratedAt: now,
		LastUpdated: now.Unix(),
		Fields:      fields,
	}

	// News does not follow the record TTL: carry fresh news across the full
	// refresh, fetch only when it is missing or aged out.
	if prior != nil && prior.News != nil && !s.policy.newsStale(prior, now) {
		rec.News = prior.News
	} else if s.news != nil {
		newsCtx, cancel := context.WithTimeout(ctx, s.engine.cfg.CallTimeout)
		news, err := s.news.FetchNews(newsCtx, req, rec.Location)
		cancel()
		if err != nil {
			log.Printf("news fetch failed for %s: %v", c.ID, err)
			if prior != nil {
				rec.News = prior.News
			}
		} else {
			rec.News = &news
		}
	}

	if err := s.store.Put(ctx, rec, s.policy.TTL(tier)); err != nil {
		// The computed data is still worth returning; only durability is lost.
		log.Printf("failed to store record for %s: %v", c.ID, err)
	}
	return rec
}

// awaitRegeneration polls for the record another caller is regenerating,
// bounded by the batch budget.
func (s *Service) awaitRegeneration(ctx context.Context, cellID string, tier Tier) *Record {
	deadline := time.Now().Add(s.engine.cfg.BatchTimeout)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		rec, err := s.store.Get(ctx, cellID)
		if err != nil {
			continue
		}
		if s.policy.Evaluate(rec, time.Now().UTC(), tier, false) != DecisionFullRefresh {
			return rec
		}
	}
	return nil
}

// refreshNews patches the news sub-record in place. The rest of the record,
// including its staleness clock, stays untouched.
func (s *Service) refreshNews(ctx context.Context, rec *Record, c cell.Cell, tier Tier) {
	if s.news == nil {
		return
	}

	newsCtx, cancel := context.WithTimeout(ctx, s.engine.cfg.CallTimeout)
	defer cancel()

	req := Request{Lat: c.Lat, Lon: c.Lon, CellID: c.ID, Tier: tier}
	news, err := s.news.FetchNews(newsCtx, req, rec.Location)
	if err != nil {
		log.Printf("news refresh failed for %s: %v", c.ID, err)
		return
	}

	rec.News = &news
	if err := s.store.Put(ctx, rec, s.policy.TTL(tier)); err != nil {
		log.Printf("failed to store news refresh for %s: %v", c.ID, err)
	}
}

// locate names the cell, preferring the prior record's name over a fresh
// reverse-geocoding call. Best effort; an empty name is fine.
func (s *Service) locate(ctx context.Context, c cell.Cell, prior *Record) string {
	if prior != nil && prior.Location != "" {
		return prior.Location
	}
	if s.geocoder == nil {
		return ""
	}

	geoCtx, cancel := context.WithTimeout(ctx, s.engine.cfg.CallTimeout)
	defer cancel()

	place, err := s.geocoder.Locate(geoCtx, c.Lat, c.Lon)
	if err != nil {
		log.Printf("reverse geocoding failed for %s: %v", c.ID, err)
		return ""
	}
	return place.String()
}
