package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/envhealth/exposure-api/internal/cell"
	"github.com/envhealth/exposure-api/internal/exposure"
	"github.com/envhealth/exposure-api/internal/geocode"
)

// Refresher periodically scans stored cell records and refreshes the news
// sub-record of any whose news window has aged out, in bounded batches. It
// reuses the record store and the news feed; it is deliberately not part of
// the request path.
type Refresher struct {
	scheduler *gocron.Scheduler
	store     *exposure.RecordStore
	news      exposure.NewsFetcher
	geocoder  geocode.ReverseGeocoder
	policy    exposure.FreshnessPolicy
	interval  time.Duration
	batchSize int
}

// New creates a Refresher.
func New(
	store *exposure.RecordStore,
	news exposure.NewsFetcher,
	geocoder geocode.ReverseGeocoder,
	policy exposure.FreshnessPolicy,
	interval time.Duration,
	batchSize int,
) *Refresher {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Refresher{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		news:      news,
		geocoder:  geocoder,
		policy:    policy,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start schedules the periodic refresh job and starts the underlying
// scheduler.
func (r *Refresher) Start() error {
	minutes := int(r.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := r.scheduler.Every(minutes).Minutes().Do(func() {
		log.Println("refresher: running news refresh job")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		updated, err := r.RunOnce(ctx)
		if err != nil {
			log.Printf("refresher: job failed: %v", err)
			return
		}
		log.Printf("refresher: completed news refresh job, %d cells updated", updated)
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}

// RunOnce performs a single scan-and-refresh pass and reports how many
// records were updated. Per-cell errors are logged and skipped.
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.store.CellIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var stale []string
	for _, id := range ids {
		rec, err := r.store.Get(ctx, id)
		if err != nil {
			log.Printf("refresher: skipping %s: %v", id, err)
			continue
		}
		if rec.News == nil || now.Sub(rec.News.FetchedAt) > r.policy.NewsTTL {
			stale = append(stale, id)
		}
	}

	updated := 0
	for i := 0; i < len(stale); i += r.batchSize {
		end := i + r.batchSize
		if end > len(stale) {
			end = len(stale)
		}
		updated += r.processBatch(ctx, stale[i:end])

		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
	}
	return updated, nil
}

func (r *Refresher) processBatch(ctx context.Context, ids []string) int {
	updated := 0
	for _, id := range ids {
		if err := r.refreshCell(ctx, id); err != nil {
			log.Printf("refresher: failed to refresh %s: %v", id, err)
			continue
		}
		updated++
	}
	return updated
}

func (r *Refresher) refreshCell(ctx context.Context, id string) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}

	c, err := cell.ResolveIndex(rec.CellID)
	if err != nil {
		return err
	}

	location := rec.Location
	if location == "" && r.geocoder != nil {
		if place, err := r.geocoder.Locate(ctx, c.Lat, c.Lon); err == nil {
			location = place.String()
		}
	}

	req := exposure.Request{Lat: c.Lat, Lon: c.Lon, CellID: c.ID, Tier: exposure.TierFree}
	news, err := r.news.FetchNews(ctx, req, location)
	if err != nil {
		return err
	}

	// The record is mutable state here: patch the news sub-record and bump
	// the update clock.
	rec.News = &news
	rec.Location = location
	rec.LastUpdated = time.Now().Unix()
	return r.store.Put(ctx, rec, r.policy.FreeTTL)
}
