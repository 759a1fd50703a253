package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/envhealth/exposure-api/internal/api/http"
	"github.com/envhealth/exposure-api/internal/config"
	"github.com/envhealth/exposure-api/internal/exposure"
	"github.com/envhealth/exposure-api/internal/exposure/sources"
	"github.com/envhealth/exposure-api/internal/geocode"
	"github.com/envhealth/exposure-api/internal/kv"
	"github.com/envhealth/exposure-api/internal/ratelimit"
	"github.com/envhealth/exposure-api/internal/scheduler"
)

func main() {
	// Load configuration (reads .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	backend := openBackend(cfg.DBPath)
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Shared HTTP client for outbound source calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	geocoder := geocode.New(cfg.GeocoderAPIKey)

	srcs := []exposure.Source{
		sources.NewAirQualitySource(httpClient, cfg.OpenWeatherAPIKey),
		sources.NewUVSource(httpClient, cfg.OpenWeatherAPIKey),
		sources.NewHumiditySource(httpClient, cfg.OpenWeatherAPIKey),
		sources.NewPollenSource(httpClient),
		sources.NewTapWaterSource(geocoder),
	}
	news := sources.NewNewsSource(httpClient, cfg.OpenAIAPIKey, cfg.NewsModel)

	records := exposure.NewRecordStore(backend)

	service := exposure.NewService(exposure.ServiceConfig{
		Store:    records,
		Quota:    ratelimit.New(backend, cfg.RateLimits()),
		Sources:  srcs,
		News:     news,
		Geocoder: geocoder,
		Policy:   cfg.FreshnessPolicy(),
		Fanout: exposure.FanoutConfig{
			CallTimeout:  cfg.CallTimeout,
			BatchTimeout: cfg.BatchTimeout,
		},
	})

	// Background news refresh over all known cells.
	refresher := scheduler.New(records, news, geocoder, cfg.FreshnessPolicy(), cfg.RefreshInterval, cfg.RefreshBatchSize)
	if err := refresher.Start(); err != nil {
		log.Fatalf("failed to start news refresher: %v", err)
	}
	defer refresher.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "exposure-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "exposure-api",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// openBackend opens the SQLite store at path. An empty path selects the
// in-memory store; open failures also fall back to it.
func openBackend(path string) kv.Store {
	if path == "" {
		return kv.NewMemoryStore()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("cannot create data directory for %s: %v; using in-memory store", path, err)
		return kv.NewMemoryStore()
	}
	store, err := kv.OpenSQLite(path)
	if err != nil {
		log.Printf("cannot open sqlite store at %s: %v; using in-memory store", path, err)
		return kv.NewMemoryStore()
	}
	return store
}
