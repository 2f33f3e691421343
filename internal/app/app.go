// Package app wires the fabric together: configuration, storage, cache,
// geo services, engine, maintenance jobs, scheduler and the metrics
// listener, with signal-driven shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/windmobile/windfabric/internal/admin"
	"github.com/windmobile/windfabric/internal/cache"
	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/database"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/internal/geo"
	"github.com/windmobile/windfabric/internal/log"
	"github.com/windmobile/windfabric/internal/metrics"
	"github.com/windmobile/windfabric/internal/scheduler"
)

// App is the long-running scheduler daemon.
type App struct {
	cfg *config.Settings
}

// New creates a new application instance over loaded settings.
func New(cfg *config.Settings) *App {
	return &App{cfg: cfg}
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db := database.NewClient(a.cfg.MongoURL, log.Named("mongo"))
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}
	defer db.Disconnect(context.Background())

	redisCache, err := cache.New(a.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	tzFinder, err := geo.NewTimezoneFinder()
	if err != nil {
		return fmt.Errorf("loading timezone index: %w", err)
	}
	google := geo.NewGoogleClient(a.cfg.GoogleAPIKey)

	eng := engine.New(db, redisCache, google, tzFinder)
	jobs := admin.New(db)

	sched, err := scheduler.New(a.cfg, eng, jobs)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}
	sched.Start()

	if a.cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, a.cfg.MetricsAddr,
			metrics.HealthCheck{Name: "mongodb", Check: db.Ping},
			metrics.HealthCheck{Name: "redis", Check: redisCache.Ping},
		)
	}

	log.Info("windfabric started")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()
	if err := sched.Shutdown(); err != nil {
		log.Errorf("scheduler shutdown: %v", err)
	}
	log.Info("shutdown complete")
	return nil
}
