// Package scheduler drives the fabric's recurring work: nightly
// maintenance jobs on a single-worker scheduler and adapter polls on a
// small concurrent one. Every execution is wrapped with panic recovery,
// error reporting and run metrics.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/windmobile/windfabric/internal/adapters"
	"github.com/windmobile/windfabric/internal/admin"
	"github.com/windmobile/windfabric/internal/config"
	"github.com/windmobile/windfabric/internal/engine"
	"github.com/windmobile/windfabric/internal/log"
	"github.com/windmobile/windfabric/internal/metrics"
)

const (
	// startDelay keeps the first adapter polls off the boot path.
	startDelay = 10 * time.Second
	// pollJitter spreads adapter polls so upstreams are not hit in
	// lockstep.
	pollJitter = 5 * time.Minute
)

// Nightly maintenance schedule.
const (
	pruneCron      = "0 3 * * *"
	clustersCron   = "30 3 * * *"
	duplicatesCron = "0 4 * * *"
)

// Scheduler owns the two gocron schedulers and the registered jobs.
type Scheduler struct {
	admin     gocron.Scheduler
	providers gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// New builds the schedulers and registers the maintenance jobs and every
// enabled adapter. Nothing runs until Start.
func New(cfg *config.Settings, eng *engine.Engine, jobs *admin.Jobs) (*Scheduler, error) {
	adminSched, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait))
	if err != nil {
		return nil, err
	}
	providerSched, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(2, gocron.LimitModeWait))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		admin:     adminSched,
		providers: providerSched,
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := s.registerAdminJobs(cfg, jobs); err != nil {
		cancel()
		return nil, err
	}
	if err := s.registerAdapters(cfg, eng); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerAdminJobs(cfg *config.Settings, jobs *admin.Jobs) error {
	pruneDays := config.GetenvInt("STATION_PRUNE_DAYS", 60)
	clustersMin := config.GetenvInt("CLUSTERS_MIN", 200)
	clustersNum := config.GetenvInt("CLUSTERS_NUM", 60)
	duplicatesDistance := config.GetenvInt("DUPLICATES_DISTANCE", 50)

	adminJobs := []struct {
		name string
		cron string
		run  func(ctx context.Context) error
	}{
		{"delete-stations", pruneCron, func(ctx context.Context) error {
			_, err := jobs.DeleteStations(ctx, pruneDays, "")
			return err
		}},
		{"save-clusters", clustersCron, func(ctx context.Context) error {
			return jobs.SaveClusters(ctx, clustersMin, clustersNum)
		}},
		{"find-duplicates", duplicatesCron, func(ctx context.Context) error {
			return jobs.FindDuplicates(ctx, float64(duplicatesDistance), cfg.PreferredProviders)
		}},
	}
	for _, job := range adminJobs {
		_, err := s.admin.NewJob(
			gocron.CronJob(job.cron, false),
			gocron.NewTask(s.wrap(job.name, job.run)),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("registering job %s: %w", job.name, err)
		}
	}
	return nil
}

func (s *Scheduler) registerAdapters(cfg *config.Settings, eng *engine.Engine) error {
	start := time.Now().Add(startDelay)
	for _, adapter := range adapters.All(cfg) {
		code := adapter.Provider.Code
		if config.ProviderDisabled(code) {
			log.Infof("provider %s is disabled, skipping", code)
			continue
		}
		handle, err := eng.Handle(adapter.Provider)
		if err != nil {
			return err
		}

		run := adapter.Run
		_, err = s.providers.NewJob(
			gocron.DurationRandomJob(adapter.Interval, adapter.Interval+pollJitter),
			gocron.NewTask(s.wrap(code, func(ctx context.Context) error {
				return run(ctx, handle)
			})),
			gocron.WithName(code),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartDateTime(start)),
		)
		if err != nil {
			return fmt.Errorf("registering adapter %s: %w", code, err)
		}
	}
	return nil
}

// wrap applies the common execution policy: a run id for correlation,
// panic recovery, sentry reporting and per-outcome counters.
func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	logger := log.Named(name)
	return func() {
		runID := uuid.NewString()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("job panicked", "run", runID, "panic", r)
				sentry.CurrentHub().Recover(r)
				metrics.JobRuns.WithLabelValues(name, "panic").Inc()
			}
		}()

		start := time.Now()
		if err := run(s.ctx); err != nil {
			logger.Errorw("job failed", "run", runID, "error", err)
			sentry.CaptureException(err)
			metrics.JobRuns.WithLabelValues(name, "error").Inc()
			return
		}
		logger.Infow("job finished", "run", runID, "duration", time.Since(start))
		metrics.JobRuns.WithLabelValues(name, "success").Inc()
	}
}

// Start launches both schedulers in the background.
func (s *Scheduler) Start() {
	s.admin.Start()
	s.providers.Start()
}

// Shutdown cancels running jobs and stops the schedulers.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.providers.Shutdown(); err != nil {
		return err
	}
	return s.admin.Shutdown()
}
