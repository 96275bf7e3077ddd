// Package scheduler runs the periodic review sync for every connected
// integration.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/semaphore"

	"review-workers/internal/common/logger"
	"review-workers/internal/models"
	syncreviews "review-workers/internal/workers/reviews/sync-reviews"
)

const jobTag = "review-sync"

type IntegrationLister interface {
	ListConnected(ctx context.Context, platforms []string) ([]models.Integration, error)
}

type Syncer interface {
	Sync(ctx context.Context, input *syncreviews.Input) (*syncreviews.Output, error)
}

// Recoverer is implemented by syncers that can finish fan-out interrupted by
// a crash. When the syncer has it, every pass ends with a recovery sweep.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

type Config struct {
	Interval    time.Duration
	Concurrency int
	Platforms   []string
	Limit       int
}

// Summary counts the outcome of one scheduled pass.
type Summary struct {
	Integrations int
	Succeeded    int
	Failed       int
	Recovered    int
}

// Scheduler triggers a sync for every connected integration on a fixed
// cadence. Runs never overlap and at most Concurrency syncs are in flight.
type Scheduler struct {
	config    Config
	scheduler *gocron.Scheduler
	sem       *semaphore.Weighted
	lister    IntegrationLister
	syncer    Syncer
	logger    logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(config Config, lister IntegrationLister, syncer Syncer, log logger.Logger) *Scheduler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if len(config.Platforms) == 0 {
		config.Platforms = []string{models.PlatformGoogle}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:    config,
		scheduler: gocron.NewScheduler(time.UTC),
		sem:       semaphore.NewWeighted(int64(config.Concurrency)),
		lister:    lister,
		syncer:    syncer,
		logger:    log.WithFields(map[string]interface{}{"component": "scheduler"}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the sync job and starts the scheduler in the background.
// The first pass runs immediately.
func (s *Scheduler) Start() error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", s.config.Interval)
	}
	job, err := s.scheduler.Every(s.config.Interval).SingletonMode().Do(func() {
		s.RunOnce(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule review sync: %w", err)
	}
	job.Tag(jobTag)

	s.logger.Info("scheduler started", map[string]interface{}{
		"interval":    s.config.Interval.String(),
		"concurrency": s.config.Concurrency,
		"platforms":   s.config.Platforms,
	})
	s.scheduler.StartAsync()
	return nil
}

// Stop halts the cadence and cancels in-flight syncs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
	s.logger.Info("scheduler stopped", nil)
}

// RunOnce syncs every connected integration once, then sweeps for reviews
// whose fan-out never finished. Each business runs independently: a failing
// sync is logged and does not affect the others.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	summary := s.syncAll(ctx)
	summary.Recovered = s.recover(ctx)
	return summary
}

func (s *Scheduler) recover(ctx context.Context) int {
	r, ok := s.syncer.(Recoverer)
	if !ok {
		return 0
	}
	n, err := r.Recover(ctx)
	if err != nil {
		s.logger.Error("fan-out recovery failed", map[string]interface{}{"error": err})
	}
	return n
}

func (s *Scheduler) syncAll(ctx context.Context) Summary {
	integrations, err := s.lister.ListConnected(ctx, s.config.Platforms)
	if err != nil {
		s.logger.Error("list connected integrations", map[string]interface{}{"error": err})
		return Summary{}
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		failed    atomic.Int32
	)
	for _, integration := range integrations {
		integration := integration
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("scheduled pass interrupted", map[string]interface{}{"error": err})
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)

			_, err := s.syncer.Sync(ctx, &syncreviews.Input{
				BusinessID: integration.BusinessID,
				Platform:   integration.Platform,
				Limit:      s.config.Limit,
			})
			if err != nil {
				failed.Add(1)
				s.logger.Warn("scheduled sync failed", map[string]interface{}{
					"businessId": integration.BusinessID,
					"platform":   integration.Platform,
					"error":      err,
				})
				return
			}
			succeeded.Add(1)
		}()
	}
	wg.Wait()

	summary := Summary{
		Integrations: len(integrations),
		Succeeded:    int(succeeded.Load()),
		Failed:       int(failed.Load()),
	}
	s.logger.Info("scheduled sync pass finished", map[string]interface{}{
		"integrations": summary.Integrations,
		"succeeded":    summary.Succeeded,
		"failed":       summary.Failed,
	})
	return summary
}
