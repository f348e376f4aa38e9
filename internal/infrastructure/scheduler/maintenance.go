package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// BatchJob processes one batch and returns how many items it handled.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// JobFunc adapts a function to BatchJob.
type JobFunc func(ctx context.Context) (int, error)

func (f JobFunc) Execute(ctx context.Context) (int, error) { return f(ctx) }

type namedJob struct {
	name string
	job  BatchJob
}

// MaintenanceScheduler runs session housekeeping on a fixed interval:
// invalidating expired records, unloading idle client state, pruning queued
// notices. Jobs run in registration order; one failing does not skip the rest.
type MaintenanceScheduler struct {
	jobs     []namedJob
	interval time.Duration
	timeout  time.Duration
	logger   logger.Interface
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMaintenanceScheduler(interval time.Duration, log logger.Interface) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		interval: interval,
		timeout:  time.Minute,
		logger:   log.Named("scheduler.maintenance"),
		stopChan: make(chan struct{}),
	}
}

// Register adds a job. It must be called before Start.
func (s *MaintenanceScheduler) Register(name string, job BatchJob) {
	s.jobs = append(s.jobs, namedJob{name: name, job: job})
}

func (s *MaintenanceScheduler) Start(ctx context.Context) {
	s.logger.Infow("starting maintenance scheduler", "interval", s.interval, "jobs", len(s.jobs))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()
}

// Stop waits for the running pass to finish. Safe to call more than once.
func (s *MaintenanceScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Infow("maintenance scheduler stopped")
	})
}

func (s *MaintenanceScheduler) runLoop(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes every job once and returns the per-job counts of the
// jobs that succeeded.
func (s *MaintenanceScheduler) RunOnce(ctx context.Context) map[string]int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(map[string]int, len(s.jobs))
	for _, j := range s.jobs {
		start := time.Now()
		n, err := j.job.Execute(ctx)
		if err != nil {
			s.logger.Errorw("maintenance job failed",
				"job", j.name,
				"error", err,
				"duration", time.Since(start),
			)
			continue
		}
		results[j.name] = n
		if n > 0 {
			s.logger.Infow("maintenance job processed items",
				"job", j.name,
				"count", n,
				"duration", time.Since(start),
			)
		}
	}
	return results
}
