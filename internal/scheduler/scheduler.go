package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/metrics"
	"github.com/yeye296/Xserver-VPS-Renew/internal/renew"
)

// RunFunc performs one complete renewal run and returns the settled record.
type RunFunc func(ctx context.Context) *renew.RunRecord

// ResultFunc receives each settled record for persistence and notification.
type ResultFunc func(ctx context.Context, rec *renew.RunRecord)

// Scheduler triggers renewal runs on a cron schedule. Runs are mutually
// exclusive: a tick that fires while a run is still in progress is skipped,
// never queued.
type Scheduler struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	spec     string
	run      RunFunc
	onResult ResultFunc
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	isRunning bool
	mu        sync.RWMutex
	runMu     sync.Mutex
}

// NewScheduler creates a new scheduler
func NewScheduler(spec string, run RunFunc, onResult ResultFunc, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		spec:     spec,
		run:      run,
		onResult: onResult,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	entryID, err := s.cron.AddFunc(s.spec, s.execute)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with spec %q", s.spec)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	s.cron.Remove(s.entryID)
	ctx := s.cron.Stop()

	// Wait for all jobs to complete
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// execute performs one scheduled renewal run.
func (s *Scheduler) execute() {
	// One run at a time against the same account; an overlapping tick is
	// dropped rather than queued behind a slow run.
	if !s.runMu.TryLock() {
		logrus.Warn("Previous renewal run still in progress, skipping this tick")
		return
	}
	defer s.runMu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Starting renewal run")
	start := time.Now()

	rec := s.run(s.ctx)

	if s.metrics != nil {
		s.metrics.RunsTotal.WithLabelValues(string(rec.Status)).Inc()
		s.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}

	if s.onResult != nil {
		s.onResult(s.ctx, rec)
	}

	logrus.Infof("Renewal run finished in %v with status %s", time.Since(start), rec.Status)
}

// RunOnce runs the renewal once (for manual triggering)
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running renewal once")
	s.execute()
	return nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for in-flight runs to finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
