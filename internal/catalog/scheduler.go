package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"beaconcore/internal/core"
	"beaconcore/pkg/config"

	"github.com/robfig/cron/v3"
)

// Revalidator is the part of core.Service the scheduler drives.
type Revalidator interface {
	Revalidate(ctx context.Context) ([]core.BeaconReport, error)
}

// Scheduler periodically revalidates the stored catalog against the current
// rule set and hands any reports to a callback.
type Scheduler struct {
	target   Revalidator
	spec     string
	onReport func([]core.BeaconReport)
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	stop    chan struct{}
	running bool
	last    []core.BeaconReport
}

// NewScheduler builds a scheduler for spec, a cron expression or descriptor
// such as "@every 1h". The spec "off" yields a scheduler that never runs.
func NewScheduler(target Revalidator, spec string, onReport func([]core.BeaconReport), logger *slog.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New("revalidation target is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := config.ParseSchedule(spec); err != nil {
		return nil, err
	}
	return &Scheduler{
		target:   target,
		spec:     spec,
		onReport: onReport,
		logger:   logger.With(slog.String("component", "catalog.scheduler")),
	}, nil
}

// Start registers the job on a fresh cron loop and starts it. The scheduler
// stops when ctx is cancelled or Stop is called, and may be started again
// afterwards.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	schedule, err := config.ParseSchedule(s.spec)
	if err != nil {
		return err
	}
	if schedule == nil {
		s.logger.Info("revalidation schedule disabled")
		return nil
	}
	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))
	c.Start()
	stop := make(chan struct{})
	s.cron, s.stop, s.running = c, stop, true
	s.logger.Info("revalidation scheduler started", slog.String("schedule", s.spec))

	go func() {
		select {
		case <-ctx.Done():
			s.stopRun(stop)
		case <-stop:
		}
	}()
	return nil
}

// RunOnce revalidates the catalog immediately.
func (s *Scheduler) RunOnce(ctx context.Context) {
	started := time.Now()
	reports, err := s.target.Revalidate(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled revalidation failed", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.last = reports
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "scheduled revalidation completed",
		slog.Int("beacons_with_violations", len(reports)),
		slog.Duration("elapsed", time.Since(started)))
	if s.onReport != nil {
		s.onReport(reports)
	}
}

// Stop stops the cron loop and waits for a running revalidation to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		s.stopRun(stop)
	}
}

// stopRun stops the run identified by stop; later runs are left alone.
func (s *Scheduler) stopRun(stop chan struct{}) {
	s.mu.Lock()
	if !s.running || s.stop != stop {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.stop = nil
	s.cron = nil
	close(stop)
	s.mu.Unlock()
	<-c.Stop().Done()
	s.logger.Info("revalidation scheduler stopped")
}

// Running reports whether the cron loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReports returns the reports of the most recent completed run.
func (s *Scheduler) LastReports() []core.BeaconReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BeaconReport(nil), s.last...)
}

// NextRun returns the next scheduled run, or the zero time when idle.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c == nil {
		return time.Time{}
	}
	entries := c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
