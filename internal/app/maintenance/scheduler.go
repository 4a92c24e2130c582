package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub/pkg/logger"
)

const (
	defaultHourlySpec = "@hourly"
	defaultDailySpec  = "0 3 * * *"
	defaultTimezone   = "Asia/Kolkata"
)

// SchedulerConfig places the maintenance jobs on a cron schedule.
type SchedulerConfig struct {
	HourlySpec string
	DailySpec  string
	// Timezone is the civil zone the daily spec is evaluated in.
	Timezone string
}

// Scheduler runs Jobs in-process on a cron schedule. Deployments that trigger the
// maintenance endpoints externally leave it stopped.
type Scheduler struct {
	jobs     *Jobs
	cron     *cron.Cron
	location *time.Location
	hourly   string
	daily    string
	log      *zap.Logger
}

// SchedulerOption customises the Scheduler.
type SchedulerOption func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// NewScheduler validates the schedule and prepares the cron runner.
func NewScheduler(jobs *Jobs, cfg SchedulerConfig, opts ...SchedulerOption) (*Scheduler, error) {
	if jobs == nil {
		return nil, errors.New("maintenance: jobs are required")
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("maintenance: load timezone %q: %w", tz, err)
	}

	s := &Scheduler{
		jobs:     jobs,
		location: location,
		hourly:   valueOr(cfg.HourlySpec, defaultHourlySpec),
		daily:    valueOr(cfg.DailySpec, defaultDailySpec),
		log:      logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLocation(location), cron.WithLogger(cron.DiscardLogger))
	}
	return s, nil
}

// Location returns the timezone the daily reset runs in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// Start registers the hourly and daily jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.hourly, s.runHourly); err != nil {
		return fmt.Errorf("maintenance: hourly spec %q: %w", s.hourly, err)
	}
	if _, err := s.cron.AddFunc(s.daily, s.runDaily); err != nil {
		return fmt.Errorf("maintenance: daily spec %q: %w", s.daily, err)
	}

	s.cron.Start()
	s.log.Info("maintenance scheduler started",
		zap.String("hourly", s.hourly),
		zap.String("daily", s.daily),
		zap.String("timezone", s.location.String()),
	)
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs complete.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runHourly() {
	if _, err := s.jobs.Hourly(context.Background()); err != nil {
		s.log.Warn("scheduled hourly cleanup failed", zap.Error(err))
	}
}

func (s *Scheduler) runDaily() {
	if _, err := s.jobs.Daily(context.Background()); err != nil {
		s.log.Warn("scheduled daily reset failed", zap.Error(err))
	}
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
