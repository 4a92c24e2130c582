package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/services"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/metrics"
)

const defaultAuditRetentionDays = 90

// CachePurger removes expired entries from a persistent cache table.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// HourlyReport summarises an hourly cleanup run.
type HourlyReport struct {
	Cleaned int64 `json:"cleaned"`
}

// DailyReport summarises a daily reset run.
type DailyReport struct {
	Cleaned     int64 `json:"cleaned"`
	Repaired    int64 `json:"repaired"`
	Reset       int64 `json:"reset"`
	AuditPruned int64 `json:"audit_pruned"`
	CachePurged int64 `json:"cache_purged"`
}

// Jobs runs the session maintenance routines. Every job is idempotent and may be
// triggered out of schedule.
type Jobs struct {
	sessions  *iauth.SessionManager
	audit     *services.AuditService
	cache     CachePurger
	retention int
	timeout   time.Duration
	log       *zap.Logger
}

// Option customises Jobs.
type Option func(*Jobs)

// WithAuditRetentionDays adjusts how long audit logs are retained before the daily job prunes them.
func WithAuditRetentionDays(days int) Option {
	return func(j *Jobs) {
		if days > 0 {
			j.retention = days
		}
	}
}

// WithCachePurger enables purging of expired cache rows during the daily job.
func WithCachePurger(purger CachePurger) Option {
	return func(j *Jobs) {
		j.cache = purger
	}
}

// WithTimeout bounds each job run.
func WithTimeout(timeout time.Duration) Option {
	return func(j *Jobs) {
		if timeout > 0 {
			j.timeout = timeout
		}
	}
}

// NewJobs constructs the maintenance jobs. The audit service is optional.
func NewJobs(sessions *iauth.SessionManager, audit *services.AuditService, opts ...Option) (*Jobs, error) {
	if sessions == nil {
		return nil, errors.New("maintenance: session manager is required")
	}

	jobs := &Jobs{
		sessions:  sessions,
		audit:     audit,
		retention: defaultAuditRetentionDays,
		timeout:   5 * time.Minute,
		log:       logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(jobs)
	}
	return jobs, nil
}

// Hourly ends every session whose logout grace period has elapsed.
func (j *Jobs) Hourly(ctx context.Context) (HourlyReport, error) {
	ctx, cancel := j.runContext(ctx)
	defer cancel()

	cleaned, err := j.sessions.CleanupScheduledLogouts(ctx)
	j.record("hourly", "logout_cleanup", cleaned, err)
	if err != nil {
		return HourlyReport{}, fmt.Errorf("maintenance: hourly cleanup: %w", err)
	}

	j.log.Info("hourly cleanup finished", zap.Int64("cleaned", cleaned))
	return HourlyReport{Cleaned: cleaned}, nil
}

// Daily runs the logout cleanup, repairs inconsistent rows, resets every session, and prunes
// old audit records. A failing step does not prevent the later ones from running.
func (j *Jobs) Daily(ctx context.Context) (DailyReport, error) {
	ctx, cancel := j.runContext(ctx)
	defer cancel()

	var (
		report DailyReport
		errs   error
		err    error
	)

	report.Cleaned, err = j.sessions.CleanupScheduledLogouts(ctx)
	errs = multierr.Append(errs, wrapStep("logout cleanup", err))
	metrics.MaintenanceRows.WithLabelValues("logout_cleanup").Add(float64(report.Cleaned))

	report.Repaired, err = j.sessions.RepairInconsistent(ctx)
	errs = multierr.Append(errs, wrapStep("repair", err))
	metrics.MaintenanceRows.WithLabelValues("repair").Add(float64(report.Repaired))

	report.Reset, err = j.sessions.ResetAllSessions(ctx)
	errs = multierr.Append(errs, wrapStep("reset", err))
	metrics.MaintenanceRows.WithLabelValues("reset").Add(float64(report.Reset))

	if j.audit != nil && j.retention > 0 {
		report.AuditPruned, err = j.audit.CleanupOlderThan(ctx, j.retention)
		errs = multierr.Append(errs, wrapStep("audit retention", err))
		metrics.MaintenanceRows.WithLabelValues("audit_retention").Add(float64(report.AuditPruned))
	}

	if j.cache != nil {
		report.CachePurged, err = j.cache.PurgeExpired(ctx)
		errs = multierr.Append(errs, wrapStep("cache purge", err))
		metrics.MaintenanceRows.WithLabelValues("cache_purge").Add(float64(report.CachePurged))
	}

	result := "success"
	if errs != nil {
		result = "error"
		j.log.Error("daily reset finished with errors", zap.Error(errs))
	} else {
		j.log.Info("daily reset finished",
			zap.Int64("cleaned", report.Cleaned),
			zap.Int64("repaired", report.Repaired),
			zap.Int64("reset", report.Reset),
			zap.Int64("audit_pruned", report.AuditPruned),
		)
	}
	metrics.MaintenanceRuns.WithLabelValues("daily", result).Inc()

	return report, errs
}

// runContext bounds a run by the job timeout. Runs are not cancelled when the triggering
// request goes away.
func (j *Jobs) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
}

func (j *Jobs) record(job, step string, rows int64, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.MaintenanceRows.WithLabelValues(step).Add(float64(rows))
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
}

func wrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("maintenance: %s: %w", step, err)
}
