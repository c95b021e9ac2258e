package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/observability"
)

// ExitMissingSample is the process exit code signalling that at least one
// date lacked a required sub-daily sample.
const ExitMissingSample = 200

// DailyConfig selects the dates and variable of a daily aggregation run.
type DailyConfig struct {
	SourceDir string
	DestDir   string
	Prefix    string
	Variable  string
	Samples   int
	Range     DateRange
}

// DateFailure records one date that produced no aggregate.
type DateFailure struct {
	Date time.Time
	Path string
	Err  error
}

// DailyReport summarizes a daily aggregation run.
type DailyReport struct {
	Processed     int
	Failed        int
	MissingSample int
	Failures      []DateFailure
}

// ExitCode maps the report to the process exit status.
func (r DailyReport) ExitCode() int {
	switch {
	case r.MissingSample > 0:
		return ExitMissingSample
	case r.Failed > 0:
		return 1
	default:
		return 0
	}
}

// DailyRunner aggregates every discovered sub-daily file into a daily total.
// A failed date is logged and counted; the run continues with the next date.
type DailyRunner struct {
	storage  domain.Storage
	notifier domain.ProductNotifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	runID    string
	status   *statusTracker
}

// NewDailyRunner creates a runner. notifier may be nil.
func NewDailyRunner(storage domain.Storage, notifier domain.ProductNotifier, logger *slog.Logger, metrics *observability.Metrics, runID string) *DailyRunner {
	return &DailyRunner{
		storage:  storage,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		runID:    runID,
		status:   newStatusTracker(runID, domain.ProductDailyAggregate),
	}
}

// CheckReadiness returns nil once at least one date has been written.
func (r *DailyRunner) CheckReadiness(_ context.Context) error {
	return r.status.ready()
}

// Status reports progress of the current run.
func (r *DailyRunner) Status() any { return r.status.snapshot() }

// Run processes every file in cfg.SourceDir whose date is in cfg.Range.
// The returned error is non-nil only when the run could not start or was cancelled.
func (r *DailyRunner) Run(ctx context.Context, cfg DailyConfig) (DailyReport, error) {
	var report DailyReport

	files, err := DiscoverHourlyFiles(cfg.SourceDir, cfg.Prefix)
	if err != nil {
		return report, err
	}

	r.logger.Info("daily aggregation started", "source_dir", cfg.SourceDir, "dest_dir", cfg.DestDir, "files", len(files), "run_id", r.runID)
	r.metrics.RunRunning.Set(1)
	defer r.metrics.RunRunning.Set(0)
	r.status.start(domain.Now())
	defer r.status.finish()

	for _, f := range files {
		if !cfg.Range.Contains(f.Date) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		r.status.working(f.Path)
		out, err := r.ProcessDate(ctx, f, cfg)
		if err != nil {
			r.status.failed()
			reason := failureReason(err)
			report.Failed++
			if reason == "missing_sample" {
				report.MissingSample++
			}
			report.Failures = append(report.Failures, DateFailure{Date: f.Date, Path: f.Path, Err: err})
			r.metrics.DaysFailed.WithLabelValues(reason).Inc()
			r.logger.Warn("daily aggregation failed",
				"date", f.Date.Format(dateLayout),
				"path", f.Path,
				"reason", reason,
				"error", err,
			)
			continue
		}

		report.Processed++
		r.metrics.DaysProcessed.Inc()
		r.status.succeeded(1)
		r.logger.Info("daily aggregate saved", "date", f.Date.Format(dateLayout), "path", out)
	}

	r.logger.Info("daily aggregation finished",
		"processed", report.Processed,
		"failed", report.Failed,
		"missing_sample", report.MissingSample,
	)
	return report, nil
}

// ProcessDate aggregates one file and commits the daily output. Nothing is
// left at the destination when any step fails.
func (r *DailyRunner) ProcessDate(ctx context.Context, f HourlyFile, cfg DailyConfig) (string, error) {
	src, err := r.storage.Open(f.Path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	agg, err := domain.AggregateDay(src, domain.DailyRequest{
		Date:     f.Date,
		Variable: cfg.Variable,
		Samples:  cfg.Samples,
	})
	if err != nil {
		return "", err
	}
	for _, ts := range agg.Samples {
		r.logger.Debug("found sample", "timestamp", ts.Format("20060102 15:04:05"))
	}

	cal, err := domain.CalendarFor(domain.OutputCalendar)
	if err != nil {
		return "", err
	}

	out := DailyOutputPath(cfg.DestDir, f.Date)
	w, err := r.storage.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	prov := domain.Provenance{RunID: r.runID, Source: filepath.Base(f.Path)}
	if err := domain.WriteDailyAggregate(w, agg, cal, prov); err != nil {
		_ = w.Abort()
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit %s: %w", out, err)
	}

	date := agg.Date
	notifyProduct(ctx, r.notifier, r.logger, r.metrics, domain.Product{
		RunID:      r.runID,
		Kind:       domain.ProductDailyAggregate,
		Path:       out,
		SourcePath: f.Path,
		Variable:   cfg.Variable,
		Date:       &date,
		CreatedAt:  domain.Now(),
	})
	return out, nil
}

// failureReason classifies an error for the days_failed_total label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingSample):
		return "missing_sample"
	case errors.Is(err, domain.ErrUnrecognizedLayout):
		return "layout"
	case errors.Is(err, domain.ErrSourceNotFound):
		return "source"
	default:
		return "other"
	}
}
