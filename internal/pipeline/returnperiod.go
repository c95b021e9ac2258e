package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/observability"
)

// ReturnPeriodConfig names the source variables and controls execution.
type ReturnPeriodConfig struct {
	Variable string // streamflow variable, default Qout
	TimeDim  string // default time
	UnitDim  string // default rivid
	Periods  []int  // default StandardReturnPeriods
	Workers  int    // estimator goroutines, default 1
	Progress bool

	// BlockValues bounds each read of a time-major source, default 1<<22.
	BlockValues int
	// Resume replays the units an earlier aborted run journaled for the same
	// output and skips them.
	Resume bool
}

func (c ReturnPeriodConfig) withDefaults() ReturnPeriodConfig {
	if c.Variable == "" {
		c.Variable = "Qout"
	}
	if c.TimeDim == "" {
		c.TimeDim = "time"
	}
	if c.UnitDim == "" {
		c.UnitDim = "rivid"
	}
	if len(c.Periods) == 0 {
		c.Periods = domain.StandardReturnPeriods
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BlockValues < 1 {
		c.BlockValues = defaultBlockValues
	}
	return c
}

const defaultBlockValues = 1 << 22

// coordinateVariables are copied from the source unit axis to the output.
var coordinateVariables = []string{"lat", "lon"}

// ReturnPeriodRunner computes Gumbel return periods for every spatial unit of
// each planned region. Any unit error aborts the run.
type ReturnPeriodRunner struct {
	storage  domain.Storage
	notifier domain.ProductNotifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	runID    string
	status   *statusTracker
}

// NewReturnPeriodRunner creates a runner. notifier may be nil.
func NewReturnPeriodRunner(storage domain.Storage, notifier domain.ProductNotifier, logger *slog.Logger, metrics *observability.Metrics, runID string) *ReturnPeriodRunner {
	return &ReturnPeriodRunner{
		storage:  storage,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		runID:    runID,
		status:   newStatusTracker(runID, domain.ProductReturnPeriods),
	}
}

// CheckReadiness returns nil once at least one unit has been written.
func (r *ReturnPeriodRunner) CheckReadiness(_ context.Context) error {
	return r.status.ready()
}

// Status reports progress of the current run. Done counts units.
func (r *ReturnPeriodRunner) Status() any { return r.status.snapshot() }

// Run processes every job in order and stops at the first failure.
func (r *ReturnPeriodRunner) Run(ctx context.Context, jobs []ReturnPeriodJob, cfg ReturnPeriodConfig) error {
	start := domain.Now()
	r.logger.Info("gumbel return period processing started", "regions", len(jobs), "run_id", r.runID)
	r.metrics.RunRunning.Set(1)
	defer r.metrics.RunRunning.Set(0)
	r.status.start(start)
	defer r.status.finish()

	for _, job := range jobs {
		r.logger.Info("computing return periods", "region", job.Source.Region, "source", job.Source.Path)
		r.status.working(job.Source.Region)
		units, err := r.ProcessRegion(ctx, job, cfg)
		if err != nil {
			r.status.failed()
			return fmt.Errorf("region %s: %w", job.Source.Region, err)
		}
		r.logger.Info("return periods saved", "region", job.Source.Region, "path", job.Output, "units", units)
	}

	r.logger.Info("workflow finished", "runtime", domain.Now().Sub(start).String())
	return nil
}

// unitSeries carries either a unit's daily values or, for time-major
// sources, its annual maxima from the streaming scan.
type unitSeries struct {
	unit   int
	values []float64
	maxima *domain.AnnualMaxSeries
	start  time.Time
}

type unitResult struct {
	unit     int
	estimate domain.ReturnPeriodEstimate
}

// ProcessRegion writes the return periods of every unit in job's source.
// One goroutine reads the source, cfg.Workers goroutines fit the estimator and
// a single writer stores results, syncing after each unit. On failure the
// partial output is aborted.
func (r *ReturnPeriodRunner) ProcessRegion(ctx context.Context, job ReturnPeriodJob, cfg ReturnPeriodConfig) (int, error) {
	cfg = cfg.withDefaults()

	src, err := r.storage.Open(job.Source.Path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	info, err := src.Variable(cfg.Variable)
	if err != nil {
		return 0, fmt.Errorf("flow variable: %w", err)
	}
	layout, err := domain.ResolveLayout(src.Path(), info, cfg.TimeDim, cfg.UnitDim)
	if err != nil {
		return 0, err
	}
	units, steps := info.Shape[1], info.Shape[0]
	if layout == domain.UnitMajor {
		units, steps = info.Shape[0], info.Shape[1]
	}
	need := domain.RequiredDays(job.Profile.StartYear, job.Profile.EndYear)
	if steps < need {
		return 0, fmt.Errorf("%s holds %d daily records, %d-%d needs %d",
			src.Path(), steps, job.Profile.StartYear, job.Profile.EndYear, need)
	}
	r.logger.Debug("source layout resolved", "path", src.Path(), "layout", layout.String(), "units", units, "steps", steps)

	var resumed map[int]domain.ReturnPeriodEstimate
	if cfg.Resume {
		if resumed, err = r.recoverUnits(job.Output, units, cfg.Periods); err != nil {
			return 0, err
		}
	}

	w, err := r.storage.Create(job.Output)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", job.Output, err)
	}
	if err := r.writeHeader(w, src, info, units, job, cfg); err != nil {
		_ = w.Abort()
		return 0, err
	}
	if err := r.replayUnits(w, resumed, cfg.Periods); err != nil {
		_ = w.Abort()
		return 0, err
	}

	if err := r.processUnits(ctx, src, w, layout, units, need, resumed, job, cfg); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			r.logger.Error("abort output failed", "path", job.Output, "error", abortErr)
		}
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", job.Output, err)
	}

	notifyProduct(ctx, r.notifier, r.logger, r.metrics, domain.Product{
		RunID:      r.runID,
		Kind:       domain.ProductReturnPeriods,
		Path:       job.Output,
		SourcePath: job.Source.Path,
		Variable:   cfg.Variable,
		StartYear:  job.Profile.StartYear,
		EndYear:    job.Profile.EndYear,
		Units:      units,
		CreatedAt:  domain.Now(),
	})
	return units, nil
}

func (r *ReturnPeriodRunner) processUnits(ctx context.Context, src domain.Dataset, w domain.DatasetWriter, layout domain.Layout, units, need int, skip map[int]domain.ReturnPeriodEstimate, job ReturnPeriodJob, cfg ReturnPeriodConfig) error {
	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.Default(int64(units), job.Source.Region)
		defer bar.Close() //nolint:errcheck // display only
		_ = bar.Add(len(skip))
	}

	g, gctx := errgroup.WithContext(ctx)
	series := make(chan unitSeries, cfg.Workers)
	results := make(chan unitResult, cfg.Workers)

	// reader: the source is only ever touched from this goroutine.
	g.Go(func() error {
		defer close(series)
		var table *domain.MaximaTable
		if layout == domain.TimeMajor {
			var err error
			if table, err = scanMaxima(gctx, src, units, need, job.Profile, cfg); err != nil {
				return err
			}
		}
		for u := 0; u < units; u++ {
			if _, ok := skip[u]; ok {
				continue
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			s := unitSeries{unit: u, start: start}
			if table != nil {
				maxima, err := table.Series(u)
				if err != nil {
					return fmt.Errorf("unit %d: %w", u, err)
				}
				s.maxima = &maxima
			} else {
				values, err := domain.ReadSeries(src, cfg.Variable, layout, u, need)
				if err != nil {
					return fmt.Errorf("unit %d: %w", u, err)
				}
				s.values = values
			}
			select {
			case series <- s:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for s := range series {
				est, err := estimateUnit(s, job.Profile, cfg.Periods)
				if err != nil {
					return err
				}
				r.metrics.UnitDuration.Observe(time.Since(s.start).Seconds())
				select {
				case results <- unitResult{unit: s.unit, estimate: est}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// writer: the only goroutine touching w.
	g.Go(func() error {
		done := len(skip)
		for res := range results {
			for _, period := range cfg.Periods {
				v := res.estimate[period]
				if err := w.Write(domain.ReturnPeriodVariable(period), []int{res.unit}, domain.Array{Shape: []int{1}, Values: []float64{v}}); err != nil {
					return fmt.Errorf("unit %d: write return period %d: %w", res.unit, period, err)
				}
			}
			if err := w.Sync(); err != nil {
				return fmt.Errorf("unit %d: sync: %w", res.unit, err)
			}
			done++
			r.metrics.UnitsProcessed.Inc()
			r.status.succeeded(1)
			r.logger.Debug("unit done", "unit", res.unit, "progress", fmt.Sprintf("%d/%d", done, units))
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		return nil
	})

	return g.Wait()
}

// scanMaxima reads a time-major variable in blocks of whole time steps and
// folds each block into the annual maxima of every unit.
func scanMaxima(ctx context.Context, src domain.Dataset, units, need int, profile SourceProfile, cfg ReturnPeriodConfig) (*domain.MaximaTable, error) {
	table, err := domain.NewMaximaTable(units, profile.StartYear, profile.EndYear)
	if err != nil {
		return nil, err
	}
	rows := max(1, cfg.BlockValues/units)
	for t0 := 0; t0 < need; t0 += rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t1 := min(t0+rows, need)
		block, err := src.ReadSlice(cfg.Variable, []int{t0, 0}, []int{t1, units})
		if err != nil {
			return nil, fmt.Errorf("read %s steps [%d, %d): %w", cfg.Variable, t0, t1, err)
		}
		if err := table.Add(t0, block.Values); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// estimateUnit reduces one unit's daily series to annual maxima and fits the estimator.
func estimateUnit(s unitSeries, profile SourceProfile, periods []int) (domain.ReturnPeriodEstimate, error) {
	var maxima domain.AnnualMaxSeries
	if s.maxima != nil {
		maxima = *s.maxima
	} else {
		var err error
		if maxima, err = domain.AnnualMaxima(s.values, profile.StartYear, profile.EndYear); err != nil {
			return nil, fmt.Errorf("unit %d: %w", s.unit, err)
		}
	}
	est, err := domain.EstimateReturnPeriods(maxima.Maxima, periods)
	if err != nil {
		var insufficient *domain.InsufficientSampleError
		if errors.As(err, &insufficient) {
			insufficient.Unit = s.unit
			return nil, insufficient
		}
		return nil, fmt.Errorf("unit %d: %w", s.unit, err)
	}
	return est, nil
}

// recoverUnits reads the journal an aborted run left at output and returns
// the units whose every period was synced.
func (r *ReturnPeriodRunner) recoverUnits(output string, units int, periods []int) (map[int]domain.ReturnPeriodEstimate, error) {
	jr, ok := r.storage.(domain.JournalReader)
	if !ok {
		r.logger.Warn("storage keeps no journal, resuming from scratch", "path", output)
		return nil, nil
	}
	records, err := jr.ReadJournal(output)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", output, err)
	}

	byName := make(map[string]int, len(periods))
	for _, p := range periods {
		byName[domain.ReturnPeriodVariable(p)] = p
	}
	partial := make(map[int]domain.ReturnPeriodEstimate)
	for _, rec := range records {
		period, ok := byName[rec.Variable]
		if !ok || len(rec.Begin) != 1 || len(rec.Data.Values) != 1 {
			continue
		}
		unit := rec.Begin[0]
		if unit < 0 || unit >= units {
			return nil, fmt.Errorf("resume %s: journaled unit %d out of range [0, %d)", output, unit, units)
		}
		if partial[unit] == nil {
			partial[unit] = make(domain.ReturnPeriodEstimate, len(periods))
		}
		partial[unit][period] = rec.Data.Values[0]
	}

	done := make(map[int]domain.ReturnPeriodEstimate, len(partial))
	for unit, est := range partial {
		if len(est) == len(periods) {
			done[unit] = est
		}
	}
	r.logger.Info("resuming from journal", "path", output, "records", len(records), "units", len(done))
	return done, nil
}

// replayUnits writes recovered units and syncs them as one journal entry.
func (r *ReturnPeriodRunner) replayUnits(w domain.DatasetWriter, done map[int]domain.ReturnPeriodEstimate, periods []int) error {
	if len(done) == 0 {
		return nil
	}
	for unit, est := range done {
		for _, period := range periods {
			if err := w.Write(domain.ReturnPeriodVariable(period), []int{unit}, domain.Array{Shape: []int{1}, Values: []float64{est[period]}}); err != nil {
				return fmt.Errorf("replay unit %d: %w", unit, err)
			}
		}
	}
	if err := w.Sync(); err != nil {
		return fmt.Errorf("replay sync: %w", err)
	}
	r.metrics.UnitsProcessed.Add(float64(len(done)))
	r.status.succeeded(len(done))
	return nil
}

// writeHeader defines the output layout: the unit dimension, passthrough
// coordinates and one float32 variable per return period, largest first.
func (r *ReturnPeriodRunner) writeHeader(w domain.DatasetWriter, src domain.Dataset, flow domain.VariableInfo, units int, job ReturnPeriodJob, cfg ReturnPeriodConfig) error {
	if err := w.CreateDimension(cfg.UnitDim, units); err != nil {
		return fmt.Errorf("create dimension %s: %w", cfg.UnitDim, err)
	}

	for _, name := range append([]string{cfg.UnitDim}, coordinateVariables...) {
		info, err := src.Variable(name)
		if err != nil {
			return fmt.Errorf("coordinate %s: %w", name, err)
		}
		if len(info.Dimensions) != 1 || info.Dimensions[0] != cfg.UnitDim {
			return fmt.Errorf("coordinate %s: dimensions %v, want [%s]", name, info.Dimensions, cfg.UnitDim)
		}
		typ := domain.Float32
		if name == cfg.UnitDim {
			typ = info.Type
		}
		if err := w.CreateVariable(domain.VariableSpec{Name: name, Type: typ, Dimensions: []string{cfg.UnitDim}, Attributes: info.Attributes.Unpacked()}); err != nil {
			return fmt.Errorf("create coordinate %s: %w", name, err)
		}
		values, err := src.ReadAll(name)
		if err != nil {
			return fmt.Errorf("read coordinate %s: %w", name, err)
		}
		if err := w.Write(name, []int{0}, values); err != nil {
			return fmt.Errorf("write coordinate %s: %w", name, err)
		}
	}

	periods := append([]int(nil), cfg.Periods...)
	sort.Sort(sort.Reverse(sort.IntSlice(periods)))
	flowUnits := flow.Attributes.String("units")
	for _, period := range periods {
		attrs := domain.Attributes{{Name: "long_name", Value: fmt.Sprintf("%d-year return period flow", period)}}
		if flowUnits != "" {
			attrs = append(attrs, domain.Attribute{Name: "units", Value: flowUnits})
		}
		if err := w.CreateVariable(domain.VariableSpec{
			Name:       domain.ReturnPeriodVariable(period),
			Type:       domain.Float32,
			Dimensions: []string{cfg.UnitDim},
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("create return period %d: %w", period, err)
		}
	}

	return domain.WriteProvenance(w, domain.Provenance{RunID: r.runID, Source: filepath.Base(job.Source.Path)},
		domain.Attribute{Name: "method", Value: "Gumbel Type I, method of moments"},
		domain.Attribute{Name: "start_year", Value: int32(job.Profile.StartYear)},
		domain.Attribute{Name: "end_year", Value: int32(job.Profile.EndYear)},
	)
}
