// Command returnperiods estimates Gumbel return-period flows for every river
// reach of every region under a master directory.
//
// Usage:
//
//	returnperiods <master-dir> <log-dir> <end-year> [--start-year 1979] [--dest out/] [--workers 4] [--progress] [--resume]
//
// Each region directory must hold exactly one Qout file whose name ends with
// <end-year>1231.nc or <end-year>1231.nc4. Results are written to
// <dest>/<region>/gumbel_return_periods_<tag>_<start>_<end>.nc4. With --resume,
// units journaled next to an output by an interrupted run are replayed from
// <output>.journal instead of recomputed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"

	"github.com/couchcryptid/hydro-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/hydro-etl/internal/app"
	"github.com/couchcryptid/hydro-etl/internal/config"
	"github.com/couchcryptid/hydro-etl/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("returnperiods", "Computes Gumbel return periods from daily streamflow")
	masterDir := parser.StringPositional(&argparse.Options{Help: "directory of region subdirectories"})
	logDir := parser.StringPositional(&argparse.Options{Help: "directory for the run log"})
	endYear := parser.IntPositional(&argparse.Options{Help: "last year of the record"})
	startYear := parser.Int("", "start-year", &argparse.Options{Help: "first year of the record, inferred from the file name when unset"})
	destDir := parser.String("d", "dest", &argparse.Options{Help: "output root, defaults to the master directory"})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "estimator goroutines, overrides WORKERS"})
	progress := parser.Flag("p", "progress", &argparse.Options{Help: "show a progress bar per region"})
	resume := parser.Flag("r", "resume", &argparse.Options{Help: "replay units journaled by an interrupted run"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		return 1
	}
	if *masterDir == "" || *endYear == 0 {
		fmt.Fprint(os.Stderr, parser.Usage("master directory and end year are required"))
		return 1
	}

	rt, err := app.Start("gumbel_return_periods", app.Options{LogDir: *logDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("shutdown error", "error", err)
		}
	}()

	jobs, err := pipeline.PlanReturnPeriods(*masterDir, *destDir, *endYear, *startYear, rt.Config.SourceStartYears)
	if err != nil {
		rt.Logger.Error("planning failed", "error", err, "start_years", config.FormatStartYears(rt.Config.SourceStartYears))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage := netcdf.NewStorageWithCache(netcdf.CacheLimits{Blocks: rt.Config.CacheBlocks, Values: rt.Config.CacheValues})
	runner := pipeline.NewReturnPeriodRunner(storage, rt.Notifier, rt.Logger, rt.Metrics, rt.RunID)
	rt.Serve(runner)

	n := rt.Config.Workers
	if *workers > 0 {
		n = *workers
	}
	if err := runner.Run(ctx, jobs, pipeline.ReturnPeriodConfig{
		Variable: rt.Config.FlowVariable,
		Workers:  n,
		Progress: *progress,
		// half the cache, so a block stays cached while the next is read
		BlockValues: rt.Config.CacheValues / 2,
		Resume:      *resume,
	}); err != nil {
		rt.Logger.Error("return period run aborted", "error", err)
		return 1
	}
	return 0
}
