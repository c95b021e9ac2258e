// Command dailyagg sums each hourly runoff file in a directory into a daily
// netCDF file named YYYYMMDD.nc.
//
// Usage:
//
//	dailyagg <source-dir> <dest-dir> [--start 20100101] [--end 20101231]
//
// The exit status is 200 when any date lacked an hourly sample, 1 on other
// failures and 0 otherwise.
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
	"github.com/couchcryptid/hydro-etl/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("dailyagg", "Aggregates hourly runoff files into daily totals")
	sourceDir := parser.StringPositional(&argparse.Options{Help: "directory holding hourly files"})
	destDir := parser.StringPositional(&argparse.Options{Help: "directory receiving daily files"})
	start := parser.String("s", "start", &argparse.Options{Help: "first date to process (YYYYMMDD)"})
	end := parser.String("e", "end", &argparse.Options{Help: "last date to process (YYYYMMDD)"})
	logDir := parser.String("l", "log-dir", &argparse.Options{Help: "directory for the run log, overrides LOG_DIR"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		return 1
	}
	if *sourceDir == "" || *destDir == "" {
		fmt.Fprint(os.Stderr, parser.Usage("source and destination directories are required"))
		return 1
	}
	dates, err := pipeline.ParseDateRange(*start, *end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid date range: %v\n", err)
		return 1
	}

	rt, err := app.Start("dailyagg", app.Options{LogDir: *logDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage := netcdf.NewStorageWithCache(netcdf.CacheLimits{Blocks: rt.Config.CacheBlocks, Values: rt.Config.CacheValues})
	runner := pipeline.NewDailyRunner(storage, rt.Notifier, rt.Logger, rt.Metrics, rt.RunID)
	rt.Serve(runner)

	report, err := runner.Run(ctx, pipeline.DailyConfig{
		SourceDir: *sourceDir,
		DestDir:   *destDir,
		Prefix:    rt.Config.HourlyFilePrefix,
		Variable:  rt.Config.RunoffVariable,
		Samples:   rt.Config.SamplesPerDay,
		Range:     dates,
	})
	if err != nil {
		rt.Logger.Error("daily aggregation aborted", "error", err)
		return 1
	}
	return report.ExitCode()
}
