// Command timetemplate writes the time axis of a Qout file as a
// "datetime,flow" CSV with zero flows.
//
// Usage:
//
//	timetemplate <qout-file> <out.csv> [--start-year 1980] [--end-year 2014]
//
// An output of "-" writes to stdout.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/akamensky/argparse"

	"github.com/couchcryptid/hydro-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/hydro-etl/internal/config"
	"github.com/couchcryptid/hydro-etl/internal/observability"
	"github.com/couchcryptid/hydro-etl/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("timetemplate", "Writes a CSV time template from a Qout file")
	source := parser.StringPositional(&argparse.Options{Help: "netCDF file with a time axis"})
	output := parser.StringPositional(&argparse.Options{Help: "CSV output path, - for stdout"})
	timeVar := parser.String("t", "time-var", &argparse.Options{Default: "time", Help: "time variable name"})
	startYear := parser.Int("", "start-year", &argparse.Options{Help: "first year to include"})
	endYear := parser.Int("", "end-year", &argparse.Options{Help: "last year to include"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		return 1
	}
	if *source == "" || *output == "" {
		fmt.Fprint(os.Stderr, parser.Usage("source and output are required"))
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := observability.NewLogger(cfg)

	ds, err := netcdf.NewStorage().Open(*source)
	if err != nil {
		logger.Error("open source failed", "path", *source, "error", err)
		return 1
	}
	defer ds.Close()

	var out io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Error("create output failed", "path", *output, "error", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	rows, err := pipeline.WriteTimeTemplate(out, ds, *timeVar, pipeline.YearWindow{StartYear: *startYear, EndYear: *endYear})
	if err != nil {
		logger.Error("write template failed", "error", err)
		return 1
	}
	logger.Info("time template written", "path", *output, "rows", rows)
	return 0
}
