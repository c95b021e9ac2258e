// Command genfixture writes small synthetic netCDF inputs for local runs of
// dailyagg and returnperiods: one hourly runoff file per day and one daily
// Qout file under a region directory.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  --out data/fixtures \
//	  --start 20100101 --days 3 \
//	  --start-year 2000 --end-year 2004 --units 8
//
// Hourly runoff is stored packed as short with a scale factor so the reader's
// unpacking path is exercised. --drop-sample removes the 13:00 record of the
// second day to reproduce a missing-sample failure.
package main

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/akamensky/argparse"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydro-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/hydro-etl/internal/domain"
)

const (
	roScale = 1e-7
	roFill  = -32767
	seed    = 20100101
)

type options struct {
	out       string
	start     time.Time
	days      int
	lat, lon  int
	region    string
	units     int
	startYear int
	endYear   int
	layout    domain.Layout
	drop      bool
}

func main() {
	opts, err := parseArgs(os.Args)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func parseArgs(args []string) (options, error) {
	parser := argparse.NewParser("genfixture", "Writes synthetic hourly runoff and Qout fixtures")
	out := parser.String("o", "out", &argparse.Options{Required: true, Help: "fixture root directory"})
	start := parser.String("", "start", &argparse.Options{Default: "20100101", Help: "first hourly date (YYYYMMDD)"})
	days := parser.Int("", "days", &argparse.Options{Default: 3, Help: "number of hourly files"})
	lat := parser.Int("", "lat", &argparse.Options{Default: 4, Help: "latitude cells"})
	lon := parser.Int("", "lon", &argparse.Options{Default: 5, Help: "longitude cells"})
	region := parser.String("", "region", &argparse.Options{Default: "africa-geoglows", Help: "region directory name"})
	units := parser.Int("", "units", &argparse.Options{Default: 8, Help: "river reaches in the Qout file"})
	startYear := parser.Int("", "start-year", &argparse.Options{Default: 2000, Help: "first Qout year"})
	endYear := parser.Int("", "end-year", &argparse.Options{Default: 2004, Help: "last Qout year"})
	layout := parser.Selector("", "layout", []string{"time-major", "unit-major"}, &argparse.Options{Default: "time-major", Help: "Qout dimension order"})
	drop := parser.Flag("", "drop-sample", &argparse.Options{Help: "omit 13:00 from the second day"})

	if err := parser.Parse(args); err != nil {
		return options{}, fmt.Errorf("%s", parser.Usage(err))
	}
	day, err := time.Parse("20060102", *start)
	if err != nil {
		return options{}, fmt.Errorf("invalid --start: %w", err)
	}
	if *endYear < *startYear {
		return options{}, fmt.Errorf("--end-year %d precedes --start-year %d", *endYear, *startYear)
	}
	l := domain.TimeMajor
	if *layout == "unit-major" {
		l = domain.UnitMajor
	}
	return options{
		out: *out, start: day, days: *days, lat: *lat, lon: *lon,
		region: *region, units: *units, startYear: *startYear, endYear: *endYear,
		layout: l, drop: *drop,
	}, nil
}

func run(opts options) error {
	// Fixed clock for reproducible history attributes.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	storage := netcdf.NewStorage()
	rng := rand.New(rand.NewPCG(seed, uint64(opts.units)))

	hourlyDir := filepath.Join(opts.out, "hourly")
	for d := 0; d < opts.days; d++ {
		day := opts.start.AddDate(0, 0, d)
		path := filepath.Join(hourlyDir, "era5_Ro1_"+day.Format("20060102")+".nc")
		if err := writeHourly(storage, path, day, opts, opts.drop && d == 1, rng); err != nil {
			return fmt.Errorf("hourly %s: %w", day.Format(time.DateOnly), err)
		}
		log.Printf("hourly: %s", path)
	}

	name := fmt.Sprintf("Qout_era5_t640_24hr_%d0101to%d1231.nc", opts.startYear, opts.endYear)
	path := filepath.Join(opts.out, "master", opts.region, name)
	if err := writeQout(storage, path, opts, rng); err != nil {
		return fmt.Errorf("qout: %w", err)
	}
	log.Printf("qout: %s (%d units, %s)", path, opts.units, opts.layout)
	return nil
}

func writeHourly(storage domain.Storage, path string, day time.Time, opts options, drop bool, rng *rand.Rand) error {
	var times []time.Time
	for h := 1; h <= 24; h++ {
		if drop && h == 13 {
			continue
		}
		times = append(times, day.Add(time.Duration(h)*time.Hour))
	}
	raw, err := domain.Gregorian{}.Encode(times, domain.OutputTimeUnits)
	if err != nil {
		return err
	}

	lats := make([]float64, opts.lat)
	for i := range lats {
		lats[i] = 10 - float64(i)*0.25
	}
	lons := make([]float64, opts.lon)
	for i := range lons {
		lons[i] = 20 + float64(i)*0.25
	}

	cells := opts.lat * opts.lon
	packed := make([]float64, len(times)*cells)
	for i := range packed {
		packed[i] = math.Round(rng.Float64() * 1e-4 / roScale)
	}

	w, err := storage.Create(path)
	if err != nil {
		return err
	}
	err = defineAndWrite(w, []dimension{{"time", 0}, {"latitude", opts.lat}, {"longitude", opts.lon}}, []variable{
		{spec: domain.VariableSpec{Name: "longitude", Type: domain.Float32, Dimensions: []string{"longitude"},
			Attributes: domain.Attributes{{Name: "units", Value: "degrees_east"}}}, data: domain.Array{Shape: []int{opts.lon}, Values: lons}},
		{spec: domain.VariableSpec{Name: "latitude", Type: domain.Float32, Dimensions: []string{"latitude"},
			Attributes: domain.Attributes{{Name: "units", Value: "degrees_north"}}}, data: domain.Array{Shape: []int{opts.lat}, Values: lats}},
		{spec: domain.VariableSpec{Name: "time", Type: domain.Int32, Dimensions: []string{"time"},
			Attributes: domain.Attributes{{Name: "units", Value: domain.OutputTimeUnits}, {Name: "calendar", Value: "gregorian"}}},
			data: domain.Array{Shape: []int{len(times)}, Values: raw}},
		{spec: domain.VariableSpec{Name: "RO", Type: domain.Int16, Dimensions: []string{"time", "latitude", "longitude"},
			Attributes: domain.Attributes{
				{Name: "scale_factor", Value: roScale},
				{Name: "add_offset", Value: 0.0},
				{Name: "missing_value", Value: int16(roFill)},
				{Name: "units", Value: "m"},
				{Name: "long_name", Value: "Runoff"},
			}}, data: domain.Array{Shape: []int{len(times), opts.lat, opts.lon}, Values: packed}},
	})
	return finish(w, err)
}

func writeQout(storage domain.Storage, path string, opts options, rng *rand.Rand) error {
	days := domain.RequiredDays(opts.startYear, opts.endYear)
	start := time.Date(opts.startYear, 1, 1, 0, 0, 0, 0, time.UTC)

	times := make([]time.Time, days)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	const timeUnits = "seconds since 1970-01-01 00:00:00"
	raw, err := domain.Gregorian{}.Encode(times, timeUnits)
	if err != nil {
		return err
	}

	rivids := make([]float64, opts.units)
	lats := make([]float64, opts.units)
	lons := make([]float64, opts.units)
	base := make([]float64, opts.units)
	for u := range rivids {
		rivids[u] = float64(100000 + u)
		lats[u] = -5 + 0.1*float64(u)
		lons[u] = 25 + 0.1*float64(u)
		base[u] = 50 + 400*rng.Float64()
	}

	shape := []int{days, opts.units}
	dims := []dimension{{"time", days}, {"rivid", opts.units}}
	if opts.layout == domain.UnitMajor {
		shape = []int{opts.units, days}
		dims = []dimension{{"rivid", opts.units}, {"time", days}}
	}
	flow := make([]float64, days*opts.units)
	for s, ts := range times {
		season := 1 + 0.6*math.Sin(2*math.Pi*float64(ts.YearDay())/365.25)
		for u := range base {
			v := base[u] * season * (0.8 + 0.4*rng.Float64())
			if opts.layout == domain.UnitMajor {
				flow[u*days+s] = v
			} else {
				flow[s*opts.units+u] = v
			}
		}
	}

	w, err := storage.Create(path)
	if err != nil {
		return err
	}
	err = defineAndWrite(w, dims, []variable{
		{spec: domain.VariableSpec{Name: "rivid", Type: domain.Int32, Dimensions: []string{"rivid"},
			Attributes: domain.Attributes{{Name: "long_name", Value: "unique identifier for each river reach"}}},
			data: domain.Array{Shape: []int{opts.units}, Values: rivids}},
		{spec: domain.VariableSpec{Name: "time", Type: domain.Int32, Dimensions: []string{"time"},
			Attributes: domain.Attributes{{Name: "units", Value: timeUnits}, {Name: "calendar", Value: "gregorian"}}},
			data: domain.Array{Shape: []int{days}, Values: raw}},
		{spec: domain.VariableSpec{Name: "lat", Type: domain.Float64, Dimensions: []string{"rivid"},
			Attributes: domain.Attributes{{Name: "units", Value: "degrees_north"}}},
			data: domain.Array{Shape: []int{opts.units}, Values: lats}},
		{spec: domain.VariableSpec{Name: "lon", Type: domain.Float64, Dimensions: []string{"rivid"},
			Attributes: domain.Attributes{{Name: "units", Value: "degrees_east"}}},
			data: domain.Array{Shape: []int{opts.units}, Values: lons}},
		{spec: domain.VariableSpec{Name: "Qout", Type: domain.Float32, Dimensions: []string{dims[0].name, dims[1].name},
			Attributes: domain.Attributes{{Name: "units", Value: "m3 s-1"}, {Name: "long_name", Value: "average river water discharge"}}},
			data: domain.Array{Shape: shape, Values: flow}},
	})
	return finish(w, err)
}

type dimension struct {
	name string
	size int
}

type variable struct {
	spec domain.VariableSpec
	data domain.Array
}

func defineAndWrite(w domain.DatasetWriter, dims []dimension, vars []variable) error {
	for _, d := range dims {
		if err := w.CreateDimension(d.name, d.size); err != nil {
			return err
		}
	}
	for _, v := range vars {
		if err := w.CreateVariable(v.spec); err != nil {
			return err
		}
		if err := w.Write(v.spec.Name, make([]int, len(v.data.Shape)), v.data); err != nil {
			return err
		}
	}
	return domain.WriteProvenance(w, domain.Provenance{Source: "genfixture"})
}

func finish(w domain.DatasetWriter, err error) error {
	if err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}
