// Command validate checks a return-period file against the Qout file it was
// computed from. It verifies the output structure, coordinate parity with the
// source, monotonic growth with the return period and, for a stride of units,
// recomputes the estimates from the source series.
//
// Usage:
//
//	go run ./cmd/validate \
//	  data/fixtures/master/africa-geoglows/gumbel_return_periods_era5_2000_2004.nc4 \
//	  data/fixtures/master/africa-geoglows/Qout_era5_t640_24hr_20000101to20041231.nc \
//	  --stride 1
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/akamensky/argparse"

	"github.com/couchcryptid/hydro-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/hydro-etl/internal/domain"
)

// float32 outputs carry about seven significant digits.
const relTolerance = 1e-5

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type inputs struct {
	out, src           domain.Dataset
	variable, unitDim  string
	startYear, endYear int
	stride             int
}

func main() {
	parser := argparse.NewParser("validate", "Checks a return-period file against its Qout source")
	outPath := parser.StringPositional(&argparse.Options{Help: "return-period file"})
	srcPath := parser.StringPositional(&argparse.Options{Help: "source Qout file"})
	variable := parser.String("", "variable", &argparse.Options{Default: "Qout", Help: "flow variable in the source"})
	unitDim := parser.String("", "unit-dim", &argparse.Options{Default: "rivid", Help: "unit dimension name"})
	stride := parser.Int("", "stride", &argparse.Options{Default: 1, Help: "recompute every n-th unit"})

	if err := parser.Parse(os.Args); err != nil || *outPath == "" || *srcPath == "" {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(1)
	}
	if *stride < 1 {
		*stride = 1
	}

	if code := run(*outPath, *srcPath, *variable, *unitDim, *stride); code != 0 {
		os.Exit(code)
	}
}

func run(outPath, srcPath, variable, unitDim string, stride int) int {
	fmt.Println("=== Return Period Validation ===")
	fmt.Println()

	storage := netcdf.NewStorage()
	out, err := storage.Open(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open output: %v\n", err)
		return 1
	}
	defer out.Close()
	src, err := storage.Open(srcPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open source: %v\n", err)
		return 1
	}
	defer src.Close()

	in := inputs{out: out, src: src, variable: variable, unitDim: unitDim, stride: stride}

	structure := validateStructure(&in)
	phases := []*phase{structure}
	if structure.passed() {
		phases = append(phases,
			validateCoordinateParity(in),
			validateMonotonic(in),
			validateRecompute(in),
		)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Units: %d, years %d-%d\n", out.Dimensions()[unitDim], in.startYear, in.endYear)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

// validateStructure checks variables and global attributes, filling in the
// record years used by later phases.
func validateStructure(in *inputs) *phase {
	p := &phase{name: "Phase 1: Output structure"}

	units, ok := in.out.Dimensions()[in.unitDim]
	if !ok {
		p.errorf("missing dimension %s", in.unitDim)
		return p
	}
	for _, name := range []string{in.unitDim, "lat", "lon"} {
		info, err := in.out.Variable(name)
		if err != nil {
			p.errorf("missing coordinate %s", name)
			continue
		}
		if len(info.Shape) != 1 || info.Shape[0] != units {
			p.errorf("%s has shape %v, want [%d]", name, info.Shape, units)
		}
	}
	for _, t := range domain.StandardReturnPeriods {
		name := domain.ReturnPeriodVariable(t)
		info, err := in.out.Variable(name)
		if err != nil {
			p.errorf("missing %s", name)
			continue
		}
		if info.Type != domain.Float32 {
			p.errorf("%s stored as %s, want float", name, info.Type)
		}
	}

	attrs := in.out.Attributes()
	in.startYear = intAttr(p, attrs, "start_year")
	in.endYear = intAttr(p, attrs, "end_year")
	if in.startYear > 0 && in.endYear < in.startYear {
		p.errorf("end_year %d precedes start_year %d", in.endYear, in.startYear)
	}
	return p
}

func validateCoordinateParity(in inputs) *phase {
	p := &phase{name: "Phase 2: Coordinate parity with source"}
	for _, name := range []string{in.unitDim, "lat", "lon"} {
		got, err := in.out.ReadAll(name)
		if err != nil {
			p.errorf("read output %s: %v", name, err)
			continue
		}
		want, err := in.src.ReadAll(name)
		if err != nil {
			p.errorf("read source %s: %v", name, err)
			continue
		}
		if got.Len() != want.Len() {
			p.errorf("%s: %d values, source has %d", name, got.Len(), want.Len())
			continue
		}
		for i := range want.Values {
			if !approxEqual(got.Values[i], want.Values[i]) {
				p.errorf("%s[%d] = %v, source %v", name, i, got.Values[i], want.Values[i])
			}
		}
	}
	return p
}

func validateMonotonic(in inputs) *phase {
	p := &phase{name: "Phase 3: Flow grows with return period"}
	estimates, err := readEstimates(in.out)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	periods := domain.StandardReturnPeriods
	for u := range estimates[periods[0]] {
		for i := 1; i < len(periods); i++ {
			lo, hi := estimates[periods[i-1]][u], estimates[periods[i]][u]
			if hi < lo {
				p.errorf("unit %d: %d-year %v < %d-year %v", u, periods[i], hi, periods[i-1], lo)
			}
		}
	}
	return p
}

func validateRecompute(in inputs) *phase {
	p := &phase{name: "Phase 4: Estimates match source series"}
	estimates, err := readEstimates(in.out)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	info, err := in.src.Variable(in.variable)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	layout, err := domain.ResolveLayout(in.src.Path(), info, "time", in.unitDim)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	need := domain.RequiredDays(in.startYear, in.endYear)
	units := len(estimates[domain.StandardReturnPeriods[0]])

	checked := 0
	for u := 0; u < units; u += in.stride {
		series, err := domain.ReadSeries(in.src, in.variable, layout, u, need)
		if err != nil {
			p.errorf("unit %d: %v", u, err)
			continue
		}
		maxima, err := domain.AnnualMaxima(series, in.startYear, in.endYear)
		if err != nil {
			p.errorf("unit %d: %v", u, err)
			continue
		}
		want, err := domain.EstimateReturnPeriods(maxima.Maxima, domain.StandardReturnPeriods)
		if err != nil {
			p.errorf("unit %d: %v", u, err)
			continue
		}
		for _, t := range domain.StandardReturnPeriods {
			if got := estimates[t][u]; !approxEqual(got, want[t]) {
				p.errorf("unit %d: %d-year %v, recomputed %v", u, t, got, want[t])
			}
		}
		checked++
	}
	fmt.Printf("Recomputed %d of %d units\n", checked, units)
	return p
}

// ── Helpers ──

func readEstimates(ds domain.Dataset) (map[int][]float64, error) {
	out := make(map[int][]float64, len(domain.StandardReturnPeriods))
	for _, t := range domain.StandardReturnPeriods {
		arr, err := ds.ReadAll(domain.ReturnPeriodVariable(t))
		if err != nil {
			return nil, err
		}
		out[t] = arr.Values
	}
	return out, nil
}

func intAttr(p *phase, attrs domain.Attributes, name string) int {
	v, ok := attrs.Get(name)
	if !ok {
		p.errorf("missing global attribute %s", name)
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case []int32:
		if len(n) == 1 {
			return int(n[0])
		}
	}
	p.errorf("global attribute %s has type %T", name, v)
	return 0
}

func approxEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= relTolerance*math.Max(math.Abs(a), math.Abs(b))
}
