package domain

import "fmt"

// Layout is the dimension order of a (time, unit) variable. It is resolved
// once when a source is opened and then used for every slice.
type Layout int

const (
	TimeMajor Layout = iota + 1 // (time, unit)
	UnitMajor                   // (unit, time)
)

func (l Layout) String() string {
	switch l {
	case TimeMajor:
		return "time-major"
	case UnitMajor:
		return "unit-major"
	default:
		return "unknown"
	}
}

// ResolveLayout matches a variable's dimensions against the supported layouts.
func ResolveLayout(path string, info VariableInfo, timeDim, unitDim string) (Layout, error) {
	dims := info.Dimensions
	if len(dims) == 2 {
		switch {
		case dims[0] == timeDim && dims[1] == unitDim:
			return TimeMajor, nil
		case dims[0] == unitDim && dims[1] == timeDim:
			return UnitMajor, nil
		}
	}
	return 0, &UnrecognizedLayoutError{Path: path, Variable: info.Name, Dimensions: dims}
}

// ReadSeries reads the first length time steps of one unit's series.
func ReadSeries(ds Dataset, variable string, layout Layout, unit, length int) ([]float64, error) {
	var begin, end []int
	switch layout {
	case TimeMajor:
		begin, end = []int{0, unit}, []int{length, unit + 1}
	case UnitMajor:
		begin, end = []int{unit, 0}, []int{unit + 1, length}
	default:
		return nil, fmt.Errorf("read series: %w: %v", ErrUnrecognizedLayout, layout)
	}
	arr, err := ds.ReadSlice(variable, begin, end)
	if err != nil {
		return nil, fmt.Errorf("read %s series for unit %d: %w", variable, unit, err)
	}
	return arr.Values, nil
}
