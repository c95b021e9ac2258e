package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/montanaflynn/stats"
)

// AnnualMaxSeries holds one maximum per calendar year, ascending by year.
type AnnualMaxSeries struct {
	StartYear int
	EndYear   int
	Maxima    []float64
}

// Year returns the maximum recorded for year.
func (s AnnualMaxSeries) Year(year int) (float64, bool) {
	if year < s.StartYear || year > s.EndYear {
		return 0, false
	}
	return s.Maxima[year-s.StartYear], true
}

// RequiredDays is the number of daily records spanning Jan 1 of startYear
// through Dec 31 of endYear.
func RequiredDays(startYear, endYear int) int {
	if endYear < startYear {
		return 0
	}
	start := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// AnnualMaxima extracts the yearly maxima of a gap-free daily series that
// starts on startYear-01-01. Callers validate the length with RequiredDays
// first; a year with no records still fails with ErrEmptyYear rather than
// producing a value. Records past endYear are ignored.
func AnnualMaxima(series []float64, startYear, endYear int) (AnnualMaxSeries, error) {
	if endYear < startYear {
		return AnnualMaxSeries{}, fmt.Errorf("annual maxima: end year %d before start year %d", endYear, startYear)
	}

	groups := make([][]float64, endYear-startYear+1)
	date := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range series {
		y := date.Year()
		if y > endYear {
			break
		}
		groups[y-startYear] = append(groups[y-startYear], v)
		date = date.AddDate(0, 0, 1)
	}

	maxima := make([]float64, len(groups))
	for i, g := range groups {
		m, err := stats.Max(g)
		if err != nil {
			if errors.Is(err, stats.EmptyInputErr) {
				return AnnualMaxSeries{}, fmt.Errorf("annual maxima %d: %w", startYear+i, ErrEmptyYear)
			}
			return AnnualMaxSeries{}, fmt.Errorf("annual maxima %d: %w", startYear+i, err)
		}
		// A masked day leaves the year's maximum unknown.
		if slices.ContainsFunc(g, math.IsNaN) {
			m = math.NaN()
		}
		maxima[i] = m
	}
	return AnnualMaxSeries{StartYear: startYear, EndYear: endYear, Maxima: maxima}, nil
}

// MaximaTable accumulates the annual maxima of every unit of a time-major
// (time, unit) variable from consecutive blocks of daily records, so the
// variable is scanned once without holding it in memory.
type MaximaTable struct {
	units     int
	startYear int
	endYear   int
	next      int       // first time step not yet added
	date      time.Time // date of step next
	seen      []bool    // per year
	maxima    []float64 // [year*units + unit]
}

// NewMaximaTable returns an empty table for units series starting on
// startYear-01-01.
func NewMaximaTable(units, startYear, endYear int) (*MaximaTable, error) {
	if endYear < startYear {
		return nil, fmt.Errorf("annual maxima: end year %d before start year %d", endYear, startYear)
	}
	if units < 1 {
		return nil, fmt.Errorf("annual maxima: %d units", units)
	}
	years := endYear - startYear + 1
	return &MaximaTable{
		units:     units,
		startYear: startYear,
		endYear:   endYear,
		date:      time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		seen:      make([]bool, years),
		maxima:    make([]float64, years*units),
	}, nil
}

// Add folds rows of records starting at time step t0, one value per unit per
// row. Blocks must arrive in order without gaps. Records past endYear are
// ignored.
func (m *MaximaTable) Add(t0 int, rows []float64) error {
	if t0 != m.next {
		return fmt.Errorf("annual maxima: block starts at step %d, want %d", t0, m.next)
	}
	if len(rows)%m.units != 0 {
		return fmt.Errorf("annual maxima: block of %d values is not a multiple of %d units", len(rows), m.units)
	}
	n := len(rows) / m.units
	for r := 0; r < n; r++ {
		y := m.date.Year()
		if y > m.endYear {
			break
		}
		yi := y - m.startYear
		row := rows[r*m.units : (r+1)*m.units]
		dst := m.maxima[yi*m.units : (yi+1)*m.units]
		if !m.seen[yi] {
			copy(dst, row)
			m.seen[yi] = true
		} else {
			for u, v := range row {
				dst[u] = max(dst[u], v)
			}
		}
		m.date = m.date.AddDate(0, 0, 1)
	}
	m.next += n
	return nil
}

// Series returns the annual maxima of one unit. It fails with ErrEmptyYear
// while any year has no records.
func (m *MaximaTable) Series(unit int) (AnnualMaxSeries, error) {
	if unit < 0 || unit >= m.units {
		return AnnualMaxSeries{}, fmt.Errorf("annual maxima: unit %d out of range [0, %d)", unit, m.units)
	}
	maxima := make([]float64, len(m.seen))
	for yi, ok := range m.seen {
		if !ok {
			return AnnualMaxSeries{}, fmt.Errorf("annual maxima %d: %w", m.startYear+yi, ErrEmptyYear)
		}
		maxima[yi] = m.maxima[yi*m.units+unit]
	}
	return AnnualMaxSeries{StartYear: m.startYear, EndYear: m.endYear, Maxima: maxima}, nil
}
