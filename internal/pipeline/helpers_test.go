package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/adapter/memory"
	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/observability"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockNotifier struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
}

func (m *mockNotifier) NotifyProduct(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.products = append(m.products, p)
	return nil
}

var errBroker = errors.New("broker unavailable")

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fixtures ---

// touch creates an empty file so directory discovery sees it; contents are
// served by the in-memory storage under the same path.
func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

// hourlyFixture builds a 2x2 RO dataset for day holding the given
// end-of-interval hours (1..24), every cell of every record set to value.
func hourlyFixture(t *testing.T, path string, day time.Time, hours []int, value float64) *memory.Dataset {
	t.Helper()
	times := make([]time.Time, len(hours))
	for i, h := range hours {
		times[i] = day.Add(time.Duration(h) * time.Hour)
	}
	raw, err := domain.Gregorian{}.Encode(times, domain.OutputTimeUnits)
	require.NoError(t, err)

	values := make([]float64, len(hours)*4)
	for i := range values {
		values[i] = value
	}
	return memory.NewDataset(path).
		AddDimension("time", len(hours)).
		AddDimension("lat", 2).
		AddDimension("lon", 2).
		AddVariable("time", domain.Int32, []string{"time"}, domain.Attributes{
			{Name: "units", Value: domain.OutputTimeUnits},
			{Name: "calendar", Value: "gregorian"},
		}, raw).
		AddVariable("lat", domain.Float32, []string{"lat"}, domain.Attributes{{Name: "units", Value: "degrees_north"}}, []float64{10, 9.75}).
		AddVariable("lon", domain.Float32, []string{"lon"}, domain.Attributes{{Name: "units", Value: "degrees_east"}}, []float64{20, 20.25}).
		AddVariable("RO", domain.Float64, []string{"time", "lat", "lon"}, domain.Attributes{
			{Name: "units", Value: "m"},
			{Name: "long_name", Value: "Runoff"},
		}, values)
}

func allHours() []int {
	h := make([]int, 24)
	for i := range h {
		h[i] = i + 1
	}
	return h
}

// qoutFixture builds a Qout dataset covering startYear..endYear for units
// rivers. Unit u on date d carries (u+1) * day-of-year(d).
func qoutFixture(path string, startYear, endYear, units int, layout domain.Layout) *memory.Dataset {
	days := domain.RequiredDays(startYear, endYear)
	value := make([]float64, units*days)
	d := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
	for s := 0; s < days; s++ {
		for u := 0; u < units; u++ {
			v := float64((u + 1) * d.YearDay())
			if layout == domain.UnitMajor {
				value[u*days+s] = v
			} else {
				value[s*units+u] = v
			}
		}
		d = d.AddDate(0, 0, 1)
	}
	dims := []string{"time", "rivid"}
	if layout == domain.UnitMajor {
		dims = []string{"rivid", "time"}
	}

	rivids := make([]float64, units)
	lats := make([]float64, units)
	lons := make([]float64, units)
	for u := range rivids {
		rivids[u] = float64(1000 + u)
		lats[u] = 30 + float64(u)
		lons[u] = -90 - float64(u)
	}

	return memory.NewDataset(path).
		AddDimension("time", days).
		AddDimension("rivid", units).
		AddVariable("rivid", domain.Int32, []string{"rivid"}, nil, rivids).
		AddVariable("lat", domain.Float64, []string{"rivid"}, domain.Attributes{{Name: "units", Value: "degrees_north"}}, lats).
		AddVariable("lon", domain.Float64, []string{"rivid"}, domain.Attributes{{Name: "units", Value: "degrees_east"}}, lons).
		AddVariable("Qout", domain.Float32, dims, domain.Attributes{{Name: "units", Value: "m3 s-1"}}, value)
}
