package domain_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/adapter/memory"
	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/stretchr/testify/require"
)

// hourlyDataset builds a (time, lat, lon) RO dataset with one record per
// timestamp. value(k, j) gives the value of cell j in record k.
func hourlyDataset(t *testing.T, path string, times []time.Time, lat, lon int, value func(k, j int) float64) *memory.Dataset {
	t.Helper()

	raw, err := domain.Gregorian{}.Encode(times, domain.OutputTimeUnits)
	require.NoError(t, err)

	cells := lat * lon
	values := make([]float64, len(times)*cells)
	for k := range times {
		for j := 0; j < cells; j++ {
			values[k*cells+j] = value(k, j)
		}
	}

	lats := make([]float64, lat)
	for i := range lats {
		lats[i] = 90 - float64(i)*0.25
	}
	lons := make([]float64, lon)
	for i := range lons {
		lons[i] = float64(i) * 0.25
	}

	return memory.NewDataset(path).
		AddDimension("time", len(times)).
		AddDimension("latitude", lat).
		AddDimension("longitude", lon).
		AddVariable("time", domain.Int32, []string{"time"}, domain.Attributes{
			{Name: "units", Value: domain.OutputTimeUnits},
			{Name: "calendar", Value: "gregorian"},
		}, raw).
		AddVariable("latitude", domain.Float32, []string{"latitude"}, domain.Attributes{
			{Name: "units", Value: "degrees_north"},
		}, lats).
		AddVariable("longitude", domain.Float32, []string{"longitude"}, domain.Attributes{
			{Name: "units", Value: "degrees_east"},
		}, lons).
		AddVariable("RO", domain.Float64, []string{"time", "latitude", "longitude"}, domain.Attributes{
			{Name: "units", Value: "m"},
			{Name: "long_name", Value: "Runoff"},
			{Name: "scale_factor", Value: 1.0},
		}, values)
}

// dayHours returns the 24 end-of-interval timestamps of day.
func dayHours(day time.Time) []time.Time {
	out := make([]time.Time, 24)
	for k := range out {
		out[k] = day.Add(time.Duration(k+1) * time.Hour)
	}
	return out
}

// dailySeries returns a daily series from startYear-01-01 through endYear-12-31
// where every value is value(date).
func dailySeries(startYear, endYear int, value func(time.Time) float64) []float64 {
	n := domain.RequiredDays(startYear, endYear)
	out := make([]float64, n)
	d := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = value(d)
		d = d.AddDate(0, 0, 1)
	}
	return out
}
