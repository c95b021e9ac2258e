package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/hydro-etl/internal/adapter/memory"
	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	qoutPath   = "/master/africa-geoglows/Qout_era5_t640_24hr_20000101to20021231.nc"
	returnPath = "/master/africa-geoglows/gumbel_return_periods_era5_2000_2002.nc4"
)

func returnPeriodJob(startYear, endYear int) pipeline.ReturnPeriodJob {
	return pipeline.ReturnPeriodJob{
		Source:  pipeline.QoutSource{Region: "africa-geoglows", Path: qoutPath},
		Profile: pipeline.SourceProfile{Tag: "era5", StartYear: startYear, EndYear: endYear},
		Output:  returnPath,
	}
}

// expectedEstimate is the estimate for unit u of qoutFixture over 2000..2002,
// whose annual maxima are the last day-of-year of each year scaled by u+1.
func expectedEstimate(t *testing.T, u int) domain.ReturnPeriodEstimate {
	t.Helper()
	scale := float64(u + 1)
	est, err := domain.EstimateReturnPeriods([]float64{366 * scale, 365 * scale, 365 * scale}, domain.StandardReturnPeriods)
	require.NoError(t, err)
	return est
}

func runRegion(t *testing.T, layout domain.Layout, workers int) (*memory.Storage, *mockNotifier) {
	t.Helper()
	store := memory.NewStorage()
	store.Put(qoutFixture(qoutPath, 2000, 2002, 5, layout))
	notifier := &mockNotifier{}
	r := pipeline.NewReturnPeriodRunner(store, notifier, quietLogger(), newTestMetrics(), "run-rp")

	units, err := r.ProcessRegion(context.Background(), returnPeriodJob(2000, 2002), pipeline.ReturnPeriodConfig{Workers: workers})
	require.NoError(t, err)
	assert.Equal(t, 5, units)
	assert.NoError(t, r.CheckReadiness(context.Background()))
	return store, notifier
}

func TestReturnPeriodRunner_ProcessRegion(t *testing.T) {
	for _, tc := range []struct {
		name    string
		layout  domain.Layout
		workers int
	}{
		{"time-major serial", domain.TimeMajor, 1},
		{"time-major parallel", domain.TimeMajor, 4},
		{"unit-major serial", domain.UnitMajor, 1},
		{"unit-major parallel", domain.UnitMajor, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store, notifier := runRegion(t, tc.layout, tc.workers)

			out, ok := store.Get(returnPath)
			require.True(t, ok)
			for _, period := range domain.StandardReturnPeriods {
				values, ok := out.Values(domain.ReturnPeriodVariable(period))
				require.True(t, ok, "variable for %d-year period", period)
				require.Len(t, values, 5)
				for u := range values {
					assert.InDelta(t, expectedEstimate(t, u)[period], values[u], 1e-9, "unit %d period %d", u, period)
				}
			}

			w, _ := store.Writer(returnPath)
			assert.Equal(t, 5, w.Syncs(), "one sync per unit")
			assert.False(t, w.Aborted())

			src, _ := store.Get(qoutPath)
			assert.True(t, src.Balanced())

			require.Len(t, notifier.products, 1)
			p := notifier.products[0]
			assert.Equal(t, domain.ProductReturnPeriods, p.Kind)
			assert.Equal(t, returnPath, p.Path)
			assert.Equal(t, 5, p.Units)
			assert.Equal(t, 2000, p.StartYear)
			assert.Equal(t, 2002, p.EndYear)
		})
	}
}

func TestReturnPeriodRunner_ProcessRegion_Header(t *testing.T) {
	store, _ := runRegion(t, domain.TimeMajor, 1)
	out, _ := store.Get(returnPath)

	assert.Equal(t, []string{
		"rivid", "lat", "lon",
		"return_period_100", "return_period_50", "return_period_25",
		"return_period_10", "return_period_5", "return_period_2",
	}, out.VariableNames())
	assert.Equal(t, map[string]int{"rivid": 5}, out.Dimensions())

	rivid, _ := out.Variable("rivid")
	assert.Equal(t, domain.Int32, rivid.Type)
	values, _ := out.Values("rivid")
	assert.Equal(t, []float64{1000, 1001, 1002, 1003, 1004}, values)

	lat, _ := out.Variable("lat")
	assert.Equal(t, domain.Float32, lat.Type)
	assert.Equal(t, "degrees_north", lat.Attributes.String("units"))
	values, _ = out.Values("lon")
	assert.Equal(t, []float64{-90, -91, -92, -93, -94}, values)

	rp, _ := out.Variable("return_period_10")
	assert.Equal(t, domain.Float32, rp.Type)
	assert.Equal(t, "m3 s-1", rp.Attributes.String("units"))

	attrs := out.Attributes()
	start, _ := attrs.Get("start_year")
	end, _ := attrs.Get("end_year")
	assert.Equal(t, int32(2000), start)
	assert.Equal(t, int32(2002), end)
	assert.Equal(t, "run-rp", attrs.String("run_id"))
	assert.Contains(t, attrs.String("method"), "Gumbel")
}

func TestReturnPeriodRunner_ProcessRegion_InsufficientSample(t *testing.T) {
	store := memory.NewStorage()
	store.Put(qoutFixture(qoutPath, 2000, 2002, 3, domain.TimeMajor))
	r := pipeline.NewReturnPeriodRunner(store, nil, quietLogger(), newTestMetrics(), "run-rp")

	_, err := r.ProcessRegion(context.Background(), returnPeriodJob(2000, 2000), pipeline.ReturnPeriodConfig{})
	require.ErrorIs(t, err, domain.ErrInsufficientSample)

	var insufficient *domain.InsufficientSampleError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 0, insufficient.Unit)
	assert.Equal(t, 1, insufficient.Got)

	w, ok := store.Writer(returnPath)
	require.True(t, ok)
	assert.True(t, w.Aborted())
	_, committed := store.Get(returnPath)
	assert.False(t, committed)
	assert.Error(t, r.CheckReadiness(context.Background()))
}

func TestReturnPeriodRunner_ProcessRegion_ShortSeries(t *testing.T) {
	store := memory.NewStorage()
	store.Put(qoutFixture(qoutPath, 2000, 2002, 2, domain.UnitMajor))
	r := pipeline.NewReturnPeriodRunner(store, nil, quietLogger(), newTestMetrics(), "run-rp")

	_, err := r.ProcessRegion(context.Background(), returnPeriodJob(2000, 2003), pipeline.ReturnPeriodConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs 1461")

	_, created := store.Writer(returnPath)
	assert.False(t, created)
}

func TestReturnPeriodRunner_ProcessRegion_UnrecognizedLayout(t *testing.T) {
	store := memory.NewStorage()
	store.Put(qoutFixture(qoutPath, 2000, 2002, 2, domain.TimeMajor))
	r := pipeline.NewReturnPeriodRunner(store, nil, quietLogger(), newTestMetrics(), "run-rp")

	_, err := r.ProcessRegion(context.Background(), returnPeriodJob(2000, 2002), pipeline.ReturnPeriodConfig{UnitDim: "station"})
	require.ErrorIs(t, err, domain.ErrUnrecognizedLayout)
}

func TestReturnPeriodRunner_Run_StopsAtFirstFailure(t *testing.T) {
	store := memory.NewStorage()
	store.Put(qoutFixture(qoutPath, 2000, 2002, 2, domain.TimeMajor))
	r := pipeline.NewReturnPeriodRunner(store, nil, quietLogger(), newTestMetrics(), "run-rp")

	missing := pipeline.ReturnPeriodJob{
		Source:  pipeline.QoutSource{Region: "asia-geoglows", Path: "/master/asia-geoglows/Qout_era5.nc"},
		Profile: pipeline.SourceProfile{Tag: "era5", StartYear: 2000, EndYear: 2002},
		Output:  "/master/asia-geoglows/gumbel_return_periods_era5_2000_2002.nc4",
	}
	err := r.Run(context.Background(), []pipeline.ReturnPeriodJob{missing, returnPeriodJob(2000, 2002)}, pipeline.ReturnPeriodConfig{})
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
	assert.Contains(t, err.Error(), "asia-geoglows")

	_, created := store.Writer(returnPath)
	assert.False(t, created, "later regions are not attempted")
}

func TestReturnPeriodRunner_Run_Cancelled(t *testing.T) {
	store := memory.NewStorage()
	store.Put(qoutFixture(qoutPath, 2000, 2002, 50, domain.TimeMajor))
	r := pipeline.NewReturnPeriodRunner(store, nil, quietLogger(), newTestMetrics(), "run-rp")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, []pipeline.ReturnPeriodJob{returnPeriodJob(2000, 2002)}, pipeline.ReturnPeriodConfig{Workers: 2})
	require.ErrorIs(t, err, context.Canceled)
	w, _ := store.Writer(returnPath)
	assert.True(t, w.Aborted())
}
