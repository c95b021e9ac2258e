package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hydro-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/hydro-etl/internal/domain"
)

func TestRun_WritesReadableFixtures(t *testing.T) {
	for _, layout := range []domain.Layout{domain.TimeMajor, domain.UnitMajor} {
		t.Run(layout.String(), func(t *testing.T) {
			out := t.TempDir()
			opts := options{
				out: out, start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), days: 2,
				lat: 2, lon: 3, region: "africa-geoglows", units: 4,
				startYear: 2000, endYear: 2001, layout: layout, drop: true,
			}
			require.NoError(t, run(opts))
			storage := netcdf.NewStorage()

			for day, records := range map[string]int{"20100101": 24, "20100102": 23} {
				ds, err := storage.Open(filepath.Join(out, "hourly", "era5_Ro1_"+day+".nc"))
				require.NoError(t, err)

				ro, err := ds.Variable("RO")
				require.NoError(t, err)
				assert.Equal(t, []int{records, 2, 3}, ro.Shape)
				assert.Equal(t, domain.Int16, ro.Type)
				_, ok := ro.Attributes.Get("missing_value")
				assert.True(t, ok)

				values, err := ds.ReadAll("RO")
				require.NoError(t, err)
				for _, v := range values.Values {
					require.GreaterOrEqual(t, v, 0.0)
					require.LessOrEqual(t, v, 1e-4+roScale)
				}

				tm, err := ds.ReadAll("time")
				require.NoError(t, err)
				assert.Len(t, tm.Values, records)
				assert.Equal(t, "genfixture", ds.Attributes().String("source"))
				require.NoError(t, ds.Close())
			}

			ds, err := storage.Open(filepath.Join(out, "master", "africa-geoglows", "Qout_era5_t640_24hr_20000101to20011231.nc"))
			require.NoError(t, err)
			defer ds.Close()
			qout, err := ds.Variable("Qout")
			require.NoError(t, err)
			got, err := domain.ResolveLayout(ds.Path(), qout, "time", "rivid")
			require.NoError(t, err)
			assert.Equal(t, layout, got)
			assert.Equal(t, map[string]int{"time": 731, "rivid": 4}, ds.Dimensions())
		})
	}
}

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"genfixture", "--out", "fx", "--start", "20100301", "--layout", "unit-major", "--drop-sample"})
	require.NoError(t, err)
	assert.Equal(t, "fx", opts.out)
	assert.Equal(t, time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC), opts.start)
	assert.Equal(t, domain.UnitMajor, opts.layout)
	assert.True(t, opts.drop)
	assert.Equal(t, 3, opts.days)

	_, err = parseArgs([]string{"genfixture", "--out", "fx", "--start-year", "2005", "--end-year", "2004"})
	assert.Error(t, err)
}
