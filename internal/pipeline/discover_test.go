package pipeline_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverHourlyFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"era5_Ro1_20100103.nc",
		"era5_Ro1_20100101.nc",
		"era5_Ro1_2010010.nc",  // short stamp
		"era5_Ro1_20101301.nc", // bad month
		"era5_Tp1_20100102.nc", // other prefix
		"era5_Ro1_20100102.nc4",
		"notes.txt",
	} {
		touch(t, filepath.Join(dir, name))
	}

	files, err := pipeline.DiscoverHourlyFiles(dir, "era5_Ro1_")
	require.NoError(t, err)

	want := []pipeline.HourlyFile{
		{Path: filepath.Join(dir, "era5_Ro1_20100101.nc"), Date: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Path: filepath.Join(dir, "era5_Ro1_20100103.nc"), Date: time.Date(2010, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverHourlyFiles_MissingDir(t *testing.T) {
	_, err := pipeline.DiscoverHourlyFiles(filepath.Join(t.TempDir(), "nope"), "era5_Ro1_")
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestParseDateRange(t *testing.T) {
	r, err := pipeline.ParseDateRange("20100102", "2010-01-03")
	require.NoError(t, err)

	assert.False(t, r.Contains(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2010, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2010, 1, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC)))

	open, err := pipeline.ParseDateRange("", "")
	require.NoError(t, err)
	assert.True(t, open.Contains(time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = pipeline.ParseDateRange("20100105", "20100101")
	assert.Error(t, err)
	_, err = pipeline.ParseDateRange("Jan 1", "")
	assert.Error(t, err)
}

func TestDailyOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "20100101.nc"), pipeline.DailyOutputPath("out", time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDiscoverQoutFiles(t *testing.T) {
	master := t.TempDir()
	touch(t, filepath.Join(master, "africa-geoglows", "Qout_era5_t640_24hr_19790101to20181231.nc"))
	touch(t, filepath.Join(master, "africa-geoglows", "Qout_era5_t640_24hr_19790101to20171231.nc"))
	touch(t, filepath.Join(master, "europe-geoglows", "Qout_erai_t511_24hr_19800101to20181231.nc4"))
	touch(t, filepath.Join(master, "README"))

	sources, err := pipeline.DiscoverQoutFiles(master, 2018)
	require.NoError(t, err)

	want := []pipeline.QoutSource{
		{Region: "africa-geoglows", Path: filepath.Join(master, "africa-geoglows", "Qout_era5_t640_24hr_19790101to20181231.nc")},
		{Region: "europe-geoglows", Path: filepath.Join(master, "europe-geoglows", "Qout_erai_t511_24hr_19800101to20181231.nc4")},
	}
	assert.Equal(t, want, sources)
}

func TestDiscoverQoutFiles_MissingRegionFile(t *testing.T) {
	master := t.TempDir()
	touch(t, filepath.Join(master, "africa-geoglows", "Qout_era5_t640_24hr_19790101to20181231.nc"))
	touch(t, filepath.Join(master, "asia-geoglows", "Qout_era5_t640_24hr_19790101to20171231.nc"))
	touch(t, filepath.Join(master, "europe-geoglows", "notes.txt"))

	_, err := pipeline.DiscoverQoutFiles(master, 2018)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
	assert.Contains(t, err.Error(), "asia-geoglows")
	assert.Contains(t, err.Error(), "europe-geoglows")
	assert.NotContains(t, err.Error(), "africa-geoglows")
}

func TestDiscoverQoutFiles_MissingMaster(t *testing.T) {
	_, err := pipeline.DiscoverQoutFiles(filepath.Join(t.TempDir(), "nope"), 2018)
	require.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestResolveProfile(t *testing.T) {
	table := map[string]int{"era5": 1979, "erai": 1980}

	p, err := pipeline.ResolveProfile("/x/Qout_era5_t640.nc", 2018, 0, table)
	require.NoError(t, err)
	assert.Equal(t, pipeline.SourceProfile{Tag: "era5", StartYear: 1979, EndYear: 2018}, p)

	p, err = pipeline.ResolveProfile("/x/Qout_ERAI_t511.nc", 2014, 0, table)
	require.NoError(t, err)
	assert.Equal(t, 1980, p.StartYear)

	p, err = pipeline.ResolveProfile("/x/Qout_era5.nc", 2018, 2000, table)
	require.NoError(t, err)
	assert.Equal(t, 2000, p.StartYear, "explicit start year wins")

	_, err = pipeline.ResolveProfile("/x/Qout_merra.nc", 2018, 0, table)
	assert.Error(t, err)

	p, err = pipeline.ResolveProfile("/x/Qout_merra.nc", 2018, 1990, table)
	require.NoError(t, err)
	assert.Equal(t, "qout", p.Tag)

	_, err = pipeline.ResolveProfile("/x/Qout_era5.nc", 1970, 0, table)
	assert.Error(t, err)
}

func TestPlanReturnPeriods(t *testing.T) {
	master := t.TempDir()
	touch(t, filepath.Join(master, "south_america-geoglows", "Qout_era5_t640_24hr_19790101to20181231.nc"))

	jobs, err := pipeline.PlanReturnPeriods(master, "", 2018, 0, map[string]int{"era5": 1979})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t,
		filepath.Join(master, "south_america-geoglows", "gumbel_return_periods_era5_1979_2018.nc4"),
		jobs[0].Output)

	dest := t.TempDir()
	jobs, err = pipeline.PlanReturnPeriods(master, dest, 2018, 0, map[string]int{"era5": 1979})
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(dest, "south_america-geoglows", "gumbel_return_periods_era5_1979_2018.nc4"),
		jobs[0].Output)
}
