package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/domain"
)

const dateLayout = "20060102"

// HourlyFile is one sub-daily source file and the calendar day it covers.
type HourlyFile struct {
	Path string
	Date time.Time
}

// DiscoverHourlyFiles lists the files in dir named <prefix>YYYYMMDD.nc, sorted
// by date. Other names are ignored.
func DiscoverHourlyFiles(dir, prefix string) ([]HourlyFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.SourceNotFoundError{Path: dir, Reason: "hourly source directory does not exist"}
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var files []HourlyFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := parseHourlyName(e.Name(), prefix)
		if !ok {
			continue
		}
		files = append(files, HourlyFile{Path: filepath.Join(dir, e.Name()), Date: date})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].Date.Equal(files[j].Date) {
			return files[i].Date.Before(files[j].Date)
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func parseHourlyName(name, prefix string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".nc") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".nc")
	if len(stamp) != len(dateLayout) {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(dateLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// DateRange is an inclusive range of calendar days. Zero bounds are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses optional YYYYMMDD or YYYY-MM-DD bounds.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, err = parseDay(start); err != nil {
		return DateRange{}, fmt.Errorf("start date: %w", err)
	}
	if r.End, err = parseDay(end); err != nil {
		return DateRange{}, fmt.Errorf("end date: %w", err)
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("end date %s before start date %s", end, start)
	}
	return r, nil
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{dateLayout, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYYMMDD or YYYY-MM-DD)", s)
}

// Contains reports whether day falls in the range.
func (r DateRange) Contains(day time.Time) bool {
	if !r.Start.IsZero() && day.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && day.After(r.End) {
		return false
	}
	return true
}

// DailyOutputPath is the destination of the aggregate for date.
func DailyOutputPath(destDir string, date time.Time) string {
	return filepath.Join(destDir, date.Format(dateLayout)+".nc")
}

// QoutSource is the historical streamflow simulation of one region.
type QoutSource struct {
	Region string
	Path   string
}

// DiscoverQoutFiles finds, in every region directory under masterDir, the file
// whose name starts with Qout and ends with <endYear>1231.nc or .nc4. All
// regions lacking one are reported together as SourceNotFound errors.
func DiscoverQoutFiles(masterDir string, endYear int) ([]QoutSource, error) {
	entries, err := os.ReadDir(masterDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.SourceNotFoundError{Path: masterDir, Reason: "historical simulation directory does not exist"}
		}
		return nil, fmt.Errorf("list %s: %w", masterDir, err)
	}

	suffix := strconv.Itoa(endYear) + "1231"
	var sources []QoutSource
	var missing []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		regionDir := filepath.Join(masterDir, e.Name())
		files, err := os.ReadDir(regionDir)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", regionDir, err)
		}
		found := ""
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasPrefix(name, "Qout") {
				continue
			}
			if strings.HasSuffix(name, suffix+".nc") || strings.HasSuffix(name, suffix+".nc4") {
				found = filepath.Join(regionDir, name)
				break
			}
		}
		if found == "" {
			missing = append(missing, &domain.SourceNotFoundError{
				Path:   regionDir,
				Reason: fmt.Sprintf("no Qout file ending in %s.nc or %s.nc4", suffix, suffix),
			})
			continue
		}
		sources = append(sources, QoutSource{Region: e.Name(), Path: found})
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	return sources, nil
}

// SourceProfile identifies the reanalysis behind a simulation and its year range.
type SourceProfile struct {
	Tag       string
	StartYear int
	EndYear   int
}

// DatasetTag derives the reanalysis tag from a simulation file name.
func DatasetTag(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "erai"):
		return "erai"
	case strings.Contains(name, "era5"):
		return "era5"
	default:
		return ""
	}
}

// ResolveProfile determines the year range of a simulation. An explicit
// startYear wins over the per-tag table.
func ResolveProfile(path string, endYear, startYear int, startYears map[string]int) (SourceProfile, error) {
	tag := DatasetTag(path)
	if startYear == 0 {
		y, ok := startYears[tag]
		if tag == "" || !ok {
			return SourceProfile{}, fmt.Errorf("unrecognized source %s: name must contain a known dataset tag or a start year must be given", path)
		}
		startYear = y
	}
	if tag == "" {
		tag = "qout"
	}
	if endYear < startYear {
		return SourceProfile{}, fmt.Errorf("end year %d before start year %d for %s", endYear, startYear, path)
	}
	return SourceProfile{Tag: tag, StartYear: startYear, EndYear: endYear}, nil
}

// ReturnPeriodOutputPath is the destination of a region's return periods.
func ReturnPeriodOutputPath(destDir, region string, p SourceProfile) string {
	name := fmt.Sprintf("gumbel_return_periods_%s_%d_%d.nc4", p.Tag, p.StartYear, p.EndYear)
	return filepath.Join(destDir, region, name)
}

// ReturnPeriodJob is one region's planned return-period computation.
type ReturnPeriodJob struct {
	Source  QoutSource
	Profile SourceProfile
	Output  string
}

// PlanReturnPeriods discovers every region's simulation and resolves its
// profile and output path. Any failure is reported before processing starts.
func PlanReturnPeriods(masterDir, destDir string, endYear, startYear int, startYears map[string]int) ([]ReturnPeriodJob, error) {
	sources, err := DiscoverQoutFiles(masterDir, endYear)
	if err != nil {
		return nil, err
	}
	if destDir == "" {
		destDir = masterDir
	}
	jobs := make([]ReturnPeriodJob, 0, len(sources))
	for _, src := range sources {
		profile, err := ResolveProfile(src.Path, endYear, startYear, startYears)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, ReturnPeriodJob{
			Source:  src,
			Profile: profile,
			Output:  ReturnPeriodOutputPath(destDir, src.Region, profile),
		})
	}
	return jobs, nil
}
