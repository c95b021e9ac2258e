package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Calendar converts between raw numeric time axis values and real timestamps.
type Calendar interface {
	Name() string
	Decode(raw []float64, units string) ([]time.Time, error)
	Encode(ts []time.Time, units string) ([]float64, error)
}

// DefaultCalendar is assumed when a time axis carries no calendar attribute.
const DefaultCalendar = "standard"

// CalendarFor resolves a CF calendar name. Only the Gregorian family is supported.
func CalendarFor(name string) (Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard", "gregorian", "proleptic_gregorian":
		return Gregorian{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCalendar, name)
	}
}

// Gregorian implements Calendar on Go's proleptic Gregorian time package, in UTC.
type Gregorian struct{}

func (Gregorian) Name() string { return "gregorian" }

func (Gregorian) Decode(raw []float64, units string) ([]time.Time, error) {
	tu, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(raw))
	for i, v := range raw {
		t, err := tu.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("decode time value %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

func (Gregorian) Encode(ts []time.Time, units string) ([]float64, error) {
	tu, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = tu.Encode(t)
	}
	return out, nil
}

// TimeUnits is a parsed CF "<unit> since <epoch>" string.
type TimeUnits struct {
	Step  time.Duration
	Epoch time.Time
}

var unitsRe = regexp.MustCompile(`^\s*([A-Za-z]+)\s+since\s+(.+?)\s*$`)

var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// ParseTimeUnits parses a units string such as "hours since 1900-01-01 00:00:00".
func ParseTimeUnits(units string) (TimeUnits, error) {
	m := unitsRe.FindStringSubmatch(units)
	if m == nil {
		return TimeUnits{}, fmt.Errorf("parse time units %q: expected \"<unit> since <epoch>\"", units)
	}

	var step time.Duration
	switch strings.ToLower(m[1]) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return TimeUnits{}, fmt.Errorf("parse time units %q: unsupported unit %q", units, m[1])
	}

	epochStr := strings.TrimSpace(m[2])
	epochStr = strings.TrimSuffix(epochStr, "UTC")
	epochStr = strings.TrimSuffix(strings.TrimSpace(epochStr), "Z")
	epochStr = strings.TrimSpace(epochStr)

	for _, layout := range epochLayouts {
		if t, err := time.ParseInLocation(layout, epochStr, time.UTC); err == nil {
			return TimeUnits{Step: step, Epoch: t}, nil
		}
	}
	return TimeUnits{}, fmt.Errorf("parse time units %q: unrecognized epoch %q", units, epochStr)
}

// Decode converts one raw value to a timestamp, rounded to the nanosecond.
// Arithmetic runs on Unix seconds so axes spanning centuries do not overflow time.Duration.
func (u TimeUnits) Decode(raw float64) (time.Time, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return time.Time{}, fmt.Errorf("non-finite time value %v", raw)
	}
	secs := raw * u.Step.Seconds()
	if math.Abs(secs) > math.MaxInt64/2 {
		return time.Time{}, fmt.Errorf("time value %v out of range", raw)
	}
	whole := math.Floor(secs)
	nanos := math.Round((secs - whole) * 1e9)
	return time.Unix(u.Epoch.Unix()+int64(whole), int64(u.Epoch.Nanosecond())+int64(nanos)).UTC(), nil
}

// Encode converts a timestamp to a raw value in these units.
func (u TimeUnits) Encode(t time.Time) float64 {
	dsec := float64(t.Unix() - u.Epoch.Unix())
	dnano := float64(t.Nanosecond() - u.Epoch.Nanosecond())
	return (dsec + dnano/1e9) / u.Step.Seconds()
}

// String renders the units in the canonical "<unit> since YYYY-MM-DD hh:mm:ss" form.
func (u TimeUnits) String() string {
	name := "seconds"
	switch u.Step {
	case time.Minute:
		name = "minutes"
	case time.Hour:
		name = "hours"
	case 24 * time.Hour:
		name = "days"
	}
	return fmt.Sprintf("%s since %s", name, u.Epoch.Format("2006-01-02 15:04:05"))
}
