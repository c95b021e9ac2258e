package domain

import (
	"fmt"
	"time"
)

// TimeIndex maps decoded timestamps of a source's time axis to positions.
type TimeIndex struct {
	path     string
	times    []time.Time
	position map[int64]int
}

// NewTimeIndex indexes an already decoded axis. The first occurrence wins for
// duplicated timestamps.
func NewTimeIndex(path string, times []time.Time) *TimeIndex {
	idx := &TimeIndex{
		path:     path,
		times:    times,
		position: make(map[int64]int, len(times)),
	}
	for i, t := range times {
		key := t.UnixNano()
		if _, ok := idx.position[key]; !ok {
			idx.position[key] = i
		}
	}
	return idx
}

// LoadTimeIndex decodes the time variable of ds using its units and calendar attributes.
func LoadTimeIndex(ds Dataset, timeVar string) (*TimeIndex, error) {
	info, err := ds.Variable(timeVar)
	if err != nil {
		return nil, fmt.Errorf("time axis: %w", err)
	}
	units := info.Attributes.String("units")
	if units == "" {
		return nil, fmt.Errorf("time axis %s in %s has no units attribute", timeVar, ds.Path())
	}
	cal, err := CalendarFor(info.Attributes.String("calendar"))
	if err != nil {
		return nil, fmt.Errorf("time axis %s in %s: %w", timeVar, ds.Path(), err)
	}
	raw, err := ds.ReadAll(timeVar)
	if err != nil {
		return nil, fmt.Errorf("read time axis %s: %w", timeVar, err)
	}
	times, err := cal.Decode(raw.Values, units)
	if err != nil {
		return nil, fmt.Errorf("decode time axis %s in %s: %w", timeVar, ds.Path(), err)
	}
	return NewTimeIndex(ds.Path(), times), nil
}

// Len returns the axis length.
func (x *TimeIndex) Len() int { return len(x.times) }

// Times returns the decoded axis.
func (x *TimeIndex) Times() []time.Time { return x.times }

// IndexOf returns the position whose timestamp equals t exactly.
func (x *TimeIndex) IndexOf(t time.Time) (int, error) {
	if i, ok := x.position[t.UnixNano()]; ok {
		return i, nil
	}
	return -1, &MissingSampleError{Path: x.path, Timestamp: t}
}

// Resolve returns positions for every timestamp, failing on the first absent one.
func (x *TimeIndex) Resolve(ts []time.Time) ([]int, error) {
	out := make([]int, len(ts))
	for i, t := range ts {
		pos, err := x.IndexOf(t)
		if err != nil {
			return nil, err
		}
		out[i] = pos
	}
	return out, nil
}
