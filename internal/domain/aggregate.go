package domain

import (
	"fmt"
	"time"
)

// Output conventions for daily aggregate files.
const (
	OutputTimeUnits = "hours since 1900-01-01 00:00:00"
	OutputCalendar  = "gregorian"
	Conventions     = "CF-1.6"
)

// packing attributes describe the on-disk encoding of a source variable; values
// are unpacked on read, so they are not carried to outputs.
var packingAttributes = map[string]bool{
	"scale_factor":  true,
	"add_offset":    true,
	"_FillValue":    true,
	"missing_value": true,
}

// CoordinateVariable is a 1-D variable indexing one spatial dimension.
type CoordinateVariable struct {
	Name       string
	Type       DataType
	Attributes Attributes
	Values     []float64
}

// SpatialField is a field over named spatial dimensions.
type SpatialField struct {
	Dimensions []string
	Array
}

// DailyAggregate is the sum of every sub-daily sample of one calendar day.
type DailyAggregate struct {
	Date        time.Time
	SourcePath  string
	Variable    VariableInfo
	Field       SpatialField
	Coordinates []CoordinateVariable
	Samples     []time.Time
}

// DailyRequest selects the day and variable to aggregate.
type DailyRequest struct {
	Date         time.Time
	Variable     string
	TimeVariable string
	Samples      int           // expected sub-daily samples, default 24
	Step         time.Duration // spacing between samples, default 1h
}

func (r DailyRequest) withDefaults() DailyRequest {
	if r.TimeVariable == "" {
		r.TimeVariable = "time"
	}
	if r.Samples <= 0 {
		r.Samples = 24
	}
	if r.Step <= 0 {
		r.Step = time.Hour
	}
	r.Date = time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
	return r
}

// RequiredTimestamps returns the end-of-interval sample times of the day:
// Date+Step through Date+Samples*Step.
func (r DailyRequest) RequiredTimestamps() []time.Time {
	r = r.withDefaults()
	out := make([]time.Time, r.Samples)
	for k := 1; k <= r.Samples; k++ {
		out[k-1] = r.Date.Add(time.Duration(k) * r.Step)
	}
	return out
}

// AggregateDay sums the requested field over every required sample of one day.
// All timestamps are resolved before any field is read; one missing sample
// fails the whole day with a MissingSampleError.
func AggregateDay(src Dataset, req DailyRequest) (DailyAggregate, error) {
	req = req.withDefaults()

	index, err := LoadTimeIndex(src, req.TimeVariable)
	if err != nil {
		return DailyAggregate{}, err
	}
	required := req.RequiredTimestamps()
	positions, err := index.Resolve(required)
	if err != nil {
		return DailyAggregate{}, err
	}

	info, err := src.Variable(req.Variable)
	if err != nil {
		return DailyAggregate{}, fmt.Errorf("aggregate %s: %w", req.Variable, err)
	}
	if len(info.Dimensions) < 2 || info.Dimensions[0] != req.TimeVariable {
		return DailyAggregate{}, &UnrecognizedLayoutError{Path: src.Path(), Variable: info.Name, Dimensions: info.Dimensions}
	}
	spatialDims := info.Dimensions[1:]
	spatialShape := info.Shape[1:]

	var acc []float64
	for _, pos := range positions {
		slice, err := readRecord(src, info, pos)
		if err != nil {
			return DailyAggregate{}, err
		}
		if acc == nil {
			acc = slice
			continue
		}
		for j := range acc {
			acc[j] += slice[j]
		}
	}

	field, err := NewArray(spatialShape, acc)
	if err != nil {
		return DailyAggregate{}, fmt.Errorf("aggregate %s: %w", req.Variable, err)
	}

	coords, err := readCoordinates(src, spatialDims)
	if err != nil {
		return DailyAggregate{}, err
	}

	return DailyAggregate{
		Date:        req.Date,
		SourcePath:  src.Path(),
		Variable:    info,
		Field:       SpatialField{Dimensions: spatialDims, Array: field},
		Coordinates: coords,
		Samples:     required,
	}, nil
}

// readRecord reads the full spatial slice at one time position.
func readRecord(src Dataset, info VariableInfo, pos int) ([]float64, error) {
	begin := make([]int, len(info.Shape))
	end := make([]int, len(info.Shape))
	begin[0], end[0] = pos, pos+1
	for d := 1; d < len(info.Shape); d++ {
		end[d] = info.Shape[d]
	}
	arr, err := src.ReadSlice(info.Name, begin, end)
	if err != nil {
		return nil, fmt.Errorf("read %s at time index %d: %w", info.Name, pos, err)
	}
	return arr.Values, nil
}

// readCoordinates copies the coordinate variable of every spatial dimension that has one.
func readCoordinates(src Dataset, dims []string) ([]CoordinateVariable, error) {
	var coords []CoordinateVariable
	for _, dim := range dims {
		info, err := src.Variable(dim)
		if err != nil {
			continue
		}
		arr, err := src.ReadAll(dim)
		if err != nil {
			return nil, fmt.Errorf("read coordinate %s: %w", dim, err)
		}
		coords = append(coords, CoordinateVariable{
			Name:       dim,
			Type:       info.Type,
			Attributes: info.Attributes,
			Values:     arr.Values,
		})
	}
	return coords, nil
}

// Provenance is recorded in the global attributes of every output.
type Provenance struct {
	RunID  string
	Source string
}

// WriteDailyAggregate lays out one daily aggregate in w: copied spatial
// dimensions and coordinates, a single-record time axis and the summed field.
func WriteDailyAggregate(w DatasetWriter, agg DailyAggregate, cal Calendar, prov Provenance) error {
	for i, dim := range agg.Field.Dimensions {
		if err := w.CreateDimension(dim, agg.Field.Shape[i]); err != nil {
			return fmt.Errorf("create dimension %s: %w", dim, err)
		}
	}
	for _, c := range agg.Coordinates {
		spec := VariableSpec{Name: c.Name, Type: c.Type, Dimensions: []string{c.Name}, Attributes: c.Attributes.Unpacked()}
		if err := w.CreateVariable(spec); err != nil {
			return fmt.Errorf("create coordinate %s: %w", c.Name, err)
		}
		if err := w.Write(c.Name, []int{0}, Array{Shape: []int{len(c.Values)}, Values: c.Values}); err != nil {
			return fmt.Errorf("write coordinate %s: %w", c.Name, err)
		}
	}

	timeVar := agg.Variable.Dimensions[0]
	if err := w.CreateDimension(timeVar, 0); err != nil {
		return fmt.Errorf("create dimension %s: %w", timeVar, err)
	}
	if err := w.CreateVariable(VariableSpec{
		Name:       timeVar,
		Type:       Int32,
		Dimensions: []string{timeVar},
		Attributes: Attributes{
			{Name: "units", Value: OutputTimeUnits},
			{Name: "long_name", Value: "time"},
			{Name: "calendar", Value: OutputCalendar},
		},
	}); err != nil {
		return fmt.Errorf("create time variable: %w", err)
	}
	raw, err := cal.Encode([]time.Time{agg.Date}, OutputTimeUnits)
	if err != nil {
		return fmt.Errorf("encode date %s: %w", agg.Date.Format(time.DateOnly), err)
	}
	if err := w.Write(timeVar, []int{0}, Array{Shape: []int{1}, Values: raw}); err != nil {
		return fmt.Errorf("write time variable: %w", err)
	}

	fieldAttrs := Attributes{}
	for _, key := range []string{"units", "long_name"} {
		if v, ok := agg.Variable.Attributes.Get(key); ok {
			fieldAttrs = append(fieldAttrs, Attribute{Name: key, Value: v})
		}
	}
	if err := w.CreateVariable(VariableSpec{
		Name:       agg.Variable.Name,
		Type:       Float64,
		Dimensions: append([]string{timeVar}, agg.Field.Dimensions...),
		Attributes: fieldAttrs,
	}); err != nil {
		return fmt.Errorf("create variable %s: %w", agg.Variable.Name, err)
	}
	shape := append([]int{1}, agg.Field.Shape...)
	begin := make([]int, len(shape))
	if err := w.Write(agg.Variable.Name, begin, Array{Shape: shape, Values: agg.Field.Values}); err != nil {
		return fmt.Errorf("write variable %s: %w", agg.Variable.Name, err)
	}

	return WriteProvenance(w, prov)
}

// WriteProvenance sets the global attributes shared by every output, followed by extra.
func WriteProvenance(w DatasetWriter, prov Provenance, extra ...Attribute) error {
	now := Now()
	zone, _ := now.Zone()
	attrs := Attributes{
		{Name: "Conventions", Value: Conventions},
		{Name: "history", Value: fmt.Sprintf("%s %s", now.Format(time.DateTime), zone)},
	}
	if prov.Source != "" {
		attrs = append(attrs, Attribute{Name: "source", Value: prov.Source})
	}
	if prov.RunID != "" {
		attrs = append(attrs, Attribute{Name: "run_id", Value: prov.RunID})
	}
	attrs = append(attrs, extra...)
	for _, a := range attrs {
		if err := w.SetAttribute(a.Name, a.Value); err != nil {
			return fmt.Errorf("set attribute %s: %w", a.Name, err)
		}
	}
	return nil
}
