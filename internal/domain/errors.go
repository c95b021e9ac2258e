package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel error kinds. Typed errors below carry the context needed to locate
// the cause and match these via errors.Is.
var (
	ErrMissingSample       = errors.New("missing sample")
	ErrInsufficientSample  = errors.New("insufficient sample")
	ErrUnrecognizedLayout  = errors.New("unrecognized layout")
	ErrSourceNotFound      = errors.New("source not found")
	ErrUnsupportedCalendar = errors.New("unsupported calendar")
	ErrInvalidReturnPeriod = errors.New("invalid return period")
	ErrEmptyYear           = errors.New("year has no daily records")
)

// MissingSampleError reports a required timestamp absent from a source's time axis.
type MissingSampleError struct {
	Path      string
	Timestamp time.Time
}

func (e *MissingSampleError) Error() string {
	ts := e.Timestamp.UTC().Format("20060102 15:04:05")
	if e.Path == "" {
		return fmt.Sprintf("data is missing/incomplete - %s", ts)
	}
	return fmt.Sprintf("data is missing/incomplete - %s in %s", ts, e.Path)
}

func (e *MissingSampleError) Is(target error) bool { return target == ErrMissingSample }

// InsufficientSampleError reports too few annual maxima to estimate a variance.
type InsufficientSampleError struct {
	Unit int // -1 when not tied to a spatial unit
	Got  int
	Need int
}

func (e *InsufficientSampleError) Error() string {
	if e.Unit < 0 {
		return fmt.Sprintf("insufficient sample: got %d annual maxima, need at least %d", e.Got, e.Need)
	}
	return fmt.Sprintf("insufficient sample for unit %d: got %d annual maxima, need at least %d", e.Unit, e.Got, e.Need)
}

func (e *InsufficientSampleError) Is(target error) bool { return target == ErrInsufficientSample }

// UnrecognizedLayoutError reports a variable whose dimension order matches no
// supported layout.
type UnrecognizedLayoutError struct {
	Path       string
	Variable   string
	Dimensions []string
}

func (e *UnrecognizedLayoutError) Error() string {
	return fmt.Sprintf("unable to identify the order of %s dimensions (%s) in %s",
		e.Variable, strings.Join(e.Dimensions, ", "), e.Path)
}

func (e *UnrecognizedLayoutError) Is(target error) bool { return target == ErrUnrecognizedLayout }

// SourceNotFoundError reports an expected input that does not exist.
type SourceNotFoundError struct {
	Path   string
	Reason string
}

func (e *SourceNotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("source not found at %s", e.Path)
	}
	return fmt.Sprintf("source not found at %s: %s", e.Path, e.Reason)
}

func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }
