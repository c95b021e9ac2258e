package netcdf

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/grid"
)

const partialSuffix = ".partial"

// Writer buffers an output container in memory and encodes it as classic CDF
// on Close. The encoded file is written to a sibling temporary path and
// renamed into place, so the final path only ever holds a complete file.
//
// Sync appends every write made since the previous Sync to a JSON-lines
// journal and fsyncs it. The journal is removed when Close commits and kept
// when the writer is aborted; Storage.ReadJournal reads it back.
//
// Dimensions created with size 0 grow with the writes along them, but the
// classic CDF encoder stores every dimension with a fixed length.
type Writer struct {
	path      string
	dims      map[string]int
	unlimited map[string]bool
	vars      []*outVar
	byName    map[string]*outVar
	attrs     domain.Attributes

	pending []journalEntry
	journal *os.File
	done    bool
}

type outVar struct {
	spec   domain.VariableSpec
	shape  []int
	values []float64
}

var errClosed = errors.New("netcdf writer already closed")

func newWriter(path string) *Writer {
	return &Writer{
		path:      path,
		dims:      make(map[string]int),
		unlimited: make(map[string]bool),
		byName:    make(map[string]*outVar),
	}
}

func (w *Writer) CreateDimension(name string, size int) error {
	if w.done {
		return errClosed
	}
	if _, ok := w.dims[name]; ok {
		return fmt.Errorf("dimension %s already defined", name)
	}
	if size < 0 {
		return fmt.Errorf("dimension %s: negative size %d", name, size)
	}
	w.dims[name] = size
	if size == 0 {
		w.unlimited[name] = true
	}
	return nil
}

func (w *Writer) CreateVariable(spec domain.VariableSpec) error {
	if w.done {
		return errClosed
	}
	if _, ok := w.byName[spec.Name]; ok {
		return fmt.Errorf("variable %s already defined", spec.Name)
	}
	shape := make([]int, len(spec.Dimensions))
	for i, dim := range spec.Dimensions {
		size, ok := w.dims[dim]
		if !ok {
			return fmt.Errorf("variable %s: unknown dimension %s", spec.Name, dim)
		}
		if w.unlimited[dim] && i != 0 {
			return fmt.Errorf("variable %s: unlimited dimension %s must come first", spec.Name, dim)
		}
		shape[i] = size
	}
	v := &outVar{spec: spec, shape: shape, values: make([]float64, grid.Size(shape))}
	w.vars = append(w.vars, v)
	w.byName[spec.Name] = v
	return nil
}

func (w *Writer) SetAttribute(name string, value any) error {
	if w.done {
		return errClosed
	}
	for i := range w.attrs {
		if w.attrs[i].Name == name {
			w.attrs[i].Value = value
			return nil
		}
	}
	w.attrs = append(w.attrs, domain.Attribute{Name: name, Value: value})
	return nil
}

func (w *Writer) Write(name string, begin []int, data domain.Array) error {
	if w.done {
		return errClosed
	}
	v, ok := w.byName[name]
	if !ok {
		return fmt.Errorf("write: variable %s not defined", name)
	}
	if len(begin) != len(v.shape) || len(data.Shape) != len(v.shape) {
		return fmt.Errorf("write %s: rank mismatch", name)
	}
	if len(v.shape) > 0 && w.unlimited[v.spec.Dimensions[0]] {
		w.grow(v, begin[0]+data.Shape[0])
	}
	if err := grid.Insert(v.values, v.shape, begin, data.Shape, data.Values); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.pending = append(w.pending, newJournalEntry(name, begin, data))
	return nil
}

// grow extends v along its unlimited leading dimension to at least n records.
func (w *Writer) grow(v *outVar, n int) {
	if n <= v.shape[0] {
		return
	}
	record := grid.Size(v.shape[1:])
	v.values = append(v.values, make([]float64, (n-v.shape[0])*record)...)
	v.shape[0] = n
	dim := v.spec.Dimensions[0]
	if w.dims[dim] < n {
		w.dims[dim] = n
	}
}

func (w *Writer) Sync() error {
	if w.done {
		return errClosed
	}
	if len(w.pending) == 0 {
		return nil
	}
	if w.journal == nil {
		f, err := os.OpenFile(JournalPath(w.path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		w.journal = f
	}
	buf := bufio.NewWriter(w.journal)
	enc := json.NewEncoder(buf)
	for _, e := range w.pending {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("journal %s: %w", e.Variable, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := w.journal.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	w.pending = w.pending[:0]
	return nil
}

// Close encodes the container and renames it to its final path.
func (w *Writer) Close() error {
	if w.done {
		return errClosed
	}
	w.done = true

	tmp := w.path + partialSuffix
	if err := w.encode(tmp); err != nil {
		_ = os.Remove(tmp)
		w.closeJournal()
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		w.closeJournal()
		return fmt.Errorf("commit %s: %w", w.path, err)
	}
	w.closeJournal()
	if err := os.Remove(JournalPath(w.path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove journal: %w", err)
	}
	return nil
}

// Abort discards the container. The journal, if any, is kept.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.closeJournal()
	if err := os.Remove(w.path + partialSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("abort %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) closeJournal() {
	if w.journal != nil {
		_ = w.journal.Close()
		w.journal = nil
	}
}

func (w *Writer) encode(path string) error {
	_ = os.Remove(path)
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	for _, v := range w.vars {
		if len(v.shape) > 0 && w.unlimited[v.spec.Dimensions[0]] {
			w.grow(v, w.dims[v.spec.Dimensions[0]])
		}
		values, err := nested(v.spec.Type, v.shape, v.values)
		if err != nil {
			_ = cw.Close()
			return fmt.Errorf("encode %s: %w", v.spec.Name, err)
		}
		attrs, err := toAttributeMap(v.spec.Attributes)
		if err != nil {
			_ = cw.Close()
			return fmt.Errorf("encode %s attributes: %w", v.spec.Name, err)
		}
		if err := cw.AddVar(v.spec.Name, api.Variable{
			Values:     values,
			Dimensions: v.spec.Dimensions,
			Attributes: attrs,
		}); err != nil {
			_ = cw.Close()
			return fmt.Errorf("encode %s: %w", v.spec.Name, err)
		}
	}
	if len(w.attrs) > 0 {
		attrs, err := toAttributeMap(w.attrs)
		if err != nil {
			_ = cw.Close()
			return fmt.Errorf("encode global attributes: %w", err)
		}
		if err := cw.AddAttributes(attrs); err != nil {
			_ = cw.Close()
			return fmt.Errorf("encode global attributes: %w", err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
