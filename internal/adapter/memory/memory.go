// Package memory implements the storage ports in memory. It backs unit tests
// and dry runs of the batch drivers.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/grid"
)

// Storage is a path-keyed set of in-memory datasets.
type Storage struct {
	mu       sync.Mutex
	datasets map[string]*Dataset
	writers  map[string]*Writer
	journals map[string][]domain.WriteRecord
}

// NewStorage creates an empty store.
func NewStorage() *Storage {
	return &Storage{
		datasets: make(map[string]*Dataset),
		writers:  make(map[string]*Writer),
		journals: make(map[string][]domain.WriteRecord),
	}
}

// Put registers ds under its path, replacing any previous dataset.
func (s *Storage) Put(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.path] = ds
}

// Get returns the committed dataset at path.
func (s *Storage) Get(path string) (*Dataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[path]
	return ds, ok
}

// Writer returns the last writer created for path, committed or not.
func (s *Storage) Writer(path string) (*Writer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[path]
	return w, ok
}

// Open returns the dataset at path.
func (s *Storage) Open(path string) (domain.Dataset, error) {
	ds, ok := s.Get(path)
	if !ok {
		return nil, &domain.SourceNotFoundError{Path: path}
	}
	ds.mu.Lock()
	ds.opens++
	ds.mu.Unlock()
	return ds, nil
}

// ReadJournal returns the writes synced by the last uncommitted writer of path.
func (s *Storage) ReadJournal(path string) ([]domain.WriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.WriteRecord(nil), s.journals[path]...), nil
}

func (s *Storage) appendJournal(path string, fresh bool, records []domain.WriteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fresh {
		s.journals[path] = nil
	}
	s.journals[path] = append(s.journals[path], records...)
}

func (s *Storage) dropJournal(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.journals, path)
}

// Create starts a new dataset that becomes visible at path on Close.
func (s *Storage) Create(path string) (domain.DatasetWriter, error) {
	w := &Writer{storage: s, ds: NewDataset(path), unlimited: make(map[string]bool)}
	s.mu.Lock()
	s.writers[path] = w
	s.mu.Unlock()
	return w, nil
}

type variable struct {
	info   domain.VariableInfo
	values []float64
}

// Dataset is an in-memory container.
type Dataset struct {
	path     string
	dims     map[string]int
	vars     map[string]*variable
	varOrder []string
	attrs    domain.Attributes

	mu     sync.Mutex
	reads  map[string]int
	opens  int
	closes int
}

// NewDataset creates an empty dataset for path.
func NewDataset(path string) *Dataset {
	return &Dataset{
		path:  path,
		dims:  make(map[string]int),
		vars:  make(map[string]*variable),
		reads: make(map[string]int),
	}
}

// AddDimension declares a dimension.
func (d *Dataset) AddDimension(name string, size int) *Dataset {
	d.dims[name] = size
	return d
}

// AddVariable declares a variable with row-major values over dims.
func (d *Dataset) AddVariable(name string, typ domain.DataType, dims []string, attrs domain.Attributes, values []float64) *Dataset {
	shape := make([]int, len(dims))
	for i, dim := range dims {
		shape[i] = d.dims[dim]
	}
	if _, ok := d.vars[name]; !ok {
		d.varOrder = append(d.varOrder, name)
	}
	d.vars[name] = &variable{
		info: domain.VariableInfo{
			Name:       name,
			Type:       typ,
			Dimensions: append([]string(nil), dims...),
			Shape:      shape,
			Attributes: attrs,
		},
		values: values,
	}
	return d
}

// SetGlobalAttribute sets a global attribute.
func (d *Dataset) SetGlobalAttribute(name string, value any) *Dataset {
	d.attrs = setAttr(d.attrs, name, value)
	return d
}

// Reads reports how many slices of a variable were read.
func (d *Dataset) Reads(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[name]
}

// Balanced reports whether every Open was matched by a Close.
func (d *Dataset) Balanced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens == d.closes
}

// Values returns a copy of a variable's values.
func (d *Dataset) Values(name string) ([]float64, bool) {
	v, ok := d.vars[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v.values...), true
}

// VariableNames lists variables in declaration order.
func (d *Dataset) VariableNames() []string {
	return append([]string(nil), d.varOrder...)
}

func (d *Dataset) Path() string { return d.path }

func (d *Dataset) Dimensions() map[string]int {
	out := make(map[string]int, len(d.dims))
	for k, v := range d.dims {
		out[k] = v
	}
	return out
}

func (d *Dataset) Attributes() domain.Attributes { return d.attrs }

func (d *Dataset) Variable(name string) (domain.VariableInfo, error) {
	v, ok := d.vars[name]
	if !ok {
		return domain.VariableInfo{}, fmt.Errorf("variable %s not found in %s", name, d.path)
	}
	return v.info, nil
}

func (d *Dataset) ReadSlice(name string, begin, end []int) (domain.Array, error) {
	v, ok := d.vars[name]
	if !ok {
		return domain.Array{}, fmt.Errorf("variable %s not found in %s", name, d.path)
	}
	if len(v.values) != grid.Size(v.info.Shape) {
		return domain.Array{}, fmt.Errorf("variable %s holds %d values for shape %v", name, len(v.values), v.info.Shape)
	}
	values, count, err := grid.Extract(v.values, v.info.Shape, begin, end)
	if err != nil {
		return domain.Array{}, fmt.Errorf("read %s: %w", name, err)
	}
	d.mu.Lock()
	d.reads[name]++
	d.mu.Unlock()
	return domain.Array{Shape: count, Values: values}, nil
}

func (d *Dataset) ReadAll(name string) (domain.Array, error) {
	v, ok := d.vars[name]
	if !ok {
		return domain.Array{}, fmt.Errorf("variable %s not found in %s", name, d.path)
	}
	return d.ReadSlice(name, make([]int, len(v.info.Shape)), v.info.Shape)
}

func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

// Writer builds a Dataset and commits it to its Storage on Close.
type Writer struct {
	storage   *Storage
	ds        *Dataset
	unlimited map[string]bool
	pending   []domain.WriteRecord
	journaled bool
	syncs     int
	done      bool
	aborted   bool
}

var errWriterDone = errors.New("writer already closed")

// Syncs reports how many times Sync was called.
func (w *Writer) Syncs() int { return w.syncs }

// Aborted reports whether the writer was discarded.
func (w *Writer) Aborted() bool { return w.aborted }

// Dataset exposes the dataset being built.
func (w *Writer) Dataset() *Dataset { return w.ds }

func (w *Writer) CreateDimension(name string, size int) error {
	if w.done {
		return errWriterDone
	}
	if _, ok := w.ds.dims[name]; ok {
		return fmt.Errorf("dimension %s already exists", name)
	}
	if size == 0 {
		w.unlimited[name] = true
	}
	w.ds.dims[name] = size
	return nil
}

func (w *Writer) CreateVariable(spec domain.VariableSpec) error {
	if w.done {
		return errWriterDone
	}
	for i, dim := range spec.Dimensions {
		if _, ok := w.ds.dims[dim]; !ok {
			return fmt.Errorf("variable %s: unknown dimension %s", spec.Name, dim)
		}
		if w.unlimited[dim] && i != 0 {
			return fmt.Errorf("variable %s: unlimited dimension %s must come first", spec.Name, dim)
		}
	}
	shape := make([]int, len(spec.Dimensions))
	for i, dim := range spec.Dimensions {
		shape[i] = w.ds.dims[dim]
	}
	w.ds.AddVariable(spec.Name, spec.Type, spec.Dimensions, spec.Attributes, make([]float64, grid.Size(shape)))
	return nil
}

func (w *Writer) SetAttribute(name string, value any) error {
	if w.done {
		return errWriterDone
	}
	w.ds.SetGlobalAttribute(name, value)
	return nil
}

func (w *Writer) Write(name string, begin []int, data domain.Array) error {
	if w.done {
		return errWriterDone
	}
	v, ok := w.ds.vars[name]
	if !ok {
		return fmt.Errorf("write: variable %s not defined", name)
	}
	if len(begin) > 0 && len(data.Shape) > 0 && w.unlimited[v.info.Dimensions[0]] {
		if need := begin[0] + data.Shape[0]; need > v.info.Shape[0] {
			recordSize := grid.Size(v.info.Shape[1:])
			v.values = append(v.values, make([]float64, (need-v.info.Shape[0])*recordSize)...)
			v.info.Shape[0] = need
			if w.ds.dims[v.info.Dimensions[0]] < need {
				w.ds.dims[v.info.Dimensions[0]] = need
			}
		}
	}
	if err := grid.Insert(v.values, v.info.Shape, begin, data.Shape, data.Values); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.pending = append(w.pending, domain.WriteRecord{
		Variable: name,
		Begin:    append([]int(nil), begin...),
		Data:     domain.Array{Shape: append([]int(nil), data.Shape...), Values: append([]float64(nil), data.Values...)},
	})
	return nil
}

func (w *Writer) Sync() error {
	if w.done {
		return errWriterDone
	}
	w.syncs++
	if len(w.pending) == 0 {
		return nil
	}
	w.storage.appendJournal(w.ds.path, !w.journaled, w.pending)
	w.journaled = true
	w.pending = nil
	return nil
}

func (w *Writer) Close() error {
	if w.done {
		return errWriterDone
	}
	w.done = true
	w.storage.Put(w.ds)
	w.storage.dropJournal(w.ds.path)
	return nil
}

func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.aborted = true
	return nil
}

func setAttr(attrs domain.Attributes, name string, value any) domain.Attributes {
	for i := range attrs {
		if attrs[i].Name == name {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, domain.Attribute{Name: name, Value: value})
}
