package domain

import "fmt"

// DataType names the on-disk element type of a variable.
type DataType string

const (
	Int16   DataType = "short"
	Int32   DataType = "int"
	Float32 DataType = "float"
	Float64 DataType = "double"
)

// Attribute is one named metadata value. Values are strings or numeric scalars/slices.
type Attribute struct {
	Name  string
	Value any
}

// Attributes is an ordered attribute list.
type Attributes []Attribute

// Get returns the value of the named attribute.
func (a Attributes) Get(name string) (any, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// String returns the named attribute if it is a string, or "".
func (a Attributes) String(name string) string {
	v, ok := a.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Unpacked drops the CF packing and fill attributes. Readers unpack values, so
// these no longer describe them.
func (a Attributes) Unpacked() Attributes {
	out := make(Attributes, 0, len(a))
	for _, attr := range a {
		if !packingAttributes[attr.Name] {
			out = append(out, attr)
		}
	}
	return out
}

// Array is a dense row-major block of values with its shape.
type Array struct {
	Shape  []int
	Values []float64
}

// NewArray checks that values fill shape exactly.
func NewArray(shape []int, values []float64) (Array, error) {
	if n := shapeSize(shape); n != len(values) {
		return Array{}, fmt.Errorf("array shape %v holds %d values, got %d", shape, n, len(values))
	}
	return Array{Shape: append([]int(nil), shape...), Values: values}, nil
}

// Len returns the number of values.
func (a Array) Len() int { return len(a.Values) }

func shapeSize(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// VariableInfo describes a variable of an open dataset.
type VariableInfo struct {
	Name       string
	Type       DataType
	Dimensions []string
	Shape      []int
	Attributes Attributes
}

// VariableSpec declares a variable to be created in an output dataset.
type VariableSpec struct {
	Name       string
	Type       DataType
	Dimensions []string
	Attributes Attributes
}

// Dataset is a read-only view of a gridded/tabular source container.
type Dataset interface {
	Path() string
	Dimensions() map[string]int
	Attributes() Attributes
	Variable(name string) (VariableInfo, error)
	// ReadSlice reads the half-open hyperslab [begin, end) of a variable into a
	// freshly allocated Array the caller may modify.
	ReadSlice(name string, begin, end []int) (Array, error)
	ReadAll(name string) (Array, error)
	Close() error
}

// DatasetWriter builds an output container. Nothing is visible at the final
// path until Close succeeds; Abort discards the container.
type DatasetWriter interface {
	CreateDimension(name string, size int) error
	CreateVariable(spec VariableSpec) error
	SetAttribute(name string, value any) error
	// Write stores data at offset begin of the named variable.
	Write(name string, begin []int, data Array) error
	// Sync makes every write so far durable.
	Sync() error
	Close() error
	Abort() error
}

// Storage opens source containers and creates output containers.
type Storage interface {
	Open(path string) (Dataset, error)
	Create(path string) (DatasetWriter, error)
}

// WriteRecord is one synced write recovered from an output's journal.
type WriteRecord struct {
	Variable string
	Begin    []int
	Data     Array
}

// JournalReader is implemented by storages whose writers journal every synced
// write. ReadJournal returns the records an earlier, uncommitted writer of
// path left behind, oldest first; none when there is no journal.
type JournalReader interface {
	ReadJournal(path string) ([]WriteRecord, error)
}
