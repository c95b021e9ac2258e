package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/couchcryptid/hydro-etl/internal/domain"
)

// flatten converts the nested slices returned by a VarGetter into row-major float64 values.
func flatten(v any) ([]float64, error) {
	var out []float64
	if err := appendValues(&out, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return out, nil
}

func appendValues(out *[]float64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := appendValues(out, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		*out = append(*out, float64(rv.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		*out = append(*out, float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return fmt.Errorf("nil value in variable data")
		}
		return appendValues(out, rv.Elem())
	default:
		return fmt.Errorf("unsupported variable element type %s", rv.Type())
	}
	return nil
}

// numeric reads a scalar or single-element attribute value as float64.
func numeric(v any) (float64, bool) {
	vals, err := flatten(v)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// packing holds the CF packing attributes of a variable.
type packing struct {
	scale, offset float64
	fill          []float64
}

func packingOf(attrs domain.Attributes) packing {
	p := packing{scale: 1}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := numeric(v); ok {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := numeric(v); ok {
			p.offset = f
		}
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs.Get(key); ok {
			if f, ok := numeric(v); ok {
				p.fill = append(p.fill, f)
			}
		}
	}
	return p
}

// unpack applies fill masking and scale/offset in place. Fill values become NaN.
func (p packing) unpack(values []float64) {
	identity := p.scale == 1 && p.offset == 0
	for i, v := range values {
		masked := false
		for _, f := range p.fill {
			if v == f {
				masked = true
				break
			}
		}
		switch {
		case masked:
			values[i] = math.NaN()
		case !identity:
			values[i] = v*p.scale + p.offset
		}
	}
}

func toDomainAttributes(m api.AttributeMap) domain.Attributes {
	if m == nil {
		return nil
	}
	keys := m.Keys()
	out := make(domain.Attributes, 0, len(keys))
	for _, k := range keys {
		v, _ := m.Get(k)
		out = append(out, domain.Attribute{Name: k, Value: v})
	}
	return out
}

// toAttributeMap converts attributes for the CDF encoder, which refuses names
// with a leading underscore. _FillValue is kept as missing_value, which the
// reader masks the same way; other reserved names are dropped.
func toAttributeMap(attrs domain.Attributes) (api.AttributeMap, error) {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]any, len(attrs))
	add := func(name string, value any) {
		if _, dup := vals[name]; !dup {
			keys = append(keys, name)
		}
		vals[name] = value
	}
	for _, a := range attrs {
		if !strings.HasPrefix(a.Name, "_") {
			add(a.Name, a.Value)
		}
	}
	for _, a := range attrs {
		if a.Name == "_FillValue" {
			if _, ok := vals["missing_value"]; !ok {
				add("missing_value", a.Value)
			}
		}
	}
	return util.NewOrderedMap(keys, vals)
}

func dataTypeOf(cdl string) domain.DataType {
	switch cdl {
	case "short":
		return domain.Int16
	case "int":
		return domain.Int32
	case "float":
		return domain.Float32
	default:
		return domain.Float64
	}
}

// nested builds the nested Go slice of the element type of dt that the CDF
// writer expects for a variable of the given shape.
func nested(dt domain.DataType, shape []int, values []float64) (any, error) {
	var elem reflect.Type
	switch dt {
	case domain.Int16:
		elem = reflect.TypeOf(int16(0))
	case domain.Int32:
		elem = reflect.TypeOf(int32(0))
	case domain.Float32:
		elem = reflect.TypeOf(float32(0))
	case domain.Float64:
		elem = reflect.TypeOf(float64(0))
	default:
		return nil, fmt.Errorf("unsupported data type %q", dt)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("scalar variables are not supported")
	}
	i := 0
	rv, err := build(elem, shape, values, &i)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func build(elem reflect.Type, shape []int, values []float64, i *int) (reflect.Value, error) {
	typ := elem
	for range shape {
		typ = reflect.SliceOf(typ)
	}
	s := reflect.MakeSlice(typ, shape[0], shape[0])
	for k := 0; k < shape[0]; k++ {
		if len(shape) > 1 {
			inner, err := build(elem, shape[1:], values, i)
			if err != nil {
				return reflect.Value{}, err
			}
			s.Index(k).Set(inner)
			continue
		}
		v := values[*i]
		*i++
		switch elem.Kind() {
		case reflect.Int16, reflect.Int32:
			n, err := integral(v, elem.Bits())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("value %d: %w", *i-1, err)
			}
			s.Index(k).SetInt(n)
		default:
			s.Index(k).SetFloat(v)
		}
	}
	return s, nil
}

// integral rounds v to a signed integer of the given width. NaN, infinities
// and out-of-range values have no integer encoding.
func integral(v float64, bits int) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%v has no integer encoding", v)
	}
	r := math.Round(v)
	limit := math.Ldexp(1, bits-1)
	if r < -limit || r >= limit {
		return 0, fmt.Errorf("%v overflows int%d", v, bits)
	}
	return int64(r), nil
}
