// Package grid implements hyperslab copies over dense row-major buffers.
package grid

import "fmt"

// Size returns the element count of shape.
func Size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Strides returns the row-major element strides of shape.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// CheckBounds validates a half-open [begin, end) box against shape.
func CheckBounds(shape, begin, end []int) error {
	if len(begin) != len(shape) || len(end) != len(shape) {
		return fmt.Errorf("slab rank mismatch: shape %v, begin %v, end %v", shape, begin, end)
	}
	for d := range shape {
		if begin[d] < 0 || end[d] > shape[d] || begin[d] > end[d] {
			return fmt.Errorf("slab [%v, %v) out of bounds for shape %v", begin, end, shape)
		}
	}
	return nil
}

// Extract copies the box [begin, end) of src (laid out as shape) into a new buffer.
func Extract(src []float64, shape, begin, end []int) ([]float64, []int, error) {
	if err := CheckBounds(shape, begin, end); err != nil {
		return nil, nil, err
	}
	count := make([]int, len(shape))
	for d := range shape {
		count[d] = end[d] - begin[d]
	}
	out := make([]float64, 0, Size(count))
	strides := Strides(shape)
	walk(count, func(idx []int) {
		off := 0
		for d := range idx {
			off += (begin[d] + idx[d]) * strides[d]
		}
		out = append(out, src[off])
	})
	return out, count, nil
}

// Insert copies data (laid out as count) into dst (laid out as shape) at offset begin.
func Insert(dst []float64, shape, begin, count []int, data []float64) error {
	if len(data) != Size(count) {
		return fmt.Errorf("slab count %v holds %d values, got %d", count, Size(count), len(data))
	}
	end := make([]int, len(begin))
	for d := range begin {
		if d < len(count) {
			end[d] = begin[d] + count[d]
		}
	}
	if err := CheckBounds(shape, begin, end); err != nil {
		return err
	}
	strides := Strides(shape)
	i := 0
	walk(count, func(idx []int) {
		off := 0
		for d := range idx {
			off += (begin[d] + idx[d]) * strides[d]
		}
		dst[off] = data[i]
		i++
	})
	return nil
}

// walk visits every index of a box of the given extents in row-major order.
func walk(count []int, visit func(idx []int)) {
	if Size(count) == 0 {
		return
	}
	idx := make([]int, len(count))
	for {
		visit(idx)
		d := len(count) - 1
		for d >= 0 {
			idx[d]++
			if idx[d] < count[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			return
		}
	}
}
