package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Strides([]int{2, 3, 4}))
	assert.Equal(t, []int{1}, Strides([]int{5}))
}

func TestExtract_Column(t *testing.T) {
	// 3x2 buffer: rows are time, columns are units.
	src := []float64{1, 10, 2, 20, 3, 30}
	out, count, err := Extract(src, []int{3, 2}, []int{0, 1}, []int{3, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, count)
	assert.Equal(t, []float64{10, 20, 30}, out)
}

func TestExtract_Record(t *testing.T) {
	src := make([]float64, 2*2*2)
	for i := range src {
		src[i] = float64(i)
	}
	out, count, err := Extract(src, []int{2, 2, 2}, []int{1, 0, 0}, []int{2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, count)
	assert.Equal(t, []float64{4, 5, 6, 7}, out)
}

func TestExtract_OutOfBounds(t *testing.T) {
	_, _, err := Extract([]float64{1, 2}, []int{2}, []int{0}, []int{3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestInsert(t *testing.T) {
	dst := make([]float64, 6)
	require.NoError(t, Insert(dst, []int{3, 2}, []int{1, 0}, []int{1, 2}, []float64{7, 8}))
	assert.Equal(t, []float64{0, 0, 7, 8, 0, 0}, dst)

	require.NoError(t, Insert(dst, []int{3, 2}, []int{2, 1}, []int{1, 1}, []float64{9}))
	assert.Equal(t, []float64{0, 0, 7, 8, 0, 9}, dst)
}

func TestInsert_CountMismatch(t *testing.T) {
	err := Insert(make([]float64, 4), []int{4}, []int{0}, []int{2}, []float64{1})
	require.Error(t, err)
}
