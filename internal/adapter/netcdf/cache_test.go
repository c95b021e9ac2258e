package netcdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(begin, end, size int) *block {
	return &block{begin: begin, end: end, values: make([]float64, size)}
}

func TestBlockCache_Coverage(t *testing.T) {
	c := newBlockCache(4, 100)
	c.put("Qout", testBlock(0, 10, 10))

	b, ok := c.get("Qout", 2, 5)
	require.True(t, ok)
	assert.Equal(t, 0, b.begin)

	_, ok = c.get("Qout", 5, 11)
	assert.False(t, ok, "range beyond the cached block")
	_, ok = c.get("lat", 0, 1)
	assert.False(t, ok)
}

func TestBlockCache_EvictsByCount(t *testing.T) {
	c := newBlockCache(2, 100)
	c.put("a", testBlock(0, 1, 1))
	c.put("b", testBlock(0, 1, 1))
	c.put("c", testBlock(0, 1, 1)) // evicts a

	_, ok := c.get("a", 0, 1)
	assert.False(t, ok, "a should have been evicted")
	_, ok = c.get("b", 0, 1)
	assert.True(t, ok)
	_, ok = c.get("c", 0, 1)
	assert.True(t, ok)
}

func TestBlockCache_AccessPromotesEntry(t *testing.T) {
	c := newBlockCache(2, 100)
	c.put("a", testBlock(0, 1, 1))
	c.put("b", testBlock(0, 1, 1))

	c.get("a", 0, 1)
	c.put("c", testBlock(0, 1, 1)) // evicts b, not a

	_, ok := c.get("a", 0, 1)
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b", 0, 1)
	assert.False(t, ok, "b should have been evicted")
}

func TestBlockCache_EvictsByValues(t *testing.T) {
	c := newBlockCache(8, 10)
	c.put("lat", testBlock(0, 4, 4))
	c.put("lon", testBlock(0, 4, 4))
	c.put("RO", testBlock(0, 1, 6)) // 14 values, evicts lat

	_, ok := c.get("lat", 0, 4)
	assert.False(t, ok)
	assert.Equal(t, 10, c.values)

	c.put("Qout", testBlock(0, 50, 50)) // oversized, not cached
	assert.Len(t, c.entries, 2)
	assert.Equal(t, 10, c.values)
	_, ok = c.get("Qout", 0, 50)
	assert.False(t, ok)
}

func TestBlockCache_OversizedReplacementDropsStaleBlock(t *testing.T) {
	c := newBlockCache(8, 10)
	c.put("Qout", testBlock(0, 2, 8))
	c.put("Qout", testBlock(2, 20, 72))

	_, ok := c.get("Qout", 0, 2)
	assert.False(t, ok)
	assert.Empty(t, c.entries)
	assert.Zero(t, c.values)
}

func TestBlockCache_ReplaceAndReset(t *testing.T) {
	c := newBlockCache(2, 100)
	c.put("RO", testBlock(0, 1, 6))
	c.put("RO", testBlock(1, 2, 6))

	_, ok := c.get("RO", 0, 1)
	assert.False(t, ok, "replaced block no longer covers record 0")
	assert.Equal(t, 6, c.values)

	c.reset()
	assert.Empty(t, c.entries)
	assert.Zero(t, c.values)
}
