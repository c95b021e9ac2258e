package netcdf

import (
	"fmt"
	"sync"

	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/grid"
)

// Dataset is a read-only netCDF container. Reads go through the leading
// dimension (VarGetter.GetSlice) and the remaining dimensions are cut in
// memory. The last leading-dimension block of recently used variables is
// cached so per-unit reads of a (time, unit) variable hit the file once.
// A read whose leading block exceeds the cache's value bound is streamed in
// chunks of that size instead, so no read holds more than one chunk of the
// variable besides its result.
type Dataset struct {
	path  string
	group api.Group

	mu     sync.Mutex
	vars   map[string]*varInfo
	blocks *blockCache
}

type varInfo struct {
	info    domain.VariableInfo
	getter  api.VarGetter
	packing packing
}

type block struct {
	begin, end int
	values     []float64
}

func newDataset(path string, group api.Group, cache CacheLimits) *Dataset {
	return &Dataset{
		path:   path,
		group:  group,
		vars:   make(map[string]*varInfo),
		blocks: newBlockCache(cache.Blocks, cache.Values),
	}
}

func (d *Dataset) Path() string { return d.path }

// Dimensions reports the sizes of every dimension used by a variable.
func (d *Dataset) Dimensions() map[string]int {
	out := make(map[string]int)
	for _, name := range d.group.ListVariables() {
		v, err := d.lookup(name)
		if err != nil {
			continue
		}
		for i, dim := range v.info.Dimensions {
			out[dim] = v.info.Shape[i]
		}
	}
	return out
}

func (d *Dataset) Attributes() domain.Attributes {
	return toDomainAttributes(d.group.Attributes())
}

func (d *Dataset) Variable(name string) (domain.VariableInfo, error) {
	v, err := d.lookup(name)
	if err != nil {
		return domain.VariableInfo{}, err
	}
	return v.info, nil
}

func (d *Dataset) lookup(name string) (*varInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.vars[name]; ok {
		return v, nil
	}
	vg, err := d.group.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, err)
	}
	shape64 := vg.Shape()
	shape := make([]int, len(shape64))
	for i, s := range shape64 {
		shape[i] = int(s)
	}
	attrs := toDomainAttributes(vg.Attributes())
	v := &varInfo{
		info: domain.VariableInfo{
			Name:       name,
			Type:       dataTypeOf(vg.Type()),
			Dimensions: vg.Dimensions(),
			Shape:      shape,
			Attributes: attrs,
		},
		getter:  vg,
		packing: packingOf(attrs),
	}
	d.vars[name] = v
	return v, nil
}

func (d *Dataset) ReadSlice(name string, begin, end []int) (domain.Array, error) {
	v, err := d.lookup(name)
	if err != nil {
		return domain.Array{}, err
	}
	shape := v.info.Shape
	if err := grid.CheckBounds(shape, begin, end); err != nil {
		return domain.Array{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(shape) == 0 {
		return domain.Array{}, fmt.Errorf("read %s: scalar variables are not supported", name)
	}

	if !d.blocks.fits((end[0] - begin[0]) * grid.Size(shape[1:])) {
		return d.readChunked(v, begin, end)
	}

	blk, err := d.leadingBlock(v, begin[0], end[0])
	if err != nil {
		return domain.Array{}, err
	}

	blockShape := append([]int{blk.end - blk.begin}, shape[1:]...)
	blockBegin := append([]int{begin[0] - blk.begin}, begin[1:]...)
	blockEnd := append([]int{end[0] - blk.begin}, end[1:]...)
	values, count, err := grid.Extract(blk.values, blockShape, blockBegin, blockEnd)
	if err != nil {
		return domain.Array{}, fmt.Errorf("read %s: %w", name, err)
	}
	return domain.Array{Shape: count, Values: values}, nil
}

// leadingBlock returns cached unpacked values covering [begin, end) of the
// leading dimension, reading from the file on a miss.
func (d *Dataset) leadingBlock(v *varInfo, begin, end int) (*block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.blocks.get(v.info.Name, begin, end); ok {
		return b, nil
	}
	if begin == end {
		return &block{begin: begin, end: end}, nil
	}
	values, err := d.readRows(v, begin, end)
	if err != nil {
		return nil, err
	}
	b := &block{begin: begin, end: end, values: values}
	d.blocks.put(v.info.Name, b)
	return b, nil
}

// readChunked reads [begin, end) a bounded run of leading records at a time,
// cutting each run down to the requested slab before reading the next.
func (d *Dataset) readChunked(v *varInfo, begin, end []int) (domain.Array, error) {
	shape := v.info.Shape
	step := max(1, d.blocks.maxValues/max(1, grid.Size(shape[1:])))

	count := make([]int, len(shape))
	for i := range count {
		count[i] = end[i] - begin[i]
	}
	out := make([]float64, 0, grid.Size(count))

	d.mu.Lock()
	defer d.mu.Unlock()
	for lo := begin[0]; lo < end[0]; lo += step {
		hi := min(lo+step, end[0])
		rows, err := d.readRows(v, lo, hi)
		if err != nil {
			return domain.Array{}, err
		}
		chunkShape := append([]int{hi - lo}, shape[1:]...)
		chunkBegin := append([]int{0}, begin[1:]...)
		chunkEnd := append([]int{hi - lo}, end[1:]...)
		part, _, err := grid.Extract(rows, chunkShape, chunkBegin, chunkEnd)
		if err != nil {
			return domain.Array{}, fmt.Errorf("read %s: %w", v.info.Name, err)
		}
		out = append(out, part...)
	}
	return domain.Array{Shape: count, Values: out}, nil
}

// readRows reads and unpacks leading records [begin, end). Callers hold d.mu.
func (d *Dataset) readRows(v *varInfo, begin, end int) ([]float64, error) {
	raw, err := v.getter.GetSlice(int64(begin), int64(end))
	if err != nil {
		return nil, fmt.Errorf("read %s [%d, %d) in %s: %w", v.info.Name, begin, end, d.path, err)
	}
	values, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", v.info.Name, d.path, err)
	}
	if want := (end - begin) * grid.Size(v.info.Shape[1:]); len(values) != want {
		return nil, fmt.Errorf("read %s in %s: got %d values, want %d", v.info.Name, d.path, len(values), want)
	}
	v.packing.unpack(values)
	return values, nil
}

func (d *Dataset) ReadAll(name string) (domain.Array, error) {
	v, err := d.lookup(name)
	if err != nil {
		return domain.Array{}, err
	}
	return d.ReadSlice(name, make([]int, len(v.info.Shape)), v.info.Shape)
}

func (d *Dataset) Close() error {
	d.mu.Lock()
	d.blocks.reset()
	d.mu.Unlock()
	d.group.Close()
	return nil
}
