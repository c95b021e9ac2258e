package netcdf

// Default bounds of a dataset's block cache.
const (
	defaultCacheBlocks = 8
	defaultCacheValues = 64 << 20 // float64 values, 512 MiB
)

// blockCache keeps the most recently read leading-dimension block of each
// variable, evicting least recently used variables once either bound is
// exceeded. A block larger than the value bound is never cached. Callers
// serialize access.
type blockCache struct {
	maxBlocks int
	maxValues int
	values    int
	entries   map[string]*cacheEntry
	head      *cacheEntry // most recently used
	tail      *cacheEntry // least recently used
}

type cacheEntry struct {
	name  string
	block *block
	prev  *cacheEntry
	next  *cacheEntry
}

func newBlockCache(maxBlocks, maxValues int) *blockCache {
	if maxBlocks < 1 {
		maxBlocks = defaultCacheBlocks
	}
	if maxValues < 1 {
		maxValues = defaultCacheValues
	}
	return &blockCache{
		maxBlocks: maxBlocks,
		maxValues: maxValues,
		entries:   make(map[string]*cacheEntry),
	}
}

// get returns the cached block of name if it covers [begin, end).
func (c *blockCache) get(name string, begin, end int) (*block, bool) {
	e, ok := c.entries[name]
	if !ok || begin < e.block.begin || end > e.block.end {
		return nil, false
	}
	c.moveToFront(e)
	return e.block, true
}

// fits reports whether a block of n values may be cached.
func (c *blockCache) fits(n int) bool { return n <= c.maxValues }

func (c *blockCache) put(name string, b *block) {
	if !c.fits(len(b.values)) {
		if e, ok := c.entries[name]; ok {
			c.values -= len(e.block.values)
			delete(c.entries, name)
			c.remove(e)
		}
		return
	}
	if e, ok := c.entries[name]; ok {
		c.values += len(b.values) - len(e.block.values)
		e.block = b
		c.moveToFront(e)
	} else {
		e := &cacheEntry{name: name, block: b}
		c.entries[name] = e
		c.values += len(b.values)
		c.addToFront(e)
	}
	for c.tail != nil && (len(c.entries) > c.maxBlocks || c.values > c.maxValues) {
		c.evictTail()
	}
}

func (c *blockCache) reset() {
	c.entries = make(map[string]*cacheEntry)
	c.head, c.tail = nil, nil
	c.values = 0
}

func (c *blockCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *blockCache) addToFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *blockCache) remove(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *blockCache) evictTail() {
	if c.tail == nil {
		return
	}
	c.values -= len(c.tail.block.values)
	delete(c.entries, c.tail.name)
	c.remove(c.tail)
}
