package sampler

// symbolCacheWays is N in the resolver's N-way set-associative symbol
// cache; 4 is the documented sweet spot between hit rate and per-lookup
// comparison cost.
const symbolCacheWays = 4

// symbolKey identifies a symbol-cache entry: the managed code address and
// the instruction address within it (distinct instructions in the same
// code object can resolve to distinct line numbers).
type symbolKey struct {
	codeAddr  uintptr
	instrAddr uintptr
}

type symbolValue struct {
	functionName string
	fileName     string
	lineNumber   int
}

type symbolCacheLine struct {
	valid bool
	key   symbolKey
	value symbolValue
}

// symbolCacheSet is one set of symbolCacheWays lines, with a pseudo-LRU
// recency stack used for eviction.
type symbolCacheSet struct {
	lines [symbolCacheWays]symbolCacheLine
	// recency holds way-indices, most-recently-used first. Used both to
	// pick an eviction victim (least-recently-used, i.e. the tail) and to
	// implement pseudo-LRU promotion cheaply for a small N.
	recency [symbolCacheWays]uint8
}

// SymbolCache is the resolver's single-threaded symbol cache: it is owned
// exclusively by the resolver goroutine, so no locking is required. Hit
// rate is typically very high because hot stacks repeat across samples.
type SymbolCache struct {
	sets    []symbolCacheSet
	setMask uint64
	hits    uint64
	misses  uint64
}

// NewSymbolCache creates a symbol cache with numSets rounded up to the
// next power of two (minimum 1).
func NewSymbolCache(numSets int) *SymbolCache {
	n := nextPowerOfTwo(numSets)
	if numSets <= 1 {
		n = 1
	}
	sets := make([]symbolCacheSet, n)
	for i := range sets {
		for w := range sets[i].recency {
			sets[i].recency[w] = uint8(w)
		}
	}
	return &SymbolCache{
		sets:    sets,
		setMask: uint64(n - 1),
	}
}

func (c *SymbolCache) setFor(key symbolKey) *symbolCacheSet {
	h := hashSymbolKey(key)
	return &c.sets[h&c.setMask]
}

// hashSymbolKey combines both address fields with a cheap avalanche (a
// variant of FNV-1a folded over both words); the cache does not need a
// cryptographic hash, only a good spread across sets.
func hashSymbolKey(key symbolKey) uint64 {
	const prime = 1099511628211
	h := uint64(14695981039346656037)
	h = (h ^ uint64(key.codeAddr)) * prime
	h = (h ^ uint64(key.instrAddr)) * prime
	return h
}

// Get returns the cached symbol for key, if present, promoting it to
// most-recently-used.
func (c *SymbolCache) Get(key symbolKey) (symbolValue, bool) {
	set := c.setFor(key)
	for way := range set.lines {
		line := &set.lines[way]
		if line.valid && line.key == key {
			set.promote(way)
			c.hits++
			return line.value, true
		}
	}
	c.misses++
	return symbolValue{}, false
}

// Put inserts or updates the entry for key, evicting the pseudo-LRU line
// in its set if necessary.
func (c *SymbolCache) Put(key symbolKey, value symbolValue) {
	set := c.setFor(key)
	for way := range set.lines {
		line := &set.lines[way]
		if line.valid && line.key == key {
			line.value = value
			set.promote(way)
			return
		}
	}
	// No existing entry: use a free way if one exists, else evict the LRU
	// (last entry in the recency stack).
	for way := range set.lines {
		if !set.lines[way].valid {
			set.lines[way] = symbolCacheLine{valid: true, key: key, value: value}
			set.promote(way)
			return
		}
	}
	victim := set.recency[len(set.recency)-1]
	set.lines[victim] = symbolCacheLine{valid: true, key: key, value: value}
	set.promote(victim)
}

// promote moves way to the front of the recency stack (most-recently-used).
func (set *symbolCacheSet) promote(way int) {
	var pos int
	for i, w := range set.recency {
		if int(w) == way {
			pos = i
			break
		}
	}
	copy(set.recency[1:pos+1], set.recency[:pos])
	set.recency[0] = uint8(way)
}

// Hits and Misses report cumulative cache statistics.
func (c *SymbolCache) Hits() uint64   { return c.hits }
func (c *SymbolCache) Misses() uint64 { return c.misses }
