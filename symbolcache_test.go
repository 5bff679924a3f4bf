package sampler

import "testing"

func TestSymbolCacheGetPutRoundTrip(t *testing.T) {
	c := NewSymbolCache(2)
	key := symbolKey{codeAddr: 0x1000, instrAddr: 0x1004}
	if _, ok := c.Get(key); ok {
		t.Fatal("Get on empty cache returned ok=true")
	}

	want := symbolValue{functionName: "f", fileName: "f.py", lineNumber: 42}
	c.Put(key, want)

	got, ok := c.Get(key)
	if !ok || got != want {
		t.Fatalf("Get() = %+v, %v, want %+v, true", got, ok, want)
	}
	if c.Hits() != 1 || c.Misses() != 1 {
		t.Fatalf("Hits/Misses = %d/%d, want 1/1", c.Hits(), c.Misses())
	}
}

func TestSymbolCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewSymbolCache(1) // single set, forces eviction within symbolCacheWays
	keys := make([]symbolKey, symbolCacheWays+1)
	for i := range keys {
		keys[i] = symbolKey{codeAddr: uintptr(i + 1)}
		c.Put(keys[i], symbolValue{functionName: "fn"})
	}

	// The first inserted key should have been evicted to make room for the
	// (symbolCacheWays+1)th.
	if _, ok := c.Get(keys[0]); ok {
		t.Fatal("oldest entry survived eviction, want evicted")
	}
	// The most recently inserted key should still be present.
	if _, ok := c.Get(keys[len(keys)-1]); !ok {
		t.Fatal("newest entry missing, want present")
	}
}

func TestSymbolCachePromoteOnGetProtectsFromEviction(t *testing.T) {
	c := NewSymbolCache(1)
	keys := make([]symbolKey, symbolCacheWays)
	for i := range keys {
		keys[i] = symbolKey{codeAddr: uintptr(i + 1)}
		c.Put(keys[i], symbolValue{functionName: "fn"})
	}

	// Touch keys[0] so it becomes most-recently-used.
	if _, ok := c.Get(keys[0]); !ok {
		t.Fatal("Get(keys[0]) miss, want hit")
	}

	// Insert one more entry: the least-recently-touched (keys[1]) should
	// be evicted instead of keys[0].
	extra := symbolKey{codeAddr: 0xffff}
	c.Put(extra, symbolValue{functionName: "extra"})

	if _, ok := c.Get(keys[0]); !ok {
		t.Error("recently-used entry was evicted, want retained")
	}
	if _, ok := c.Get(keys[1]); ok {
		t.Error("least-recently-used entry survived, want evicted")
	}
}
