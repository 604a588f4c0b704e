package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// lruBacking adapts github.com/hashicorp/golang-lru to the backing interface.
type lruBacking struct {
	c *lru.Cache
}

func newLRUBacking(size int) (backing, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruBacking{c: c}, nil
}

func (b *lruBacking) Add(key string, value entry) { b.c.Add(key, value) }

func (b *lruBacking) Get(key string) (entry, bool) {
	v, ok := b.c.Get(key)
	if !ok {
		return entry{}, false
	}
	return v.(entry), true
}

func (b *lruBacking) Remove(key string) { b.c.Remove(key) }
func (b *lruBacking) Purge()            { b.c.Purge() }
func (b *lruBacking) Len() int          { return b.c.Len() }

// mapBacking is the unbounded fallback used when lru.New fails.
type mapBacking struct {
	mu sync.Mutex
	m  map[string]entry
}

func newMapBacking() backing {
	return &mapBacking{m: make(map[string]entry)}
}

func (b *mapBacking) Add(key string, value entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = value
}

func (b *mapBacking) Get(key string) (entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[key]
	return e, ok
}

func (b *mapBacking) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, key)
}

func (b *mapBacking) Purge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m = make(map[string]entry)
}

func (b *mapBacking) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}
