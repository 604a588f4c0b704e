package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/metrics"
)

// Stats describes a namespace's hit/miss counters and current size.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

type entry struct {
	value     interface{}
	expiresAt time.Time // zero means no expiry
	tags      []string
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// backing is the minimal surface Namespace needs from its store, so it can
// fall back to a plain map if the LRU fails to construct.
type backing interface {
	Add(key string, value entry)
	Get(key string) (entry, bool)
	Remove(key string)
	Purge()
	Len() int
}

// Namespace is one bounded, TTL-expiring, tag-invalidated cache region.
type Namespace struct {
	name  string
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	store   backing
	tagIdx  map[string]map[string]struct{} // tag -> set of keys
	hits    uint64
	misses  uint64
}

func newNamespace(name string, size int, ttl time.Duration, clk clock.Clock) *Namespace {
	store, err := newLRUBacking(size)
	if err != nil {
		log.WithComponent("cache").Warn().
			Str("namespace", name).Err(err).
			Msg("lru construction failed, degrading to unbounded map")
		store = newMapBacking()
	}
	return &Namespace{
		name:   name,
		ttl:    ttl,
		clock:  clk,
		store:  store,
		tagIdx: make(map[string]map[string]struct{}),
	}
}

// Get looks up key, reporting a miss if absent or expired.
func (n *Namespace) Get(key string) (interface{}, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.store.Get(key)
	if !ok || e.expired(n.clock.Now()) {
		if ok {
			n.removeLocked(key, e)
		}
		n.misses++
		metrics.CacheMissesTotal.WithLabelValues(n.name).Inc()
		return nil, false
	}
	n.hits++
	metrics.CacheHitsTotal.WithLabelValues(n.name).Inc()
	return e.value, true
}

// Set stores value under key, tagged for later Invalidate calls. A zero
// namespace TTL means the entry never expires on its own.
func (n *Namespace) Set(key string, value interface{}, tags ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var expiresAt time.Time
	if n.ttl > 0 {
		expiresAt = n.clock.Now().Add(n.ttl)
	}
	e := entry{value: value, expiresAt: expiresAt, tags: tags}
	n.store.Add(key, e)
	for _, tag := range tags {
		if n.tagIdx[tag] == nil {
			n.tagIdx[tag] = make(map[string]struct{})
		}
		n.tagIdx[tag][key] = struct{}{}
	}
}

// Invalidate drops every entry tagged with tag.
func (n *Namespace) Invalidate(tag string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	keys := n.tagIdx[tag]
	delete(n.tagIdx, tag)
	for key := range keys {
		if e, ok := n.store.Get(key); ok {
			n.removeLocked(key, e)
		}
	}
}

// Clear empties the namespace entirely.
func (n *Namespace) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.store.Purge()
	n.tagIdx = make(map[string]map[string]struct{})
}

// Stats returns the namespace's current hit/miss counters and size.
func (n *Namespace) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{Hits: n.hits, Misses: n.misses, Size: n.store.Len()}
}

// removeLocked removes key from the store and its tag index. Caller holds n.mu.
func (n *Namespace) removeLocked(key string, e entry) {
	n.store.Remove(key)
	for _, tag := range e.tags {
		if set, ok := n.tagIdx[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(n.tagIdx, tag)
			}
		}
	}
}

// Cache bundles the three namespaces defined in spec §4.7.
type Cache struct {
	availability *Namespace
	conflicts    *Namespace
	monitorState *Namespace
}

// New constructs a Cache whose entries expire relative to clk.
func New(clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cache{
		availability: newNamespace("port_availability", 2000, 5*time.Second, clk),
		conflicts:    newNamespace("port_conflicts", 1000, 5*time.Second, clk),
		monitorState: newNamespace("port_monitor_state", 5000, 0, clk),
	}
}

// Availability is the namespace backing cached port-availability probes.
func (c *Cache) Availability() *Namespace { return c.availability }

// Conflicts is the namespace backing cached fused conflict results.
func (c *Cache) Conflicts() *Namespace { return c.conflicts }

// MonitorState is the namespace holding each monitor session's last-known
// per-port state between scan cycles.
func (c *Cache) MonitorState() *Namespace { return c.monitorState }
