// Package tilecache holds decoded elevation tiles in a bounded LRU.
//
// A Cache is safe for concurrent use. GetOrLoad collapses concurrent misses
// for the same tile into one load, so a cache shared by several trajectories
// never fetches a tile twice at once and never stores a failed load.
package tilecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/pkg/metrics"
)

// DefaultCapacity is the number of tiles kept when no capacity is given.
const DefaultCapacity = 1000

// Loader produces a fully decoded grid for a tile.
type Loader func(ctx context.Context, addr domain.TileAddress) (domain.TileGrid, error)

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Loads     int64 `json:"loads"`
	Evictions int64 `json:"evictions"`
}

// Cache is a bounded least-recently-used map from tile address to grid.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[domain.TileAddress]*node
	order    lruList

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	loads     atomic.Int64
	evictions atomic.Int64
}

// New creates a cache holding at most capacity tiles.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[domain.TileAddress]*node, capacity),
	}
}

// Capacity returns the maximum number of tiles.
func (c *Cache) Capacity() int { return c.capacity }

// Len returns the number of cached tiles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.len
}

// Get returns the grid for addr and marks it most recently used.
func (c *Cache) Get(addr domain.TileAddress) (domain.TileGrid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[addr]
	if !ok {
		c.misses.Add(1)
		metrics.TileCacheMisses.Inc()
		return nil, false
	}
	c.order.moveToFront(n)
	c.hits.Add(1)
	metrics.TileCacheHits.Inc()
	return n.grid, true
}

// Put stores grid under addr, evicting the least recently used tile when
// the cache is full. It reports whether an eviction happened.
func (c *Cache) Put(addr domain.TileAddress, grid domain.TileGrid) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[addr]; ok {
		n.grid = grid
		c.order.moveToFront(n)
		return false
	}

	n := &node{key: addr, grid: grid}
	c.items[addr] = n
	c.order.pushFront(n)

	if c.order.len <= c.capacity {
		return false
	}
	oldest := c.order.removeOldest()
	delete(c.items, oldest.key)
	c.evictions.Add(1)
	metrics.TileCacheEvictions.Inc()
	return true
}

// GetOrLoad returns the cached grid for addr or calls load exactly once
// across concurrent callers and stores its result. Failed loads are
// returned to every waiting caller and are not cached.
//
// The load runs detached from the cancellation of the caller that started
// it, so one caller giving up does not fail the others. A caller whose ctx
// is done stops waiting and gets ctx.Err(); the load still fills the cache.
func (c *Cache) GetOrLoad(ctx context.Context, addr domain.TileAddress, load Loader) (domain.TileGrid, error) {
	if grid, ok := c.Get(addr); ok {
		return grid, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey(addr), func() (interface{}, error) {
		// another flight may have filled it between Get and DoChan
		if grid, ok := c.peek(addr); ok {
			return grid, nil
		}
		grid, err := load(loadCtx, addr)
		if err != nil {
			return nil, err
		}
		c.loads.Add(1)
		c.Put(addr, grid)
		return grid, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.TileGrid), nil
	}
}

// Keys returns cached addresses from most to least recently used.
func (c *Cache) Keys() []domain.TileAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]domain.TileAddress, 0, c.order.len)
	for n := c.order.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Loads:     c.loads.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Cache) peek(addr domain.TileAddress) (domain.TileGrid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[addr]
	if !ok {
		return nil, false
	}
	return n.grid, true
}

func flightKey(addr domain.TileAddress) string {
	return fmt.Sprintf("%d/%d/%d", addr.Zoom, addr.X, addr.Y)
}
