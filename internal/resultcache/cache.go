// Package resultcache keeps a small in-process LRU of recently resolved
// points. Repeated queries for the same coordinates (map tooltips, path
// sampling overlaps) skip the whole fallback chain.
package resultcache

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/core/observability"
)

// quantum rounds coordinates to ~1m so float noise maps to one key
const quantum = 1e-5

type item struct {
	res      model.ElevationResult
	storedAt time.Time
}

type Cache struct {
	lru *lru.Cache[uint64, item]
	ttl time.Duration
	now func() time.Time
}

func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[uint64, item](size)
	return &Cache{lru: c, ttl: ttl, now: time.Now}
}

// WithClock injects a clock, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func key(lat, lon float64) uint64 {
	qLat := int64(lat / quantum)
	qLon := int64(lon / quantum)
	return xxhash.Sum64String(fmt.Sprintf("%d:%d", qLat, qLon))
}

func (c *Cache) Get(lat, lon float64) (model.ElevationResult, bool) {
	it, ok := c.lru.Get(key(lat, lon))
	if !ok {
		observability.IncResultCacheMiss()
		return model.ElevationResult{}, false
	}
	if c.ttl > 0 && c.now().Sub(it.storedAt) > c.ttl {
		c.lru.Remove(key(lat, lon))
		observability.IncResultCacheMiss()
		return model.ElevationResult{}, false
	}
	observability.IncResultCacheHit()
	return it.res, true
}

func (c *Cache) Put(lat, lon float64, res model.ElevationResult) {
	c.lru.Add(key(lat, lon), item{res: res, storedAt: c.now()})
}

func (c *Cache) Len() int { return c.lru.Len() }
