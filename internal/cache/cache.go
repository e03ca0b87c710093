// internal/cache/cache.go - Bounded, load-deduplicating tile cache
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"hydromask/internal"
	"hydromask/internal/raster"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydromask_tile_cache_hits_total",
		Help: "The total number of tile cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydromask_tile_cache_misses_total",
		Help: "The total number of tile cache misses",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydromask_tile_cache_evictions_total",
		Help: "The total number of tile cache evictions",
	})
	loadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydromask_tile_load_failures_total",
		Help: "The total number of failed tile loads",
	})
)

// TileCache is a capacity-bounded LRU cache of decoded tiles shared by all
// query workers. Concurrent misses for the same tile are coalesced into a
// single load; a failed load is reported to every waiter and leaves no
// entry behind, so a later lookup retries.
//
// Tiles are immutable and garbage-collected, so a reference obtained from
// GetOrLoad stays valid for its holder even if the entry is evicted;
// eviction only hides the tile from future lookups.
type TileCache struct {
	entries  *lru.Cache[raster.TileID, *raster.Tile]
	inflight singleflight.Group
}

// New creates a tile cache holding at most capacity tiles.
func New(capacity int) (*TileCache, error) {
	if capacity <= 0 {
		return nil, internal.NewError(internal.ErrorCodeConfig,
			fmt.Sprintf("cache capacity must be positive, got %d", capacity), nil)
	}
	entries, err := lru.New[raster.TileID, *raster.Tile](capacity)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig, "failed to create tile cache", err)
	}
	return &TileCache{entries: entries}, nil
}

// GetOrLoad returns the tile for id, marking it most-recently-used. On a
// miss it invokes load at most once per id regardless of how many callers
// miss concurrently; the other callers wait for that load's result.
func (c *TileCache) GetOrLoad(id raster.TileID, load func() (*raster.Tile, error)) (*raster.Tile, error) {
	if tile, ok := c.entries.Get(id); ok {
		cacheHits.Inc()
		return tile, nil
	}
	cacheMisses.Inc()

	value, err, _ := c.inflight.Do(id.String(), func() (interface{}, error) {
		// A concurrent load may have populated the entry between the lookup
		// above and this call.
		if tile, ok := c.entries.Get(id); ok {
			return tile, nil
		}

		tile, err := load()
		if err != nil {
			loadFailures.Inc()
			return nil, err
		}

		if evicted := c.entries.Add(id, tile); evicted {
			cacheEvictions.Inc()
		}
		return tile, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*raster.Tile), nil
}

// Contains reports whether id is resident without updating recency.
func (c *TileCache) Contains(id raster.TileID) bool {
	return c.entries.Contains(id)
}

// Len returns the number of resident tiles.
func (c *TileCache) Len() int {
	return c.entries.Len()
}

// Purge drops every resident tile.
func (c *TileCache) Purge() {
	c.entries.Purge()
}
