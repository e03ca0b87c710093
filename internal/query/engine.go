// internal/query/engine.go - Concurrent point-query dispatch
package query

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"hydromask/internal"
	"hydromask/internal/cache"
	"hydromask/internal/raster"
)

// PointError records a per-point failure inside a batch query.
type PointError struct {
	Index int
	Err   error
}

// Result holds the outcome of a batch query. Classes and Valid have the
// same length and order as the input points. Valid[i] is true iff point i
// hit a covering source and a non-nodata pixel; otherwise Classes[i] is the
// engine's nodata classification. Errors lists the points that failed
// (tile I/O or projection), sorted by index; those points also carry the
// nodata classification.
type Result struct {
	Classes []uint8
	Valid   []bool
	Errors  []PointError
}

// Engine fans batches of points out across workers and runs the
// select → map → fetch-tile → sample pipeline for each point.
type Engine struct {
	selector    *Selector
	tiles       *cache.TileCache
	noDataClass uint8
}

// NewEngine creates a query engine over the given selector and shared tile
// cache. noDataClass is emitted for points outside every source, nodata
// pixels, and failed points.
func NewEngine(selector *Selector, tiles *cache.TileCache, noDataClass uint8) *Engine {
	return &Engine{
		selector:    selector,
		tiles:       tiles,
		noDataClass: noDataClass,
	}
}

// Query classifies the points (xs[i], ys[i]), declared in the query CRS.
// numThreads 0 uses all available parallelism; 1 runs synchronously in the
// caller. Output order always matches input order: the input is split into
// one contiguous chunk per worker and each worker writes only its own slice
// of the output.
//
// Per-point failures never abort the batch; they are recorded in
// Result.Errors and the point is classified as nodata. The only whole-call
// failure is a length mismatch between xs and ys, reported before any work
// begins.
func (e *Engine) Query(xs, ys []float64, numThreads int) (*Result, error) {
	if len(xs) != len(ys) {
		return nil, internal.NewError(internal.ErrorCodeShape,
			fmt.Sprintf("coordinate arrays must have the same length, got %d and %d", len(xs), len(ys)), nil)
	}

	n := len(xs)
	result := &Result{
		Classes: make([]uint8, n),
		Valid:   make([]bool, n),
	}
	for i := range result.Classes {
		result.Classes[i] = e.noDataClass
	}
	if n == 0 {
		return result, nil
	}

	workers := numThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	var mu sync.Mutex
	if workers == 1 {
		e.queryRange(xs, ys, 0, n, result, &mu)
		return result, nil
	}

	var group errgroup.Group
	chunk := n / workers
	start := 0
	for w := 0; w < workers; w++ {
		end := start + chunk
		if w == workers-1 {
			end = n
		}
		lo, hi := start, end
		group.Go(func() error {
			e.queryRange(xs, ys, lo, hi, result, &mu)
			return nil
		})
		start = end
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Error collection order depends on scheduling; sort for determinism.
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Index < result.Errors[j].Index
	})
	return result, nil
}

// queryRange processes points [start, end) and writes into the worker's own
// slice of the output; only the error list needs the mutex.
func (e *Engine) queryRange(xs, ys []float64, start, end int, result *Result, mu *sync.Mutex) {
	for i := start; i < end; i++ {
		class, valid, err := e.queryPoint(orb.Point{xs[i], ys[i]})
		if err != nil {
			mu.Lock()
			result.Errors = append(result.Errors, PointError{Index: i, Err: err})
			mu.Unlock()
			continue
		}
		if valid {
			result.Classes[i] = class
			result.Valid[i] = true
		}
	}
}

// queryPoint runs the pipeline for a single point. valid is false when no
// source covers the point or the sampled pixel is the source's nodata
// value; the two cases are indistinguishable in the classification channel.
func (e *Engine) queryPoint(p orb.Point) (uint8, bool, error) {
	src, native, err := e.selector.Select(p)
	if err != nil {
		return 0, false, err
	}
	if src == nil {
		return 0, false, nil
	}

	row, col, ok := src.PixelFor(native)
	if !ok {
		return 0, false, nil
	}

	id := src.TileFor(row, col)
	tile, err := e.tiles.GetOrLoad(id, func() (*raster.Tile, error) {
		return src.LoadTile(id.Row, id.Col)
	})
	if err != nil {
		return 0, false, err
	}

	tileSize := src.TileSize()
	localRow := row - id.Row*tileSize
	localCol := col - id.Col*tileSize
	if !tile.Contains(localRow, localCol) {
		return 0, false, internal.NewError(internal.ErrorCodeIO,
			fmt.Sprintf("pixel (%d, %d) is outside tile %s", row, col, id), nil)
	}

	value := tile.At(localRow, localCol)
	if nodata, has := src.NoData(); has && value == nodata {
		return 0, false, nil
	}
	return value, true, nil
}
