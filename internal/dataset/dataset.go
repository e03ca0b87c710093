// internal/dataset/dataset.go - Dataset facade over sources, cache and engine
package dataset

import (
	"fmt"

	"github.com/paulmach/orb"

	"hydromask/internal"
	"hydromask/internal/cache"
	"hydromask/internal/query"
	"hydromask/internal/raster"
)

// Default construction parameters, matching the common HydroSHEDS setup.
const (
	DefaultEPSG         = 4326
	DefaultTileSize     = 256
	DefaultMaxCacheSize = 4096
)

// Classification values emitted by mask rasters.
const (
	ClassNoData uint8 = 0
	ClassWater  uint8 = 1
)

// Options configures Dataset construction. Zero values fall back to the
// defaults above.
type Options struct {
	// EPSG declares the CRS of query coordinates.
	EPSG int
	// TileSize is the square tile edge length in pixels.
	TileSize int
	// MaxCacheSize is the maximum number of resident tiles in the shared
	// cache.
	MaxCacheSize int
}

func (o Options) withDefaults() Options {
	if o.EPSG == 0 {
		o.EPSG = DefaultEPSG
	}
	if o.TileSize == 0 {
		o.TileSize = DefaultTileSize
	}
	if o.MaxCacheSize == 0 {
		o.MaxCacheSize = DefaultMaxCacheSize
	}
	return o
}

// SourceInfo describes one opened raster source.
type SourceInfo struct {
	Path      string
	Width     int
	Height    int
	EPSG      int
	Extent    orb.Bound
	NoData    uint8
	HasNoData bool
}

// Dataset owns an ordered list of raster sources and the tile cache they
// share. Sources are ordered by priority: when extents overlap, the first
// covering source in list order answers the query.
type Dataset struct {
	paths   []string
	sources []raster.Source
	tiles   *cache.TileCache
	engine  *query.Engine
	opts    Options
}

// New opens every source in paths (metadata only, no tile I/O) and builds
// the shared tile cache and query engine. Invalid configuration fails fast
// with a config error.
func New(paths []string, opts Options) (*Dataset, error) {
	opts = opts.withDefaults()

	if len(paths) == 0 {
		return nil, internal.NewError(internal.ErrorCodeConfig, "at least one raster source path is required", nil)
	}
	if opts.TileSize <= 0 {
		return nil, internal.NewError(internal.ErrorCodeConfig,
			fmt.Sprintf("tile size must be positive, got %d", opts.TileSize), nil)
	}
	if opts.MaxCacheSize <= 0 {
		return nil, internal.NewError(internal.ErrorCodeConfig,
			fmt.Sprintf("max cache size must be positive, got %d", opts.MaxCacheSize), nil)
	}
	if opts.EPSG <= 0 {
		return nil, internal.NewError(internal.ErrorCodeConfig,
			fmt.Sprintf("EPSG code must be positive, got %d", opts.EPSG), nil)
	}

	sources := make([]raster.Source, 0, len(paths))
	closeAll := func() {
		for _, src := range sources {
			src.Close()
		}
	}

	for i, path := range paths {
		src, err := raster.OpenGeoTIFF(i, path, opts.TileSize)
		if err != nil {
			closeAll()
			return nil, internal.NewError(internal.ErrorCodeConfig,
				fmt.Sprintf("failed to open source %d of %d", i+1, len(paths)), err)
		}
		sources = append(sources, src)
	}

	selector, err := query.NewSelector(sources, opts.EPSG)
	if err != nil {
		closeAll()
		return nil, internal.NewError(internal.ErrorCodeConfig, "failed to build source selector", err)
	}

	tiles, err := cache.New(opts.MaxCacheSize)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &Dataset{
		paths:   append([]string(nil), paths...),
		sources: sources,
		tiles:   tiles,
		engine:  query.NewEngine(selector, tiles, ClassNoData),
		opts:    opts,
	}, nil
}

// Classify returns the raw classification for each point, plus the parallel
// validity channel distinguishing "no data" from real classifications.
func (d *Dataset) Classify(xs, ys []float64, numThreads int) (*query.Result, error) {
	return d.engine.Query(xs, ys, numThreads)
}

// IsWater reports, for each point (xs[i], ys[i]) in the dataset's query
// CRS, whether the point is classified as water. Points outside every
// source, nodata pixels, and failed points are reported as not water.
func (d *Dataset) IsWater(xs, ys []float64, numThreads int) ([]bool, error) {
	result, err := d.engine.Query(xs, ys, numThreads)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(result.Classes))
	for i, class := range result.Classes {
		mask[i] = result.Valid[i] && class == ClassWater
	}
	return mask, nil
}

// Sources returns metadata for each source in priority order.
func (d *Dataset) Sources() []SourceInfo {
	infos := make([]SourceInfo, len(d.sources))
	for i, src := range d.sources {
		width, height := src.Size()
		nodata, has := src.NoData()
		infos[i] = SourceInfo{
			Path:      d.paths[i],
			Width:     width,
			Height:    height,
			EPSG:      src.NativeEPSG(),
			Extent:    src.Extent(),
			NoData:    nodata,
			HasNoData: has,
		}
	}
	return infos
}

// CachedTiles returns the number of tiles currently resident in the shared
// cache.
func (d *Dataset) CachedTiles() int {
	return d.tiles.Len()
}

// Options returns the effective construction options.
func (d *Dataset) Options() Options {
	return d.opts
}

// Close closes every source. The dataset must not be queried afterwards.
func (d *Dataset) Close() error {
	var firstErr error
	for _, src := range d.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
