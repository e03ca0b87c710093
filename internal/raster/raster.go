// internal/raster/raster.go - Raster source types
package raster

import (
	"fmt"

	"github.com/paulmach/orb"
)

// TileID uniquely identifies one tile within one source. It is the cache
// key for decoded tiles.
type TileID struct {
	Source int
	Row    int
	Col    int
}

// String returns a string representation of the tile identity
func (id TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Source, id.Row, id.Col)
}

// Tile is a decoded block of classification samples. Tiles are immutable
// once loaded; edge tiles along the bottom and right raster borders are
// smaller than the configured tile size.
type Tile struct {
	ID     TileID
	Width  int
	Height int
	Data   []byte
}

// At returns the sample at the given offsets local to the tile.
func (t *Tile) At(localRow, localCol int) uint8 {
	return t.Data[localRow*t.Width+localCol]
}

// Contains reports whether the local offsets fall inside the tile. Edge
// tiles reject offsets that would be valid in a full-size tile.
func (t *Tile) Contains(localRow, localCol int) bool {
	return localRow >= 0 && localRow < t.Height && localCol >= 0 && localCol < t.Width
}

// Source is a read-only handle to one raster file. Implementations decode
// tiles on demand; metadata is immutable after construction and LoadTile
// must be safe for concurrent callers.
type Source interface {
	// Index is the source's position in the dataset's priority order.
	Index() int

	// Extent is the geographic bounding box in the source's native CRS.
	Extent() orb.Bound

	// Size returns the raster dimensions in pixels.
	Size() (width, height int)

	// NativeEPSG is the CRS code the file's coordinates are expressed in.
	NativeEPSG() int

	// NoData returns the source's nodata sample value, if it declares one.
	NoData() (uint8, bool)

	// TileSize is the square tile edge length in pixels.
	TileSize() int

	// Covers reports whether a point in the native CRS falls inside Extent.
	Covers(native orb.Point) bool

	// PixelFor maps a native coordinate to pixel indices with floor
	// semantics. Coordinates exactly on the upper extent boundary map to
	// the last valid pixel. ok is false outside the raster.
	PixelFor(native orb.Point) (row, col int, ok bool)

	// TileFor returns the identity of the tile containing a pixel.
	TileFor(row, col int) TileID

	// LoadTile decodes and returns one tile.
	LoadTile(row, col int) (*Tile, error)

	Close() error
}
