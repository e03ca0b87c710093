// internal/raster/raster_test.go - Tests for the GeoTIFF-backed raster source
package raster

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"hydromask/internal"
	"hydromask/internal/rastertest"
)

// openFixture writes an 8x4 raster with origin (0, 4) and 1-unit pixels, so
// its extent is x in [0, 8] and y in [0, 4], and opens it with 4-pixel tiles.
func openFixture(t *testing.T, pixels []byte) Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.tif")
	err := rastertest.WriteGeoTIFF(path, rastertest.Spec{
		Width:     8,
		Height:    4,
		Pixels:    pixels,
		OriginX:   0,
		OriginY:   4,
		PixelSize: 1,
		EPSG:      4326,
	})
	if err != nil {
		t.Fatalf("WriteGeoTIFF() error = %v", err)
	}

	src, err := OpenGeoTIFF(0, path, 4)
	if err != nil {
		t.Fatalf("OpenGeoTIFF() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestOpenGeoTIFFMetadata(t *testing.T) {
	src := openFixture(t, nil)

	if width, height := src.Size(); width != 8 || height != 4 {
		t.Errorf("Size() = %dx%d, want 8x4", width, height)
	}
	if src.NativeEPSG() != 4326 {
		t.Errorf("NativeEPSG() = %d, want 4326", src.NativeEPSG())
	}
	if src.TileSize() != 4 {
		t.Errorf("TileSize() = %d, want 4", src.TileSize())
	}

	want := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{8, 4}}
	if src.Extent() != want {
		t.Errorf("Extent() = %v, want %v", src.Extent(), want)
	}
}

func TestOpenGeoTIFFMissingFile(t *testing.T) {
	_, err := OpenGeoTIFF(0, filepath.Join(t.TempDir(), "missing.tif"), 4)
	if err == nil {
		t.Fatal("OpenGeoTIFF() succeeded on a missing file")
	}
	if !internal.IsCode(err, internal.ErrorCodeIO) {
		t.Errorf("OpenGeoTIFF() error code = %v, want %s", err, internal.ErrorCodeIO)
	}
}

func TestPixelFor(t *testing.T) {
	src := openFixture(t, nil)

	tests := []struct {
		name     string
		point    orb.Point
		row, col int
		ok       bool
	}{
		{"interior", orb.Point{0.5, 3.5}, 0, 0, true},
		{"pixel center", orb.Point{2.5, 1.5}, 2, 2, true},
		{"on interior pixel edge", orb.Point{3, 2}, 2, 3, true},
		{"origin corner", orb.Point{0, 4}, 0, 0, true},
		{"upper x boundary clamps to last column", orb.Point{8, 2.5}, 1, 7, true},
		{"lower y boundary clamps to last row", orb.Point{2.5, 0}, 3, 2, true},
		{"opposite corner", orb.Point{8, 0}, 3, 7, true},
		{"west of extent", orb.Point{-0.1, 2}, 0, 0, false},
		{"east of extent", orb.Point{8.1, 2}, 0, 0, false},
		{"north of extent", orb.Point{2, 4.1}, 0, 0, false},
		{"south of extent", orb.Point{2, -0.1}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col, ok := src.PixelFor(tt.point)
			if ok != tt.ok {
				t.Fatalf("PixelFor(%v) ok = %t, want %t", tt.point, ok, tt.ok)
			}
			if ok && (row != tt.row || col != tt.col) {
				t.Errorf("PixelFor(%v) = (%d, %d), want (%d, %d)", tt.point, row, col, tt.row, tt.col)
			}
		})
	}
}

func TestCovers(t *testing.T) {
	src := openFixture(t, nil)

	if !src.Covers(orb.Point{4, 2}) {
		t.Error("Covers() = false for an interior point")
	}
	if !src.Covers(orb.Point{8, 4}) {
		t.Error("Covers() = false for a point on the extent boundary")
	}
	if src.Covers(orb.Point{9, 2}) {
		t.Error("Covers() = true for a point outside the extent")
	}
}

func TestTileFor(t *testing.T) {
	src := openFixture(t, nil)

	tests := []struct {
		row, col int
		want     TileID
	}{
		{0, 0, TileID{Source: 0, Row: 0, Col: 0}},
		{3, 3, TileID{Source: 0, Row: 0, Col: 0}},
		{3, 4, TileID{Source: 0, Row: 0, Col: 1}},
		{2, 7, TileID{Source: 0, Row: 0, Col: 1}},
	}

	for _, tt := range tests {
		if got := src.TileFor(tt.row, tt.col); got != tt.want {
			t.Errorf("TileFor(%d, %d) = %v, want %v", tt.row, tt.col, got, tt.want)
		}
	}
}

func TestLoadTile(t *testing.T) {
	pixels := make([]byte, 8*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	src := openFixture(t, pixels)

	tile, err := src.LoadTile(0, 1)
	if err != nil {
		t.Fatalf("LoadTile(0, 1) error = %v", err)
	}
	if tile.Width != 4 || tile.Height != 4 {
		t.Fatalf("tile size = %dx%d, want 4x4", tile.Width, tile.Height)
	}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			want := pixels[row*8+4+col]
			if got := tile.At(row, col); got != want {
				t.Fatalf("At(%d, %d) = %d, want %d", row, col, got, want)
			}
		}
	}
}

func TestLoadTileEdge(t *testing.T) {
	// 6x4 raster with 4-pixel tiles leaves a 2-pixel-wide right edge tile.
	path := filepath.Join(t.TempDir(), "edge.tif")
	pixels := make([]byte, 6*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	err := rastertest.WriteGeoTIFF(path, rastertest.Spec{
		Width:     6,
		Height:    4,
		Pixels:    pixels,
		OriginX:   0,
		OriginY:   4,
		PixelSize: 1,
	})
	if err != nil {
		t.Fatalf("WriteGeoTIFF() error = %v", err)
	}
	src, err := OpenGeoTIFF(0, path, 4)
	if err != nil {
		t.Fatalf("OpenGeoTIFF() error = %v", err)
	}
	defer src.Close()

	tile, err := src.LoadTile(0, 1)
	if err != nil {
		t.Fatalf("LoadTile(0, 1) error = %v", err)
	}
	if tile.Width != 2 || tile.Height != 4 {
		t.Fatalf("edge tile size = %dx%d, want 2x4", tile.Width, tile.Height)
	}
	if got, want := tile.At(1, 0), pixels[1*6+4]; got != want {
		t.Errorf("At(1, 0) = %d, want %d", got, want)
	}
	if tile.Contains(0, 3) {
		t.Error("Contains(0, 3) = true for a 2-pixel-wide edge tile")
	}
}

func TestLoadTileOutOfRange(t *testing.T) {
	src := openFixture(t, nil)

	tests := []struct{ row, col int }{
		{-1, 0},
		{0, -1},
		{1, 0},
		{0, 2},
	}
	for _, tt := range tests {
		_, err := src.LoadTile(tt.row, tt.col)
		if err == nil {
			t.Errorf("LoadTile(%d, %d) succeeded, want error", tt.row, tt.col)
			continue
		}
		if !internal.IsCode(err, internal.ErrorCodeIO) {
			t.Errorf("LoadTile(%d, %d) error code = %v, want %s", tt.row, tt.col, err, internal.ErrorCodeIO)
		}
	}
}

func TestLoadTileDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.tif")
	err := rastertest.WriteGeoTIFF(path, rastertest.Spec{
		Width:     8,
		Height:    4,
		OriginX:   0,
		OriginY:   4,
		PixelSize: 1,
	})
	if err != nil {
		t.Fatalf("WriteGeoTIFF() error = %v", err)
	}
	// Declare LZW over the uncompressed strip so the tile cannot be decoded.
	if err := rastertest.DeclareCompression(path, 5); err != nil {
		t.Fatalf("DeclareCompression() error = %v", err)
	}

	src, err := OpenGeoTIFF(0, path, 4)
	if err != nil {
		t.Fatalf("OpenGeoTIFF() error = %v", err)
	}
	defer src.Close()

	_, err = src.LoadTile(0, 0)
	if err == nil {
		t.Fatal("LoadTile() succeeded on undecodable data")
	}
	if !internal.IsCode(err, internal.ErrorCodeDecode) {
		t.Errorf("LoadTile() error code = %v, want %s", err, internal.ErrorCodeDecode)
	}
}

func TestTileContains(t *testing.T) {
	tile := &Tile{Width: 4, Height: 2, Data: make([]byte, 8)}

	if !tile.Contains(1, 3) {
		t.Error("Contains(1, 3) = false inside a 4x2 tile")
	}
	if tile.Contains(2, 0) {
		t.Error("Contains(2, 0) = true below a 4x2 tile")
	}
	if tile.Contains(0, 4) {
		t.Error("Contains(0, 4) = true right of a 4x2 tile")
	}
	if tile.Contains(-1, 0) {
		t.Error("Contains(-1, 0) = true above a 4x2 tile")
	}
}
