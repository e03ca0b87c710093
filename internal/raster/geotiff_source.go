// internal/raster/geotiff_source.go - GeoTIFF-backed raster source
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"hydromask/internal"
	"hydromask/pkg/geotiff"
)

// geotiffSource implements Source on top of a pkg/geotiff file. It is the
// only format implementation; additional formats plug in behind the Source
// interface.
type geotiffSource struct {
	index    int
	file     *geotiff.File
	tileSize int

	width  int
	height int
	extent orb.Bound
	gt     geotiff.Geotransform

	tilesAcross int
	tilesDown   int
}

// OpenGeoTIFF opens one GeoTIFF raster source. Only metadata is read; all
// pixel access happens through LoadTile.
func OpenGeoTIFF(index int, path string, tileSize int) (Source, error) {
	file, err := geotiff.Open(path)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeIO, fmt.Sprintf("failed to open raster source %s", path), err)
	}

	width, height := file.Size()
	gt := file.Geotransform()

	s := &geotiffSource{
		index:    index,
		file:     file,
		tileSize: tileSize,
		width:    width,
		height:   height,
		gt:       gt,
		// The extent spans from the origin corner to the opposite corner;
		// PixelHeight is negative for north-up rasters, so min/max are
		// normalized here.
		extent: orb.Bound{
			Min: orb.Point{
				math.Min(gt.OriginX, gt.OriginX+gt.PixelWidth*float64(width)),
				math.Min(gt.OriginY, gt.OriginY+gt.PixelHeight*float64(height)),
			},
			Max: orb.Point{
				math.Max(gt.OriginX, gt.OriginX+gt.PixelWidth*float64(width)),
				math.Max(gt.OriginY, gt.OriginY+gt.PixelHeight*float64(height)),
			},
		},
		tilesAcross: (width + tileSize - 1) / tileSize,
		tilesDown:   (height + tileSize - 1) / tileSize,
	}
	return s, nil
}

func (s *geotiffSource) Index() int { return s.index }

func (s *geotiffSource) Extent() orb.Bound { return s.extent }

func (s *geotiffSource) Size() (int, int) { return s.width, s.height }

func (s *geotiffSource) NativeEPSG() int { return s.file.EPSG() }

func (s *geotiffSource) NoData() (uint8, bool) { return s.file.NoData() }

func (s *geotiffSource) TileSize() int { return s.tileSize }

func (s *geotiffSource) Covers(native orb.Point) bool {
	return s.extent.Contains(native)
}

func (s *geotiffSource) PixelFor(native orb.Point) (int, int, bool) {
	col := int(math.Floor((native[0] - s.gt.OriginX) / s.gt.PixelWidth))
	row := int(math.Floor((native[1] - s.gt.OriginY) / s.gt.PixelHeight))

	// A coordinate exactly on the upper extent boundary belongs to the last
	// pixel, not one past it.
	if col == s.width && native[0] == s.gt.OriginX+s.gt.PixelWidth*float64(s.width) {
		col = s.width - 1
	}
	if row == s.height && native[1] == s.gt.OriginY+s.gt.PixelHeight*float64(s.height) {
		row = s.height - 1
	}

	if row < 0 || row >= s.height || col < 0 || col >= s.width {
		return 0, 0, false
	}
	return row, col, true
}

func (s *geotiffSource) TileFor(row, col int) TileID {
	return TileID{Source: s.index, Row: row / s.tileSize, Col: col / s.tileSize}
}

func (s *geotiffSource) LoadTile(row, col int) (*Tile, error) {
	if row < 0 || row >= s.tilesDown || col < 0 || col >= s.tilesAcross {
		return nil, internal.NewError(internal.ErrorCodeIO,
			fmt.Sprintf("tile %d/%d/%d is out of bounds", s.index, row, col), nil)
	}

	x0 := col * s.tileSize
	y0 := row * s.tileSize
	w := min(s.tileSize, s.width-x0)
	h := min(s.tileSize, s.height-y0)

	data, err := s.file.ReadBlock(x0, y0, w, h)
	if err != nil {
		code := internal.ErrorCodeIO
		if errors.Is(err, geotiff.ErrCorrupt) {
			code = internal.ErrorCodeDecode
		}
		return nil, internal.NewError(code,
			fmt.Sprintf("failed to load tile %d/%d/%d", s.index, row, col), err)
	}

	return &Tile{
		ID:     TileID{Source: s.index, Row: row, Col: col},
		Width:  w,
		Height: h,
		Data:   data,
	}, nil
}

func (s *geotiffSource) Close() error {
	return s.file.Close()
}
