// pkg/geotiff/geotiff.go - Pure-Go reader for single-band 8-bit GeoTIFF rasters
package geotiff

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
)

// TIFF compression codes supported by this reader.
const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

// GeoTIFF key IDs carrying the native CRS code.
const (
	geoKeyGeographicType = 2048
	geoKeyProjectedCS    = 3072
)

// Geotransform is the axis-aligned affine mapping between pixel indices and
// native geographic coordinates. PixelHeight is negative for north-up rasters.
type Geotransform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// File is an open GeoTIFF raster. Metadata is read once at Open time; pixel
// data is read on demand through ReadBlock. A File is safe for concurrent
// readers: all pixel access uses positioned reads.
type File struct {
	path string
	file *os.File

	width  int
	height int

	compression uint16

	nodata    uint8
	hasNoData bool
	epsg      int
	transform Geotransform

	// Internal block layout. A strip-organized file is treated as blocks of
	// width × rowsPerStrip; a tile-organized file as blocks of
	// tileWidth × tileLength (always padded to full size on disk).
	tiled           bool
	blockWidth      int
	blockHeight     int
	blocksAcross    int
	blocksDown      int
	blockOffsets    []uint64
	blockByteCounts []uint64
}

// geoTIFFIFD is a struct into which github.com/google/tiff unmarshals the
// file's single IFD.
type geoTIFFIFD struct {
	ImageWidth                uint32    `tiff:"field,tag=256"`
	ImageLength               uint32    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint32  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint32    `tiff:"field,tag=278"`
	StripByteCounts           []uint32  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint32    `tiff:"field,tag=322"`
	TileLength                uint32    `tiff:"field,tag=323"`
	TileOffsets               []uint32  `tiff:"field,tag=324"`
	TileByteCounts            []uint32  `tiff:"field,tag=325"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// Open opens a GeoTIFF file and reads its metadata. No pixel data is loaded.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", path, err)
	}

	f, err := parse(path, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

func parse(path string, file *os.File) (*File, error) {
	tf, err := tiff.Parse(file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TIFF structure of %s: %w", path, err)
	}

	if len(tf.IFDs()) != 1 {
		return nil, fmt.Errorf("%s: found %d IFDs, expected 1", path, len(tf.IFDs()))
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tf.IFDs()[0], &ifd); err != nil {
		return nil, fmt.Errorf("failed to read IFD of %s: %w", path, err)
	}

	if ifd.ImageWidth == 0 || ifd.ImageLength == 0 {
		return nil, fmt.Errorf("%s: missing image dimensions", path)
	}
	if ifd.BitsPerSample != 8 {
		return nil, fmt.Errorf("%s: unsupported bits per sample %d, expected 8", path, ifd.BitsPerSample)
	}
	if ifd.SamplesPerPixel > 1 {
		return nil, fmt.Errorf("%s: unsupported samples per pixel %d, expected 1", path, ifd.SamplesPerPixel)
	}
	if ifd.PlanarConfiguration > 1 {
		return nil, fmt.Errorf("%s: unsupported planar configuration %d", path, ifd.PlanarConfiguration)
	}
	if ifd.Predictor > 1 {
		return nil, fmt.Errorf("%s: unsupported predictor %d", path, ifd.Predictor)
	}
	switch ifd.Compression {
	case 0, compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("%s: unsupported compression %d", path, ifd.Compression)
	}

	f := &File{
		path:        path,
		file:        file,
		width:       int(ifd.ImageWidth),
		height:      int(ifd.ImageLength),
		compression: ifd.Compression,
	}

	if err := f.initBlockLayout(&ifd); err != nil {
		return nil, err
	}
	if err := f.initGeoreference(&ifd); err != nil {
		return nil, err
	}

	return f, nil
}

// initBlockLayout normalizes strip- and tile-organized files into a common
// block grid.
func (f *File) initBlockLayout(ifd *geoTIFFIFD) error {
	switch {
	case len(ifd.TileOffsets) > 0:
		if ifd.TileWidth == 0 || ifd.TileLength == 0 {
			return fmt.Errorf("%s: tiled file without tile dimensions", f.path)
		}
		f.tiled = true
		f.blockWidth = int(ifd.TileWidth)
		f.blockHeight = int(ifd.TileLength)
		f.blocksAcross = (f.width + f.blockWidth - 1) / f.blockWidth
		f.blocksDown = (f.height + f.blockHeight - 1) / f.blockHeight
		f.blockOffsets = widen(ifd.TileOffsets)
		f.blockByteCounts = widen(ifd.TileByteCounts)
	case len(ifd.StripOffsets) > 0:
		rows := int(ifd.RowsPerStrip)
		if rows == 0 || rows > f.height {
			rows = f.height
		}
		f.blockWidth = f.width
		f.blockHeight = rows
		f.blocksAcross = 1
		f.blocksDown = (f.height + rows - 1) / rows
		f.blockOffsets = widen(ifd.StripOffsets)
		f.blockByteCounts = widen(ifd.StripByteCounts)
	default:
		return fmt.Errorf("%s: file has neither strip nor tile offsets", f.path)
	}

	want := f.blocksAcross * f.blocksDown
	if len(f.blockOffsets) != want || len(f.blockByteCounts) != want {
		return fmt.Errorf("%s: incorrect number of block offsets or byte counts", f.path)
	}
	return nil
}

// initGeoreference extracts the geotransform, CRS code, and nodata value.
func (f *File) initGeoreference(ifd *geoTIFFIFD) error {
	if len(ifd.ModelPixelScaleTag) < 2 {
		return fmt.Errorf("%s: missing model pixel scale", f.path)
	}
	if len(ifd.ModelTiepointTag) < 6 {
		return fmt.Errorf("%s: missing model tiepoint", f.path)
	}
	// Only the common tiepoint anchored at pixel (0, 0) is supported.
	if ifd.ModelTiepointTag[0] != 0 || ifd.ModelTiepointTag[1] != 0 {
		return fmt.Errorf("%s: unsupported model tiepoint anchor (%g, %g)",
			f.path, ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1])
	}

	f.transform = Geotransform{
		OriginX:     ifd.ModelTiepointTag[3],
		OriginY:     ifd.ModelTiepointTag[4],
		PixelWidth:  ifd.ModelPixelScaleTag[0],
		PixelHeight: -ifd.ModelPixelScaleTag[1],
	}
	if f.transform.PixelWidth == 0 || f.transform.PixelHeight == 0 {
		return fmt.Errorf("%s: degenerate pixel scale", f.path)
	}

	f.epsg = parseGeoKeyEPSG(ifd.GeoKeyDirectoryTag)

	if ifd.GDALNoData != "" {
		text := strings.TrimRight(strings.TrimSpace(ifd.GDALNoData), "\x00")
		if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			if v >= 0 && v <= 255 && v == float64(uint8(v)) {
				f.nodata = uint8(v)
				f.hasNoData = true
			}
		}
	}

	return nil
}

// parseGeoKeyEPSG walks a GeoKeyDirectory and returns the geographic or
// projected CRS code, preferring the projected one. Returns 0 if absent.
func parseGeoKeyEPSG(dir []uint16) int {
	if len(dir) < 4 {
		return 0
	}
	numKeys := int(dir[3])
	// The header's key count is untrusted; a directory may claim more keys
	// than the tag actually holds.
	if most := (len(dir) - 4) / 4; numKeys > most {
		numKeys = most
	}
	geographic, projected := 0, 0
	for i := 0; i < numKeys; i++ {
		entry := dir[4+i*4 : 4+i*4+4]
		if entry[1] != 0 || entry[2] != 1 {
			continue
		}
		switch entry[0] {
		case geoKeyGeographicType:
			geographic = int(entry[3])
		case geoKeyProjectedCS:
			projected = int(entry[3])
		}
	}
	if projected != 0 {
		return projected
	}
	return geographic
}

func widen(values []uint32) []uint64 {
	out := make([]uint64, len(values))
	for i, v := range values {
		out[i] = uint64(v)
	}
	return out
}

// Path returns the path the file was opened from.
func (f *File) Path() string {
	return f.path
}

// Size returns the raster dimensions in pixels.
func (f *File) Size() (width, height int) {
	return f.width, f.height
}

// Geotransform returns the pixel-to-native-coordinate mapping.
func (f *File) Geotransform() Geotransform {
	return f.transform
}

// EPSG returns the native CRS code declared by the file, or 0 if the file
// carries none.
func (f *File) EPSG() int {
	return f.epsg
}

// NoData returns the declared nodata sample value, if any.
func (f *File) NoData() (uint8, bool) {
	return f.nodata, f.hasNoData
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.file.Close()
}
