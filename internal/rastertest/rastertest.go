// internal/rastertest/rastertest.go - Synthetic GeoTIFF fixtures for tests
package rastertest

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// TIFF field types used by the fixture writer.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// Spec describes a synthetic single-band 8-bit GeoTIFF raster. The written
// file is classic little-endian TIFF, strip-organized and uncompressed,
// which is inside the profile pkg/geotiff reads.
type Spec struct {
	Width  int
	Height int
	// Pixels holds row-major samples of length Width*Height; nil means all
	// zero.
	Pixels []byte
	// OriginX, OriginY locate the top-left corner of pixel (0, 0) in native
	// coordinates.
	OriginX float64
	OriginY float64
	// PixelSize is the square pixel edge length in native units.
	PixelSize float64
	// EPSG is the native CRS code written to the GeoKey directory; 0 omits
	// the directory.
	EPSG int
	// NoData, if non-nil, is written as the GDAL nodata tag.
	NoData *uint8
	// RowsPerStrip controls strip organization; 0 writes a single strip.
	RowsPerStrip int
}

// UniformPixels returns a width×height sample buffer filled with value.
func UniformPixels(width, height int, value uint8) []byte {
	pixels := make([]byte, width*height)
	for i := range pixels {
		pixels[i] = value
	}
	return pixels
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value [4]byte
}

// WriteGeoTIFF writes the raster described by spec to path.
func WriteGeoTIFF(path string, spec Spec) error {
	w, h := spec.Width, spec.Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid raster size %dx%d", w, h)
	}
	if spec.PixelSize <= 0 {
		return fmt.Errorf("invalid pixel size %g", spec.PixelSize)
	}
	pixels := spec.Pixels
	if pixels == nil {
		pixels = make([]byte, w*h)
	}
	if len(pixels) != w*h {
		return fmt.Errorf("pixel buffer has %d samples, expected %d", len(pixels), w*h)
	}

	rps := spec.RowsPerStrip
	if rps <= 0 || rps > h {
		rps = h
	}
	numStrips := (h + rps - 1) / rps

	// Strips start immediately after the 8-byte header.
	stripOffsets := make([]uint32, numStrips)
	stripCounts := make([]uint32, numStrips)
	offset := uint32(8)
	for i := 0; i < numStrips; i++ {
		rows := rps
		if rem := h - i*rps; rem < rows {
			rows = rem
		}
		stripOffsets[i] = offset
		stripCounts[i] = uint32(w * rows)
		offset += stripCounts[i]
	}
	if offset%2 == 1 {
		offset++
	}

	// Out-of-line values follow the strips.
	var extras []byte
	valuesBase := offset
	alloc := func(data []byte) uint32 {
		at := valuesBase + uint32(len(extras))
		extras = append(extras, data...)
		if len(extras)%2 == 1 {
			extras = append(extras, 0)
		}
		return at
	}

	scaleOffset := alloc(doubles(spec.PixelSize, spec.PixelSize, 0))
	tiepointOffset := alloc(doubles(0, 0, 0, spec.OriginX, spec.OriginY, 0))

	var geoOffset uint32
	if spec.EPSG != 0 {
		key := uint16(2048) // GeographicTypeGeoKey
		if spec.EPSG != 4326 {
			key = 3072 // ProjectedCSTypeGeoKey
		}
		geoOffset = alloc(shorts(1, 1, 0, 1, key, 0, 1, uint16(spec.EPSG)))
	}

	var offsetsArr, countsArr uint32
	if numStrips > 1 {
		offsetsArr = alloc(longs(stripOffsets))
		countsArr = alloc(longs(stripCounts))
	}

	ifdOffset := valuesBase + uint32(len(extras))

	entries := []ifdEntry{
		longEntry(256, uint32(w)),
		longEntry(257, uint32(h)),
		shortEntry(258, 8),
		shortEntry(259, 1),
		shortEntry(262, 1),
		arrayEntry(273, typeLong, stripOffsets, offsetsArr),
		shortEntry(277, 1),
		longEntry(278, uint32(rps)),
		arrayEntry(279, typeLong, stripCounts, countsArr),
		offsetEntry(33550, typeDouble, 3, scaleOffset),
		offsetEntry(33922, typeDouble, 6, tiepointOffset),
	}
	if spec.EPSG != 0 {
		entries = append(entries, offsetEntry(34735, typeShort, 8, geoOffset))
	}
	if spec.NoData != nil {
		entries = append(entries, asciiEntry(42113, fmt.Sprintf("%d", *spec.NoData)))
	}

	total := int(ifdOffset) + 2 + 12*len(entries) + 4
	buf := make([]byte, total)

	// Header.
	buf[0], buf[1] = 'I', 'I'
	binary.LittleEndian.PutUint16(buf[2:], 42)
	binary.LittleEndian.PutUint32(buf[4:], ifdOffset)

	// Strip data.
	for i := 0; i < numStrips; i++ {
		start := i * rps * w
		copy(buf[stripOffsets[i]:], pixels[start:start+int(stripCounts[i])])
	}

	copy(buf[valuesBase:], extras)

	// IFD.
	at := int(ifdOffset)
	binary.LittleEndian.PutUint16(buf[at:], uint16(len(entries)))
	at += 2
	for _, e := range entries {
		binary.LittleEndian.PutUint16(buf[at:], e.tag)
		binary.LittleEndian.PutUint16(buf[at+2:], e.typ)
		binary.LittleEndian.PutUint32(buf[at+4:], e.count)
		copy(buf[at+8:at+12], e.value[:])
		at += 12
	}
	// Next-IFD offset stays zero.

	return os.WriteFile(path, buf, 0o644)
}

// DeclareCompression rewrites the compression tag of a written fixture,
// leaving the sample bytes untouched. Tests use it to declare a codec the
// data was not written with.
func DeclareCompression(path string, code uint16) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ifdOffset := int(binary.LittleEndian.Uint32(raw[4:8]))
	numEntries := int(binary.LittleEndian.Uint16(raw[ifdOffset:]))
	for i := 0; i < numEntries; i++ {
		at := ifdOffset + 2 + 12*i
		if binary.LittleEndian.Uint16(raw[at:]) == 259 {
			binary.LittleEndian.PutUint16(raw[at+8:], code)
			return os.WriteFile(path, raw, 0o644)
		}
	}
	return fmt.Errorf("no compression entry in %s", path)
}

func shortEntry(tag uint16, value uint16) ifdEntry {
	e := ifdEntry{tag: tag, typ: typeShort, count: 1}
	binary.LittleEndian.PutUint16(e.value[:], value)
	return e
}

func longEntry(tag uint16, value uint32) ifdEntry {
	e := ifdEntry{tag: tag, typ: typeLong, count: 1}
	binary.LittleEndian.PutUint32(e.value[:], value)
	return e
}

// arrayEntry writes a LONG array inline when it has one element, otherwise
// as a reference to its out-of-line location.
func arrayEntry(tag uint16, typ uint16, values []uint32, at uint32) ifdEntry {
	if len(values) == 1 {
		e := ifdEntry{tag: tag, typ: typ, count: 1}
		binary.LittleEndian.PutUint32(e.value[:], values[0])
		return e
	}
	return offsetEntry(tag, typ, uint32(len(values)), at)
}

func offsetEntry(tag uint16, typ uint16, count, at uint32) ifdEntry {
	e := ifdEntry{tag: tag, typ: typ, count: count}
	binary.LittleEndian.PutUint32(e.value[:], at)
	return e
}

func asciiEntry(tag uint16, text string) ifdEntry {
	data := append([]byte(text), 0)
	if len(data) > 4 {
		panic("rastertest: inline ASCII value too long")
	}
	e := ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(data))}
	copy(e.value[:], data)
	return e
}

func doubles(values ...float64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func shorts(values ...uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func longs(values []uint32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}
