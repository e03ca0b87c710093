// pkg/geotiff/block.go - Windowed pixel access
package geotiff

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// ErrCorrupt marks block data that cannot be decoded with the file's
// declared compression. Callers distinguish it from plain read failures with
// errors.Is.
var ErrCorrupt = errors.New("corrupt block data")

// ReadBlock reads the rectangular pixel window with top-left corner (x0, y0)
// and dimensions w × h, returning row-major samples of length w*h. Only the
// strips or tiles the window touches are read and decoded. The window must
// lie entirely inside the raster.
func (f *File) ReadBlock(x0, y0, w, h int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%s: invalid window size %dx%d", f.path, w, h)
	}
	if x0 < 0 || y0 < 0 || x0+w > f.width || y0+h > f.height {
		return nil, fmt.Errorf("%s: window %dx%d at (%d, %d) is out of bounds for %dx%d raster",
			f.path, w, h, x0, y0, f.width, f.height)
	}

	out := make([]byte, w*h)

	firstBlockCol := x0 / f.blockWidth
	lastBlockCol := (x0 + w - 1) / f.blockWidth
	firstBlockRow := y0 / f.blockHeight
	lastBlockRow := (y0 + h - 1) / f.blockHeight

	for br := firstBlockRow; br <= lastBlockRow; br++ {
		for bc := firstBlockCol; bc <= lastBlockCol; bc++ {
			block, blockW, err := f.readRawBlock(br, bc)
			if err != nil {
				return nil, err
			}

			// Intersection of the window and this block, in image coordinates.
			blockX := bc * f.blockWidth
			blockY := br * f.blockHeight
			ix0 := max(x0, blockX)
			ix1 := min(x0+w, blockX+f.blockWidth)
			iy0 := max(y0, blockY)
			iy1 := min(y0+h, blockY+f.blockHeight)

			for y := iy0; y < iy1; y++ {
				src := (y-blockY)*blockW + (ix0 - blockX)
				dst := (y-y0)*w + (ix0 - x0)
				copy(out[dst:dst+ix1-ix0], block[src:src+ix1-ix0])
			}
		}
	}

	return out, nil
}

// readRawBlock reads and decompresses one strip or tile, returning its
// samples and its row stride in pixels.
func (f *File) readRawBlock(blockRow, blockCol int) ([]byte, int, error) {
	index := blockRow*f.blocksAcross + blockCol
	if index < 0 || index >= len(f.blockOffsets) {
		return nil, 0, fmt.Errorf("%s: block (%d, %d) is out of range", f.path, blockRow, blockCol)
	}

	raw := make([]byte, f.blockByteCounts[index])
	n, err := f.file.ReadAt(raw, int64(f.blockOffsets[index]))
	if err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("%s: failed to read block (%d, %d): %w", f.path, blockRow, blockCol, err)
	}
	if n != len(raw) {
		return nil, 0, fmt.Errorf("%s: short read of block (%d, %d)", f.path, blockRow, blockCol)
	}

	// Tiles are padded to full size on disk; the last strip covers only the
	// remaining rows.
	rows := f.blockHeight
	if !f.tiled && blockRow == f.blocksDown-1 {
		if rem := f.height - blockRow*f.blockHeight; rem < rows {
			rows = rem
		}
	}
	size := f.blockWidth * rows

	samples, err := f.decompress(raw, size)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to decode block (%d, %d): %w", f.path, blockRow, blockCol, err)
	}
	return samples, f.blockWidth, nil
}

// decompress expands raw block bytes to exactly size samples.
func (f *File) decompress(raw []byte, size int) ([]byte, error) {
	switch f.compression {
	case 0, compressionNone:
		if len(raw) < size {
			return nil, fmt.Errorf("%w: uncompressed block has %d bytes, expected %d", ErrCorrupt, len(raw), size)
		}
		return raw[:size], nil
	case compressionLZW:
		data, err := readFull(lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8), size)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
		}
		return data, nil
	case compressionDeflate, compressionDeflateOld:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
		}
		defer r.Close()
		data, err := readFull(r, size)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", f.compression)
	}
}

func readFull(r io.Reader, size int) ([]byte, error) {
	data := make([]byte, size)
	for read := 0; read < size; {
		n, err := r.Read(data[read:])
		read += n
		if err == io.EOF {
			if read < size {
				return nil, fmt.Errorf("block truncated at %d of %d bytes", read, size)
			}
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}
