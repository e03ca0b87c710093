// internal/query/engine_test.go - Tests for selection and batch dispatch
package query

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"hydromask/internal"
	"hydromask/internal/cache"
	"hydromask/internal/raster"
)

// fakeSource is an in-memory raster.Source with the same pixel mapping as
// the GeoTIFF-backed one: origin at the top-left corner, square pixels,
// north-up.
type fakeSource struct {
	index     int
	originX   float64
	originY   float64
	pixelSize float64
	width     int
	height    int
	epsg      int
	nodata    uint8
	hasNoData bool
	tileSize  int
	data      []byte

	failTiles map[raster.TileID]error
	loads     atomic.Int32
}

// uniformSource builds a fake source whose every sample is value.
func uniformSource(index int, originX, originY, pixelSize float64, width, height int, value uint8) *fakeSource {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = value
	}
	return &fakeSource{
		index:     index,
		originX:   originX,
		originY:   originY,
		pixelSize: pixelSize,
		width:     width,
		height:    height,
		epsg:      4326,
		tileSize:  4,
		data:      data,
	}
}

func (s *fakeSource) Index() int { return s.index }

func (s *fakeSource) Extent() orb.Bound {
	return orb.Bound{
		Min: orb.Point{s.originX, s.originY - s.pixelSize*float64(s.height)},
		Max: orb.Point{s.originX + s.pixelSize*float64(s.width), s.originY},
	}
}

func (s *fakeSource) Size() (int, int) { return s.width, s.height }

func (s *fakeSource) NativeEPSG() int { return s.epsg }

func (s *fakeSource) NoData() (uint8, bool) { return s.nodata, s.hasNoData }

func (s *fakeSource) TileSize() int { return s.tileSize }

func (s *fakeSource) Covers(native orb.Point) bool {
	return s.Extent().Contains(native)
}

func (s *fakeSource) PixelFor(native orb.Point) (int, int, bool) {
	col := int(math.Floor((native[0] - s.originX) / s.pixelSize))
	row := int(math.Floor((native[1] - s.originY) / -s.pixelSize))
	if col == s.width && native[0] == s.originX+s.pixelSize*float64(s.width) {
		col = s.width - 1
	}
	if row == s.height && native[1] == s.originY-s.pixelSize*float64(s.height) {
		row = s.height - 1
	}
	if row < 0 || row >= s.height || col < 0 || col >= s.width {
		return 0, 0, false
	}
	return row, col, true
}

func (s *fakeSource) TileFor(row, col int) raster.TileID {
	return raster.TileID{Source: s.index, Row: row / s.tileSize, Col: col / s.tileSize}
}

func (s *fakeSource) LoadTile(row, col int) (*raster.Tile, error) {
	s.loads.Add(1)
	id := raster.TileID{Source: s.index, Row: row, Col: col}
	if err, ok := s.failTiles[id]; ok {
		return nil, err
	}

	x0 := col * s.tileSize
	y0 := row * s.tileSize
	w := min(s.tileSize, s.width-x0)
	h := min(s.tileSize, s.height-y0)

	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(data[y*w:(y+1)*w], s.data[(y0+y)*s.width+x0:(y0+y)*s.width+x0+w])
	}
	return &raster.Tile{ID: id, Width: w, Height: h, Data: data}, nil
}

func (s *fakeSource) Close() error { return nil }

func newEngine(t *testing.T, sources ...raster.Source) *Engine {
	t.Helper()
	selector, err := NewSelector(sources, 4326)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}
	tiles, err := cache.New(64)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	return NewEngine(selector, tiles, 0)
}

func TestQueryShapeMismatch(t *testing.T) {
	engine := newEngine(t, uniformSource(0, 0, 8, 1, 8, 8, 1))

	_, err := engine.Query(make([]float64, 5), make([]float64, 3), 1)
	if err == nil {
		t.Fatal("Query() succeeded with mismatched array lengths")
	}
	if !internal.IsCode(err, internal.ErrorCodeShape) {
		t.Errorf("error code = %v, want %s", err, internal.ErrorCodeShape)
	}
}

func TestQueryEmptyBatch(t *testing.T) {
	engine := newEngine(t, uniformSource(0, 0, 8, 1, 8, 8, 1))

	result, err := engine.Query(nil, nil, 0)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Classes) != 0 || len(result.Valid) != 0 || len(result.Errors) != 0 {
		t.Errorf("Query() of an empty batch returned a non-empty result: %+v", result)
	}
}

func TestQueryUncoveredPoint(t *testing.T) {
	// Source extent is x in [0, 8], y in [0, 8].
	engine := newEngine(t, uniformSource(0, 0, 8, 1, 8, 8, 1))

	result, err := engine.Query([]float64{100}, []float64{2}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Valid[0] {
		t.Error("Valid[0] = true for an uncovered point")
	}
	if result.Classes[0] != 0 {
		t.Errorf("Classes[0] = %d for an uncovered point, want the nodata class", result.Classes[0])
	}
	if len(result.Errors) != 0 {
		t.Errorf("uncovered point produced errors: %v", result.Errors)
	}
}

// A fine source listed first must answer for the overlap region even when a
// coarser source also covers it.
func TestQueryPriorityOrder(t *testing.T) {
	// Water everywhere, x in [0, 8], y in [0, 8].
	fine := uniformSource(0, 0, 8, 1, 8, 8, 1)
	// Land everywhere, x in [-40, 40], y in [-40, 40].
	coarse := uniformSource(1, -40, 40, 10, 8, 8, 0)

	engine := newEngine(t, fine, coarse)

	xs := []float64{4, -20, 100}
	ys := []float64{4, -20, 0}
	result, err := engine.Query(xs, ys, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	// Overlap point: the fine source wins.
	if !result.Valid[0] || result.Classes[0] != 1 {
		t.Errorf("overlap point = (%d, %t), want (1, true)", result.Classes[0], result.Valid[0])
	}
	// Only the coarse source covers this point.
	if !result.Valid[1] || result.Classes[1] != 0 {
		t.Errorf("coarse-only point = (%d, %t), want (0, true)", result.Classes[1], result.Valid[1])
	}
	// Outside both.
	if result.Valid[2] {
		t.Error("Valid[2] = true for a point outside both sources")
	}
}

func TestQueryNoDataPixel(t *testing.T) {
	src := uniformSource(0, 0, 8, 1, 8, 8, 1)
	src.nodata = 7
	src.hasNoData = true
	src.data[0] = 7 // pixel (0, 0), at native (0.5, 7.5)

	engine := newEngine(t, src)

	result, err := engine.Query([]float64{0.5, 4.5}, []float64{7.5, 4.5}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Valid[0] {
		t.Error("Valid[0] = true for a nodata pixel")
	}
	if result.Classes[0] != 0 {
		t.Errorf("Classes[0] = %d for a nodata pixel, want the nodata class", result.Classes[0])
	}
	if !result.Valid[1] || result.Classes[1] != 1 {
		t.Errorf("ordinary pixel = (%d, %t), want (1, true)", result.Classes[1], result.Valid[1])
	}
}

// A failed tile load affects only the points that needed that tile.
func TestQueryPerPointFailure(t *testing.T) {
	src := uniformSource(0, 0, 8, 1, 8, 8, 1)
	src.failTiles = map[raster.TileID]error{
		{Source: 0, Row: 0, Col: 0}: internal.NewError(internal.ErrorCodeIO, "simulated read failure", nil),
	}

	engine := newEngine(t, src)

	// Points 0 and 2 hit the failing tile, point 1 a healthy one.
	xs := []float64{1, 6, 2}
	ys := []float64{7, 7, 6}
	result, err := engine.Query(xs, ys, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if len(result.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(result.Errors))
	}
	if result.Errors[0].Index != 0 || result.Errors[1].Index != 2 {
		t.Errorf("error indices = %d, %d, want 0, 2", result.Errors[0].Index, result.Errors[1].Index)
	}
	for _, pe := range result.Errors {
		if !internal.IsCode(pe.Err, internal.ErrorCodeIO) {
			t.Errorf("point %d error code = %v, want %s", pe.Index, pe.Err, internal.ErrorCodeIO)
		}
		if result.Valid[pe.Index] {
			t.Errorf("Valid[%d] = true for a failed point", pe.Index)
		}
	}
	if !result.Valid[1] || result.Classes[1] != 1 {
		t.Errorf("healthy point = (%d, %t), want (1, true)", result.Classes[1], result.Valid[1])
	}
}

func TestQueryDeterministicAcrossThreadCounts(t *testing.T) {
	// Checkerboard pattern so neighboring points classify differently.
	src := uniformSource(0, 0, 16, 1, 16, 16, 0)
	for row := 0; row < 16; row++ {
		for col := 0; col < 16; col++ {
			if (row+col)%2 == 0 {
				src.data[row*16+col] = 1
			}
		}
	}

	var xs, ys []float64
	for i := 0; i < 200; i++ {
		xs = append(xs, float64(i%16)+0.5)
		ys = append(ys, float64((i*7)%16)+0.5)
	}

	sequential := newEngine(t, src)
	want, err := sequential.Query(xs, ys, 1)
	if err != nil {
		t.Fatalf("Query(threads=1) error = %v", err)
	}

	for _, threads := range []int{0, 2, 8} {
		engine := newEngine(t, src)
		got, err := engine.Query(xs, ys, threads)
		if err != nil {
			t.Fatalf("Query(threads=%d) error = %v", threads, err)
		}
		for i := range xs {
			if got.Classes[i] != want.Classes[i] || got.Valid[i] != want.Valid[i] {
				t.Fatalf("threads=%d point %d = (%d, %t), sequential run gave (%d, %t)",
					threads, i, got.Classes[i], got.Valid[i], want.Classes[i], want.Valid[i])
			}
		}
	}
}

// Points near a tile boundary must sample the same pixels regardless of which
// worker handles them.
func TestQueryTileBoundary(t *testing.T) {
	src := uniformSource(0, 0, 8, 1, 8, 8, 0)
	// Column 4 is the first column of the second tile; make it water.
	for row := 0; row < 8; row++ {
		src.data[row*8+4] = 1
	}

	engine := newEngine(t, src)

	// x=4.5 falls in column 4, x=3.5 in column 3.
	result, err := engine.Query([]float64{4.5, 3.5}, []float64{4.5, 4.5}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Classes[0] != 1 {
		t.Errorf("Classes[0] = %d for the boundary column, want 1", result.Classes[0])
	}
	if result.Classes[1] != 0 {
		t.Errorf("Classes[1] = %d left of the boundary, want 0", result.Classes[1])
	}
}

func TestSelectorTransformFailureSkipsToNextSource(t *testing.T) {
	// A Mercator source cannot receive polar points, but a 4326 fallback can.
	mercator := uniformSource(0, -2e7, 2e7, 1e5, 400, 400, 1)
	mercator.epsg = 3857
	global := uniformSource(1, -180, 90, 1, 360, 180, 0)

	engine := newEngine(t, mercator, global)

	result, err := engine.Query([]float64{0}, []float64{89}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("polar point with a covering fallback produced errors: %v", result.Errors)
	}
	if !result.Valid[0] || result.Classes[0] != 0 {
		t.Errorf("polar point = (%d, %t), want (0, true) from the fallback source", result.Classes[0], result.Valid[0])
	}
}

func TestSelectorSurfacesTransformFailureWithoutFallback(t *testing.T) {
	mercator := uniformSource(0, -2e7, 2e7, 1e5, 400, 400, 1)
	mercator.epsg = 3857

	engine := newEngine(t, mercator)

	result, err := engine.Query([]float64{0}, []float64{89}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(result.Errors))
	}
	if !internal.IsCode(result.Errors[0].Err, internal.ErrorCodeProjection) {
		t.Errorf("error code = %v, want %s", result.Errors[0].Err, internal.ErrorCodeProjection)
	}
	if result.Valid[0] {
		t.Error("Valid[0] = true for a point no source could answer")
	}
}
