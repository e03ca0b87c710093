// internal/query/selector.go - Priority-ordered source selection
package query

import (
	"fmt"

	"github.com/paulmach/orb"

	"hydromask/internal"
	"hydromask/internal/raster"
)

// Selector resolves which raster source answers a query point. Sources are
// tried in priority order and the first one whose extent covers the point
// wins, so callers express "prefer the detailed source" by list order.
type Selector struct {
	sources []raster.Source

	// transformers[i] converts from the query CRS into sources[i]'s native
	// CRS. Sources sharing a native CRS share a transformer instance.
	transformers []Transformer
	nativeEPSG   []int
}

// NewSelector builds a selector over the given sources for queries declared
// in queryEPSG. Construction fails if any source's native CRS cannot be
// reached from the query CRS.
func NewSelector(sources []raster.Source, queryEPSG int) (*Selector, error) {
	s := &Selector{
		sources:      sources,
		transformers: make([]Transformer, len(sources)),
		nativeEPSG:   make([]int, len(sources)),
	}

	shared := make(map[int]Transformer)
	for i, src := range sources {
		epsg := src.NativeEPSG()
		if epsg == 0 {
			// A file with no CRS declaration is assumed to match the query
			// CRS, mirroring how untagged masks are normally used.
			epsg = queryEPSG
		}
		s.nativeEPSG[i] = epsg

		if t, ok := shared[epsg]; ok {
			s.transformers[i] = t
			continue
		}
		t, err := NewTransformer(queryEPSG, epsg)
		if err != nil {
			return nil, internal.NewError(internal.ErrorCodeProjection,
				fmt.Sprintf("source %d cannot be queried in EPSG:%d", i, queryEPSG), err)
		}
		shared[epsg] = t
		s.transformers[i] = t
	}
	return s, nil
}

// Select returns the first source in priority order whose extent covers the
// point, along with the point converted into that source's native CRS. A
// nil source means no source covers the point. A transform failure for a
// candidate source skips that source; the error is surfaced only if no
// other source covers the point.
func (s *Selector) Select(p orb.Point) (raster.Source, orb.Point, error) {
	converted := make(map[int]orb.Point, 2)
	var transformErr error

	for i, src := range s.sources {
		epsg := s.nativeEPSG[i]
		native, ok := converted[epsg]
		if !ok {
			var err error
			native, err = s.transformers[i].Transform(p)
			if err != nil {
				if transformErr == nil {
					transformErr = err
				}
				continue
			}
			converted[epsg] = native
		}

		if src.Covers(native) {
			return src, native, nil
		}
	}

	if transformErr != nil {
		return nil, orb.Point{}, transformErr
	}
	return nil, orb.Point{}, nil
}

// Sources returns the selector's sources in priority order.
func (s *Selector) Sources() []raster.Source {
	return s.sources
}
