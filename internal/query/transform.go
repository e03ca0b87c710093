// internal/query/transform.go - Coordinate reference system conversion
package query

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"hydromask/internal"
)

// Web Mercator is undefined beyond this latitude; atan(sinh(pi)) in degrees,
// where the projected square closes.
const maxMercatorLatitude = 85.05112877980659

// A Transformer converts points from one coordinate reference system to
// another.
type Transformer interface {
	Transform(p orb.Point) (orb.Point, error)
}

type identityTransformer struct{}

func (identityTransformer) Transform(p orb.Point) (orb.Point, error) {
	return p, nil
}

type toMercatorTransformer struct{}

func (toMercatorTransformer) Transform(p orb.Point) (orb.Point, error) {
	if p[1] < -maxMercatorLatitude || p[1] > maxMercatorLatitude {
		return orb.Point{}, internal.NewError(internal.ErrorCodeProjection,
			fmt.Sprintf("latitude %g is outside the Web Mercator domain", p[1]), nil)
	}
	return project.WGS84.ToMercator(p), nil
}

type toWGS84Transformer struct{}

func (toWGS84Transformer) Transform(p orb.Point) (orb.Point, error) {
	return project.Mercator.ToWGS84(p), nil
}

// NewTransformer returns a transformer between the given EPSG codes. Equal
// codes yield the identity. The WGS84/Web Mercator pair is handled
// natively; any other pair is unsupported and fails with a projection
// error.
func NewTransformer(fromEPSG, toEPSG int) (Transformer, error) {
	switch {
	case fromEPSG == toEPSG:
		return identityTransformer{}, nil
	case fromEPSG == 4326 && toEPSG == 3857:
		return toMercatorTransformer{}, nil
	case fromEPSG == 3857 && toEPSG == 4326:
		return toWGS84Transformer{}, nil
	}
	return nil, internal.NewError(internal.ErrorCodeProjection,
		fmt.Sprintf("unsupported coordinate transform from EPSG:%d to EPSG:%d", fromEPSG, toEPSG), nil)
}
