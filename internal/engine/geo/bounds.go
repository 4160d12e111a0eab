package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/flatscout/flatscout/internal/model"
)

// PadBound grows a bounding box by the given margin in kilometers on every
// side, with the longitude margin corrected for latitude.
func PadBound(b orb.Bound, km float64) orb.Bound {
	latDeg := km / 111.0
	midLat := (b.Min.Lat() + b.Max.Lat()) / 2
	lngDeg := km / (111.0 * math.Cos(midLat*math.Pi/180.0))
	return orb.Bound{
		Min: orb.Point{b.Min.Lon() - lngDeg, b.Min.Lat() - latDeg},
		Max: orb.Point{b.Max.Lon() + lngDeg, b.Max.Lat() + latDeg},
	}
}

// MergeBounds returns the smallest box enclosing all inputs.
func MergeBounds(bounds []orb.Bound) orb.Bound {
	if len(bounds) == 0 {
		return orb.Bound{}
	}
	out := bounds[0]
	for _, b := range bounds[1:] {
		out = out.Union(b)
	}
	return out
}

// BoundsIntersect reports whether two boxes overlap.
func BoundsIntersect(a, b orb.Bound) bool {
	return a.Intersects(b)
}

// PolygonIntersectsBound approximates polygon/box intersection: the boxes
// must overlap, and additionally either a box corner lies inside the
// polygon or a polygon vertex lies inside the box. Exact geometric
// intersection is deliberately not computed.
func PolygonIntersectsBound(poly orb.Polygon, b orb.Bound) bool {
	if len(poly) == 0 {
		return false
	}
	if !poly.Bound().Intersects(b) {
		return false
	}
	corners := []orb.Point{
		b.Min,
		b.Max,
		{b.Min.Lon(), b.Max.Lat()},
		{b.Max.Lon(), b.Min.Lat()},
	}
	for _, c := range corners {
		if planar.PolygonContains(poly, c) {
			return true
		}
	}
	for _, ring := range poly {
		for _, v := range ring {
			if b.Contains(v) {
				return true
			}
		}
	}
	return false
}

// AnyPolygonContains reports whether the point falls inside at least one of
// the polygons.
func AnyPolygonContains(polys map[model.TravelMode]orb.Polygon, pt orb.Point) bool {
	for _, p := range polys {
		if planar.PolygonContains(p, pt) {
			return true
		}
	}
	return false
}
