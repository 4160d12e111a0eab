// Package route talks to the external geocoding and routing services the
// search engine depends on. Every client degrades to "no data" on failure
// instead of surfacing hard errors to the pipeline.
package route

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/flatscout/flatscout/internal/model"
)

// Geocoder resolves free-text destinations to coordinates. The ok result is
// false when the service answered but found nothing.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (orb.Point, bool, error)
}

// IsochroneClient computes the polygon reachable from origin within the
// given minutes for one travel mode.
type IsochroneClient interface {
	Isochrone(ctx context.Context, origin orb.Point, mode model.TravelMode, minutes float64) (orb.Polygon, error)
}

// PlacesClient enumerates candidate settlements, either inside a bounding
// box or within a radius around a point.
type PlacesClient interface {
	PlacesInBound(ctx context.Context, b orb.Bound) ([]model.Place, error)
	PlacesNear(ctx context.Context, center orb.Point, radiusKm float64) ([]model.Place, error)
}

// TravelTimeClient returns the commute minutes from one point to another
// for one mode. A nil value means the destination is unreachable by that
// mode; that is a valid, cacheable answer.
type TravelTimeClient interface {
	TravelTime(ctx context.Context, from, to orb.Point, mode model.TravelMode) (*float64, error)
}
