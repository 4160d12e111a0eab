// Package area resolves the geographic scope of a search from a
// destination address and per-mode travel-time budgets.
package area

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/geo"
	"github.com/flatscout/flatscout/internal/engine/route"
	"github.com/flatscout/flatscout/internal/model"
)

const (
	// Padding applied to the merged isochrone bounding box.
	padKm = 2.0
	// Radius for the nearby-place fallback when no polygons exist.
	fallbackRadiusKm = 15.0
)

// Emit receives the progress and metadata events of the resolution steps
// so a caller can render incremental status.
type Emit func(model.Event)

// Resolver walks destination → isochrones → place candidates, with
// fallbacks ensuring the resulting area is never empty: no modes or a
// failed geocode degrade to a radius lookup, and failing that to a single
// place derived from the raw destination text.
type Resolver struct {
	geocoder     route.Geocoder
	isochrones   route.IsochroneClient
	places       route.PlacesClient
	defaultPlace string
	logger       *zap.Logger
}

func NewResolver(geocoder route.Geocoder, isochrones route.IsochroneClient, places route.PlacesClient, defaultPlace string, logger *zap.Logger) *Resolver {
	return &Resolver{
		geocoder:     geocoder,
		isochrones:   isochrones,
		places:       places,
		defaultPlace: defaultPlace,
		logger:       logger,
	}
}

// Resolve never fails: every external error degrades to the next
// fallback. All events go through emit.
func (r *Resolver) Resolve(ctx context.Context, criteria *model.SearchCriteria, emit Emit) *model.SearchArea {
	area := &model.SearchArea{Polygons: make(map[model.TravelMode]orb.Polygon)}

	emit(model.ProgressEvent{Message: "locating " + criteria.Destination})
	dest, ok, err := r.geocoder.Geocode(ctx, criteria.Destination)
	if err != nil {
		r.logger.Warn("geocoding failed", zap.String("destination", criteria.Destination), zap.Error(err))
	}
	if ok {
		area.Destination = &dest
		emit(model.MetadataEvent{Destination: &dest})
	}

	if area.Destination != nil {
		r.computeIsochrones(ctx, criteria, area, emit)
	}

	if len(area.Polygons) > 0 {
		r.resolveCandidates(ctx, area, emit)
	}

	if len(area.Places) == 0 && area.Destination != nil {
		emit(model.ProgressEvent{Message: "searching places near destination"})
		near, err := r.places.PlacesNear(ctx, *area.Destination, fallbackRadiusKm)
		if err != nil {
			r.logger.Warn("nearby place lookup failed", zap.Error(err))
		}
		area.Places = near
		area.Bound = geo.PadBound(radiusBound(*area.Destination, fallbackRadiusKm), padKm)
	}

	if len(area.Places) == 0 {
		area.Places = []model.Place{{Name: r.fallbackPlaceName(criteria.Destination)}}
	}

	sortByProximity(area)

	emit(model.MetadataEvent{Places: area.PlaceNames()})
	emit(model.ProgressEvent{Message: fmt.Sprintf("search area resolved, %d place(s)", len(area.Places))})
	return area
}

// computeIsochrones fetches one reachable-area polygon per requested mode
// with a positive time budget. Individual failures only lose that mode.
func (r *Resolver) computeIsochrones(ctx context.Context, criteria *model.SearchCriteria, area *model.SearchArea, emit Emit) {
	for _, mode := range criteria.Modes {
		minutes := criteria.MaxMinutes[mode]
		if minutes <= 0 {
			continue
		}
		emit(model.ProgressEvent{Message: fmt.Sprintf("computing %s reachable area (%.0f min)", mode, minutes)})
		poly, err := r.isochrones.Isochrone(ctx, *area.Destination, mode, minutes)
		if err != nil {
			r.logger.Warn("isochrone failed", zap.String("mode", string(mode)), zap.Error(err))
			continue
		}
		area.Polygons[mode] = poly
	}
	if len(area.Polygons) > 0 {
		emit(model.MetadataEvent{Polygons: area.Polygons})
	}
}

// resolveCandidates queries places inside the padded merged bounding box
// and keeps those whose box intersects some requested-mode polygon.
func (r *Resolver) resolveCandidates(ctx context.Context, area *model.SearchArea, emit Emit) {
	var bounds []orb.Bound
	for _, poly := range area.Polygons {
		bounds = append(bounds, poly.Bound())
	}
	area.Bound = geo.PadBound(geo.MergeBounds(bounds), padKm)

	emit(model.ProgressEvent{Message: "listing places inside reachable area"})
	candidates, err := r.places.PlacesInBound(ctx, area.Bound)
	if err != nil {
		r.logger.Warn("place lookup failed", zap.Error(err))
		return
	}

	for _, cand := range candidates {
		if r.intersectsAnyPolygon(area, cand) {
			area.Places = append(area.Places, cand)
		}
	}
}

func (r *Resolver) intersectsAnyPolygon(area *model.SearchArea, cand model.Place) bool {
	hasBound := !cand.Bound.Min.Equal(cand.Bound.Max)
	for _, poly := range area.Polygons {
		if hasBound {
			if geo.PolygonIntersectsBound(poly, cand.Bound) {
				return true
			}
			continue
		}
		if planar.PolygonContains(poly, cand.Center) {
			return true
		}
	}
	return false
}

func (r *Resolver) fallbackPlaceName(destination string) string {
	name := strings.TrimSpace(strings.SplitN(destination, ",", 2)[0])
	if name == "" {
		name = r.defaultPlace
	}
	return name
}

func radiusBound(center orb.Point, km float64) orb.Bound {
	b := orb.Bound{Min: center, Max: center}
	return geo.PadBound(b, km)
}

func sortByProximity(area *model.SearchArea) {
	if area.Destination == nil {
		return
	}
	dest := *area.Destination
	sort.SliceStable(area.Places, func(i, j int) bool {
		pi, pj := area.Places[i].Center, area.Places[j].Center
		di := geo.HaversineM(dest.Lat(), dest.Lon(), pi.Lat(), pi.Lon())
		dj := geo.HaversineM(dest.Lat(), dest.Lon(), pj.Lat(), pj.Lon())
		return di < dj
	})
}
