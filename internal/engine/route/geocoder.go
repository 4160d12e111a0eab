package route

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/flatscout/flatscout/internal/engine/geo"
	"github.com/flatscout/flatscout/internal/engine/throttle"
	"github.com/flatscout/flatscout/internal/model"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

type nominatimResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // [minLat, maxLat, minLng, maxLng]
}

// Nominatim implements Geocoder and PlacesClient against an OSM Nominatim
// instance. All calls go through a shared throttle so concurrent searches
// respect the service's rate policy.
type Nominatim struct {
	baseURL string
	http    *http.Client
	lim     *throttle.Limiter
}

func NewNominatim(baseURL string, lim *throttle.Limiter) *Nominatim {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	return &Nominatim{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		lim:     lim,
	}
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (orb.Point, bool, error) {
	results, err := n.search(ctx, url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	})
	if err != nil {
		return orb.Point{}, false, err
	}
	if len(results) == 0 {
		return orb.Point{}, false, nil
	}
	lat, _ := strconv.ParseFloat(results[0].Lat, 64)
	lng, _ := strconv.ParseFloat(results[0].Lon, 64)
	return orb.Point{lng, lat}, true, nil
}

func (n *Nominatim) PlacesInBound(ctx context.Context, b orb.Bound) ([]model.Place, error) {
	// viewbox is x1,y1,x2,y2 in lng/lat order.
	viewbox := fmt.Sprintf("%f,%f,%f,%f", b.Min.Lon(), b.Max.Lat(), b.Max.Lon(), b.Min.Lat())
	results, err := n.search(ctx, url.Values{
		"q":           {"city"},
		"featureType": {"settlement"},
		"format":      {"jsonv2"},
		"viewbox":     {viewbox},
		"bounded":     {"1"},
		"limit":       {"50"},
	})
	if err != nil {
		return nil, err
	}
	return toPlaces(results), nil
}

func (n *Nominatim) PlacesNear(ctx context.Context, center orb.Point, radiusKm float64) ([]model.Place, error) {
	latDeg := radiusKm / 111.0
	lngDeg := radiusKm / (111.0 * math.Cos(center.Lat()*math.Pi/180.0))
	b := orb.Bound{
		Min: orb.Point{center.Lon() - lngDeg, center.Lat() - latDeg},
		Max: orb.Point{center.Lon() + lngDeg, center.Lat() + latDeg},
	}
	places, err := n.PlacesInBound(ctx, b)
	if err != nil {
		return nil, err
	}
	var near []model.Place
	for _, p := range places {
		if geo.HaversineM(center.Lat(), center.Lon(), p.Center.Lat(), p.Center.Lon()) <= radiusKm*1000 {
			near = append(near, p)
		}
	}
	return near, nil
}

func (n *Nominatim) search(ctx context.Context, params url.Values) ([]nominatimResult, error) {
	if err := n.lim.Wait(ctx); err != nil {
		return nil, err
	}

	var results []nominatimResult
	err := withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			n.baseURL+"/search?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", "flatscout/0.1 (rental search aggregator)")

		resp, err := n.http.Do(req)
		if err != nil {
			return fmt.Errorf("geocoding request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &StatusError{Code: resp.StatusCode}
		}

		results = results[:0]
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return fmt.Errorf("decoding geocoding response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func toPlaces(results []nominatimResult) []model.Place {
	places := make([]model.Place, 0, len(results))
	for _, r := range results {
		lat, _ := strconv.ParseFloat(r.Lat, 64)
		lng, _ := strconv.ParseFloat(r.Lon, 64)
		name := r.Name
		if name == "" {
			name = strings.SplitN(r.DisplayName, ",", 2)[0]
		}
		if name == "" || (lat == 0 && lng == 0) {
			continue
		}
		p := model.Place{Name: name, Center: orb.Point{lng, lat}}
		if len(r.BoundingBox) >= 4 {
			minLat, _ := strconv.ParseFloat(r.BoundingBox[0], 64)
			maxLat, _ := strconv.ParseFloat(r.BoundingBox[1], 64)
			minLng, _ := strconv.ParseFloat(r.BoundingBox[2], 64)
			maxLng, _ := strconv.ParseFloat(r.BoundingBox[3], 64)
			p.Bound = orb.Bound{
				Min: orb.Point{minLng, minLat},
				Max: orb.Point{maxLng, maxLat},
			}
		}
		places = append(places, p)
	}
	return places
}
