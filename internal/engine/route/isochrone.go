package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/flatscout/flatscout/internal/engine/throttle"
	"github.com/flatscout/flatscout/internal/model"
)

// profile names of the openrouteservice API. Transit has no isochrone
// profile there; its reachable area is approximated with the driving one.
var orsProfiles = map[model.TravelMode]string{
	model.ModeWalk:    "foot-walking",
	model.ModeBike:    "cycling-regular",
	model.ModeCar:     "driving-car",
	model.ModeTransit: "driving-car",
}

// ORS talks to an openrouteservice-compatible isochrone endpoint.
type ORS struct {
	baseURL string
	apiKey  string
	http    *http.Client
	lim     *throttle.Limiter
}

func NewORS(baseURL, apiKey string, lim *throttle.Limiter) *ORS {
	return &ORS{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
		lim:     lim,
	}
}

func (o *ORS) Isochrone(ctx context.Context, origin orb.Point, mode model.TravelMode, minutes float64) (orb.Polygon, error) {
	profile, ok := orsProfiles[mode]
	if !ok {
		return nil, fmt.Errorf("no isochrone profile for mode %q", mode)
	}
	if err := o.lim.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"locations": [][]float64{{origin.Lon(), origin.Lat()}},
		"range":     []float64{minutes * 60},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding isochrone request: %w", err)
	}

	var poly orb.Polygon
	err = withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			o.baseURL+"/v2/isochrones/"+profile, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			req.Header.Set("Authorization", o.apiKey)
		}

		resp, err := o.http.Do(req)
		if err != nil {
			return fmt.Errorf("isochrone request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		fc := &geojson.FeatureCollection{}
		if err := json.Unmarshal(body, fc); err != nil {
			return fmt.Errorf("parsing isochrone geojson: %w", err)
		}
		if len(fc.Features) == 0 {
			return fmt.Errorf("isochrone response has no features")
		}
		switch g := fc.Features[0].Geometry.(type) {
		case orb.Polygon:
			poly = g
		case orb.MultiPolygon:
			if len(g) == 0 {
				return fmt.Errorf("empty isochrone multipolygon")
			}
			poly = g[0]
		default:
			return fmt.Errorf("unexpected isochrone geometry %T", g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return poly, nil
}
