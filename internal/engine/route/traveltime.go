package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/paulmach/orb"

	"github.com/flatscout/flatscout/internal/model"
)

type matrixResponse struct {
	// Durations are seconds; a null cell means unreachable.
	Durations [][]*float64 `json:"durations"`
}

// TravelTime returns commute minutes between two points via the matrix
// endpoint. A nil result with nil error means unreachable, which is a
// valid cacheable answer.
func (o *ORS) TravelTime(ctx context.Context, from, to orb.Point, mode model.TravelMode) (*float64, error) {
	profile, ok := orsProfiles[mode]
	if !ok {
		return nil, fmt.Errorf("no matrix profile for mode %q", mode)
	}
	if err := o.lim.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"locations": [][]float64{
			{from.Lon(), from.Lat()},
			{to.Lon(), to.Lat()},
		},
		"sources":      []int{0},
		"destinations": []int{1},
		"metrics":      []string{"duration"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding matrix request: %w", err)
	}

	var minutes *float64
	err = withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			o.baseURL+"/v2/matrix/"+profile, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			req.Header.Set("Authorization", o.apiKey)
		}

		resp, err := o.http.Do(req)
		if err != nil {
			return fmt.Errorf("matrix request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Code: resp.StatusCode}
		}

		var mr matrixResponse
		if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
			return fmt.Errorf("decoding matrix response: %w", err)
		}
		if len(mr.Durations) == 0 || len(mr.Durations[0]) == 0 {
			return fmt.Errorf("matrix response has no durations")
		}
		if secs := mr.Durations[0][0]; secs != nil {
			m := *secs / 60.0
			minutes = &m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minutes, nil
}
