// Package commute enriches listings with travel times to the search
// destination, caching results per geographic grid cell so nearby points
// share one external routing call.
package commute

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/geo"
	"github.com/flatscout/flatscout/internal/engine/route"
	"github.com/flatscout/flatscout/internal/model"
)

// cellEntry is the cached per-cell record: one minutes value per computed
// mode. A present key with a nil value means "unreachable" and is just as
// final as a number; absent keys have simply not been computed yet.
type cellEntry map[model.TravelMode]*float64

// Enricher fills commute times into listings. Cells are ~222m, coarse
// enough that any point in a cell shares the cell's times.
type Enricher struct {
	store  cache.Store
	client route.TravelTimeClient
	dest   orb.Point
	ttl    time.Duration
	logger *zap.Logger
}

func NewEnricher(store cache.Store, client route.TravelTimeClient, dest orb.Point, ttl time.Duration, logger *zap.Logger) *Enricher {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Enricher{store: store, client: client, dest: dest, ttl: ttl, logger: logger}
}

// Enrich assigns each listing the requested mode-times from its cell's
// cached entry, fetching only modes not yet computed for that cell.
// Listings without coordinates pass through untouched. Existing commute
// entries on a listing are never overwritten; enrichment fills gaps only.
func (e *Enricher) Enrich(ctx context.Context, listings []model.Listing, modes []model.TravelMode) []model.Listing {
	byCell := make(map[string][]int)
	for i := range listings {
		if !listings[i].HasCoords() {
			continue
		}
		cell := geo.CellID(listings[i].Lat, listings[i].Lng, geo.CommuteCellSize)
		byCell[cell] = append(byCell[cell], i)
	}

	for cell, idxs := range byCell {
		entry := e.cellTimes(ctx, cell, modes)
		if entry == nil {
			continue
		}
		for _, i := range idxs {
			l := &listings[i]
			if l.Commute == nil {
				l.Commute = make(map[model.TravelMode]*float64, len(modes))
			}
			for _, mode := range modes {
				if _, set := l.Commute[mode]; set {
					continue
				}
				if v, ok := entry[mode]; ok {
					l.Commute[mode] = v
				}
			}
		}
	}
	return listings
}

// cellTimes returns the cell's entry, fetching and write-merging any
// requested modes that are still missing.
func (e *Enricher) cellTimes(ctx context.Context, cell string, modes []model.TravelMode) cellEntry {
	key := e.cacheKey(cell)

	entry := cellEntry{}
	if raw, err := e.store.Get(ctx, key); err == nil && raw != nil {
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Corrupt entry: evict and recompute.
			_ = e.store.Delete(ctx, key)
			entry = cellEntry{}
		}
	}

	var missing []model.TravelMode
	for _, mode := range modes {
		if _, ok := entry[mode]; !ok {
			missing = append(missing, mode)
		}
	}
	if len(missing) == 0 {
		return entry
	}

	origin := cellCenter(cell)

	var mu sync.Mutex
	var wg sync.WaitGroup
	fetched := false
	for _, mode := range missing {
		wg.Add(1)
		go func(mode model.TravelMode) {
			defer wg.Done()
			minutes, err := e.client.TravelTime(ctx, origin, e.dest, mode)
			if err != nil {
				// Leave the mode absent so a later search retries it.
				e.logger.Warn("travel time lookup failed",
					zap.String("cell", cell),
					zap.String("mode", string(mode)),
					zap.Error(err))
				return
			}
			mu.Lock()
			entry[mode] = minutes
			fetched = true
			mu.Unlock()
		}(mode)
	}
	wg.Wait()

	if fetched {
		if data, err := json.Marshal(entry); err == nil {
			_ = e.store.Set(ctx, key, data, e.ttl)
		}
	}
	return entry
}

func (e *Enricher) cacheKey(cell string) string {
	return fmt.Sprintf("commute:%s:%.5f,%.5f", cell, e.dest.Lat(), e.dest.Lon())
}

// cellCenter converts a cell id back to the coordinate at its middle.
func cellCenter(cell string) orb.Point {
	var x, y int
	fmt.Sscanf(cell, "%d,%d", &x, &y)
	return orb.Point{
		(float64(x) + 0.5) * geo.CommuteCellSize,
		(float64(y) + 0.5) * geo.CommuteCellSize,
	}
}

// ExceedsAllBudgets reports whether every requested mode on the listing is
// known and above its allowed minutes (nil commute values count as over
// budget: unreachable). Listings with any mode unknown or within budget
// are kept.
func ExceedsAllBudgets(l *model.Listing, limits map[model.TravelMode]float64) bool {
	if len(limits) == 0 {
		return false
	}
	for mode, limit := range limits {
		v, ok := l.Commute[mode]
		if !ok {
			return false // not computed, give it the benefit of the doubt
		}
		if v != nil && *v <= limit+1e-9 {
			return false
		}
	}
	return true
}
