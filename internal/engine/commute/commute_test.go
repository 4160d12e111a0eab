package commute

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/model"
)

// fakeRouter counts external calls and serves fixed times per mode.
type fakeRouter struct {
	mu    sync.Mutex
	calls int
	times map[model.TravelMode]*float64
}

func (f *fakeRouter) TravelTime(_ context.Context, _, _ orb.Point, mode model.TravelMode) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.times[mode], nil
}

func fptr(v float64) *float64 { return &v }

func at(id string, lat, lng float64) model.Listing {
	return model.Listing{ID: id, Lat: lat, Lng: lng}
}

func dest() orb.Point { return orb.Point{8.5417, 47.3769} }

func TestEnrichSharesCellAcrossCalls(t *testing.T) {
	store := cache.NewMemory()
	router := &fakeRouter{times: map[model.TravelMode]*float64{model.ModeBike: fptr(12)}}
	e := NewEnricher(store, router, dest(), time.Hour, zap.NewNop())

	// First point computes the cell.
	got := e.Enrich(context.Background(), []model.Listing{at("a", 47.38001, 8.54101)}, []model.TravelMode{model.ModeBike})
	if v := got[0].Commute[model.ModeBike]; v == nil || *v != 12 {
		t.Fatalf("bike time = %v, want 12", got[0].Commute[model.ModeBike])
	}
	if router.calls != 1 {
		t.Fatalf("router called %d times, want 1", router.calls)
	}

	// A different point in the same ~222m cell must be served from cache.
	got = e.Enrich(context.Background(), []model.Listing{at("b", 47.38050, 8.54150)}, []model.TravelMode{model.ModeBike})
	if v := got[0].Commute[model.ModeBike]; v == nil || *v != 12 {
		t.Fatalf("cached bike time = %v, want 12", got[0].Commute[model.ModeBike])
	}
	if router.calls != 1 {
		t.Fatalf("router called %d times after cache hit, want 1", router.calls)
	}
}

func TestEnrichFetchesOnlyMissingModes(t *testing.T) {
	store := cache.NewMemory()
	router := &fakeRouter{times: map[model.TravelMode]*float64{
		model.ModeBike: fptr(12),
		model.ModeWalk: fptr(35),
	}}
	e := NewEnricher(store, router, dest(), time.Hour, zap.NewNop())

	e.Enrich(context.Background(), []model.Listing{at("a", 47.38001, 8.54101)}, []model.TravelMode{model.ModeBike})
	if router.calls != 1 {
		t.Fatalf("calls = %d, want 1", router.calls)
	}

	// Asking for bike+walk on the same cell must only fetch walk.
	got := e.Enrich(context.Background(), []model.Listing{at("b", 47.38002, 8.54102)},
		[]model.TravelMode{model.ModeBike, model.ModeWalk})
	if router.calls != 2 {
		t.Fatalf("calls = %d, want 2", router.calls)
	}
	if v := got[0].Commute[model.ModeWalk]; v == nil || *v != 35 {
		t.Fatalf("walk time = %v, want 35", got[0].Commute[model.ModeWalk])
	}
}

func TestEnrichCachesUnreachable(t *testing.T) {
	store := cache.NewMemory()
	router := &fakeRouter{times: map[model.TravelMode]*float64{model.ModeTransit: nil}}
	e := NewEnricher(store, router, dest(), time.Hour, zap.NewNop())

	for i := 0; i < 2; i++ {
		got := e.Enrich(context.Background(), []model.Listing{at("a", 47.38001, 8.54101)}, []model.TravelMode{model.ModeTransit})
		v, ok := got[0].Commute[model.ModeTransit]
		if !ok || v != nil {
			t.Fatalf("run %d: transit = (%v, %v), want explicit nil", i, v, ok)
		}
	}
	// Unreachable is terminal; no second external call.
	if router.calls != 1 {
		t.Fatalf("calls = %d, want 1", router.calls)
	}
}

func TestEnrichSkipsUngeocoded(t *testing.T) {
	router := &fakeRouter{times: map[model.TravelMode]*float64{model.ModeBike: fptr(12)}}
	e := NewEnricher(cache.NewMemory(), router, dest(), time.Hour, zap.NewNop())

	got := e.Enrich(context.Background(), []model.Listing{at("a", 0, 0)}, []model.TravelMode{model.ModeBike})
	if got[0].Commute != nil {
		t.Fatalf("ungeocoded listing enriched: %v", got[0].Commute)
	}
	if router.calls != 0 {
		t.Fatalf("router called for ungeocoded listing")
	}
}

func TestEnrichNeverOverwritesExistingEntries(t *testing.T) {
	store := cache.NewMemory()
	router := &fakeRouter{times: map[model.TravelMode]*float64{model.ModeBike: fptr(12)}}
	e := NewEnricher(store, router, dest(), time.Hour, zap.NewNop())

	l := at("a", 47.38001, 8.54101)
	l.Commute = map[model.TravelMode]*float64{model.ModeBike: fptr(7)}

	got := e.Enrich(context.Background(), []model.Listing{l}, []model.TravelMode{model.ModeBike})
	if v := got[0].Commute[model.ModeBike]; v == nil || *v != 7 {
		t.Fatalf("existing entry overwritten: %v", got[0].Commute[model.ModeBike])
	}
}

func TestExceedsAllBudgets(t *testing.T) {
	limits := map[model.TravelMode]float64{model.ModeBike: 15, model.ModeWalk: 30}

	tests := []struct {
		name    string
		commute map[model.TravelMode]*float64
		want    bool
	}{
		{"all over", map[model.TravelMode]*float64{model.ModeBike: fptr(20), model.ModeWalk: fptr(45)}, true},
		{"one within", map[model.TravelMode]*float64{model.ModeBike: fptr(10), model.ModeWalk: fptr(45)}, false},
		{"unreachable counts as over", map[model.TravelMode]*float64{model.ModeBike: nil, model.ModeWalk: fptr(45)}, true},
		{"unknown mode keeps listing", map[model.TravelMode]*float64{model.ModeBike: fptr(20)}, false},
		{"no limits", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := model.Listing{Commute: tt.commute}
			lim := limits
			if tt.name == "no limits" {
				lim = nil
			}
			if got := ExceedsAllBudgets(&l, lim); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
