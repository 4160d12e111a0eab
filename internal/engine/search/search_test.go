package search

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/area"
	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/source"
	"github.com/flatscout/flatscout/internal/engine/stream"
	"github.com/flatscout/flatscout/internal/model"
)

type fakeGeocoder struct {
	point orb.Point
	ok    bool
}

func (f *fakeGeocoder) Geocode(context.Context, string) (orb.Point, bool, error) {
	return f.point, f.ok, nil
}

type fakeIsochrones struct{ poly orb.Polygon }

func (f *fakeIsochrones) Isochrone(context.Context, orb.Point, model.TravelMode, float64) (orb.Polygon, error) {
	return f.poly, nil
}

type fakePlaces struct{ places []model.Place }

func (f *fakePlaces) PlacesInBound(context.Context, orb.Bound) ([]model.Place, error) {
	return f.places, nil
}

func (f *fakePlaces) PlacesNear(context.Context, orb.Point, float64) ([]model.Place, error) {
	return f.places, nil
}

type fakeTravel struct {
	mu      sync.Mutex
	minutes map[model.TravelMode]*float64
	calls   int
}

func (f *fakeTravel) TravelTime(_ context.Context, _, _ orb.Point, mode model.TravelMode) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.minutes[mode], nil
}

func (f *fakeTravel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAdapter struct {
	name    string
	batches [][]model.Listing

	mu    sync.Mutex
	query source.Query
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Search(q source.Query) stream.Iterator {
	a.mu.Lock()
	a.query = q
	a.mu.Unlock()
	return &fakeIterator{name: a.name, batches: a.batches}
}

type fakeIterator struct {
	name    string
	batches [][]model.Listing
	pos     int
}

func (it *fakeIterator) Name() string { return it.name }

func (it *fakeIterator) Next(context.Context) ([]model.Listing, error) {
	if it.pos >= len(it.batches) {
		return nil, stream.End
	}
	b := it.batches[it.pos]
	it.pos++
	return b, nil
}

// Polygon and destination around Zurich main station.
var (
	testDest = orb.Point{8.5417, 47.3769}
	testPoly = orb.Polygon{orb.Ring{
		{8.50, 47.35}, {8.60, 47.35}, {8.60, 47.40}, {8.50, 47.40}, {8.50, 47.35},
	}}
)

func testResolver() *area.Resolver {
	return area.NewResolver(
		&fakeGeocoder{point: testDest, ok: true},
		&fakeIsochrones{poly: testPoly},
		&fakePlaces{places: []model.Place{{Name: "Zurich", Center: testDest}}},
		"Zurich", zap.NewNop(),
	)
}

func listing(id string, lat, lng float64) model.Listing {
	return model.Listing{
		ID:       id,
		Sources:  []model.SourceRef{{Name: "immoapi", URL: "https://example.test/" + id}},
		Title:    "Apartment " + id,
		Price:    1500,
		Rooms:    2,
		Lat:      lat,
		Lng:      lng,
		Category: model.CategoryUnit,
	}
}

func drain(t *testing.T, events <-chan model.Event) (listings map[string]model.Listing, progress []string, lastCount int) {
	t.Helper()
	listings = make(map[string]model.Listing)
	byPart := make(map[string]string)
	for ev := range events {
		switch e := ev.(type) {
		case model.PropertiesEvent:
			for _, l := range e.Listings {
				for _, prev := range model.SupersededIDs(byPart, l.ID) {
					delete(listings, prev)
				}
				listings[l.ID] = l
			}
		case model.ProgressEvent:
			progress = append(progress, e.Message)
		case model.MetadataEvent:
			if e.ResultCount > 0 {
				lastCount = e.ResultCount
			}
		}
	}
	return listings, progress, lastCount
}

func TestSearchFiltersAndEmits(t *testing.T) {
	inside := listing("in-1", 47.37, 8.54)
	outside := listing("out-1", 47.20, 8.90)
	noisy := listing("noisy-1", 47.375, 8.55)
	noisy.Title = "Wohnung nur an Studentinnen WG"

	adapter := &fakeAdapter{
		name:    "immoapi",
		batches: [][]model.Listing{{inside, outside}, {noisy}},
	}
	ten := 10.0
	travel := &fakeTravel{minutes: map[model.TravelMode]*float64{model.ModeBike: &ten}}

	engine := NewEngine(testResolver(), []source.Adapter{adapter}, cache.NewMemory(), travel, zap.NewNop())
	criteria := &model.SearchCriteria{
		Destination:     "Hauptbahnhof, Zurich",
		Modes:           []model.TravelMode{model.ModeBike},
		MaxMinutes:      map[model.TravelMode]float64{model.ModeBike: 30},
		ExcludeKeywords: []string{"WG"},
	}

	results, progress, count := drain(t, engine.Search(context.Background(), criteria, Options{CommuteTTL: time.Hour}))

	if len(results) != 1 {
		t.Fatalf("results = %v, want only the inside listing", results)
	}
	got, ok := results["in-1"]
	if !ok {
		t.Fatalf("inside listing missing from %v", results)
	}
	if min := got.Commute[model.ModeBike]; min == nil || *min != 10 {
		t.Fatalf("commute not enriched: %v", got.Commute)
	}
	if count != 1 {
		t.Fatalf("running count = %d, want 1", count)
	}
	final := progress[len(progress)-1]
	if !strings.Contains(final, "1 result") {
		t.Fatalf("final progress = %q", final)
	}
}

func TestSearchMergesDuplicatesAcrossSources(t *testing.T) {
	a := listing("a1", 47.3700, 8.5400)
	a.Images = []string{"1.jpg", "2.jpg"}
	b := listing("b1", 47.37005, 8.54005)
	b.Sources = []model.SourceRef{{Name: "other", URL: "https://other.test/b1"}}

	engine := NewEngine(
		testResolver(),
		[]source.Adapter{
			&fakeAdapter{name: "immoapi", batches: [][]model.Listing{{a}}},
			&fakeAdapter{name: "other", batches: [][]model.Listing{{b}}},
		},
		cache.NewMemory(), &fakeTravel{}, zap.NewNop(),
	)

	results, _, count := drain(t, engine.Search(context.Background(),
		&model.SearchCriteria{Destination: "Zurich"}, Options{}))

	if count != 1 {
		t.Fatalf("running count = %d, want 1 after the merge", count)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v, want one merged listing", results)
	}
	merged, ok := results["a1+b1"]
	if !ok {
		t.Fatalf("composite id missing from %v", results)
	}
	if len(merged.Sources) != 2 {
		t.Fatalf("sources = %v, want both portals", merged.Sources)
	}
}

func TestSearchRetiresGrowingComposite(t *testing.T) {
	a := listing("a1", 47.3700, 8.5400)
	b := listing("b1", 47.37005, 8.54005)
	c := listing("c1", 47.37010, 8.54010)

	// One mutual duplicate per batch, so the same unit is emitted as
	// a1, then a1+b1, then a1+b1+c1.
	adapter := &fakeAdapter{
		name:    "immoapi",
		batches: [][]model.Listing{{a}, {b}, {c}},
	}
	engine := NewEngine(testResolver(), []source.Adapter{adapter}, cache.NewMemory(), &fakeTravel{}, zap.NewNop())

	results, progress, count := drain(t, engine.Search(context.Background(),
		&model.SearchCriteria{Destination: "Zurich"}, Options{}))

	if count != 1 {
		t.Fatalf("running count = %d, want 1 for one physical unit", count)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v, want the intermediate composites retired", results)
	}
	if _, ok := results["a1+b1+c1"]; !ok {
		t.Fatalf("final composite missing from %v", results)
	}
	final := progress[len(progress)-1]
	if !strings.Contains(final, "1 result") {
		t.Fatalf("final progress = %q", final)
	}
}

func TestSearchDropsExcluded(t *testing.T) {
	l := listing("x1", 47.37, 8.54)
	near := listing("fresh-x", 47.37001, 8.54001)

	engine := NewEngine(
		testResolver(),
		[]source.Adapter{&fakeAdapter{name: "immoapi", batches: [][]model.Listing{{near}}}},
		cache.NewMemory(), &fakeTravel{}, zap.NewNop(),
	)

	results, _, _ := drain(t, engine.Search(context.Background(),
		&model.SearchCriteria{Destination: "Zurich"},
		Options{Excluded: []model.Listing{l}}))

	if len(results) != 0 {
		t.Fatalf("results = %v, want the excluded match dropped", results)
	}
}

func TestSearchDropsListingOverEveryBudget(t *testing.T) {
	slow := listing("slow-1", 47.37, 8.54)

	sixty := 60.0
	travel := &fakeTravel{minutes: map[model.TravelMode]*float64{model.ModeWalk: &sixty}}
	engine := NewEngine(
		testResolver(),
		[]source.Adapter{&fakeAdapter{name: "immoapi", batches: [][]model.Listing{{slow}}}},
		cache.NewMemory(), travel, zap.NewNop(),
	)

	results, _, _ := drain(t, engine.Search(context.Background(),
		&model.SearchCriteria{
			Destination: "Zurich",
			Modes:       []model.TravelMode{model.ModeWalk},
			MaxMinutes:  map[model.TravelMode]float64{model.ModeWalk: 15},
		},
		Options{CommuteTTL: time.Hour}))

	if len(results) != 0 {
		t.Fatalf("results = %v, want over-budget listing dropped", results)
	}
}

func TestSearchSkipsEnrichmentWithoutModes(t *testing.T) {
	l := listing("plain-1", 47.37, 8.54)
	travel := &fakeTravel{}

	engine := NewEngine(
		testResolver(),
		[]source.Adapter{&fakeAdapter{name: "immoapi", batches: [][]model.Listing{{l}}}},
		cache.NewMemory(), travel, zap.NewNop(),
	)

	results, _, _ := drain(t, engine.Search(context.Background(),
		&model.SearchCriteria{Destination: "Zurich"}, Options{}))

	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	if travel.callCount() != 0 {
		t.Fatalf("travel client called %d times without requested modes", travel.callCount())
	}
}

func TestSearchPassesBudgetAndPlacesToAdapters(t *testing.T) {
	adapter := &fakeAdapter{name: "immoapi"}
	engine := NewEngine(testResolver(), []source.Adapter{adapter}, cache.NewMemory(), &fakeTravel{}, zap.NewNop())

	drain(t, engine.Search(context.Background(),
		&model.SearchCriteria{Destination: "Zurich"},
		Options{RequestCeiling: map[string]int{"immoapi": 3}}))

	adapter.mu.Lock()
	q := adapter.query
	adapter.mu.Unlock()
	if q.Budget == nil || q.Budget.Remaining() != 3 {
		t.Fatalf("budget not wired: %+v", q.Budget)
	}
	if len(q.Places) == 0 {
		t.Fatalf("no places passed to adapter")
	}
}
