package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/stream"
	"github.com/flatscout/flatscout/internal/model"
)

type fetchRecorder struct {
	calls int
	pages map[string][]Page // key: place, in page order
}

func (f *fetchRecorder) fetch(_ context.Context, place string, _ *model.FilterBucket, page int) (Page, error) {
	f.calls++
	pages := f.pages[place]
	if page >= len(pages) {
		return Page{}, nil
	}
	return pages[page], nil
}

func pageOf(ids ...string) Page {
	p := Page{HasMore: true}
	for _, id := range ids {
		p.Listings = append(p.Listings, model.Listing{ID: id})
	}
	return p
}

func drain(t *testing.T, it stream.Iterator) [][]model.Listing {
	t.Helper()
	var out [][]model.Listing
	for {
		batch, err := it.Next(context.Background())
		if errors.Is(err, stream.End) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, batch)
	}
}

func TestPaginatorStopsAtBudget(t *testing.T) {
	// A source that would need 7 pages but has budget for 5 must yield
	// the listings of the first 5 pages and end without an error.
	rec := &fetchRecorder{pages: map[string][]Page{}}
	var pages []Page
	for i := 0; i < 7; i++ {
		p := pageOf(fmt.Sprintf("l%d", i))
		p.HasMore = i < 6
		pages = append(pages, p)
	}
	rec.pages["zurich"] = pages

	q := Query{
		Places: []string{"zurich"},
		Budget: model.NewRequestBudget(5),
	}
	it := NewPaginator("test", q, cache.NewMemory(), time.Minute, rec.fetch, zap.NewNop())

	batches := drain(t, it)
	if len(batches) != 5 {
		t.Fatalf("got %d batches, want 5", len(batches))
	}
	if rec.calls != 5 {
		t.Fatalf("source was hit %d times, want 5", rec.calls)
	}
	if q.Budget.Remaining() != 0 {
		t.Fatalf("budget remaining = %d, want 0", q.Budget.Remaining())
	}
}

func TestPaginatorWalksPlacesAndBuckets(t *testing.T) {
	rec := &fetchRecorder{pages: map[string][]Page{
		"zurich": {pageOf("z1")},
		"bern":   {pageOf("b1")},
	}}

	q := Query{
		Places: []string{"zurich", "bern"},
		Buckets: []model.FilterBucket{
			{Name: "cheap", Category: model.CategoryUnit},
			{Name: "rooms", Category: model.CategorySharedRoom},
		},
		Budget: model.NewRequestBudget(100),
	}
	it := NewPaginator("test", q, cache.NewMemory(), time.Minute, rec.fetch, zap.NewNop())

	batches := drain(t, it)
	// 2 places x 2 buckets, one non-empty page each.
	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}
}

func TestPaginatorReusesCachedPages(t *testing.T) {
	store := cache.NewMemory()
	rec := &fetchRecorder{pages: map[string][]Page{
		"zurich": {{Listings: []model.Listing{{ID: "z1"}}}},
	}}

	mkQuery := func() Query {
		return Query{Places: []string{"zurich"}, Budget: model.NewRequestBudget(10)}
	}

	first := drain(t, NewPaginator("test", mkQuery(), store, time.Minute, rec.fetch, zap.NewNop()))
	callsAfterFirst := rec.calls

	q2 := mkQuery()
	second := drain(t, NewPaginator("test", q2, store, time.Minute, rec.fetch, zap.NewNop()))

	if len(first) != len(second) {
		t.Fatalf("cached run yielded %d batches, first run %d", len(second), len(first))
	}
	if rec.calls != callsAfterFirst {
		t.Fatalf("cached run still hit the source (%d -> %d calls)", callsAfterFirst, rec.calls)
	}
	if q2.Budget.Used() != 0 {
		t.Fatalf("cache hits consumed budget: used=%d", q2.Budget.Used())
	}
}

func TestPaginatorRetriesEmptyPages(t *testing.T) {
	// A place with no listings yet must be asked again on the next
	// search instead of serving the empty answer from cache.
	store := cache.NewMemory()
	rec := &fetchRecorder{pages: map[string][]Page{}}

	mkQuery := func() Query {
		return Query{Places: []string{"zurich"}, Budget: model.NewRequestBudget(10)}
	}

	if batches := drain(t, NewPaginator("test", mkQuery(), store, time.Minute, rec.fetch, zap.NewNop())); len(batches) != 0 {
		t.Fatalf("unexpected batches: %+v", batches)
	}
	drain(t, NewPaginator("test", mkQuery(), store, time.Minute, rec.fetch, zap.NewNop()))

	if rec.calls != 2 {
		t.Fatalf("source was hit %d times, want a fresh fetch per run", rec.calls)
	}
}

func TestPaginatorStopsOnFullyStalePage(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := cutoff.Add(24 * time.Hour)
	older := cutoff.Add(-24 * time.Hour)

	withTime := func(id string, ts time.Time) model.Listing {
		return model.Listing{ID: id, CreatedAt: &ts}
	}

	rec := &fetchRecorder{pages: map[string][]Page{
		"zurich": {
			{Listings: []model.Listing{withTime("new1", newer), withTime("old1", older)}, HasMore: true},
			{Listings: []model.Listing{withTime("old2", older), withTime("old3", older)}, HasMore: true},
			{Listings: []model.Listing{withTime("old4", older)}, HasMore: true},
		},
	}}

	q := Query{
		Places:       []string{"zurich"},
		CreatedAfter: &cutoff,
		Budget:       model.NewRequestBudget(10),
	}
	batches := drain(t, NewPaginator("test", q, cache.NewMemory(), time.Minute, rec.fetch, zap.NewNop()))

	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0].ID != "new1" {
		t.Fatalf("unexpected batches: %+v", batches)
	}
	// Page 2 was fully stale; page 3 must never be fetched.
	if rec.calls != 2 {
		t.Fatalf("source was hit %d times, want 2", rec.calls)
	}
}

func TestPaginatorSkipsFailedPlace(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, place string, _ *model.FilterBucket, page int) (Page, error) {
		calls++
		if place == "broken" {
			return Page{}, errors.New("503 from portal")
		}
		if page > 0 {
			return Page{}, nil
		}
		return pageOf(place + "-1"), nil
	}

	q := Query{Places: []string{"broken", "bern"}, Budget: model.NewRequestBudget(10)}
	batches := drain(t, NewPaginator("test", q, cache.NewMemory(), time.Minute, fetch, zap.NewNop()))

	if len(batches) != 1 || batches[0][0].ID != "bern-1" {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}
