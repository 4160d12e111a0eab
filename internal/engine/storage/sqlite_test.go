package storage

import (
	"path/filepath"
	"testing"

	"github.com/flatscout/flatscout/internal/model"
)

func openTestStore(t *testing.T) *ExclusionStore {
	t.Helper()
	store, err := NewExclusionStore(filepath.Join(t.TempDir(), "exclusions.db"))
	if err != nil {
		t.Fatalf("NewExclusionStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testListing(id string) model.Listing {
	size := 72.0
	return model.Listing{
		ID:       id,
		Sources:  []model.SourceRef{{Name: "immoapi", URL: "https://example.test/" + id}},
		Title:    "Sunny 3.5 room flat",
		Price:    2100,
		Rooms:    3.5,
		SizeM2:   &size,
		Lat:      47.3769,
		Lng:      8.5417,
		Category: model.CategoryUnit,
	}
}

func TestExclusionStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if err := store.Add(testListing("immoapi:1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(testListing("immoapi:2")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	listings, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("len = %d, want 2", len(listings))
	}

	got := listings[0]
	if got.Price != 2100 || got.Rooms != 3.5 || got.Lat != 47.3769 {
		t.Fatalf("fields lost: %+v", got)
	}
	if got.SizeM2 == nil || *got.SizeM2 != 72.0 {
		t.Fatalf("size lost: %v", got.SizeM2)
	}
	if len(got.Sources) != 1 || got.Sources[0].Name != "immoapi" {
		t.Fatalf("sources lost: %+v", got.Sources)
	}
}

func TestExclusionStoreReAddReplaces(t *testing.T) {
	store := openTestStore(t)

	l := testListing("immoapi:1")
	if err := store.Add(l); err != nil {
		t.Fatalf("Add: %v", err)
	}
	l.Price = 2250
	if err := store.Add(l); err != nil {
		t.Fatalf("re-Add: %v", err)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	listings, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if listings[0].Price != 2250 {
		t.Fatalf("price not refreshed: %d", listings[0].Price)
	}
}

func TestExclusionStoreRemove(t *testing.T) {
	store := openTestStore(t)

	if err := store.Add(testListing("immoapi:1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Remove("immoapi:1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove("never-there"); err != nil {
		t.Fatalf("Remove unknown id: %v", err)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}
