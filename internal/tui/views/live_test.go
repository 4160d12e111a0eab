package views

import (
	"testing"

	"github.com/flatscout/flatscout/internal/model"
)

func liveListing(id string) model.Listing {
	return model.Listing{
		ID:      id,
		Sources: []model.SourceRef{{Name: "immoapi"}},
		Price:   1500,
		Rooms:   2,
	}
}

func TestUpsertRetiresGrowingComposite(t *testing.T) {
	m := NewLiveModel(LiveDeps{}, &model.SearchCriteria{Destination: "Zurich"})

	m.upsert(liveListing("a1"))
	m.upsert(liveListing("a1+b1"))
	m.upsert(liveListing("a1+b1+c1"))

	if len(m.results) != 1 {
		t.Fatalf("rows = %d, want the superseded composites removed", len(m.results))
	}
	if m.results[0].ID != "a1+b1+c1" {
		t.Fatalf("row id = %q, want the final composite", m.results[0].ID)
	}
	if idx, ok := m.byID["a1+b1+c1"]; !ok || idx != 0 {
		t.Fatalf("index out of sync: %v", m.byID)
	}
}

func TestUpsertRefreshesExistingRow(t *testing.T) {
	m := NewLiveModel(LiveDeps{}, &model.SearchCriteria{Destination: "Zurich"})

	m.upsert(liveListing("a1"))
	updated := liveListing("a1")
	updated.Price = 1600
	m.upsert(updated)

	if len(m.results) != 1 || m.results[0].Price != 1600 {
		t.Fatalf("rows = %+v, want one refreshed row", m.results)
	}
}
