// Package dedup folds near-duplicate listings, collected from different
// sources but referring to the same physical unit, into single records.
package dedup

import (
	"github.com/flatscout/flatscout/internal/engine/geo"
	"github.com/flatscout/flatscout/internal/model"
)

const (
	// Two listings within this distance may be the same unit.
	maxDistanceM = 75.0
	// Price tolerance: 5% of either price, but at least 50 currency units.
	priceTolerancePct = 0.05
	priceToleranceMin = 50.0
	// Known floor areas may differ by at most this many square meters.
	maxSizeDiffM2 = 10.0
)

// PropertySet is a grid-indexed set of listings with near-duplicate
// folding. It is owned by a single consumer; methods must not be called
// concurrently.
type PropertySet struct {
	cells map[string]map[string]struct{}
	byID  map[string]model.Listing
}

func NewPropertySet() *PropertySet {
	return &PropertySet{
		cells: make(map[string]map[string]struct{}),
		byID:  make(map[string]model.Listing),
	}
}

// Add inserts a listing, folding it into any near-duplicates already in the
// set. Duplicates are removed, merged pairwise into the incoming listing,
// and the single result is reinserted and returned.
func (s *PropertySet) Add(l model.Listing) model.Listing {
	merged := l
	for _, id := range s.candidateIDs(&l) {
		other, ok := s.byID[id]
		if !ok {
			continue
		}
		if IsDuplicate(&merged, &other) {
			s.remove(&other)
			merged = Merge(merged, other)
		}
	}
	s.insert(merged)
	return merged
}

// AddForLookupOnly inserts without any duplicate checks. Used to build a
// read-only index (e.g. of previously excluded listings) that incoming
// listings are tested against but never merged into.
func (s *PropertySet) AddForLookupOnly(l model.Listing) {
	s.insert(l)
}

// FindDuplicate returns a listing already in the set that duplicates l, or
// nil. The set is not modified.
func (s *PropertySet) FindDuplicate(l *model.Listing) *model.Listing {
	for _, id := range s.candidateIDs(l) {
		other, ok := s.byID[id]
		if !ok {
			continue
		}
		if IsDuplicate(l, &other) {
			return &other
		}
	}
	return nil
}

// Len returns the number of distinct listings in the set.
func (s *PropertySet) Len() int { return len(s.byID) }

// Get returns the listing stored under id.
func (s *PropertySet) Get(id string) (model.Listing, bool) {
	l, ok := s.byID[id]
	return l, ok
}

func (s *PropertySet) candidateIDs(l *model.Listing) []string {
	var ids []string
	for _, cell := range geo.NeighborCellIDs(l.Lat, l.Lng, geo.DedupCellSize) {
		for id := range s.cells[cell] {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *PropertySet) insert(l model.Listing) {
	s.byID[l.ID] = l
	cell := geo.CellID(l.Lat, l.Lng, geo.DedupCellSize)
	if s.cells[cell] == nil {
		s.cells[cell] = make(map[string]struct{})
	}
	s.cells[cell][l.ID] = struct{}{}
}

func (s *PropertySet) remove(l *model.Listing) {
	delete(s.byID, l.ID)
	cell := geo.CellID(l.Lat, l.Lng, geo.DedupCellSize)
	delete(s.cells[cell], l.ID)
}

// IsDuplicate applies the duplicate heuristic. It is symmetric. Listings
// without coordinates never match anything.
func IsDuplicate(a, b *model.Listing) bool {
	if !a.HasCoords() || !b.HasCoords() {
		return false
	}
	if geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng) > maxDistanceM {
		return false
	}

	tolerance := priceTolerancePct * float64(max(a.Price, b.Price))
	if tolerance < priceToleranceMin {
		tolerance = priceToleranceMin
	}
	diff := float64(a.Price - b.Price)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return false
	}

	if a.Rooms != b.Rooms {
		return false
	}

	if a.SizeM2 != nil && b.SizeM2 != nil {
		sd := *a.SizeM2 - *b.SizeM2
		if sd < 0 {
			sd = -sd
		}
		if sd > maxSizeDiffM2 {
			return false
		}
	}
	return true
}

// Merge combines two duplicate listings. The one with more images is
// primary and contributes single-valued fields; on equal counts b wins, so
// folding an incoming listing into an existing one keeps the first-seen
// record stable. The composite id is the sorted union of both ids'
// component parts, which makes repeated merges idempotent.
func Merge(a, b model.Listing) model.Listing {
	primary, secondary := b, a
	if len(a.Images) > len(b.Images) {
		primary, secondary = a, b
	}

	out := primary
	out.ID = model.MergeIDs(a.ID, b.ID)
	out.Sources = mergeSources(primary.Sources, secondary.Sources)

	if out.SizeM2 == nil {
		out.SizeM2 = secondary.SizeM2
	}
	// The earlier timestamp is closer to the true listing age.
	if out.CreatedAt == nil {
		out.CreatedAt = secondary.CreatedAt
	} else if secondary.CreatedAt != nil && secondary.CreatedAt.Before(*out.CreatedAt) {
		out.CreatedAt = secondary.CreatedAt
	}
	if out.Roommates == nil {
		out.Roommates = secondary.Roommates
	}
	out.Commute = mergeCommute(primary.Commute, secondary.Commute)
	return out
}

func mergeSources(primary, secondary []model.SourceRef) []model.SourceRef {
	seen := make(map[string]struct{}, len(primary))
	out := make([]model.SourceRef, 0, len(primary)+len(secondary))
	for _, ref := range primary {
		if _, ok := seen[ref.Name]; ok {
			continue
		}
		seen[ref.Name] = struct{}{}
		out = append(out, ref)
	}
	for _, ref := range secondary {
		if _, ok := seen[ref.Name]; ok {
			continue
		}
		seen[ref.Name] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func mergeCommute(primary, secondary map[model.TravelMode]*float64) map[model.TravelMode]*float64 {
	if primary == nil && secondary == nil {
		return nil
	}
	out := make(map[model.TravelMode]*float64, len(primary)+len(secondary))
	for mode, v := range secondary {
		out[mode] = v
	}
	for mode, v := range primary {
		out[mode] = v
	}
	return out
}
