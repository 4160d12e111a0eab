package model

import (
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
)

// Range is an optional numeric interval; a nil bound is open-ended.
type Range struct {
	Min *float64 `json:"min,omitempty" yaml:"min"`
	Max *float64 `json:"max,omitempty" yaml:"max"`
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// FilterBucket is a named predicate set a listing must satisfy. A search
// carries zero or more buckets; no buckets means "match everything".
type FilterBucket struct {
	Name      string   `json:"name" yaml:"name"`
	Category  Category `json:"category" yaml:"category" validate:"oneof=unit shared-room"`
	Price     Range    `json:"price" yaml:"price"`
	Rooms     Range    `json:"rooms" yaml:"rooms"`
	SizeM2    Range    `json:"size_m2" yaml:"size_m2"`
	Roommates Range    `json:"roommates" yaml:"roommates"`
}

// Matches applies the bucket's predicates to a listing. Optional listing
// fields (size, roommates) only count against bounds when known.
func (b FilterBucket) Matches(l *Listing) bool {
	if l.Category != b.Category {
		return false
	}
	if !b.Price.Contains(float64(l.Price)) {
		return false
	}
	if !b.Rooms.Contains(l.Rooms) {
		return false
	}
	if l.SizeM2 != nil && !b.SizeM2.Contains(*l.SizeM2) {
		return false
	}
	if l.Roommates != nil && !b.Roommates.Contains(float64(*l.Roommates)) {
		return false
	}
	return true
}

// SearchCriteria is everything the user asked for in one search.
type SearchCriteria struct {
	Destination     string                 `json:"destination" validate:"required"`
	Buckets         []FilterBucket         `json:"buckets"`
	Modes           []TravelMode           `json:"modes" validate:"dive,oneof=walk bike car transit"`
	MaxMinutes      map[TravelMode]float64 `json:"max_minutes"`
	ExcludeKeywords []string               `json:"exclude_keywords"`
	Gender          Gender                 `json:"gender,omitempty"`
	Duration        Duration               `json:"duration,omitempty"`
	CreatedAfter    *time.Time             `json:"created_after,omitempty"`
}

// MatchesBuckets reports whether the listing satisfies at least one bucket,
// or trivially matches when no buckets were configured.
func (c *SearchCriteria) MatchesBuckets(l *Listing) bool {
	if len(c.Buckets) == 0 {
		return true
	}
	for _, b := range c.Buckets {
		if b.Matches(l) {
			return true
		}
	}
	return false
}

// Place is a candidate settlement inside the search area.
type Place struct {
	Name   string
	Center orb.Point
	Bound  orb.Bound
}

// SearchArea is the resolved geographic scope of a search: the geocoded
// destination (nil when geocoding failed), one reachable-area polygon per
// requested mode, a padded bounding box over all polygons, and place
// candidates ordered by distance from the destination.
type SearchArea struct {
	Destination *orb.Point
	Polygons    map[TravelMode]orb.Polygon
	Bound       orb.Bound
	Places      []Place
}

// PlaceNames returns the candidate names in proximity order.
func (a *SearchArea) PlaceNames() []string {
	names := make([]string, 0, len(a.Places))
	for _, p := range a.Places {
		names = append(names, p.Name)
	}
	return names
}

// RequestBudget caps the number of outbound calls one source may make
// within a single search. It is shared by reference across all pagination
// calls for that source, so the source self-throttles once exhausted.
type RequestBudget struct {
	limit int64
	used  atomic.Int64
}

func NewRequestBudget(limit int) *RequestBudget {
	return &RequestBudget{limit: int64(limit)}
}

// Spend consumes one request slot. It returns false, without consuming,
// once the ceiling is reached.
func (b *RequestBudget) Spend() bool {
	for {
		cur := b.used.Load()
		if cur >= b.limit {
			return false
		}
		if b.used.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Used returns how many slots have been consumed.
func (b *RequestBudget) Used() int { return int(b.used.Load()) }

// Remaining returns how many slots are left.
func (b *RequestBudget) Remaining() int {
	r := int(b.limit - b.used.Load())
	if r < 0 {
		return 0
	}
	return r
}
