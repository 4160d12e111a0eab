package model

import (
	"sort"
	"strings"
	"time"
)

// Category distinguishes whole units from rooms in shared flats.
type Category string

const (
	CategoryUnit       Category = "unit"
	CategorySharedRoom Category = "shared-room"
)

// Duration classifies the rental length of a listing.
type Duration string

const (
	DurationPermanent Duration = "permanent"
	DurationTemporary Duration = "temporary"
)

// Gender is the advertised flatmate preference of a listing.
type Gender string

const (
	GenderAny    Gender = "any"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// TravelMode is a commute mode understood by the routing collaborators.
type TravelMode string

const (
	ModeWalk    TravelMode = "walk"
	ModeBike    TravelMode = "bike"
	ModeCar     TravelMode = "car"
	ModeTransit TravelMode = "transit"
)

// SourceRef points back to the portal a listing was collected from.
type SourceRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Listing is the normalized record every source adapter must produce.
// Lat/Lng may be 0,0 when the source did not geocode the address.
//
// Commute maps a travel mode to minutes to the search destination. A nil
// value is an explicit "unreachable"; a missing key means "not yet
// computed". Entries, once present, are never downgraded back to missing —
// enrichment only fills gaps.
type Listing struct {
	ID          string      `json:"id" validate:"required"`
	Sources     []SourceRef `json:"sources" validate:"min=1"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Price       int         `json:"price" validate:"gte=0"`
	Rooms       float64     `json:"rooms"`
	SizeM2      *float64    `json:"size_m2,omitempty"`
	Address     string      `json:"address"`
	Lat         float64     `json:"lat"`
	Lng         float64     `json:"lng"`
	Images      []string    `json:"images"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	Category    Category    `json:"category" validate:"oneof=unit shared-room"`
	Roommates   *int        `json:"roommates,omitempty"`
	Duration    Duration    `json:"duration,omitempty"`
	Gender      Gender      `json:"gender,omitempty"`

	Commute map[TravelMode]*float64 `json:"commute_minutes,omitempty"`
}

// HasCoords reports whether the listing carries usable coordinates.
func (l *Listing) HasCoords() bool {
	return l.Lat != 0 || l.Lng != 0
}

const idSeparator = "+"

// IDParts splits a (possibly composite) listing id into its component ids.
func IDParts(id string) []string {
	return strings.Split(id, idSeparator)
}

// SupersededIDs records id in the part index and returns the distinct ids
// its components previously belonged to. byPart maps each component part to
// the id currently covering it, so when a composite grows over several
// batches every intermediate id gets retired, not just bare components.
func SupersededIDs(byPart map[string]string, id string) []string {
	var retired []string
	seen := make(map[string]struct{})
	for _, part := range IDParts(id) {
		if prev, ok := byPart[part]; ok && prev != id {
			if _, dup := seen[prev]; !dup {
				seen[prev] = struct{}{}
				retired = append(retired, prev)
			}
		}
		byPart[part] = id
	}
	return retired
}

// MergeIDs builds the canonical composite id for two listings. Components
// of already-composite inputs are flattened, deduplicated and sorted, so
// repeated merges always collapse to the same key.
func MergeIDs(a, b string) string {
	seen := make(map[string]struct{})
	var parts []string
	for _, id := range []string{a, b} {
		for _, p := range IDParts(id) {
			if _, ok := seen[p]; ok || p == "" {
				continue
			}
			seen[p] = struct{}{}
			parts = append(parts, p)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, idSeparator)
}
