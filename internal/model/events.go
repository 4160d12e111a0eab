package model

import "github.com/paulmach/orb"

// Event is the tagged union emitted by the search engine. Consumers type
// switch on the concrete variants below.
type Event interface{ event() }

// ProgressEvent carries a human-readable status line. No schema guarantees
// are made about its content.
type ProgressEvent struct {
	Message string
}

// MetadataEvent carries incremental search metadata. All fields are
// partial: a zero value means "not included in this update", and later
// events refine earlier ones.
type MetadataEvent struct {
	Destination *orb.Point
	Polygons    map[TravelMode]orb.Polygon
	Places      []string
	ResultCount int
}

// PropertiesEvent is an incremental result batch. Consumers must merge
// batches by listing id: a later batch can re-emit an id with refined
// fields, or emit a composite id that supersedes its component ids.
type PropertiesEvent struct {
	Listings []Listing
}

func (ProgressEvent) event()   {}
func (MetadataEvent) event()   {}
func (PropertiesEvent) event() {}
