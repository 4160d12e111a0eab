package geo

import (
	"fmt"
	"math"
)

// Cell sizes in degrees. One degree is roughly 111 km at the latitudes we
// care about, so 0.0005 deg is ~55 m and 0.002 deg is ~222 m.
//
// The two grids serve different purposes and never share state: the fine
// grid indexes listings for near-duplicate detection, the coarse grid
// buckets points for travel-time caching.
const (
	DedupCellSize   = 0.0005
	CommuteCellSize = 0.002
)

// CellID quantizes a coordinate onto a grid of the given cell size.
func CellID(lat, lng, size float64) string {
	return fmt.Sprintf("%d,%d", int(math.Floor(lng/size)), int(math.Floor(lat/size)))
}

// NeighborCellIDs returns the cell of the coordinate plus its 8 neighbors.
func NeighborCellIDs(lat, lng, size float64) []string {
	x := int(math.Floor(lng / size))
	y := int(math.Floor(lat / size))
	ids := make([]string, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			ids = append(ids, fmt.Sprintf("%d,%d", x+dx, y+dy))
		}
	}
	return ids
}

// HaversineM returns the great-circle distance between two coordinates in
// meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusM = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLng := (lng2 - lng1) * math.Pi / 180.0
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
