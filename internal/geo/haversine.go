// internal/geo/haversine.go
// Package geo provides the great-circle distance calculation backing the
// Relay Selector (C7). It is a small, pure, dependency-free helper — no
// example repo in the retrieval pack implements geo distance, so this is
// built directly from the standard haversine formula rather than grounded on
// a specific corpus file; its shape (a pure function over value types, no
// allocation) follows the style of pkg/flamegraph's pure transforms.
package geo

import "math"

const earthRadiusKM = 6371.0088

// LatLon is a point on the Earth's surface in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// HaversineKM returns the great-circle distance between a and b in
// kilometers.
func HaversineKM(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}
