// Package geo provides the flat-plane location type shared by every agent.
package geo

import "math"

// Location is a point on the flat plane every agent agrees to treat the
// world as. It is immutable after construction.
type Location struct {
	Lat float64
	Lon float64
}

// New returns a Location at the given coordinates.
func New(lat, lon float64) Location {
	return Location{Lat: lat, Lon: lon}
}

// Distance returns the Euclidean distance between two locations:
// d = sqrt((Δlat)² + (Δlon)²).
func Distance(a, b Location) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// Within reports whether b is within radius of a, inclusive of the boundary
// (distance exactly equal to radius counts as within).
func Within(a, b Location, radius float64) bool {
	return Distance(a, b) <= radius
}

// Equal compares two locations for exact equality, used for incident
// resolution matching.
func (l Location) Equal(other Location) bool {
	return l.Lat == other.Lat && l.Lon == other.Lon
}
