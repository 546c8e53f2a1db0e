package section

import (
	"github.com/golang/geo/s2"
	"github.com/jiji14/e-mission-server/schema"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle lengths.
const EarthRadiusMeters = 6371010.0

// GreatCircleDistance returns the distance in meters between two points.
func GreatCircleDistance(a, b schema.Location) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// TraceDistance returns the length of the polyline through points in order.
func TraceDistance(points []schema.Location) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += GreatCircleDistance(points[i-1], points[i])
	}
	return total
}
