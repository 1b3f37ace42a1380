// Package geo provides the great-circle distance math used by dispatch.
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceKm returns the haversine distance between two points in kilometres.
func DistanceKm(from, to Point) float64 {
	dLat := toRadians(to.Lat - from.Lat)
	dLon := toRadians(to.Lon - from.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(from.Lat))*math.Cos(toRadians(to.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Round2 rounds a distance to two decimal places for display.
func Round2(km float64) float64 {
	return math.Round(km*100) / 100
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
