// Package geo provides the geographic primitives used by the signal feed
// and notification fanout: great-circle distance and the radius conversion
// needed for spherical range queries.
package geo

import "math"

const (
	// earthRadiusMeters is the mean Earth radius used for haversine distances.
	earthRadiusMeters = 6371000.0

	// earthRadiusKM is the equatorial radius used to convert a query radius
	// into the angular radius expected by $centerSphere.
	earthRadiusKM = 6378.1
)

// HaversineMeters returns the great-circle distance in meters between two
// coordinate pairs. The haversine form stays numerically stable for
// near-zero and antipodal separations, where acos-based formulas can leave
// the [-1,1] domain through rounding.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLng*sinLng
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// KMToAngularRadius converts a radius in kilometers to the angular radius
// in radians used by spherical range queries.
func KMToAngularRadius(km float64) float64 {
	return km / earthRadiusKM
}

// Meters converts kilometers to meters.
func Meters(km float64) float64 {
	return km * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
