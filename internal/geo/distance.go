package geo

import "math"

const earthRadiusMeters = 6_371_000

// Haversine returns the great-circle distance in meters between two lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Vector is a point on the unit sphere in earth-centred cartesian coordinates.
type Vector [3]float64

// UnitVector projects a lat/lon pair onto the unit sphere.
// The squared chord distance between two vectors grows monotonically with
// their great-circle distance, so nearest-neighbour ordering is preserved.
func UnitVector(lat, lon float64) Vector {
	phi, lambda := toRad(lat), toRad(lon)
	return Vector{
		math.Cos(phi) * math.Cos(lambda),
		math.Cos(phi) * math.Sin(lambda),
		math.Sin(phi),
	}
}

// ChordSq returns the squared straight-line distance between two unit vectors.
func ChordSq(a, b Vector) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}

// ChordToMeters converts a squared chord length back to great-circle meters.
func ChordToMeters(chordSq float64) float64 {
	half := math.Sqrt(chordSq) / 2
	if half > 1 {
		half = 1
	}
	return 2 * math.Asin(half) * earthRadiusMeters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
