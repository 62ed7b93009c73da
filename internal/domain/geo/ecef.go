package geo

import "math"

// ToECEF converts a point to a unit-sphere ECEF vector.
// The chord between two such vectors is monotone in great-circle distance,
// which lets a store order rows nearest-first with plain arithmetic.
func ToECEF(p Point) [3]float64 {
	lat := p.Lat * math.Pi / 180
	lon := p.Lon * math.Pi / 180
	return [3]float64{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}

// KmToL2 converts great-circle km to the chord between two unit ECEF
// vectors: L2 = 2*sin(angle/2).
func KmToL2(km float64) float64 {
	angle := km / EarthRadiusKm
	if angle > math.Pi {
		angle = math.Pi
	}
	return 2 * math.Sin(angle/2)
}
