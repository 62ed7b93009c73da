// Package geo resolves great-circle distances and coarse bounding boxes.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the sphere radius used for every distance in the engine.
const EarthRadiusKm = 6371.0

// KmPerDegreeLat approximates one degree of latitude.
const KmPerDegreeLat = 111.0

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint validates coordinates.
func NewPoint(lat, lon float64) (Point, error) {
	if !ValidateCoordinates(lat, lon) {
		return Point{}, fmt.Errorf("coordinates out of range: lat=%v lon=%v", lat, lon)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// PointFromPtrs builds a point from optional stored coordinates.
// Missing, NaN or out of range coordinates yield ok=false, never a zero point.
func PointFromPtrs(lat, lon *float64) (Point, bool) {
	if lat == nil || lon == nil {
		return Point{}, false
	}
	if !ValidateCoordinates(*lat, *lon) {
		return Point{}, false
	}
	return Point{Lat: *lat, Lon: *lon}, true
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
// NaN fails both comparisons.
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Box is a coarse lat/lon rectangle. HasLon=false means no longitude bound.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	HasLon         bool
}

// Contains reports whether p falls inside the box.
func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if !b.HasLon {
		return true
	}
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// BoundingBoxDelta returns the latitude delta in degrees for a radius.
func BoundingBoxDelta(radiusKm float64) float64 {
	return radiusKm / KmPerDegreeLat
}

// BoundingBox returns a rectangle that contains every point within radiusKm of center.
// The longitude delta is widened by 1/cos(lat) at the box edge closest to a pole.
// Boxes reaching a pole or crossing the antimeridian drop the longitude bound.
func BoundingBox(center Point, radiusKm float64) Box {
	dLat := BoundingBoxDelta(radiusKm)
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return box
	}

	edge := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
	cos := math.Cos(edge * math.Pi / 180)
	if cos <= 1e-9 {
		return box
	}
	dLon := dLat / cos
	if dLon >= 180 {
		return box
	}
	minLon, maxLon := center.Lon-dLon, center.Lon+dLon
	if minLon < -180 || maxLon > 180 {
		return box
	}
	box.MinLon, box.MaxLon, box.HasLon = minLon, maxLon, true
	return box
}

// ClampRadius bounds r to [lo, hi].
func ClampRadius(r, lo, hi float64) float64 {
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}
