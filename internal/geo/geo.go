package geo

import (
	"math"

	"github.com/example/taxi-dispatch/internal/models"
)

// earthRadiusMiles fixes the sphere radius used for all fare and
// dispatch distance math.
const earthRadiusMiles = 3958.8

// Miles returns the great-circle distance between two points via the
// haversine formula. Callers guarantee finite inputs; NaN propagates.
func Miles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// MilesBetween is Miles over Coord values.
func MilesBetween(a, b models.Coord) float64 {
	return Miles(a.Lat, a.Lng, b.Lat, b.Lng)
}

// PointInRing reports whether p falls inside the polygon described by
// ring, using ray casting. The ring is treated as implicitly closed.
// Degenerate rings (fewer than 3 vertices) contain nothing.
func PointInRing(p models.Coord, ring []models.Coord) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lng > p.Lng) != (vj.Lng > p.Lng) {
			x := (vj.Lat-vi.Lat)*(p.Lng-vi.Lng)/(vj.Lng-vi.Lng) + vi.Lat
			if p.Lat < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
