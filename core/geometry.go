package core

import (
	"math"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// EarthRadiusKm is the equatorial WGS84 radius used for all great-circle
// distances (kilometres). The earth is treated as a sphere.
const EarthRadiusKm = 6378.137

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

// DistanceKm returns the haversine great-circle distance between two points
// given in decimal degrees. Inputs are not range checked; NaN propagates.
func DistanceKm(a, b model.LatLong) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLat := lat2 - lat1
	dLong := degreesToRadians(b.Long - a.Long)

	// h = sin²(Δlat/2) + cos(lat1)·cos(lat2)·sin²(Δlong/2)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLong/2)*math.Sin(dLong/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// PointInPolygon reports whether p lies inside ring using the even-odd
// rule. The ray is cast along the Lat axis at the point's Long: an edge
// (i, j) is crossed when exactly one endpoint's Long is greater than
// p.Long and the edge's Lat at p.Long is greater than p.Lat.
//
// Edges wrap around, so a closed ring (first == last) contributes one
// zero-length edge that can never cross. Points on an edge or vertex get
// whatever the rule yields; rings with fewer than three vertices are never
// inside.
func PointInPolygon(p model.LatLong, ring []model.LatLong) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lat, ring[i].Long
		xj, yj := ring[j].Lat, ring[j].Long

		if (yi > p.Long) != (yj > p.Long) &&
			p.Lat < (xj-xi)*(p.Long-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
