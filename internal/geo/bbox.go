package geo

import (
	"math"

	"crimepatrol/internal/model"
)

// KmPerDegreeLat is the flat-earth conversion used for city-scale boxes.
// Precision degrades with radius and toward the poles.
const KmPerDegreeLat = 111.0

// BoundingBoxAround returns the rectangle covering radiusKm around (lat, lng).
// The longitude span is widened by 1/cos(lat); it is clamped to the valid range.
// The box does not wrap the antimeridian: near ±180° the span is cut at the edge,
// so sessions just across it (e.g. 179.9 vs -179.9) are not matched.
func BoundingBoxAround(lat, lng, radiusKm float64) model.BoundingBox {
	dLat := radiusKm / KmPerDegreeLat

	cos := math.Cos(lat * math.Pi / 180)
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(radiusKm/(KmPerDegreeLat*cos), 180)
	}

	return model.BoundingBox{
		MinLat: math.Max(lat-dLat, -90),
		MaxLat: math.Min(lat+dLat, 90),
		MinLng: math.Max(lng-dLng, -180),
		MaxLng: math.Min(lng+dLng, 180),
	}
}

// ValidCoordinates reports whether lat/lng are inside the WGS84 range
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
