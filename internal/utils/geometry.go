package utils

import "math"

const (
	// RadiusOfEarthInMeters is the mean Earth radius used for every
	// great-circle distance in the converter.
	RadiusOfEarthInMeters = 6371000.0

	// boundsEpsilon pads computed boxes so float rounding never excludes a
	// point that sits exactly on the edge.
	boundsEpsilon = 1e-9
)

// CoordinateBounds represents a bounding box with min/max latitude and longitude
type CoordinateBounds struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b CoordinateBounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Encloses reports whether inner lies entirely within b, edges included.
func (b CoordinateBounds) Encloses(inner CoordinateBounds) bool {
	return b.Contains(inner.MinLat, inner.MinLon) && b.Contains(inner.MaxLat, inner.MaxLon)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the haversine great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return RadiusOfEarthInMeters * c
}

// EnclosingBounds returns a box guaranteed to contain every point whose
// haversine distance to (lat, lon) is at most distance. ok is false when no
// such box exists in plain lat/lon space (polar caps, antimeridian wrap or a
// radius spanning half the globe); callers then fall back to a full scan.
func EnclosingBounds(lat, lon, distance float64) (CoordinateBounds, bool) {
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return CoordinateBounds{}, false
	}

	c := distance / RadiusOfEarthInMeters
	if c >= math.Pi/2 {
		return CoordinateBounds{}, false
	}

	latOffset := toDegrees(c) + boundsEpsilon
	minLat := lat - latOffset
	maxLat := lat + latOffset
	if minLat <= -90 || maxLat >= 90 {
		return CoordinateBounds{}, false
	}

	// sin^2(dLat/2) + cos(lat)cos(lat') sin^2(dLon/2) = sin^2(c/2), so dLon is
	// largest when cos(lat') is smallest inside the latitude band.
	extremeLat := math.Max(math.Abs(minLat), math.Abs(maxLat))
	denominator := math.Sqrt(math.Cos(toRadians(lat)) * math.Cos(toRadians(extremeLat)))
	if denominator <= 0 {
		return CoordinateBounds{}, false
	}
	s := math.Sin(c/2) / denominator
	if s >= 1 {
		return CoordinateBounds{}, false
	}
	lonOffset := toDegrees(2*math.Asin(s)) + boundsEpsilon

	minLon := lon - lonOffset
	maxLon := lon + lonOffset
	if minLon < -180 || maxLon > 180 {
		return CoordinateBounds{}, false
	}

	return CoordinateBounds{
		MinLat: minLat,
		MaxLat: maxLat,
		MinLon: minLon,
		MaxLon: maxLon,
	}, true
}
