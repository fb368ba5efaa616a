package models

type ShapePoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Seq  int     `json:"seq"`
	Dist float64 `json:"dist"`
}

// Shape is the serialized form of a route polyline. Points are sorted by
// Seq and Dist is cumulative from the first point.
type Shape struct {
	ID            string       `json:"id"`
	Points        []ShapePoint `json:"points"`
	TotalDistance float64      `json:"totalDistance"`
	Polyline      string       `json:"polyline,omitempty"`
}

// Clone returns a copy that shares no memory with s.
func (s Shape) Clone() Shape {
	points := make([]ShapePoint, len(s.Points))
	copy(points, s.Points)
	s.Points = points
	return s
}
