package gtfs

import (
	"math"
	"slices"

	"github.com/tidwall/rtree"
	"github.com/twpayne/go-polyline"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/models"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

const (
	// Shapes with fewer points are always scanned linearly.
	spatialIndexThreshold = 64

	seedSearchRadiusMeters = 250.0
	seedSearchGrowth       = 8.0
	seedSearchAttempts     = 8
)

// ShapeGeometry is an ordered polyline with cumulative distances. It
// answers nearest-point queries for projecting stops onto the shape.
type ShapeGeometry struct {
	ID            string
	Points        []models.ShapePoint
	TotalDistance float64

	index *rtree.RTreeG[int]
}

// NewShapeGeometry takes ownership of points, which must already be sorted
// by sequence with cumulative distances set.
func NewShapeGeometry(id string, points []models.ShapePoint) *ShapeGeometry {
	g := &ShapeGeometry{
		ID:     id,
		Points: points,
	}
	if len(points) > 0 {
		g.TotalDistance = points[len(points)-1].Dist
	}

	if len(points) >= spatialIndexThreshold {
		g.index = &rtree.RTreeG[int]{}
		for i, p := range points {
			pt := [2]float64{p.Lat, p.Lon}
			g.index.Insert(pt, pt, i)
		}
	}

	return g
}

// BuildShapes groups shape rows by shape_id, orders each group by sequence
// and stamps cumulative distances. If any point of a shape lacks an explicit
// distance, every distance of that shape is recomputed from the haversine
// length of consecutive segments.
func BuildShapes(rows feed.Table) (map[string]*ShapeGeometry, error) {
	type rawPoint struct {
		point   models.ShapePoint
		hasDist bool
	}

	grouped := make(map[string][]rawPoint)
	for i, rec := range rows {
		row := i + 1
		lat, err := parseFloatField(feed.Shapes, row, rec, "shape_pt_lat")
		if err != nil {
			return nil, err
		}
		lon, err := parseFloatField(feed.Shapes, row, rec, "shape_pt_lon")
		if err != nil {
			return nil, err
		}
		seq, err := parseIntField(feed.Shapes, row, rec, "shape_pt_sequence")
		if err != nil {
			return nil, err
		}
		dist, err := parseOptionalFloatField(feed.Shapes, row, rec, "shape_dist_traveled")
		if err != nil {
			return nil, err
		}

		rp := rawPoint{point: models.ShapePoint{Lat: lat, Lon: lon, Seq: seq}}
		if dist != nil {
			rp.point.Dist = *dist
			rp.hasDist = true
		}
		id := rec["shape_id"]
		grouped[id] = append(grouped[id], rp)
	}

	shapes := make(map[string]*ShapeGeometry, len(grouped))
	for id, raw := range grouped {
		slices.SortStableFunc(raw, func(a, b rawPoint) int {
			return a.point.Seq - b.point.Seq
		})

		points := make([]models.ShapePoint, len(raw))
		recompute := false
		for i, rp := range raw {
			points[i] = rp.point
			if !rp.hasDist {
				recompute = true
			}
		}
		if recompute {
			stampDistances(points)
		}

		shapes[id] = NewShapeGeometry(id, points)
	}

	return shapes, nil
}

func stampDistances(points []models.ShapePoint) {
	var total float64
	for i := range points {
		if i > 0 {
			prev := points[i-1]
			total += utils.Distance(prev.Lat, prev.Lon, points[i].Lat, points[i].Lon)
		}
		points[i].Dist = total
	}
}

// ProjectNearest returns the cumulative distance of the shape point closest
// to (lat, lon) by great-circle distance. Ties go to the point earliest in
// sequence order. An empty shape projects to 0.
func (g *ShapeGeometry) ProjectNearest(lat, lon float64) float64 {
	i := g.nearestIndex(lat, lon)
	if i < 0 {
		return 0
	}
	return g.Points[i].Dist
}

func (g *ShapeGeometry) nearestIndex(lat, lon float64) int {
	if g.index != nil {
		if i, ok := g.nearestIndexed(lat, lon); ok {
			return i
		}
	}
	return g.nearestLinear(lat, lon)
}

func (g *ShapeGeometry) nearestLinear(lat, lon float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range g.Points {
		d := utils.Distance(lat, lon, p.Lat, p.Lon)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// nearestIndexed finds any nearby point to bound the search radius, then
// evaluates every point inside a box that provably encloses that radius.
// ok is false when no safe box exists and the caller must scan.
func (g *ShapeGeometry) nearestIndexed(lat, lon float64) (int, bool) {
	seed := -1
	radius := seedSearchRadiusMeters
	for attempt := 0; attempt < seedSearchAttempts && seed < 0; attempt++ {
		box, ok := utils.EnclosingBounds(lat, lon, radius)
		if !ok {
			return -1, false
		}
		g.index.Search(boxMin(box), boxMax(box), func(_, _ [2]float64, i int) bool {
			seed = i
			return false
		})
		radius *= seedSearchGrowth
	}
	if seed < 0 {
		return -1, false
	}

	seedPoint := g.Points[seed]
	box, ok := utils.EnclosingBounds(lat, lon, utils.Distance(lat, lon, seedPoint.Lat, seedPoint.Lon))
	if !ok {
		return -1, false
	}

	best := -1
	bestDist := math.Inf(1)
	g.index.Search(boxMin(box), boxMax(box), func(_, _ [2]float64, i int) bool {
		p := g.Points[i]
		d := utils.Distance(lat, lon, p.Lat, p.Lon)
		if d < bestDist || (d == bestDist && i < best) {
			best = i
			bestDist = d
		}
		return true
	})
	return best, best >= 0
}

func boxMin(b utils.CoordinateBounds) [2]float64 {
	return [2]float64{b.MinLat, b.MinLon}
}

func boxMax(b utils.CoordinateBounds) [2]float64 {
	return [2]float64{b.MaxLat, b.MaxLon}
}

// Model converts the geometry to its document form. The points slice is
// copied.
func (g *ShapeGeometry) Model(encodePolyline bool) models.Shape {
	points := make([]models.ShapePoint, len(g.Points))
	copy(points, g.Points)

	shape := models.Shape{
		ID:            g.ID,
		Points:        points,
		TotalDistance: g.TotalDistance,
	}
	if encodePolyline {
		shape.Polyline = EncodePolyline(points)
	}
	return shape
}

// ShapeGeometryFromModel rebuilds geometry from a document shape, so reused
// shapes can still project stops.
func ShapeGeometryFromModel(s models.Shape) *ShapeGeometry {
	points := make([]models.ShapePoint, len(s.Points))
	copy(points, s.Points)

	g := NewShapeGeometry(s.ID, points)
	g.TotalDistance = s.TotalDistance
	return g
}

// EncodePolyline returns the Google encoded polyline of the points.
func EncodePolyline(points []models.ShapePoint) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// ComputeRegionBounds calculates the geographic boundaries covered by all
// shape points. Returns nil if there are no points.
func ComputeRegionBounds(shapes map[string]*ShapeGeometry) *utils.CoordinateBounds {
	var bounds *utils.CoordinateBounds

	for _, shape := range shapes {
		for _, point := range shape.Points {
			if bounds == nil {
				bounds = &utils.CoordinateBounds{
					MinLat: point.Lat,
					MaxLat: point.Lat,
					MinLon: point.Lon,
					MaxLon: point.Lon,
				}
				continue
			}

			bounds.MinLat = math.Min(bounds.MinLat, point.Lat)
			bounds.MaxLat = math.Max(bounds.MaxLat, point.Lat)
			bounds.MinLon = math.Min(bounds.MinLon, point.Lon)
			bounds.MaxLon = math.Max(bounds.MaxLon, point.Lon)
		}
	}

	return bounds
}
