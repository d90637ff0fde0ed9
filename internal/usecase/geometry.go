package usecase

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/russellporter/openskidata-processor/internal/domain"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

// lengthInKm computes a run/lift's geodesic length for the Augmenter's
// statistics (spec.md §4.6), excluding polygonal geometries (piste areas
// recorded as polygons contribute to area, not line length).
func lengthInKm(g *domain.Geometry) float64 {
	if g == nil || g.Geom == nil || g.IsPolygonal() {
		return 0
	}
	switch t := g.Geom.(type) {
	case orb.LineString:
		return geo.LengthHaversine(t) / 1000
	case orb.MultiLineString:
		var total float64
		for _, ls := range t {
			total += geo.LengthHaversine(ls) / 1000
		}
		return total
	default:
		return 0
	}
}

// derivePoint implements the §4.6 point-derivation algorithm: take the
// area/length-weighted centroid of the member geometries and the member
// vertex nearest to it. When that vertex is more than 100m from the
// centroid, the result is the point 100m from the vertex toward the
// centroid; otherwise it is the centroid itself.
func derivePoint(members []*domain.Geometry) (orb.Point, error) {
	var geoms []orb.Geometry
	for _, m := range members {
		if m != nil && m.Geom != nil {
			geoms = append(geoms, m.Geom)
		}
	}
	if len(geoms) == 0 {
		return orb.Point{}, apperrors.InvalidGeometry("no member geometries to derive a point from", nil)
	}

	centroid, ok := combinedCentroid(geoms)
	if !ok {
		return orb.Point{}, apperrors.InvalidGeometry("could not compute a centroid for member geometries", nil)
	}

	nearest, found := nearestVertex(geoms, centroid)
	if !found || geo.Distance(nearest, centroid) <= 100 {
		return centroid, nil
	}

	bearing := geo.Bearing(nearest, centroid)
	return geo.PointAtBearingAndDistance(nearest, bearing, 100), nil
}

// combinedCentroid centroids each geometry individually (area-weighted for
// polygonal geometries, length-weighted for lines, equal-weighted for
// points), then averages those weighted by each geometry's own weight —
// approximating "the centroid of the GeometryCollection over the member
// set" without constructing an orb GeometryCollection type that doesn't
// carry weights itself.
func combinedCentroid(geoms []orb.Geometry) (orb.Point, bool) {
	var sumX, sumY, sumW float64
	for _, g := range geoms {
		c, w, ok := weightedCentroid(g)
		if !ok {
			continue
		}
		sumX += c[0] * w
		sumY += c[1] * w
		sumW += w
	}
	if sumW == 0 {
		return orb.Point{}, false
	}
	return orb.Point{sumX / sumW, sumY / sumW}, true
}

func weightedCentroid(g orb.Geometry) (orb.Point, float64, bool) {
	switch t := g.(type) {
	case orb.Point:
		return t, 1, true
	case orb.LineString:
		c, length := planar.CentroidLineString(t)
		if length == 0 {
			return c, 1, true
		}
		return c, length, true
	case orb.MultiLineString:
		var sumX, sumY, sumW float64
		for _, ls := range t {
			c, length := planar.CentroidLineString(ls)
			w := length
			if w == 0 {
				w = 1
			}
			sumX += c[0] * w
			sumY += c[1] * w
			sumW += w
		}
		if sumW == 0 {
			return orb.Point{}, 0, false
		}
		return orb.Point{sumX / sumW, sumY / sumW}, sumW, true
	case orb.Polygon:
		c, area := planar.CentroidArea(t)
		w := area
		if w == 0 {
			w = 1
		}
		return c, w, true
	case orb.MultiPolygon:
		var sumX, sumY, sumW float64
		for _, poly := range t {
			c, area := planar.CentroidArea(poly)
			w := area
			if w == 0 {
				w = 1
			}
			sumX += c[0] * w
			sumY += c[1] * w
			sumW += w
		}
		if sumW == 0 {
			return orb.Point{}, 0, false
		}
		return orb.Point{sumX / sumW, sumY / sumW}, sumW, true
	default:
		return orb.Point{}, 0, false
	}
}

func nearestVertex(geoms []orb.Geometry, target orb.Point) (orb.Point, bool) {
	var best orb.Point
	bestDist := math.Inf(1)
	found := false

	for _, g := range geoms {
		for _, pt := range vertices(g) {
			d := geo.Distance(target, pt)
			if d < bestDist {
				bestDist = d
				best = pt
				found = true
			}
		}
	}
	return best, found
}

func vertices(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.Point:
		return []orb.Point{t}
	case orb.LineString:
		return t
	case orb.MultiLineString:
		var pts []orb.Point
		for _, ls := range t {
			pts = append(pts, ls...)
		}
		return pts
	case orb.Polygon:
		var pts []orb.Point
		for _, ring := range t {
			pts = append(pts, ring...)
		}
		return pts
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, poly := range t {
			for _, ring := range poly {
				pts = append(pts, ring...)
			}
		}
		return pts
	default:
		return nil
	}
}

// bufferGeometry approximates a geodesic buffer by returning the
// geometry's bounding box, expanded by bufferKm on every side, as a
// polygon; the shape of the geometry itself is not kept. Kilometers are
// converted to degrees at the geometry's own latitude (a locally-flat
// approximation for small buffers; grounded on the teacher's own
// Haversine-based distance math in enrichment_usecase.go rather than a
// full geodesic buffering library, since none exists in the corpus).
func bufferGeometry(g *domain.Geometry, bufferKm float64) (orb.Geometry, error) {
	if g == nil || g.Geom == nil {
		return nil, apperrors.InvalidGeometry("cannot buffer nil geometry", nil)
	}
	if bufferKm <= 0 {
		return g.Geom, nil
	}

	b := g.Bound()
	lat := (b.Min[1] + b.Max[1]) / 2
	latDeg := bufferKm / 111.0
	lonDeg := bufferKm / (111.0 * math.Max(0.1, math.Cos(lat*math.Pi/180)))

	switch t := g.Geom.(type) {
	case orb.Point:
		return bufferBound(orb.Bound{Min: t, Max: t}, lonDeg, latDeg), nil
	default:
		return bufferBound(g.Bound(), lonDeg, latDeg), nil
	}
}

func bufferBound(b orb.Bound, lonDeg, latDeg float64) orb.Polygon {
	min := orb.Point{b.Min[0] - lonDeg, b.Min[1] - latDeg}
	max := orb.Point{b.Max[0] + lonDeg, b.Max[1] + latDeg}
	return orb.Polygon{{
		{min[0], min[1]},
		{max[0], min[1]},
		{max[0], max[1]},
		{min[0], max[1]},
		{min[0], min[1]},
	}}
}
