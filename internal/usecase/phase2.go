package usecase

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// phase2 removes OSM ski areas whose polygon contains more than one
// SKIMAP ski area's centroid: these are super-clusters (e.g. multi-resort
// ticketing regions) that would corrupt cross-source merging if kept
// (spec.md §4.4 Phase 2).
func (p *Pipeline) phase2(ctx context.Context, summary *Summary) error {
	skiAreas, err := p.allSkiAreas(ctx)
	if err != nil {
		return err
	}

	var skimapCentroids []orb.Point
	for _, sa := range skiAreas {
		if sa.Source != domain.SourceSkimap || sa.Geometry == nil {
			continue
		}
		if c, ok := centroidOf(sa.Geometry); ok {
			skimapCentroids = append(skimapCentroids, c)
		}
	}

	for _, sa := range skiAreas {
		if sa.Source != domain.SourceOpenStreetMap || !sa.Geometry.IsPolygonal() {
			continue
		}

		count := 0
		for _, poly := range polygonsOf(sa.Geometry) {
			for _, c := range skimapCentroids {
				if planar.PolygonContains(poly, c) {
					count++
				}
			}
		}

		if count > 1 {
			p.logger.Info("phase2: removing ambiguous OSM super-polygon",
				zap.String("skiArea", sa.Key), zap.Int("containedSkimapAreas", count))
			if err := p.store.Remove(ctx, sa.Key); err != nil {
				return err
			}
			summary.SkiAreasRemoved++
		}
	}

	return nil
}

func (p *Pipeline) allSkiAreas(ctx context.Context) ([]*domain.SkiArea, error) {
	cursor, err := p.store.GetSkiAreas(ctx, false)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var out []*domain.SkiArea
	for cursor.Next(ctx) {
		out = append(out, domain.SkiAreaFromObject(cursor.Current()))
	}
	return out, cursor.Err()
}

func centroidOf(g *domain.Geometry) (orb.Point, bool) {
	switch t := g.Geom.(type) {
	case orb.Point:
		return t, true
	case orb.Polygon:
		c, _ := planar.CentroidArea(t)
		return c, true
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
			return orb.Point{}, false
		}
		return orb.Point{sumX / sumW, sumY / sumW}, true
	default:
		return orb.Point{}, false
	}
}

func polygonsOf(g *domain.Geometry) []orb.Polygon {
	switch t := g.Geom.(type) {
	case orb.Polygon:
		return []orb.Polygon{t}
	case orb.MultiPolygon:
		return []orb.Polygon(t)
	default:
		return nil
	}
}
