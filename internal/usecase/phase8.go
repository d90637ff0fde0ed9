package usecase

import (
	"context"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// sentinelLongitude and sentinelLatitude mark the placeholder point OSM
// site-relation ski areas are imported with before they have a real
// geometry (spec.md §4.4 Phase 8): [360, 360, <id>], chosen because 360
// degrees is never a valid coordinate.
const (
	sentinelLongitude = 360
	sentinelLatitude  = 360
)

// phase8 runs the C6 Augmenter over every ski area — giving seeded-but-
// ungeometried OSM site relations a real point — then removes any ski
// area that still carries the sentinel geometry afterward, per spec.md
// §4.4 Phase 8.
func (p *Pipeline) phase8(ctx context.Context, summary *Summary) error {
	if p.augmenter != nil {
		if err := p.augmenter.AugmentAll(ctx); err != nil {
			return err
		}
	}

	skiAreas, err := p.allSkiAreas(ctx)
	if err != nil {
		return err
	}

	for _, sa := range skiAreas {
		if !isSentinelGeometry(sa.Geometry) {
			continue
		}
		p.logger.Info("phase8: removing ski area still carrying sentinel geometry", zap.String("skiArea", sa.Key))
		if err := p.store.Remove(ctx, sa.Key); err != nil {
			return err
		}
		summary.SkiAreasRemoved++
	}
	return nil
}

func isSentinelGeometry(g *domain.Geometry) bool {
	if g == nil || g.Geom == nil {
		return true
	}
	pt, ok := g.Geom.(orb.Point)
	if !ok {
		return false
	}
	return pt[0] == sentinelLongitude && pt[1] == sentinelLatitude
}
