package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// phase3 assigns containment membership for OSM polygon ski areas: a
// fixed-area traversal (contains, not recursing past the first hop) walks
// the polygon, and every real member found is marked with
// isInSkiAreaPolygon=true. A ski area with no real members, or whose found
// lifts+runs are mostly already claimed by a site relation, is removed as
// redundant (spec.md §4.4 Phase 3).
func (p *Pipeline) phase3(ctx context.Context, summary *Summary) error {
	skiAreas, err := p.allSkiAreas(ctx)
	if err != nil {
		return err
	}

	var osmPolygons []*domain.SkiArea
	for _, sa := range skiAreas {
		if sa.Source == domain.SourceOpenStreetMap && sa.Geometry.IsPolygonal() {
			osmPolygons = append(osmPolygons, sa)
		}
	}

	return Sequential(ctx, osmPolygons, func(ctx context.Context, sa *domain.SkiArea) error {
		return p.phase3One(ctx, sa, summary)
	})
}

func (p *Pipeline) phase3One(ctx context.Context, sa *domain.SkiArea, summary *Summary) error {
	sc := domain.NewSearchContext(nil, domain.SearchContains, 0)
	sc.IsFixedSearchArea = true
	sc.FixedSearchAreaKey = sa.Key

	found, err := Walk(ctx, p.store, &sa.Object, sc)
	if err != nil {
		return err
	}

	var members []*domain.Object
	var liftsAndRuns, alreadySited int
	for _, obj := range found {
		if obj.Key == sa.Key {
			continue
		}
		members = append(members, obj)
		if obj.Kind == domain.KindLift || obj.Kind == domain.KindRun {
			liftsAndRuns++
			if len(obj.SkiAreas) > 0 {
				alreadySited++
			}
		}
	}

	redundant := liftsAndRuns > 0 && float64(alreadySited)/float64(liftsAndRuns) > 0.5

	if len(members) == 0 || redundant {
		p.logger.Info("phase3: removing redundant OSM polygon ski area",
			zap.String("skiArea", sa.Key), zap.Int("members", len(members)), zap.Bool("redundant", redundant))
		if err := p.store.Remove(ctx, sa.Key); err != nil {
			return err
		}
		summary.SkiAreasRemoved++
		return nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Key
	}
	return p.store.MarkObjectsAsPartOfSkiArea(ctx, sa.Key, keys, true)
}
