package usecase

import (
	"context"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// phase4 assigns nearby (non-containing) membership for OSM ski areas: an
// intersects traversal excluding objects already claimed by another ski
// area. Run strictly sequentially, never as a fan-out, because the
// "not already assigned" predicate races across concurrently-processed
// ski areas otherwise (spec.md §4.4 Phase 4, §5).
func (p *Pipeline) phase4(ctx context.Context) error {
	skiAreas, err := p.allSkiAreas(ctx)
	if err != nil {
		return err
	}

	var osmAreas []*domain.SkiArea
	for _, sa := range skiAreas {
		if sa.Source == domain.SourceOpenStreetMap {
			osmAreas = append(osmAreas, sa)
		}
	}

	return Sequential(ctx, osmAreas, p.assignNearby)
}

// assignNearby is the shared body of phases 4 and 6: identical in
// structure, differing only in which source's remaining ski areas feed it.
// The walk is restricted to sa's own activities so a Nordic-only ski area
// can never absorb a nearby Downhill-only network, and vice versa
// (spec.md §4.3's activity filter).
func (p *Pipeline) assignNearby(ctx context.Context, sa *domain.SkiArea) error {
	sc := domain.NewSearchContext(sa.Activities, domain.SearchIntersects, p.cfg.MaxTraversalBufferKm)
	sc.ExcludeObjectsAlreadyInSkiArea = true

	found, err := Walk(ctx, p.store, &sa.Object, sc)
	if err != nil {
		return err
	}

	var keys []string
	for _, obj := range found {
		if obj.Key == sa.Key {
			continue
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return nil
	}

	return p.store.MarkObjectsAsPartOfSkiArea(ctx, sa.Key, keys, false)
}
