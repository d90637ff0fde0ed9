package usecase

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

// Walk is the C3 Traversal Core (spec.md §4.3): a bounded, buffered graph
// walk outward from seed, following FindNearbyObjects edges, never
// revisiting a key, and returning the ordered set of objects discovered
// (including the seed itself as the first element).
//
// When sc.IsFixedSearchArea is set, the walk does not recurse past the
// first hop: every object within the buffer of the fixed search area is
// returned directly without being used as a new seed, since a fixed
// search area already defines the full extent of interest.
func Walk(ctx context.Context, store repository.ObjectStore, seed *domain.Object, sc *domain.SearchContext) ([]*domain.Object, error) {
	if seed == nil {
		return nil, apperrors.PipelineInvariant("traversal started with a nil seed")
	}

	var result []*domain.Object
	queue := []*domain.Object{seed}
	sc.MarkVisited(seed.Key)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		if sc.IsFixedSearchArea && current.Key != sc.FixedSearchAreaKey && current.Key != seed.Key {
			continue
		}

		next, err := expandFrom(ctx, store, current, sc)
		if err != nil {
			return nil, err
		}
		for _, n := range next {
			if sc.Visited(n.Key) {
				continue
			}
			if sc.ExcludeObjectsAlreadyInSkiArea && len(n.SkiAreas) > 0 {
				continue
			}
			if len(sc.Activities) > 0 && len(n.Activities) > 0 && !n.HasAnyActivity(sc.Activities) {
				continue
			}
			sc.MarkVisited(n.Key)
			queue = append(queue, n)
		}
	}

	return result, nil
}

// expandFrom queries the store for objects near current. A "contains"
// search type uses no buffer (the spatial predicate alone decides
// membership); "intersects" applies sc.BufferKm, per spec.md §4.3.
func expandFrom(ctx context.Context, store repository.ObjectStore, current *domain.Object, sc *domain.SearchContext) ([]*domain.Object, error) {
	if current.Geometry == nil {
		return nil, nil
	}

	bufferKm := sc.BufferKm
	if sc.SearchType == domain.SearchContains {
		bufferKm = 0
	}

	if !current.Geometry.IsPolygonal() {
		return store.FindNearbyObjects(ctx, current.Geometry, bufferKm, nil, sc.Activities)
	}

	// A polygonal seed (or intermediate ski-area boundary) is split into
	// its constituent polygons before searching, per §4.3, so a
	// MultiPolygon with disjoint parts doesn't let unrelated distant
	// pieces share a single buffered query.
	polys := splitPolygonal(current.Geometry)
	var all []*domain.Object
	seen := map[string]bool{}
	for _, p := range polys {
		found, err := store.FindNearbyObjects(ctx, p, bufferKm, nil, sc.Activities)
		if err != nil {
			return nil, err
		}
		for _, obj := range found {
			if !seen[obj.Key] {
				seen[obj.Key] = true
				all = append(all, obj)
			}
		}
	}
	return all, nil
}

func splitPolygonal(g *domain.Geometry) []*domain.Geometry {
	switch t := g.Geom.(type) {
	case orb.Polygon:
		return []*domain.Geometry{g}
	case orb.MultiPolygon:
		out := make([]*domain.Geometry, 0, len(t))
		for _, poly := range t {
			out = append(out, domain.NewGeometry(poly))
		}
		return out
	default:
		return []*domain.Geometry{g}
	}
}
