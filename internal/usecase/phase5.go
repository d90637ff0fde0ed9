package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
)

// phase5 merges SKIMAP ski areas into their OSM counterparts: each SKIMAP
// SkiArea's geometry is buffered by SkiAreaMergeBufferKm and searched for
// neighboring ski areas from the other source; any found are merged via
// C5 (spec.md §4.4 Phase 5). A merged key is tracked so a second SKIMAP
// record pointing at the same already-merged OSM target doesn't try to
// re-absorb it as if it were untouched.
func (p *Pipeline) phase5(ctx context.Context, summary *Summary) error {
	skiAreas, err := p.allSkiAreas(ctx)
	if err != nil {
		return err
	}

	var skimapAreas []*domain.SkiArea
	for _, sa := range skiAreas {
		if sa.Source == domain.SourceSkimap {
			skimapAreas = append(skimapAreas, sa)
		}
	}

	absorbed := map[string]bool{}
	for _, sa := range skimapAreas {
		if absorbed[sa.Key] {
			continue
		}
		if err := p.phase5One(ctx, sa, absorbed, summary); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) phase5One(ctx context.Context, sa *domain.SkiArea, absorbed map[string]bool, summary *Summary) error {
	neighbors, err := p.store.FindNearbyObjects(ctx, sa.Geometry, p.cfg.SkiAreaMergeBufferKm, []domain.Kind{domain.KindSkiArea}, nil)
	if err != nil {
		return err
	}

	var candidates []*domain.SkiArea
	for _, n := range neighbors {
		if n.Key == sa.Key || n.Source == sa.Source || absorbed[n.Key] {
			continue
		}
		candidates = append(candidates, domain.SkiAreaFromObject(n))
	}
	if len(candidates) == 0 {
		return nil
	}

	primary := candidates[0]
	others := append([]*domain.SkiArea{sa}, candidates[1:]...)

	if err := p.applyMerge(ctx, primary, others); err != nil {
		return err
	}
	for _, o := range others {
		absorbed[o.Key] = true
	}
	summary.SkiAreasMerged++
	p.logger.Info("phase5: merged ski areas", zap.String("primary", primary.Key), zap.Int("absorbed", len(others)))
	return nil
}

// applyMerge runs the pure Merge function then carries out its store-side
// side effects: rewriting every absorbed key's membership references to
// the primary's key, persisting the merged fields onto the primary, and
// removing the non-primary records (spec.md §4.5).
func (p *Pipeline) applyMerge(ctx context.Context, primary *domain.SkiArea, others []*domain.SkiArea) error {
	merged := Merge(primary, others)

	absorbedKeys := make([]string, len(others))
	for i, o := range others {
		absorbedKeys[i] = o.Key
	}

	if err := p.rewriteMembership(ctx, absorbedKeys, primary.Key); err != nil {
		return err
	}

	activities := merged.Activities
	flags := merged.Flags
	delta := repository.ObjectDelta{
		Activities: &activities,
		Flags:      &flags,
		Properties: domain.SkiAreaProperties(merged, map[string]interface{}{"location": nil}),
	}
	if err := p.store.Update(ctx, primary.Key, delta); err != nil {
		return err
	}

	for _, key := range absorbedKeys {
		if err := p.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// rewriteMembership rewrites every object's SkiAreas list that references
// one of the absorbed keys: the absorbed keys are removed and the primary
// key appended idempotently (spec.md §4.5: "remove the absorbed keys,
// append the primary's key (idempotently)").
func (p *Pipeline) rewriteMembership(ctx context.Context, absorbedKeys []string, primaryKey string) error {
	absorbedSet := map[string]bool{}
	for _, k := range absorbedKeys {
		absorbedSet[k] = true
	}

	touched := map[string]*domain.Object{}
	for _, key := range absorbedKeys {
		members, err := p.store.GetObjectsForSkiArea(ctx, key)
		if err != nil {
			return err
		}
		for _, m := range members {
			touched[m.Key] = m
		}
	}

	for key, obj := range touched {
		rewritten := make([]string, 0, len(obj.SkiAreas))
		hasPrimary := false
		for _, sa := range obj.SkiAreas {
			if absorbedSet[sa] {
				continue
			}
			if sa == primaryKey {
				hasPrimary = true
			}
			rewritten = append(rewritten, sa)
		}
		if !hasPrimary {
			rewritten = append(rewritten, primaryKey)
		}
		if err := p.store.Update(ctx, key, repository.ObjectDelta{SkiAreas: &rewritten}); err != nil {
			return err
		}
	}
	return nil
}
