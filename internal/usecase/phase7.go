package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
)

// phase7 repeatedly takes the next orphan run (isBasisForNewSkiArea=true)
// and generates a brand-new ski area from its traversal neighborhood, per
// spec.md §4.4 Phase 7. It stops once no orphan run remains.
func (p *Pipeline) phase7(ctx context.Context, summary *Summary) error {
	var lastKey string
	for {
		run, err := p.store.GetNextUnassignedRun(ctx)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}

		if run.Key == lastKey {
			p.logger.Warn("phase7: same orphan run returned twice in a row, forcing isBasisForNewSkiArea=false",
				zap.String("run", run.Key))
			if err := p.clearBasisFlag(ctx, run); err != nil {
				return err
			}
			lastKey = ""
			continue
		}
		lastKey = run.Key

		if err := p.phase7One(ctx, run, summary); err != nil {
			return err
		}
	}
}

func (p *Pipeline) phase7One(ctx context.Context, run *domain.Run, summary *Summary) error {
	sc := domain.NewSearchContext(run.Activities, domain.SearchIntersects, p.cfg.MaxTraversalBufferKm)
	found, err := Walk(ctx, p.store, &run.Object, sc)
	if err != nil {
		return err
	}

	activities := deriveActivitiesFromMembers(found)
	members := found

	if containsActivity(activities, domain.ActivityDownhill) && !anyLift(found) {
		activities = removeActivity(activities, domain.ActivityDownhill)
		members = filterByActivities(found, activities)
	}

	if len(activities) == 0 || len(members) == 0 {
		return p.clearBasisFlag(ctx, run)
	}

	var geoms []*domain.Geometry
	for _, m := range members {
		geoms = append(geoms, m.Geometry)
	}
	point, err := derivePoint(geoms)
	if err != nil {
		p.logger.Warn("phase7: could not derive a point for generated ski area, abandoning orphan run",
			zap.String("run", run.Key), zap.Error(err))
		return p.clearBasisFlag(ctx, run)
	}

	newKey := p.ids.NewID()
	skiArea := &domain.Object{
		Key:        newKey,
		Kind:       domain.KindSkiArea,
		Source:     domain.SourceGenerated,
		Geometry:   domain.NewGeometry(point),
		Activities: activities,
		Flags:      domain.Flags{IsGenerated: true},
	}
	if err := p.store.Save(ctx, skiArea); err != nil {
		return err
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Key
	}
	if err := p.store.MarkObjectsAsPartOfSkiArea(ctx, newKey, keys, false); err != nil {
		return err
	}

	summary.SkiAreasGenerated++
	p.logger.Info("phase7: generated ski area from orphan run",
		zap.String("skiArea", newKey), zap.String("seedRun", run.Key), zap.Int("members", len(members)))
	return nil
}

func (p *Pipeline) clearBasisFlag(ctx context.Context, run *domain.Run) error {
	flags := run.Flags
	flags.IsBasisForNewSkiArea = false
	return p.store.Update(ctx, run.Key, repository.ObjectDelta{Flags: &flags})
}

func containsActivity(activities []domain.Activity, target domain.Activity) bool {
	for _, a := range activities {
		if a == target {
			return true
		}
	}
	return false
}

func removeActivity(activities []domain.Activity, target domain.Activity) []domain.Activity {
	var out []domain.Activity
	for _, a := range activities {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}

func anyLift(objs []*domain.Object) bool {
	for _, o := range objs {
		if o.Kind == domain.KindLift {
			return true
		}
	}
	return false
}

func filterByActivities(members []*domain.Object, keep []domain.Activity) []*domain.Object {
	keepSet := map[domain.Activity]bool{}
	for _, a := range keep {
		keepSet[a] = true
	}
	var out []*domain.Object
	for _, m := range members {
		for _, a := range m.Activities {
			if keepSet[a] {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
