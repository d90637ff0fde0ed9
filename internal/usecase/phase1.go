package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
)

// phase1 derives activities and geometry for seeded ski areas: those
// imported with pre-populated members (site relations) but no activities
// of their own yet (spec.md §4.4 Phase 1).
func (p *Pipeline) phase1(ctx context.Context) error {
	cursor, err := p.store.GetSkiAreas(ctx, false)
	if err != nil {
		return err
	}
	defer cursor.Close()

	var seeded []string
	for cursor.Next(ctx) {
		sa := cursor.Current()
		if len(sa.Activities) == 0 {
			seeded = append(seeded, sa.Key)
		}
	}
	if err := cursor.Err(); err != nil {
		return err
	}

	return Pool(ctx, p.cfg.PhaseConcurrency, seeded, p.phase1One)
}

func (p *Pipeline) phase1One(ctx context.Context, skiAreaKey string) error {
	members, err := p.store.GetObjectsForSkiArea(ctx, skiAreaKey)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	activities := deriveActivitiesFromMembers(members)
	if len(activities) == 0 {
		return nil
	}

	var geoms []*domain.Geometry
	for _, m := range members {
		geoms = append(geoms, m.Geometry)
	}
	point, err := derivePoint(geoms)

	delta := repository.ObjectDelta{Activities: &activities}
	if err == nil {
		delta.Geometry = domain.NewGeometry(point)
	} else {
		p.logger.Warn("phase1: could not derive point geometry", zap.String("skiArea", skiAreaKey), zap.Error(err))
	}

	return p.store.Update(ctx, skiAreaKey, delta)
}

func deriveActivitiesFromMembers(members []*domain.Object) []domain.Activity {
	seen := map[domain.Activity]bool{}
	var activities []domain.Activity
	for _, m := range members {
		for _, a := range m.Activities {
			if !seen[a] {
				seen[a] = true
				activities = append(activities, a)
			}
		}
	}
	return activities
}
