package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

// Augmenter is the C6 component of spec.md §4.6: it computes statistics,
// derives a representative point when a ski area has no authored one, and
// resolves its location and snow cover history via the (non-fatal)
// Geocoder and SnowCoverArchive collaborators.
type Augmenter struct {
	store     repository.ObjectStore
	geocoder  repository.Geocoder
	snowCover repository.SnowCoverArchive
	logger    *zap.Logger
	concurrency int
}

func NewAugmenter(store repository.ObjectStore, geocoder repository.Geocoder, snowCover repository.SnowCoverArchive, logger *zap.Logger, concurrency int) *Augmenter {
	return &Augmenter{store: store, geocoder: geocoder, snowCover: snowCover, logger: logger, concurrency: concurrency}
}

func (a *Augmenter) AugmentAll(ctx context.Context) error {
	cursor, err := a.store.GetSkiAreas(ctx, false)
	if err != nil {
		return err
	}
	defer cursor.Close()

	var skiAreaKeys []string
	for cursor.Next(ctx) {
		skiAreaKeys = append(skiAreaKeys, cursor.Current().Key)
	}
	if err := cursor.Err(); err != nil {
		return err
	}

	return Pool(ctx, a.concurrency, skiAreaKeys, func(ctx context.Context, key string) error {
		return a.augmentOne(ctx, key)
	})
}

func (a *Augmenter) augmentOne(ctx context.Context, skiAreaKey string) error {
	members, err := a.store.GetObjectsForSkiArea(ctx, skiAreaKey)
	if err != nil {
		return err
	}

	skiAreas, err := a.store.GetSkiAreasByIDs(ctx, []string{skiAreaKey})
	if err != nil {
		return err
	}
	if len(skiAreas) == 0 {
		return nil
	}
	skiArea := skiAreas[0]

	if len(members) == 0 && skiArea.Source != domain.SourceSkimap {
		a.logger.Info("augmenter: removing dangling ski area with no members",
			zap.String("skiArea", skiAreaKey), zap.String("source", string(skiArea.Source)))
		return a.store.Remove(ctx, skiAreaKey)
	}

	stats := domain.NewStatistics()
	var memberGeoms []*domain.Geometry
	pixelIDs := map[string]struct{}{}
	for _, m := range members {
		memberGeoms = append(memberGeoms, m.Geometry)
		switch m.Kind {
		case domain.KindRun:
			for _, activity := range m.Activities {
				difficulty, _ := propertyString(m, "difficulty")
				stats.AddRun(activity, difficulty, lengthInKm(m.Geometry))
			}
			for _, p := range m.PixelIDs {
				pixelIDs[p] = struct{}{}
			}
		case domain.KindLift:
			for _, activity := range m.Activities {
				stats.AddLift(activity)
			}
		}
	}

	if a.snowCover != nil && len(pixelIDs) > 0 {
		stats.SnowCover = a.summarizeSnowCover(ctx, skiAreaKey, pixelIDs)
	}

	delta := repository.ObjectDelta{
		Properties: map[string]interface{}{"statistics": stats},
	}

	point := skiArea.Geometry
	if isSentinelGeometry(point) {
		point = nil
		if derived, err := derivePoint(memberGeoms); err == nil {
			point = domain.NewGeometry(derived)
			delta.Geometry = point
		} else {
			a.logger.Warn("could not derive a representative point", zap.String("skiArea", skiAreaKey), zap.Error(err))
		}
	}

	if a.geocoder != nil && point != nil {
		lon, lat := pointLonLat(point)
		result, geoErr := a.geocoder.Geocode(ctx, lon, lat)
		if geoErr != nil {
			a.logger.Warn("geocoder lookup failed, continuing without location",
				zap.String("skiArea", skiAreaKey), zap.Error(apperrors.ExternalService("geocode failed", geoErr)))
		} else if result != nil {
			delta.Properties["location"] = result
		}
	}

	return a.store.Update(ctx, skiAreaKey, delta)
}

// summarizeSnowCover looks up every distinct pixel a ski area's runs fall
// under and averages the results. A lookup failure is logged and the
// pixel is skipped, per the collaborator's non-fatal contract.
func (a *Augmenter) summarizeSnowCover(ctx context.Context, skiAreaKey string, pixelIDs map[string]struct{}) *domain.SnowCoverSummary {
	var totalDays, sampled int
	var totalCM float64
	for pixelID := range pixelIDs {
		sample, err := a.snowCover.Lookup(ctx, pixelID)
		if err != nil {
			a.logger.Warn("snow cover lookup failed, skipping pixel",
				zap.String("skiArea", skiAreaKey), zap.String("pixel", pixelID),
				zap.Error(apperrors.ExternalService("snow cover lookup failed", err)))
			continue
		}
		if sample == nil {
			continue
		}
		totalDays += sample.DaysOfSnowCover
		totalCM += sample.MeanSnowCoverCM
		sampled++
	}
	if sampled == 0 {
		return nil
	}
	return &domain.SnowCoverSummary{
		PixelsSampled:       sampled,
		MeanDaysOfSnowCover: float64(totalDays) / float64(sampled),
		MeanSnowCoverCM:     totalCM / float64(sampled),
	}
}

func propertyString(obj *domain.Object, key string) (string, bool) {
	if obj.Properties == nil {
		return "", false
	}
	v, ok := obj.Properties[key].(string)
	return v, ok
}

func pointLonLat(g *domain.Geometry) (lon, lat float64) {
	centroid, err := derivePoint([]*domain.Geometry{g})
	if err != nil {
		return 0, 0
	}
	return centroid[0], centroid[1]
}
