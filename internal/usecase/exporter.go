package usecase

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
)

// Exporter is the C7 component of spec.md §4.7: it streams each kind's
// ski areas, lifts and runs out as GeoJSON features, cross-linking every
// lift and run with a summary of the ski area(s) it ended up a member of.
// Spots are not exported.
type Exporter struct {
	store repository.ObjectStore
}

func NewExporter(store repository.ObjectStore) *Exporter {
	return &Exporter{store: store}
}

type FeatureWriter func(*geojson.Feature) error

func (e *Exporter) ExportSkiAreas(ctx context.Context, write FeatureWriter) error {
	return e.exportKind(ctx, domain.KindSkiArea, nil, write)
}

func (e *Exporter) ExportLifts(ctx context.Context, write FeatureWriter) error {
	return e.exportKind(ctx, domain.KindLift, e.skiAreaSummaries, write)
}

func (e *Exporter) ExportRuns(ctx context.Context, write FeatureWriter) error {
	return e.exportKind(ctx, domain.KindRun, e.skiAreaSummaries, write)
}

func (e *Exporter) exportKind(ctx context.Context, kind domain.Kind, summarize func(context.Context, []string) ([]domain.SkiAreaSummary, error), write FeatureWriter) error {
	cursor, err := objectCursorForKind(ctx, e.store, kind)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for cursor.Next(ctx) {
		obj := cursor.Current()
		feature := geojson.NewFeature(obj.Geometry.Geom)
		for k, v := range obj.Properties {
			feature.Properties[k] = v
		}
		feature.ID = obj.Key

		if summarize != nil && len(obj.SkiAreas) > 0 {
			summaries, err := summarize(ctx, obj.SkiAreas)
			if err != nil {
				return err
			}
			feature.Properties["skiAreas"] = summaries
		}

		if err := write(feature); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func objectCursorForKind(ctx context.Context, store repository.ObjectStore, kind domain.Kind) (repository.ObjectCursor, error) {
	if kind == domain.KindSkiArea {
		return store.GetSkiAreas(ctx, true)
	}
	return store.GetObjectsByKind(ctx, kind)
}

func (e *Exporter) skiAreaSummaries(ctx context.Context, ids []string) ([]domain.SkiAreaSummary, error) {
	skiAreas, err := e.store.GetSkiAreasByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SkiAreaSummary, 0, len(skiAreas))
	for _, sa := range skiAreas {
		out = append(out, domain.SkiAreaSummary{
			ID:         sa.Key,
			Name:       sa.Name,
			Activities: sa.Activities,
			Status:     sa.Status,
		})
	}
	return out, nil
}
