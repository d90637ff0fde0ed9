package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/config"
	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	"github.com/russellporter/openskidata-processor/internal/pkg/uuidgen"
)

// InputFeatures supplies one FeatureIterator per source kind; the caller
// (cmd/processor) is responsible for opening the underlying GeoJSON
// streams and closing them once the returned iterators are exhausted.
type InputFeatures struct {
	SkiAreas FeatureIterator
	Lifts    FeatureIterator
	Runs     FeatureIterator
	Source   domain.Source
}

// OutputWriters receives the exporter's per-kind feature streams.
type OutputWriters struct {
	SkiAreas FeatureWriter
	Lifts    FeatureWriter
	Runs     FeatureWriter
}

// LoadCounts reports how many features were loaded and skipped per kind,
// across every input source (spec.md §7's load summary).
type LoadCounts struct {
	SkiAreasLoaded, SkiAreasSkipped int
	LiftsLoaded, LiftsSkipped       int
	RunsLoaded, RunsSkipped         int
}

// ClusterSkiAreas runs the whole pipeline end to end: load every input
// source into the object store (C2), cluster (C4, with the C6 Augmenter
// wired into phase 8), then export every kind (C7). This is the single
// entry point cmd/processor drives.
func ClusterSkiAreas(
	ctx context.Context,
	store repository.ObjectStore,
	ids uuidgen.Generator,
	geocoder repository.Geocoder,
	snowCover repository.SnowCoverArchive,
	inputs []InputFeatures,
	outputs OutputWriters,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) (*LoadCounts, *Summary, error) {
	loader := NewLoader(store, logger)

	counts := &LoadCounts{}
	for _, in := range inputs {
		if in.SkiAreas != nil {
			loaded, skipped, err := loader.LoadSkiAreas(ctx, in.Source, in.SkiAreas)
			if err != nil {
				return counts, nil, err
			}
			counts.SkiAreasLoaded += loaded
			counts.SkiAreasSkipped += skipped
		}
		if in.Lifts != nil {
			loaded, skipped, err := loader.LoadLifts(ctx, in.Source, in.Lifts)
			if err != nil {
				return counts, nil, err
			}
			counts.LiftsLoaded += loaded
			counts.LiftsSkipped += skipped
		}
		if in.Runs != nil {
			loaded, skipped, err := loader.LoadRuns(ctx, in.Source, in.Runs)
			if err != nil {
				return counts, nil, err
			}
			counts.RunsLoaded += loaded
			counts.RunsSkipped += skipped
		}
	}

	logger.Info("load complete",
		zap.Int("skiAreas", counts.SkiAreasLoaded), zap.Int("skiAreasSkipped", counts.SkiAreasSkipped),
		zap.Int("lifts", counts.LiftsLoaded), zap.Int("liftsSkipped", counts.LiftsSkipped),
		zap.Int("runs", counts.RunsLoaded), zap.Int("runsSkipped", counts.RunsSkipped),
	)

	if err := store.BuildIndexes(ctx); err != nil {
		return counts, nil, err
	}

	augmenter := NewAugmenter(store, geocoder, snowCover, logger, cfg.PhaseConcurrency)

	pipeline := NewPipeline(store, ids, augmenter, logger, cfg)
	summary, err := pipeline.Run(ctx)
	if err != nil {
		return counts, summary, err
	}

	logger.Info("clustering complete",
		zap.Int("skiAreasRemoved", summary.SkiAreasRemoved),
		zap.Int("skiAreasGenerated", summary.SkiAreasGenerated),
		zap.Int("skiAreasMerged", summary.SkiAreasMerged),
	)

	exporter := NewExporter(store)
	if outputs.SkiAreas != nil {
		if err := exporter.ExportSkiAreas(ctx, outputs.SkiAreas); err != nil {
			return counts, summary, err
		}
	}
	if outputs.Lifts != nil {
		if err := exporter.ExportLifts(ctx, outputs.Lifts); err != nil {
			return counts, summary, err
		}
	}
	if outputs.Runs != nil {
		if err := exporter.ExportRuns(ctx, outputs.Runs); err != nil {
			return counts, summary, err
		}
	}

	return counts, summary, nil
}
