package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/config"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
	"github.com/russellporter/openskidata-processor/internal/pkg/retry"
	"github.com/russellporter/openskidata-processor/internal/pkg/uuidgen"
)

// Pipeline is the C4 Clustering Pipeline (spec.md §4.4): eight ordered
// phases, run strictly in sequence, each reading (and some writing) the
// object store.
type Pipeline struct {
	store     repository.ObjectStore
	ids       uuidgen.Generator
	augmenter *Augmenter
	logger    *zap.Logger
	cfg       config.PipelineConfig
}

// Summary is the "counts of removed ski areas and generated ski areas"
// the public API logs on a clean run (spec.md §7).
type Summary struct {
	SkiAreasRemoved   int
	SkiAreasGenerated int
	SkiAreasMerged    int
}

// NewPipeline wires the eight phases. augmenter runs the C6 Augmenter
// (statistics, geocoding, point derivation) between phase 7 and the
// sentinel-geometry cleanup that phase 8 performs, per spec.md §4.4 Phase
// 8's "after augmentation gives them a real geometry" ordering.
func NewPipeline(store repository.ObjectStore, ids uuidgen.Generator, augmenter *Augmenter, logger *zap.Logger, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{store: store, ids: ids, augmenter: augmenter, logger: logger, cfg: cfg}
}

type phaseFunc func(context.Context) error

// Run executes phases 1 through 8 in strict order. The phase driver
// retries TransientStorageError, logs-and-continues on InvalidGeometryError
// (already swallowed inside the store, this is a defensive second catch),
// and aborts the whole run on anything else — per spec.md §7's
// propagation policy.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	phases := []struct {
		name string
		fn   phaseFunc
	}{
		{"phase1_derive_seeded_activities", p.phase1},
		{"phase2_remove_ambiguous_osm_superpolygons", func(ctx context.Context) error { return p.phase2(ctx, summary) }},
		{"phase3_assign_containment_osm", func(ctx context.Context) error { return p.phase3(ctx, summary) }},
		{"phase4_assign_nearby_osm", p.phase4},
		{"phase5_merge_skimap_into_osm", func(ctx context.Context) error { return p.phase5(ctx, summary) }},
		{"phase6_assign_nearby_skimap", p.phase6},
		{"phase7_generate_from_orphan_runs", func(ctx context.Context) error { return p.phase7(ctx, summary) }},
		{"phase8_remove_sentinel_geometry_ski_areas", func(ctx context.Context) error { return p.phase8(ctx, summary) }},
	}

	for _, phase := range phases {
		logPhase(p.logger, phase.name, 0)
		if err := p.runPhase(ctx, phase.fn); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func (p *Pipeline) runPhase(ctx context.Context, fn phaseFunc) error {
	err := retry.Do(ctx, p.cfg.MaxStorageRetries, p.cfg.RetryBaseDelay, p.cfg.RetryMaxDelay, func() error {
		return fn(ctx)
	})
	if err == nil {
		return nil
	}
	if apperrors.Classify(err) == apperrors.KindInvalidGeometry {
		p.logger.Warn("phase encountered invalid geometry, continuing", zap.Error(err))
		return nil
	}
	return err
}
