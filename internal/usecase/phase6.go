package usecase

import (
	"context"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// phase6 is identical in structure to phase4, applied to the SKIMAP ski
// areas that remain after phase5's merge pass (spec.md §4.4 Phase 6). Also
// strictly sequential, for the same reason as phase4.
func (p *Pipeline) phase6(ctx context.Context) error {
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

	return Sequential(ctx, skimapAreas, p.assignNearby)
}
