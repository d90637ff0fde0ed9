package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/config"
	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/pkg/uuidgen"
	"github.com/russellporter/openskidata-processor/internal/repository/memstore"
	"github.com/russellporter/openskidata-processor/internal/usecase"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxTraversalBufferKm: 1,
		SkiAreaMergeBufferKm: 1,
		MaxStorageRetries:    3,
		RetryBaseDelay:       time.Millisecond,
		RetryMaxDelay:        10 * time.Millisecond,
		PhaseConcurrency:     2,
	}
}

// TestPipeline_GeneratesSkiAreaFromOrphanRun covers spec.md §8's simplest
// scenario: a single downhill run with a lift nearby and no containing
// ski area anywhere gets phase7-generated into a brand new one.
func TestPipeline_GeneratesSkiAreaFromOrphanRun(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	run := &domain.Object{
		Key:        "osm:run:1",
		Kind:       domain.KindRun,
		Geometry:   domain.NewGeometry(orb.LineString{{10, 46}, {10.001, 46.001}}),
		Activities: []domain.Activity{domain.ActivityDownhill},
		Flags:      domain.Flags{IsBasisForNewSkiArea: true},
	}
	lift := &domain.Object{
		Key:        "osm:lift:1",
		Kind:       domain.KindLift,
		Geometry:   domain.NewGeometry(orb.LineString{{10.001, 46.001}, {10.002, 46.002}}),
		Activities: []domain.Activity{domain.ActivityDownhill},
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{run, lift}))

	pipeline := usecase.NewPipeline(store, uuidgen.NewFixed("generated-ski-area-1"), nil, zap.NewNop(), testPipelineConfig())
	summary, err := pipeline.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkiAreasGenerated)

	skiAreas, err := store.GetSkiAreasByIDs(ctx, []string{"generated-ski-area-1"})
	require.NoError(t, err)
	require.Len(t, skiAreas, 1)
	assert.Equal(t, domain.SourceGenerated, skiAreas[0].Source)
	assert.True(t, skiAreas[0].Flags.IsGenerated)

	members, err := store.GetObjectsForSkiArea(ctx, "generated-ski-area-1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

// TestPipeline_DownhillRunWithoutLiftDropsActivityAndIsAbandoned covers
// the phase7 rule that a downhill-only orphan run with no lift anywhere
// in its traversal neighborhood never becomes a generated ski area.
func TestPipeline_DownhillRunWithoutLiftDropsActivityAndIsAbandoned(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	run := &domain.Object{
		Key:        "osm:run:2",
		Kind:       domain.KindRun,
		Geometry:   domain.NewGeometry(orb.LineString{{20, 50}, {20.001, 50.001}}),
		Activities: []domain.Activity{domain.ActivityDownhill},
		Flags:      domain.Flags{IsBasisForNewSkiArea: true},
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{run}))

	pipeline := usecase.NewPipeline(store, uuidgen.New(), nil, zap.NewNop(), testPipelineConfig())
	summary, err := pipeline.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, summary.SkiAreasGenerated)

	cursor, err := store.GetObjectsByKind(ctx, domain.KindRun)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(ctx))
	assert.False(t, cursor.Current().Flags.IsBasisForNewSkiArea)
}

// TestPipeline_MergesOverlappingOSMAndSkimapSkiAreas covers phase5: an
// OSM and a SKIMAP ski area covering the same location are merged into
// one record, with the SKIMAP one removed.
func TestPipeline_MergesOverlappingOSMAndSkimapSkiAreas(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	osm := &domain.Object{
		Key:        "osm:skiArea:1",
		Kind:       domain.KindSkiArea,
		Source:     domain.SourceOpenStreetMap,
		Geometry:   domain.NewGeometry(orb.Point{10, 46}),
		Activities: []domain.Activity{domain.ActivityDownhill},
		Properties: map[string]interface{}{"name": "OSM Resort"},
	}
	skimap := &domain.Object{
		Key:        "skimap.org:skiArea:1",
		Kind:       domain.KindSkiArea,
		Source:     domain.SourceSkimap,
		Geometry:   domain.NewGeometry(orb.Point{10.0001, 46.0001}),
		Activities: []domain.Activity{domain.ActivityDownhill},
		Properties: map[string]interface{}{"name": "", "websites": []string{"https://skimap.example"}},
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{osm, skimap}))

	pipeline := usecase.NewPipeline(store, uuidgen.New(), nil, zap.NewNop(), testPipelineConfig())
	summary, err := pipeline.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkiAreasMerged)

	remaining, err := store.GetSkiAreasByIDs(ctx, []string{"osm:skiArea:1", "skimap.org:skiArea:1"})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "osm:skiArea:1", remaining[0].Key)
}

// TestPipeline_SkimapAreaClaimsNearbyLiftAndRun covers spec.md §8 scenario
// 1: a SKIMAP point ski area with a lift and a downhill run nearby (no
// OSM counterpart anywhere) is assigned both by phase6, never touching
// phase2/3/4/5.
func TestPipeline_SkimapAreaClaimsNearbyLiftAndRun(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	skiArea := &domain.Object{
		Key:        "skimap.org:skiArea:1",
		Kind:       domain.KindSkiArea,
		Source:     domain.SourceSkimap,
		Geometry:   domain.NewGeometry(orb.Point{11.122066, 47.557111}),
		Activities: []domain.Activity{domain.ActivityDownhill},
	}
	lift := &domain.Object{
		Key:        "osm:lift:1",
		Kind:       domain.KindLift,
		Geometry:   domain.NewGeometry(orb.LineString{{11.1223444, 47.5572422}, {11.1164297, 47.5581563}}),
		Activities: []domain.Activity{domain.ActivityDownhill},
	}
	run := &domain.Object{
		Key:        "osm:run:1",
		Kind:       domain.KindRun,
		Geometry:   domain.NewGeometry(orb.Polygon{{{11.1165, 47.5579}, {11.1171, 47.5579}, {11.1171, 47.5581}, {11.1165, 47.5581}, {11.1165, 47.5579}}}),
		Activities: []domain.Activity{domain.ActivityDownhill},
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{skiArea, lift, run}))

	pipeline := usecase.NewPipeline(store, uuidgen.New(), nil, zap.NewNop(), testPipelineConfig())
	_, err := pipeline.Run(ctx)
	require.NoError(t, err)

	liftRows, err := store.GetObjectsForSkiArea(ctx, skiArea.Key)
	require.NoError(t, err)
	keys := make([]string, len(liftRows))
	for i, o := range liftRows {
		keys[i] = o.Key
	}
	assert.ElementsMatch(t, []string{"osm:lift:1", "osm:run:1"}, keys)

	skiAreas, err := store.GetSkiAreasByIDs(ctx, []string{skiArea.Key})
	require.NoError(t, err)
	require.Len(t, skiAreas, 1)
	assert.Equal(t, []domain.Activity{domain.ActivityDownhill}, skiAreas[0].Activities)
}

// TestPipeline_OrphanNordicLoopIsGeneratedWithoutRequiringALift covers
// spec.md §8 scenario 4: a Nordic run with no lift nearby still becomes a
// generated ski area, since the anyLift requirement in phase7 only
// applies to Downhill.
func TestPipeline_OrphanNordicLoopIsGeneratedWithoutRequiringALift(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	run := &domain.Object{
		Key:        "osm:run:nordic",
		Kind:       domain.KindRun,
		Geometry:   domain.NewGeometry(orb.LineString{{30, 60}, {30.001, 60.001}, {30, 60}}),
		Activities: []domain.Activity{domain.ActivityNordic},
		Flags:      domain.Flags{IsBasisForNewSkiArea: true},
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{run}))

	pipeline := usecase.NewPipeline(store, uuidgen.NewFixed("generated-nordic-1"), nil, zap.NewNop(), testPipelineConfig())
	summary, err := pipeline.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkiAreasGenerated)

	skiAreas, err := store.GetSkiAreasByIDs(ctx, []string{"generated-nordic-1"})
	require.NoError(t, err)
	require.Len(t, skiAreas, 1)
	assert.Equal(t, []domain.Activity{domain.ActivityNordic}, skiAreas[0].Activities)

	members, err := store.GetObjectsForSkiArea(ctx, "generated-nordic-1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

// TestPipeline_AmbiguousOSMSuperPolygonIsRemovedAndSkimapAreasStayIndependent
// covers spec.md §8 scenario 5: an OSM polygon enclosing the centroids of
// two SKIMAP ski areas is removed in phase2, leaving each SKIMAP area to
// proceed on its own.
func TestPipeline_AmbiguousOSMSuperPolygonIsRemovedAndSkimapAreasStayIndependent(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	superPolygon := &domain.Object{
		Key:      "osm:skiArea:super",
		Kind:     domain.KindSkiArea,
		Source:   domain.SourceOpenStreetMap,
		Geometry: domain.NewGeometry(orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}),
	}
	first := &domain.Object{
		Key:      "skimap.org:skiArea:1",
		Kind:     domain.KindSkiArea,
		Source:   domain.SourceSkimap,
		Geometry: domain.NewGeometry(orb.Point{2, 2}),
	}
	second := &domain.Object{
		Key:      "skimap.org:skiArea:2",
		Kind:     domain.KindSkiArea,
		Source:   domain.SourceSkimap,
		Geometry: domain.NewGeometry(orb.Point{8, 8}),
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{superPolygon, first, second}))

	pipeline := usecase.NewPipeline(store, uuidgen.New(), nil, zap.NewNop(), testPipelineConfig())
	summary, err := pipeline.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkiAreasRemoved)

	remaining, err := store.GetSkiAreasByIDs(ctx, []string{superPolygon.Key, first.Key, second.Key})
	require.NoError(t, err)
	var remainingKeys []string
	for _, sa := range remaining {
		remainingKeys = append(remainingKeys, sa.Key)
	}
	assert.NotContains(t, remainingKeys, superPolygon.Key)
	assert.ElementsMatch(t, []string{first.Key, second.Key}, remainingKeys)
}

// TestPipeline_BackcountryRunInsideOSMPolygonIsClaimedByContainment covers
// spec.md §8 scenario 6: a run excluded from normal activity-based
// clustering by its backcountry tagging (modeled here as an empty
// Activities set, the Loader's actual exclusion mechanism) still inherits
// membership from phase3's containment walk, since containment is
// authoritative regardless of activity.
func TestPipeline_BackcountryRunInsideOSMPolygonIsClaimedByContainment(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	skiArea := &domain.Object{
		Key:      "osm:skiArea:1",
		Kind:     domain.KindSkiArea,
		Source:   domain.SourceOpenStreetMap,
		Geometry: domain.NewGeometry(orb.Polygon{{{0, 0}, {0, 0.01}, {0.01, 0.01}, {0.01, 0}, {0, 0}}}),
	}
	backcountryRun := &domain.Object{
		Key:        "osm:run:backcountry",
		Kind:       domain.KindRun,
		Geometry:   domain.NewGeometry(orb.Point{0.005, 0.005}),
		Activities: nil,
		Properties: map[string]interface{}{"grooming": "backcountry"},
	}
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{skiArea, backcountryRun}))

	pipeline := usecase.NewPipeline(store, uuidgen.New(), nil, zap.NewNop(), testPipelineConfig())
	_, err := pipeline.Run(ctx)
	require.NoError(t, err)

	members, err := store.GetObjectsForSkiArea(ctx, skiArea.Key)
	require.NoError(t, err)
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Key
	}
	assert.Contains(t, keys, backcountryRun.Key)
}
