package usecase_test

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/repository/memstore"
	"github.com/russellporter/openskidata-processor/internal/usecase"
)

func featureWithID(id string, geom orb.Geometry, props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(geom)
	f.Properties["id"] = id
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func iteratorOf(features ...*geojson.Feature) usecase.FeatureIterator {
	i := 0
	return func() (*geojson.Feature, bool, error) {
		if i >= len(features) {
			return nil, false, nil
		}
		f := features[i]
		i++
		return f, true, nil
	}
}

func TestLoader_SkiAreaWithNoGeometryGetsSentinelPoint(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	f := featureWithID("skiarea-1", nil, map[string]interface{}{"name": "No Geometry Resort"})
	loaded, skipped, err := loader.LoadSkiAreas(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))

	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 0, skipped)

	cursor, err := store.GetSkiAreas(context.Background(), true)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(context.Background()))
	assert.True(t, usecase.IsSentinelGeometryForTest(cursor.Current().Geometry))
}

func TestLoader_LiftWithoutGeometryIsSkipped(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	f := featureWithID("lift-1", nil, map[string]interface{}{"aerialway": "chair_lift"})
	loaded, skipped, err := loader.LoadLifts(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))

	require.NoError(t, err)
	assert.Equal(t, 0, loaded)
	assert.Equal(t, 1, skipped)
}

func TestLoader_BackcountryRunWithoutSiteRelationIsExcludedFromClustering(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	line := orb.LineString{{10, 46}, {10.001, 46.001}}
	f := featureWithID("run-1", line, map[string]interface{}{
		"piste:type": "downhill",
		"grooming":   "Backcountry",
	})
	loaded, skipped, err := loader.LoadRuns(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 0, skipped)

	cursor, err := store.GetObjectsByKind(context.Background(), domain.KindRun)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(context.Background()))
	run := cursor.Current()
	assert.Empty(t, run.Activities)
	assert.False(t, run.Flags.IsBasisForNewSkiArea)
}

func TestLoader_BackcountryRunAlreadyTiedToSiteIsStillClustered(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	line := orb.LineString{{10, 46}, {10.001, 46.001}}
	f := featureWithID("run-2", line, map[string]interface{}{
		"piste:type": "downhill",
		"grooming":   "Backcountry",
		"skiAreas":   []string{"osm:skiArea:1"},
	})
	_, _, err := loader.LoadRuns(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))
	require.NoError(t, err)

	cursor, err := store.GetObjectsByKind(context.Background(), domain.KindRun)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(context.Background()))
	run := cursor.Current()
	assert.Contains(t, run.Activities, domain.ActivityDownhill)
	assert.False(t, run.Flags.IsBasisForNewSkiArea)
}

func TestLoader_NonBackcountryRunIsBasisForNewSkiAreaWhenUnassigned(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	line := orb.LineString{{10, 46}, {10.001, 46.001}}
	f := featureWithID("run-3", line, map[string]interface{}{"piste:type": "downhill"})
	_, _, err := loader.LoadRuns(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))
	require.NoError(t, err)

	cursor, err := store.GetObjectsByKind(context.Background(), domain.KindRun)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(context.Background()))
	run := cursor.Current()
	assert.True(t, run.Flags.IsBasisForNewSkiArea)
}

func TestLoader_SkitourUseContributesNoActivity(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	line := orb.LineString{{10, 46}, {10.001, 46.001}}
	f := featureWithID("run-4", line, map[string]interface{}{"piste:type": "skitour"})
	_, _, err := loader.LoadRuns(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))
	require.NoError(t, err)

	cursor, err := store.GetObjectsByKind(context.Background(), domain.KindRun)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(context.Background()))
	run := cursor.Current()
	assert.Empty(t, run.Activities)
	assert.False(t, run.Flags.IsBasisForNewSkiArea)
}

func TestLoader_RunCarriesPixelIDsThrough(t *testing.T) {
	store := memstore.New()
	loader := usecase.NewLoader(store, zap.NewNop())

	line := orb.LineString{{10, 46}, {10.001, 46.001}}
	f := featureWithID("run-5", line, map[string]interface{}{
		"piste:type": "downhill",
		"pixelIds":   []string{"px-1", "px-2"},
	})
	_, _, err := loader.LoadRuns(context.Background(), domain.SourceOpenStreetMap, iteratorOf(f))
	require.NoError(t, err)

	cursor, err := store.GetObjectsByKind(context.Background(), domain.KindRun)
	require.NoError(t, err)
	defer cursor.Close()
	require.True(t, cursor.Next(context.Background()))
	assert.ElementsMatch(t, []string{"px-1", "px-2"}, cursor.Current().PixelIDs)
}
