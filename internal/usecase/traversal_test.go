package usecase_test

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/repository/memstore"
	"github.com/russellporter/openskidata-processor/internal/usecase"
)

func runObject(key string, geom orb.Geometry, activities []domain.Activity, skiAreas []string) *domain.Object {
	return &domain.Object{
		Key:        key,
		Kind:       domain.KindRun,
		Geometry:   domain.NewGeometry(geom),
		Activities: activities,
		SkiAreas:   skiAreas,
	}
}

func TestWalk_DiscoversNearbyRunsBreadthFirst(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	seed := runObject("run:seed", orb.LineString{{10, 46}, {10.001, 46.001}}, []domain.Activity{domain.ActivityDownhill}, nil)
	near := runObject("run:near", orb.LineString{{10.001, 46.001}, {10.002, 46.002}}, []domain.Activity{domain.ActivityDownhill}, nil)

	require.NoError(t, store.SaveMany(ctx, []*domain.Object{seed, near}))

	sc := domain.NewSearchContext([]domain.Activity{domain.ActivityDownhill}, domain.SearchIntersects, 1)
	found, err := usecase.Walk(ctx, store, seed, sc)

	require.NoError(t, err)
	keys := keysOf(found)
	assert.Contains(t, keys, "run:seed")
	assert.Contains(t, keys, "run:near")
}

func TestWalk_NeverRevisitsAnObject(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	seed := runObject("run:seed", orb.LineString{{10, 46}, {10.001, 46.001}}, []domain.Activity{domain.ActivityDownhill}, nil)
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{seed}))

	sc := domain.NewSearchContext([]domain.Activity{domain.ActivityDownhill}, domain.SearchIntersects, 1)
	found, err := usecase.Walk(ctx, store, seed, sc)

	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestWalk_ExcludesObjectsAlreadyInSkiAreaWhenFlagSet(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	seed := runObject("run:seed", orb.LineString{{10, 46}, {10.001, 46.001}}, []domain.Activity{domain.ActivityDownhill}, nil)
	claimed := runObject("run:claimed", orb.LineString{{10.001, 46.001}, {10.002, 46.002}}, []domain.Activity{domain.ActivityDownhill}, []string{"osm:skiArea:1"})

	require.NoError(t, store.SaveMany(ctx, []*domain.Object{seed, claimed}))

	sc := domain.NewSearchContext([]domain.Activity{domain.ActivityDownhill}, domain.SearchIntersects, 1)
	sc.ExcludeObjectsAlreadyInSkiArea = true
	found, err := usecase.Walk(ctx, store, seed, sc)

	require.NoError(t, err)
	assert.NotContains(t, keysOf(found), "run:claimed")
}

func TestWalk_FiltersByActivity(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	seed := runObject("run:seed", orb.LineString{{10, 46}, {10.001, 46.001}}, []domain.Activity{domain.ActivityDownhill}, nil)
	nordic := runObject("run:nordic", orb.LineString{{10.001, 46.001}, {10.002, 46.002}}, []domain.Activity{domain.ActivityNordic}, nil)

	require.NoError(t, store.SaveMany(ctx, []*domain.Object{seed, nordic}))

	sc := domain.NewSearchContext([]domain.Activity{domain.ActivityDownhill}, domain.SearchIntersects, 1)
	found, err := usecase.Walk(ctx, store, seed, sc)

	require.NoError(t, err)
	assert.NotContains(t, keysOf(found), "run:nordic")
}

func TestWalk_FixedSearchAreaDoesNotRecursePastFirstHop(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	poly := orb.Polygon{{{10, 46}, {10, 46.01}, {10.01, 46.01}, {10.01, 46}, {10, 46}}}
	skiArea := &domain.Object{Key: "osm:skiArea:1", Kind: domain.KindSkiArea, Geometry: domain.NewGeometry(poly)}
	inside := runObject("run:inside", orb.Point{10.005, 46.005}, []domain.Activity{domain.ActivityDownhill}, nil)
	require.NoError(t, store.SaveMany(ctx, []*domain.Object{skiArea, inside}))

	sc := domain.NewSearchContext(nil, domain.SearchContains, 0)
	sc.IsFixedSearchArea = true
	sc.FixedSearchAreaKey = skiArea.Key

	found, err := usecase.Walk(ctx, store, skiArea, sc)

	require.NoError(t, err)
	assert.Contains(t, keysOf(found), "run:inside")
}

func TestWalk_NilSeedIsPipelineInvariant(t *testing.T) {
	store := memstore.New()
	sc := domain.NewSearchContext([]domain.Activity{domain.ActivityDownhill}, domain.SearchIntersects, 1)

	_, err := usecase.Walk(context.Background(), store, nil, sc)

	require.Error(t, err)
}

func keysOf(objs []*domain.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Key
	}
	return out
}
