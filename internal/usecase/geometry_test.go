package usecase_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/usecase"
)

func TestDerivePoint_SinglePointMemberReturnsItself(t *testing.T) {
	members := []*domain.Geometry{domain.NewGeometry(orb.Point{10, 46})}

	point, err := usecase.DerivePointForTest(members)

	require.NoError(t, err)
	assert.Equal(t, orb.Point{10, 46}, point)
}

func TestDerivePoint_NoMembersIsInvalidGeometry(t *testing.T) {
	_, err := usecase.DerivePointForTest(nil)

	require.Error(t, err)
}

func TestDerivePoint_BiasesTowardNearestVertex(t *testing.T) {
	// A line due north from the origin: the centroid sits at its
	// midpoint, about 556m from either endpoint, so the derived point is
	// the one 100m from the nearest endpoint along the line, landing
	// closer to one end than dead center.
	members := []*domain.Geometry{
		domain.NewGeometry(orb.LineString{{0, 0}, {0, 0.01}}),
	}

	point, err := usecase.DerivePointForTest(members)

	require.NoError(t, err)
	assert.NotEqual(t, orb.Point{0, 0.005}, point)
}

func TestLengthInKm_ExcludesPolygonalGeometry(t *testing.T) {
	poly := domain.NewGeometry(orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}})

	assert.Equal(t, float64(0), usecase.LengthInKmForTest(poly))
}

func TestLengthInKm_LineStringIsPositive(t *testing.T) {
	line := domain.NewGeometry(orb.LineString{{0, 46}, {0, 46.01}})

	length := usecase.LengthInKmForTest(line)

	assert.Greater(t, length, 0.0)
}

func TestBufferGeometry_ZeroBufferReturnsOriginal(t *testing.T) {
	g := domain.NewGeometry(orb.Point{5, 45})

	buffered, err := usecase.BufferGeometryForTest(g, 0)

	require.NoError(t, err)
	assert.Equal(t, orb.Point{5, 45}, buffered)
}

func TestBufferGeometry_NilGeometryIsInvalidGeometry(t *testing.T) {
	_, err := usecase.BufferGeometryForTest(nil, 1)

	require.Error(t, err)
}

func TestBufferGeometry_PositiveBufferExpandsBound(t *testing.T) {
	g := domain.NewGeometry(orb.Point{5, 45})

	buffered, err := usecase.BufferGeometryForTest(g, 1)

	require.NoError(t, err)
	poly, ok := buffered.(orb.Polygon)
	require.True(t, ok)
	bound := poly.Bound()
	assert.Greater(t, bound.Max[0]-bound.Min[0], 0.0)
	assert.Greater(t, bound.Max[1]-bound.Min[1], 0.0)
}
