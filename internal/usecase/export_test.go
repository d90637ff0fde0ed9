package usecase

import (
	"github.com/paulmach/orb"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// Exported aliases for this package's unexported geometry helpers, so
// geometry_test.go (package usecase_test, matching the rest of this
// package's tests) can exercise them directly rather than only indirectly
// through the phases that call them.

func DerivePointForTest(members []*domain.Geometry) (orb.Point, error) {
	return derivePoint(members)
}

func LengthInKmForTest(g *domain.Geometry) float64 {
	return lengthInKm(g)
}

func BufferGeometryForTest(g *domain.Geometry, bufferKm float64) (orb.Geometry, error) {
	return bufferGeometry(g, bufferKm)
}

func IsSentinelGeometryForTest(g *domain.Geometry) bool {
	return isSentinelGeometry(g)
}
