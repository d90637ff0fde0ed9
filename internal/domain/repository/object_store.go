// Package repository holds the interfaces the usecase layer depends on:
// the Object Store (C1), Geocoder and SnowCoverArchive (the external
// collaborators of spec.md §6). Concrete implementations live under
// internal/repository/postgres, internal/repository/memstore, and
// internal/infrastructure.
package repository

import (
	"context"

	"github.com/russellporter/openskidata-processor/internal/domain"
)

// ObjectDelta is a partial update: only non-nil fields are applied. Used
// by Update/UpdateMany so callers don't have to read-modify-write a full
// Object just to flip one field.
type ObjectDelta struct {
	Geometry   *domain.Geometry
	Activities *[]domain.Activity
	SkiAreas   *[]string
	Flags      *domain.Flags
	// Properties is merged key-by-key into the object's existing
	// properties map (new keys overwrite same-named old ones); it is
	// never a full replacement, so callers only need to set the keys
	// they're changing.
	Properties map[string]interface{}
}

// ObjectCursor iterates a result set. A MaterializedCursor loads its
// result up front and is safe to iterate while the underlying store is
// mutated. A StreamingCursor keeps a server-side cursor open in key order
// and is NOT safe to iterate concurrently with a mutation against the same
// store connection — the postgres implementation panics if one is
// attempted (see postgres.DB.assertNotStreaming), since Go's type system
// has no way to forbid this statically without generics machinery heavier
// than this codebase's plain repository style.
type ObjectCursor interface {
	Next(ctx context.Context) bool
	Current() *domain.Object
	Err() error
	Close() error
}

// ObjectStore is the C1 component of spec.md §4.1: spatial CRUD plus the
// containment/nearby/assignment queries the Clustering Pipeline drives.
type ObjectStore interface {
	Save(ctx context.Context, obj *domain.Object) error
	SaveMany(ctx context.Context, objs []*domain.Object) error

	Update(ctx context.Context, key string, delta ObjectDelta) error
	UpdateMany(ctx context.Context, keys []string, delta ObjectDelta) error

	Remove(ctx context.Context, key string) error

	// GetSkiAreas returns a cursor over every Kind=SkiArea object.
	// useBatching=true requests a StreamingCursor (keyset-paginated,
	// ORDER BY key); useBatching=false requests a MaterializedCursor.
	GetSkiAreas(ctx context.Context, useBatching bool) (ObjectCursor, error)
	GetSkiAreasByIDs(ctx context.Context, keys []string) ([]*domain.SkiArea, error)

	// FindNearbyObjects returns objects whose geometry intersects or is
	// covered by the buffered query geometry. A non-empty activities
	// filters the result to objects that either carry no activities of
	// their own or share at least one activity with it (spec.md §4.3);
	// pass nil to skip activity filtering entirely. Returns (nil, nil)
	// and logs on an invalid-geometry PostGIS error rather than
	// propagating it, per spec.md §7.
	FindNearbyObjects(ctx context.Context, geom *domain.Geometry, bufferKm float64, kinds []domain.Kind, activities []domain.Activity) ([]*domain.Object, error)

	GetObjectsForSkiArea(ctx context.Context, skiAreaKey string) ([]*domain.Object, error)

	// GetObjectsByKind streams every object of the given kind in key
	// order, for the Exporter (C7), which has no kind-specific cursor
	// constructor of its own beyond GetSkiAreas.
	GetObjectsByKind(ctx context.Context, kind domain.Kind) (ObjectCursor, error)

	// MarkObjectsAsPartOfSkiArea assigns the given ski area to every
	// object in keys, in a single transaction with keys sorted first to
	// fix lock acquisition order across concurrent phase workers.
	// isInSkiAreaPolygon is ORed onto each object's existing flag value
	// (spec.md P4: the flag only ever grows true, never flips back).
	MarkObjectsAsPartOfSkiArea(ctx context.Context, skiAreaKey string, keys []string, isInSkiAreaPolygon bool) error

	// GetNextUnassignedRun returns the lowest-keyed Kind=Run object still
	// flagged IsBasisForNewSkiArea, or (nil, nil) when none remain. Returns
	// a PipelineInvariantError instead if that run has an empty Activities
	// set (callers must never see one).
	GetNextUnassignedRun(ctx context.Context) (*domain.Run, error)

	// BuildIndexes creates the spatial/GIN indexes after a bulk load, per
	// spec.md §4.2 ("indexes are built after bulk insert for speed").
	BuildIndexes(ctx context.Context) error
}

// Geocoder resolves a point to a human-readable location. Spec.md §6: the
// clustering engine calls it zero or more times per ski area and treats a
// failure as non-fatal (ExternalServiceError, logged and swallowed).
type Geocoder interface {
	Geocode(ctx context.Context, lon, lat float64) (*domain.GeocodeResult, error)
}

// SnowCoverArchive resolves a pixel ID to historical snow-cover data.
// Same non-fatal failure contract as Geocoder.
type SnowCoverArchive interface {
	Lookup(ctx context.Context, pixelID string) (*domain.SnowCoverSample, error)
}
