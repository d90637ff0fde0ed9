// Package memstore is an in-memory repository.ObjectStore used by the
// usecase package's tests. It plays the role the teacher's
// internal/repository/postgres/testhelpers package plays for Postgres
// integration tests, swapped for an in-process fake so pipeline/scenario
// tests run deterministically without a live PostGIS instance.
//
// Its spatial predicate is intentionally simple: two geometries count as
// near when their bounding boxes, one expanded by the buffer, overlap;
// exact shapes and polygon containment do not change the result. That is
// sufficient for the small, explicit geometries used in tests, not a
// general-purpose spatial engine.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

type Store struct {
	mu      sync.Mutex
	objects map[string]*domain.Object
	// streaming mirrors postgres.DB's guard: a streaming cursor open
	// against this store makes mutation calls panic.
	streaming bool
}

func New() *Store {
	return &Store{objects: make(map[string]*domain.Object)}
}

func clone(o *domain.Object) *domain.Object {
	c := *o
	c.Activities = append([]domain.Activity(nil), o.Activities...)
	c.Uses = append([]domain.Use(nil), o.Uses...)
	c.SkiAreas = append([]string(nil), o.SkiAreas...)
	return &c
}

func (s *Store) assertNotStreaming() {
	if s.streaming {
		panic("memstore: mutation attempted while a streaming cursor is open")
	}
}

func (s *Store) Save(ctx context.Context, obj *domain.Object) error {
	return s.SaveMany(ctx, []*domain.Object{obj})
}

func (s *Store) SaveMany(ctx context.Context, objs []*domain.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertNotStreaming()
	for _, obj := range objs {
		if obj.Geometry == nil || obj.Geometry.Geom == nil {
			continue
		}
		s.objects[obj.Key] = clone(obj)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key string, delta repository.ObjectDelta) error {
	return s.UpdateMany(ctx, []string{key}, delta)
}

func (s *Store) UpdateMany(ctx context.Context, keys []string, delta repository.ObjectDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertNotStreaming()

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	for _, key := range sorted {
		obj, ok := s.objects[key]
		if !ok {
			continue
		}
		if delta.Geometry != nil {
			obj.Geometry = delta.Geometry
		}
		if delta.Activities != nil {
			obj.Activities = append([]domain.Activity(nil), (*delta.Activities)...)
		}
		if delta.SkiAreas != nil {
			obj.SkiAreas = append([]string(nil), (*delta.SkiAreas)...)
		}
		if delta.Flags != nil {
			obj.Flags = *delta.Flags
		}
		if delta.Properties != nil {
			if obj.Properties == nil {
				obj.Properties = map[string]interface{}{}
			}
			for k, v := range delta.Properties {
				obj.Properties[k] = v
			}
		}
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertNotStreaming()

	delete(s.objects, key)
	for _, obj := range s.objects {
		filtered := obj.SkiAreas[:0]
		for _, sa := range obj.SkiAreas {
			if sa != key {
				filtered = append(filtered, sa)
			}
		}
		obj.SkiAreas = filtered
	}
	return nil
}

func (s *Store) GetSkiAreas(ctx context.Context, useBatching bool) (repository.ObjectCursor, error) {
	return s.cursorForKind(domain.KindSkiArea, useBatching)
}

func (s *Store) GetObjectsByKind(ctx context.Context, kind domain.Kind) (repository.ObjectCursor, error) {
	return s.cursorForKind(kind, true)
}

func (s *Store) cursorForKind(kind domain.Kind, useBatching bool) (repository.ObjectCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, obj := range s.objects {
		if obj.Kind == kind {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if useBatching {
		s.streaming = true
	}
	return &cursor{store: s, keys: keys, idx: -1, streaming: useBatching}, nil
}

type cursor struct {
	store     *Store
	keys      []string
	idx       int
	current   *domain.Object
	streaming bool
	closed    bool
}

func (c *cursor) Next(ctx context.Context) bool {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.idx++
	if c.idx >= len(c.keys) {
		c.current = nil
		return false
	}
	c.current = clone(c.store.objects[c.keys[c.idx]])
	return true
}

func (c *cursor) Current() *domain.Object { return c.current }
func (c *cursor) Err() error               { return nil }
func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.streaming {
		c.store.mu.Lock()
		c.store.streaming = false
		c.store.mu.Unlock()
	}
	return nil
}

func (s *Store) GetSkiAreasByIDs(ctx context.Context, keys []string) ([]*domain.SkiArea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.SkiArea, 0, len(keys))
	for _, k := range keys {
		obj, ok := s.objects[k]
		if !ok || obj.Kind != domain.KindSkiArea {
			continue
		}
		sa := domain.SkiAreaFromObject(clone(obj))
		out = append(out, sa)
	}
	return out, nil
}

func (s *Store) FindNearbyObjects(ctx context.Context, geom *domain.Geometry, bufferKm float64, kinds []domain.Kind, activities []domain.Activity) ([]*domain.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if geom == nil || geom.Geom == nil {
		return nil, nil
	}

	kindSet := map[domain.Kind]bool{}
	for _, k := range kinds {
		kindSet[k] = true
	}

	bufferDeg := bufferKm / 111.0 // rough km->degree conversion, adequate for small test fixtures

	var out []*domain.Object
	for _, obj := range s.objects {
		if len(kinds) > 0 && !kindSet[obj.Kind] {
			continue
		}
		if len(activities) > 0 && len(obj.Activities) > 0 && !obj.HasAnyActivity(activities) {
			continue
		}
		if obj.Geometry == nil || obj.Geometry.Geom == nil {
			continue
		}
		if geometriesNear(geom.Geom, obj.Geometry.Geom, bufferDeg) {
			out = append(out, clone(obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func geometriesNear(a, b orb.Geometry, bufferDeg float64) bool {
	ba := a.Bound()
	bb := b.Bound()
	ba = orb.Bound{
		Min: orb.Point{ba.Min[0] - bufferDeg, ba.Min[1] - bufferDeg},
		Max: orb.Point{ba.Max[0] + bufferDeg, ba.Max[1] + bufferDeg},
	}
	if !ba.Intersects(bb) {
		return false
	}
	if poly, ok := a.(orb.Polygon); ok {
		if containsAnyVertex(poly, b) {
			return true
		}
	}
	if mp, ok := a.(orb.MultiPolygon); ok {
		for _, poly := range mp {
			if containsAnyVertex(poly, b) {
				return true
			}
		}
	}
	return true // bounding boxes (buffered) overlap: treat as nearby
}

func containsAnyVertex(poly orb.Polygon, g orb.Geometry) bool {
	for _, pt := range extractPoints(g) {
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

func extractPoints(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.Point:
		return []orb.Point{t}
	case orb.LineString:
		return t
	case orb.MultiLineString:
		var pts []orb.Point
		for _, ls := range t {
			pts = append(pts, ls...)
		}
		return pts
	case orb.Polygon:
		if len(t) > 0 {
			return t[0]
		}
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, poly := range t {
			if len(poly) > 0 {
				pts = append(pts, poly[0]...)
			}
		}
		return pts
	}
	return nil
}

func (s *Store) GetObjectsForSkiArea(ctx context.Context, skiAreaKey string) ([]*domain.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Object
	for _, obj := range s.objects {
		for _, sa := range obj.SkiAreas {
			if sa == skiAreaKey {
				out = append(out, clone(obj))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) MarkObjectsAsPartOfSkiArea(ctx context.Context, skiAreaKey string, keys []string, isInSkiAreaPolygon bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertNotStreaming()

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	for _, key := range sorted {
		obj, ok := s.objects[key]
		if !ok {
			continue
		}
		found := false
		for _, sa := range obj.SkiAreas {
			if sa == skiAreaKey {
				found = true
				break
			}
		}
		if !found {
			obj.SkiAreas = append(obj.SkiAreas, skiAreaKey)
		}
		obj.Flags.IsInSkiAreaPolygon = obj.Flags.IsInSkiAreaPolygon || isInSkiAreaPolygon
		obj.Flags.IsBasisForNewSkiArea = false
	}
	return nil
}

func (s *Store) GetNextUnassignedRun(ctx context.Context) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, obj := range s.objects {
		if obj.Kind == domain.KindRun && obj.Flags.IsBasisForNewSkiArea {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	obj := s.objects[keys[0]]
	if len(obj.Activities) == 0 {
		return nil, apperrors.PipelineInvariant("unassigned run " + obj.Key + " has no activities")
	}

	run := &domain.Run{Object: *clone(obj)}
	if obj.Properties != nil {
		if name, ok := obj.Properties["name"].(string); ok {
			run.Name = name
		}
		if diff, ok := obj.Properties["difficulty"].(string); ok {
			run.Difficulty = diff
		}
	}
	return run, nil
}

func (s *Store) BuildIndexes(ctx context.Context) error {
	return nil
}
