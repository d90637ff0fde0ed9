package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkb"
	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

// objectStore is the PostGIS-backed C1 Object Store. Its SQL idiom
// (sqlx + pq.Array predicates, argument-indexed fmt.Sprintf query
// building, zap-logged errors wrapped as AppErrors) is grounded directly
// on the teacher's poi/boundary repositories.
type objectStore struct {
	db     *DB
	logger *zap.Logger
}

func NewObjectStore(db *DB, logger *zap.Logger) repository.ObjectStore {
	return &objectStore{db: db, logger: logger}
}

type objectRow struct {
	Key               string          `db:"key"`
	Kind              string          `db:"kind"`
	Source            string          `db:"source"`
	Geometry          []byte          `db:"geometry"`
	ElevationGeometry []byte          `db:"elevation_geometry"`
	Activities        pq.StringArray  `db:"activities"`
	Uses              pq.StringArray  `db:"uses"`
	SkiAreas          pq.StringArray  `db:"ski_areas"`
	Flags             []byte          `db:"flags"`
	Properties        []byte          `db:"properties"`
	Name              sql.NullString  `db:"name"`
	Difficulty        sql.NullString  `db:"difficulty"`
	LiftType          sql.NullString  `db:"lift_type"`
}

func (s *objectStore) transientErr(op string, err error) error {
	s.logger.Error("object store operation failed", zap.String("op", op), zap.Error(err))
	return apperrors.TransientStorage(fmt.Sprintf("object store %s failed", op), err)
}

func rowToObject(r *objectRow) (*domain.Object, error) {
	geom, err := wkb.Unmarshal(r.Geometry)
	if err != nil {
		return nil, apperrors.InvalidGeometry("failed to decode geometry", err)
	}

	obj := &domain.Object{
		Key:      r.Key,
		Kind:     domain.Kind(r.Kind),
		Source:   domain.Source(r.Source),
		Geometry: domain.NewGeometry(geom),
		SkiAreas: []string(r.SkiAreas),
	}
	for _, a := range r.Activities {
		obj.Activities = append(obj.Activities, domain.Activity(a))
	}
	for _, u := range r.Uses {
		obj.Uses = append(obj.Uses, domain.Use(u))
	}
	if len(r.ElevationGeometry) > 0 {
		eg, err := wkb.Unmarshal(r.ElevationGeometry)
		if err == nil {
			obj.ElevationGeometry = domain.NewGeometry(eg)
		}
	}
	if len(r.Flags) > 0 {
		_ = json.Unmarshal(r.Flags, &obj.Flags)
	}
	if len(r.Properties) > 0 {
		_ = json.Unmarshal(r.Properties, &obj.Properties)
	}
	return obj, nil
}

func (s *objectStore) Save(ctx context.Context, obj *domain.Object) error {
	return s.SaveMany(ctx, []*domain.Object{obj})
}

func (s *objectStore) SaveMany(ctx context.Context, objs []*domain.Object) error {
	s.db.assertNotStreaming()
	if len(objs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.transientErr("SaveMany.begin", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO objects (key, kind, source, geometry, elevation_geometry, activities, uses, ski_areas, flags, properties, name, difficulty, lift_type)
		VALUES ($1, $2, $3, ST_SetSRID(ST_GeomFromWKB($4), 4326), ST_SetSRID(ST_GeomFromWKB($5), 4326), $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (key) DO UPDATE SET
			kind = EXCLUDED.kind, source = EXCLUDED.source, geometry = EXCLUDED.geometry,
			elevation_geometry = EXCLUDED.elevation_geometry, activities = EXCLUDED.activities,
			uses = EXCLUDED.uses, ski_areas = EXCLUDED.ski_areas, flags = EXCLUDED.flags,
			properties = EXCLUDED.properties, name = EXCLUDED.name, difficulty = EXCLUDED.difficulty,
			lift_type = EXCLUDED.lift_type`

	for _, obj := range objs {
		geomWKB, elevWKB, err := encodeGeometries(obj)
		if err != nil {
			s.logger.Warn("skipping object with invalid geometry", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		flags, _ := json.Marshal(obj.Flags)
		props, _ := json.Marshal(obj.Properties)

		activities := make([]string, len(obj.Activities))
		for i, a := range obj.Activities {
			activities[i] = string(a)
		}
		uses := make([]string, len(obj.Uses))
		for i, u := range obj.Uses {
			uses[i] = string(u)
		}

		name, difficulty, liftType := objectVariantFields(obj)

		if _, err := tx.ExecContext(ctx, q,
			obj.Key, obj.Kind, obj.Source, geomWKB, elevWKB,
			pq.Array(activities), pq.Array(uses), pq.Array(obj.SkiAreas),
			flags, props, name, difficulty, liftType,
		); err != nil {
			tx.Rollback()
			return s.transientErr("SaveMany.exec", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.transientErr("SaveMany.commit", err)
	}
	return nil
}

// objectVariantFields pulls the kind-specific scalar columns off the
// concrete SkiArea/Lift/Run struct embedded behind Properties, since the
// store only ever deals in domain.Object at the SQL layer. Callers that
// need strongly-typed SkiArea/Lift/Run results use GetSkiAreasByIDs or
// reconstruct from Properties.
func objectVariantFields(obj *domain.Object) (name, difficulty, liftType interface{}) {
	if obj.Properties == nil {
		return nil, nil, nil
	}
	return obj.Properties["name"], obj.Properties["difficulty"], obj.Properties["liftType"]
}

func encodeGeometries(obj *domain.Object) (geomWKB, elevWKB []byte, err error) {
	if obj.Geometry == nil || obj.Geometry.Geom == nil {
		return nil, nil, apperrors.InvalidGeometry("object has no geometry", nil)
	}
	geomWKB, err = wkb.Marshal(obj.Geometry.Geom)
	if err != nil {
		return nil, nil, apperrors.InvalidGeometry("failed to encode geometry", err)
	}
	if obj.ElevationGeometry != nil && obj.ElevationGeometry.Geom != nil {
		elevWKB, _ = wkb.Marshal(obj.ElevationGeometry.Geom)
	}
	return geomWKB, elevWKB, nil
}

func (s *objectStore) Update(ctx context.Context, key string, delta repository.ObjectDelta) error {
	return s.UpdateMany(ctx, []string{key}, delta)
}

func (s *objectStore) UpdateMany(ctx context.Context, keys []string, delta repository.ObjectDelta) error {
	s.db.assertNotStreaming()
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	sets := []string{}
	args := []interface{}{}
	argN := 1

	if delta.Geometry != nil {
		geomWKB, err := wkb.Marshal(delta.Geometry.Geom)
		if err != nil {
			return apperrors.InvalidGeometry("failed to encode delta geometry", err)
		}
		sets = append(sets, fmt.Sprintf("geometry = ST_SetSRID(ST_GeomFromWKB($%d), 4326)", argN))
		args = append(args, geomWKB)
		argN++
	}
	if delta.Activities != nil {
		activities := make([]string, len(*delta.Activities))
		for i, a := range *delta.Activities {
			activities[i] = string(a)
		}
		sets = append(sets, fmt.Sprintf("activities = $%d", argN))
		args = append(args, pq.Array(activities))
		argN++
	}
	if delta.SkiAreas != nil {
		sets = append(sets, fmt.Sprintf("ski_areas = $%d", argN))
		args = append(args, pq.Array(*delta.SkiAreas))
		argN++
	}
	if delta.Flags != nil {
		flags, _ := json.Marshal(*delta.Flags)
		sets = append(sets, fmt.Sprintf("flags = $%d", argN))
		args = append(args, flags)
		argN++
	}
	if delta.Properties != nil {
		props, _ := json.Marshal(delta.Properties)
		sets = append(sets, fmt.Sprintf("properties = COALESCE(properties, '{}'::jsonb) || $%d::jsonb", argN))
		args = append(args, props)
		argN++
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, pq.Array(sorted))
	q := fmt.Sprintf("UPDATE objects SET %s WHERE key = ANY($%d)", strings.Join(sets, ", "), argN)

	if err := s.withRetry(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	}); err != nil {
		return s.transientErr("UpdateMany", err)
	}
	return nil
}

func (s *objectStore) Remove(ctx context.Context, key string) error {
	s.db.assertNotStreaming()
	return s.withRetry(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE objects SET ski_areas = array_remove(ski_areas, $1)`, key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE key = $1`, key)
		return err
	})
}

// withRetry runs fn inside one transaction and commits it. It makes a
// single attempt: when fn or the commit fails, the transaction is rolled
// back and that error is returned as is, without retrying.
func (s *objectStore) withRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *objectStore) GetSkiAreasByIDs(ctx context.Context, keys []string) ([]*domain.SkiArea, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	const q = `SELECT key, kind, source, ST_AsBinary(geometry) AS geometry, ST_AsBinary(elevation_geometry) AS elevation_geometry,
		activities, uses, ski_areas, flags, properties, name, difficulty, lift_type
		FROM objects WHERE kind = 'skiArea' AND key = ANY($1)`

	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, q, pq.Array(keys)); err != nil {
		return nil, s.transientErr("GetSkiAreasByIDs", err)
	}

	out := make([]*domain.SkiArea, 0, len(rows))
	for i := range rows {
		obj, err := rowToObject(&rows[i])
		if err != nil {
			s.logger.Warn("skipping ski area with invalid geometry", zap.String("key", rows[i].Key), zap.Error(err))
			continue
		}
		sa := domain.SkiAreaFromObject(obj)
		out = append(out, sa)
	}
	return out, nil
}

func (s *objectStore) GetSkiAreas(ctx context.Context, useBatching bool) (repository.ObjectCursor, error) {
	if useBatching {
		return newStreamingCursor(ctx, s.db, s.logger, "skiArea")
	}
	return newMaterializedCursor(ctx, s.db, s.logger, "skiArea")
}

func (s *objectStore) GetObjectsByKind(ctx context.Context, kind domain.Kind) (repository.ObjectCursor, error) {
	return newStreamingCursor(ctx, s.db, s.logger, string(kind))
}

func (s *objectStore) FindNearbyObjects(ctx context.Context, geom *domain.Geometry, bufferKm float64, kinds []domain.Kind, activities []domain.Activity) ([]*domain.Object, error) {
	if geom == nil || geom.Geom == nil {
		return nil, nil
	}
	geomWKB, err := wkb.Marshal(geom.Geom)
	if err != nil {
		s.logger.Warn("invalid query geometry in FindNearbyObjects", zap.Error(err))
		return nil, nil
	}

	kindStrs := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrs[i] = string(k)
	}
	activityStrs := make([]string, len(activities))
	for i, a := range activities {
		activityStrs[i] = string(a)
	}

	const q = `
		SELECT key, kind, source, ST_AsBinary(geometry) AS geometry, ST_AsBinary(elevation_geometry) AS elevation_geometry,
			activities, uses, ski_areas, flags, properties, name, difficulty, lift_type
		FROM objects
		WHERE (cardinality($3::text[]) = 0 OR kind = ANY($3))
		AND (cardinality($4::text[]) = 0 OR cardinality(activities) = 0 OR activities && $4::text[])
		AND (
			ST_Intersects(geometry, ST_SetSRID(ST_GeomFromWKB($1), 4326))
			OR ST_DWithin(geometry::geography, ST_SetSRID(ST_GeomFromWKB($1), 4326)::geography, $2 * 1000)
		)`

	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, q, geomWKB, bufferKm, pq.Array(kindStrs), pq.Array(activityStrs)); err != nil {
		if isInvalidGeometryErr(err) {
			s.logger.Warn("invalid geometry in nearby query, skipping", zap.Error(err))
			return nil, nil
		}
		return nil, s.transientErr("FindNearbyObjects", err)
	}

	out := make([]*domain.Object, 0, len(rows))
	for i := range rows {
		obj, err := rowToObject(&rows[i])
		if err != nil {
			s.logger.Warn("skipping nearby object with invalid geometry", zap.String("key", rows[i].Key), zap.Error(err))
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

func isInvalidGeometryErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid geometry") || strings.Contains(msg, "topologyexception") || strings.Contains(msg, "geometryexception")
}

func (s *objectStore) GetObjectsForSkiArea(ctx context.Context, skiAreaKey string) ([]*domain.Object, error) {
	const q = `
		SELECT key, kind, source, ST_AsBinary(geometry) AS geometry, ST_AsBinary(elevation_geometry) AS elevation_geometry,
			activities, uses, ski_areas, flags, properties, name, difficulty, lift_type
		FROM objects WHERE $1 = ANY(ski_areas)`

	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, q, skiAreaKey); err != nil {
		return nil, s.transientErr("GetObjectsForSkiArea", err)
	}

	out := make([]*domain.Object, 0, len(rows))
	for i := range rows {
		obj, err := rowToObject(&rows[i])
		if err != nil {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

func (s *objectStore) MarkObjectsAsPartOfSkiArea(ctx context.Context, skiAreaKey string, keys []string, isInSkiAreaPolygon bool) error {
	s.db.assertNotStreaming()
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	return s.withRetry(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE objects SET
				ski_areas = CASE WHEN $1 = ANY(ski_areas) THEN ski_areas ELSE array_append(ski_areas, $1) END,
				flags = jsonb_set(
					flags || '{"isBasisForNewSkiArea": false}'::jsonb,
					'{isInSkiAreaPolygon}',
					to_jsonb($3 OR COALESCE((flags->>'isInSkiAreaPolygon')::boolean, false)),
					true
				)
			 WHERE key = ANY($2)`,
			skiAreaKey, pq.Array(sorted), isInSkiAreaPolygon,
		)
		return err
	})
}

func (s *objectStore) GetNextUnassignedRun(ctx context.Context) (*domain.Run, error) {
	const q = `
		SELECT key, kind, source, ST_AsBinary(geometry) AS geometry, ST_AsBinary(elevation_geometry) AS elevation_geometry,
			activities, uses, ski_areas, flags, properties, name, difficulty, lift_type
		FROM objects WHERE kind = 'run' AND (flags->>'isBasisForNewSkiArea') = 'true' ORDER BY key LIMIT 1`

	var row objectRow
	err := s.db.GetContext(ctx, &row, q)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.transientErr("GetNextUnassignedRun", err)
	}

	obj, err := rowToObject(&row)
	if err != nil {
		return nil, err
	}
	if len(obj.Activities) == 0 {
		return nil, apperrors.PipelineInvariant(fmt.Sprintf("unassigned run %s has no activities", obj.Key))
	}

	run := &domain.Run{Object: *obj}
	if row.Name.Valid {
		run.Name = row.Name.String
	}
	if row.Difficulty.Valid {
		run.Difficulty = row.Difficulty.String
	}
	return run, nil
}

func (s *objectStore) BuildIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_objects_geometry ON objects USING GIST (geometry)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_ski_areas ON objects USING GIN (ski_areas)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_kind_source ON objects (kind, source, (flags->>'isPolygon'))`,
		`CREATE INDEX IF NOT EXISTS idx_objects_basis_for_new_ski_area ON objects ((flags->>'isBasisForNewSkiArea')) WHERE (flags->>'isBasisForNewSkiArea') = 'true'`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.transientErr("BuildIndexes", err)
		}
	}
	return nil
}
