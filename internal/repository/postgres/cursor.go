package postgres

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	apperrors "github.com/russellporter/openskidata-processor/internal/pkg/errors"
)

const cursorColumns = `key, kind, source, ST_AsBinary(geometry) AS geometry, ST_AsBinary(elevation_geometry) AS elevation_geometry,
	activities, uses, ski_areas, flags, properties, name, difficulty, lift_type`

// materializedCursor loads the whole result set up front, so it is safe to
// iterate while the underlying rows are mutated by the caller.
type materializedCursor struct {
	logger  *zap.Logger
	rows    []objectRow
	idx     int
	current *domain.Object
}

func newMaterializedCursor(ctx context.Context, db *DB, logger *zap.Logger, kind string) (repository.ObjectCursor, error) {
	q := "SELECT " + cursorColumns + " FROM objects WHERE kind = $1 ORDER BY key"
	var rows []objectRow
	if err := db.SelectContext(ctx, &rows, q, kind); err != nil {
		return nil, err
	}
	return &materializedCursor{logger: logger, rows: rows, idx: -1}, nil
}

func (c *materializedCursor) Next(ctx context.Context) bool {
	for {
		c.idx++
		if c.idx >= len(c.rows) {
			c.current = nil
			return false
		}
		obj, err := rowToObject(&c.rows[c.idx])
		if err != nil {
			c.logger.Warn("skipping object with invalid geometry in cursor", zap.String("key", c.rows[c.idx].Key), zap.Error(err))
			continue
		}
		c.current = obj
		return true
	}
}

func (c *materializedCursor) Current() *domain.Object { return c.current }
func (c *materializedCursor) Err() error               { return nil }
func (c *materializedCursor) Close() error             { return nil }

// streamingCursor keeps a server-side, keyset-paginated cursor open in key
// order. While it exists, db.assertNotStreaming causes any mutation on the
// same DB to panic.
type streamingCursor struct {
	db      *DB
	logger  *zap.Logger
	kind    string
	rows    *sql.Rows
	lastKey string
	fetched int // rows scanned from the current batch
	current *domain.Object
	err     error
	closed  bool
}

const streamBatchSize = 500

func newStreamingCursor(ctx context.Context, db *DB, logger *zap.Logger, kind string) (repository.ObjectCursor, error) {
	if !db.beginStreaming() {
		return nil, apperrors.PipelineInvariant("a streaming cursor is already open on this connection")
	}
	c := &streamingCursor{db: db, logger: logger, kind: kind}
	if err := c.fetchBatch(ctx); err != nil {
		db.endStreaming()
		return nil, err
	}
	return c, nil
}

func (c *streamingCursor) fetchBatch(ctx context.Context) error {
	if c.rows != nil {
		c.rows.Close()
	}
	q := "SELECT " + cursorColumns + " FROM objects WHERE kind = $1 AND key > $2 ORDER BY key LIMIT $3"
	rows, err := c.db.QueryContext(ctx, q, c.kind, c.lastKey, streamBatchSize)
	if err != nil {
		return err
	}
	c.rows = rows
	c.fetched = 0
	return nil
}

func (c *streamingCursor) Next(ctx context.Context) bool {
	for {
		if c.rows == nil {
			return false
		}
		if !c.rows.Next() {
			if c.rows.Err() != nil {
				c.err = c.rows.Err()
				return false
			}
			// batch exhausted; if it was a full batch, fetch the next one
			c.rows.Close()
			c.rows = nil
			if c.fetched < streamBatchSize {
				return false
			}
			if err := c.fetchBatch(ctx); err != nil {
				c.err = err
				return false
			}
			continue
		}

		var r objectRow
		if err := c.rows.Scan(&r.Key, &r.Kind, &r.Source, &r.Geometry, &r.ElevationGeometry,
			&r.Activities, &r.Uses, &r.SkiAreas, &r.Flags, &r.Properties, &r.Name, &r.Difficulty, &r.LiftType); err != nil {
			c.err = err
			return false
		}
		c.lastKey = r.Key
		c.fetched++

		obj, err := rowToObject(&r)
		if err != nil {
			c.logger.Warn("skipping object with invalid geometry in cursor", zap.String("key", r.Key), zap.Error(err))
			continue
		}
		c.current = obj
		return true
	}
}

func (c *streamingCursor) Current() *domain.Object { return c.current }
func (c *streamingCursor) Err() error               { return c.err }
func (c *streamingCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.rows != nil {
		c.rows.Close()
	}
	c.db.endStreaming()
	return nil
}
