package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/russellporter/openskidata-processor/internal/config"
	"go.uber.org/zap"
)

// DB wraps the ephemeral PostGIS connection pool used by the object store.
//
// streaming tracks whether a streaming cursor (see cursor.go) currently has
// an open *sql.Rows against this connection. Save/Update/Remove calls
// refuse to run while it is set, enforcing the "don't mutate the set you
// are streaming over" rule at runtime, since Go's type system has no way
// to forbid it statically without fighting this package's plain
// repository style.
type DB struct {
	*sqlx.DB
	logger    *zap.Logger
	streaming atomic.Bool
}

func New(cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("PostGIS connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName),
	)

	return &DB{DB: db, logger: logger}, nil
}

func (db *DB) Close() error {
	db.logger.Info("closing PostGIS connection")
	return db.DB.Close()
}

func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) beginStreaming() bool {
	return db.streaming.CompareAndSwap(false, true)
}

func (db *DB) endStreaming() {
	db.streaming.Store(false)
}

func (db *DB) assertNotStreaming() {
	if db.streaming.Load() {
		panic("postgres: object store mutation attempted while a streaming cursor is open")
	}
}

// NewDBForTest creates a DB instance for testing with a provided
// connection and logger.
func NewDBForTest(sqlxDB *sqlx.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		DB:     sqlxDB,
		logger: logger,
	}
}
