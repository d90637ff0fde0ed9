package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Repository is a generic byte-oriented cache used to decorate the
// Geocoder and SnowCoverArchive clients (see internal/repository/cache's
// Cached* wrappers) with the persistent caching the surrounding app is
// expected to provide.
type Repository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRepository(r *Redis) *Repository {
	return &Repository{
		client: r.Client(),
		logger: r.logger,
	}
}

func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("cache get: %w", err)
	}

	r.logger.Debug("cache hit", zap.String("key", key))
	return val, nil
}

func (r *Repository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
