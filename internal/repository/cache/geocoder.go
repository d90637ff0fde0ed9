package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
)

// geocodeCacheDecimals rounds the cache key's coordinates to roughly 100m
// precision so nearby lookups for the same ski area share one cache entry.
const geocodeCacheDecimals = 3

// CachedGeocoder decorates a repository.Geocoder with the Redis-backed
// Repository, per spec.md §6's "surrounding app provides persistent
// caching" for the Geocoder collaborator. A cache error is logged and
// treated as a miss rather than propagated, since the cache is an
// optimization, not part of the correctness contract.
type CachedGeocoder struct {
	next   repository.Geocoder
	cache  *Repository
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedGeocoder(next repository.Geocoder, cache *Repository, ttl time.Duration, logger *zap.Logger) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, lon, lat float64) (*domain.GeocodeResult, error) {
	key := geocodeCacheKey(lon, lat)

	if cached, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("geocoder cache read failed, falling through", zap.Error(err))
	} else if cached != nil {
		var result domain.GeocodeResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	result, err := c.next.Geocode(ctx, lon, lat)
	if err != nil || result == nil {
		return result, err
	}

	if encoded, err := json.Marshal(result); err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.ttl); err != nil {
			c.logger.Warn("geocoder cache write failed", zap.Error(err))
		}
	}

	return result, nil
}

func geocodeCacheKey(lon, lat float64) string {
	scale := 1.0
	for i := 0; i < geocodeCacheDecimals; i++ {
		scale *= 10
	}
	rlon := float64(int(lon*scale+0.5)) / scale
	rlat := float64(int(lat*scale+0.5)) / scale
	return fmt.Sprintf("geocode:%.*f:%.*f", geocodeCacheDecimals, rlon, geocodeCacheDecimals, rlat)
}
