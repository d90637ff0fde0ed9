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

// CachedSnowCoverArchive decorates a repository.SnowCoverArchive the same
// way CachedGeocoder decorates a Geocoder: keyed by pixel ID, since that is
// already the archive's natural cache granularity.
type CachedSnowCoverArchive struct {
	next   repository.SnowCoverArchive
	cache  *Repository
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSnowCoverArchive(next repository.SnowCoverArchive, cache *Repository, ttl time.Duration, logger *zap.Logger) *CachedSnowCoverArchive {
	return &CachedSnowCoverArchive{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedSnowCoverArchive) Lookup(ctx context.Context, pixelID string) (*domain.SnowCoverSample, error) {
	key := fmt.Sprintf("snowcover:%s", pixelID)

	if cached, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("snow cover cache read failed, falling through", zap.Error(err))
	} else if cached != nil {
		var sample domain.SnowCoverSample
		if err := json.Unmarshal(cached, &sample); err == nil {
			return &sample, nil
		}
	}

	sample, err := c.next.Lookup(ctx, pixelID)
	if err != nil || sample == nil {
		return sample, err
	}

	if encoded, err := json.Marshal(sample); err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.ttl); err != nil {
			c.logger.Warn("snow cover cache write failed", zap.Error(err))
		}
	}

	return sample, nil
}
