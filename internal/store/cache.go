package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"review-workers/internal/common/logger"
	"review-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const businessKeyPrefix = "business:"

// CachedStore serves GetBusiness through a Redis read-through cache. Redis
// failures are logged and fall back to the wrapped store. Businesses are
// provisioned outside this service, so entries are never invalidated here;
// a changed business is picked up once its entry expires.
type CachedStore struct {
	Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func WithBusinessCache(s Store, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{Store: s, rdb: rdb, ttl: ttl, logger: log}
}

func (c *CachedStore) GetBusiness(ctx context.Context, businessID string) (*models.Business, error) {
	key := businessKeyPrefix + businessID

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var b models.Business
		if jsonErr := json.Unmarshal([]byte(cached), &b); jsonErr == nil {
			return &b, nil
		}
		c.logger.Warn("discarding corrupt business cache entry", map[string]interface{}{"businessId": businessID})
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("business cache read failed", map[string]interface{}{"businessId": businessID, "error": err})
	}

	b, err := c.Store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(b); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("business cache write failed", map[string]interface{}{"businessId": businessID, "error": err})
		}
	}
	return b, nil
}
