// internal/store/cache.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix  = "app:"
	genKeyPrefix    = "app:gen:"
	DefaultCacheTTL = 5 * time.Minute
)

// fillScript writes the aggregate only while the generation is unchanged.
// KEYS: generation, aggregate. ARGV: expected generation, payload, ttl ms.
var fillScript = redis.NewScript(`
if (redis.call('GET', KEYS[1]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Cache keeps application aggregates in Redis. Redis failures are logged
// and treated as a miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "aggregate-cache"}),
	}
}

func cacheKey(applicationID string) string {
	return cacheKeyPrefix + applicationID
}

func genKey(applicationID string) string {
	return genKeyPrefix + applicationID
}

func (c *Cache) Get(ctx context.Context, applicationID string) (*models.ApplicationAggregate, bool) {
	val, err := c.client.Get(ctx, cacheKey(applicationID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", map[string]interface{}{
				"applicationId": applicationID,
				"error":         err.Error(),
			})
		}
		return nil, false
	}

	var agg models.ApplicationAggregate
	if err := json.Unmarshal([]byte(val), &agg); err != nil {
		c.logger.Warn("discarding corrupt cache entry", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		c.Delete(ctx, applicationID)
		return nil, false
	}
	return &agg, true
}

// Generation returns the invalidation counter of an application. ok is
// false when Redis cannot be read, in which case the caller must not fill.
func (c *Cache) Generation(ctx context.Context, applicationID string) (gen int64, ok bool) {
	gen, err := c.client.Get(ctx, genKey(applicationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("cache generation read failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		return 0, false
	}
	return gen, true
}

// Fill caches agg unless the application was invalidated after gen was
// read. It reports whether the entry was written.
func (c *Cache) Fill(ctx context.Context, agg *models.ApplicationAggregate, gen int64) bool {
	data, err := json.Marshal(agg)
	if err != nil {
		c.logger.Warn("cache encode failed", map[string]interface{}{"applicationId": agg.ID, "error": err.Error()})
		return false
	}
	written, err := fillScript.Run(ctx, c.client,
		[]string{genKey(agg.ID), cacheKey(agg.ID)},
		strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"applicationId": agg.ID, "error": err.Error()})
		return false
	}
	if written == 0 {
		c.logger.Debug("skipping stale cache fill", map[string]interface{}{"applicationId": agg.ID})
	}
	return written == 1
}

// Delete drops the cached aggregate and bumps the generation so that a
// load which started earlier cannot repopulate it.
func (c *Cache) Delete(ctx context.Context, applicationID string) {
	if err := c.client.Del(ctx, cacheKey(applicationID)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
	if err := c.client.Incr(ctx, genKey(applicationID)).Err(); err != nil {
		c.logger.Warn("cache generation bump failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		return
	}
	c.client.Expire(ctx, genKey(applicationID), c.ttl)
}
