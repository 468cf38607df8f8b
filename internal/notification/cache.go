// internal/notification/cache.go
package notification

import (
	"context"
	"strconv"
	"time"

	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// versionTTL bounds how long an idle user's invalidation counter is kept.
const versionTTL = 24 * time.Hour

// storeIfCurrent writes the count only while the invalidation counter still
// holds the value observed before the store was read.
const storeIfCurrent = `
if (redis.call('GET', KEYS[2]) or '0') == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`

// UnreadCache is a cache-aside for unread counts. Every write path that can
// change a user's count invalidates the key and bumps a per-user version; a
// count read from the store is cached only if no invalidation happened while
// it was being read. A nil *UnreadCache disables caching.
type UnreadCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewUnreadCache(client *redis.Client, ttl time.Duration, log logger.Logger) *UnreadCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &UnreadCache{
		redis:  client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "unread-cache"}),
	}
}

func unreadCacheKey(userID int64) string {
	return "notifications:unread:" + strconv.FormatInt(userID, 10)
}

func unreadVersionKey(userID int64) string {
	return "notifications:unread:v:" + strconv.FormatInt(userID, 10)
}

// Get reports a cached count. On a miss it returns the version to hand back
// to Set; a negative version means the cache could not be read and the
// caller should not populate it.
func (c *UnreadCache) Get(ctx context.Context, userID int64) (count int64, version int64, ok bool) {
	if c == nil {
		return 0, -1, false
	}

	vals, err := c.redis.MGet(ctx, unreadCacheKey(userID), unreadVersionKey(userID)).Result()
	if err != nil || len(vals) != 2 {
		metrics.CacheLookups.WithLabelValues("unread", "error").Inc()
		c.logger.Warn("unread cache read failed", map[string]interface{}{
			"userId": userID,
			"error":  errString(err),
		})
		return 0, -1, false
	}

	if raw, isStr := vals[0].(string); isStr {
		if count, err := strconv.ParseInt(raw, 10, 64); err == nil {
			metrics.CacheLookups.WithLabelValues("unread", "hit").Inc()
			return count, 0, true
		}
	}

	metrics.CacheLookups.WithLabelValues("unread", "miss").Inc()
	version = 0
	if raw, isStr := vals[1].(string); isStr {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, -1, false
		}
		version = parsed
	}
	return 0, version, false
}

// Set caches count unless the user's count was invalidated after version
// was observed.
func (c *UnreadCache) Set(ctx context.Context, userID, version, count int64) {
	if c == nil || version < 0 {
		return
	}

	stored, err := c.redis.Eval(ctx, storeIfCurrent,
		[]string{unreadCacheKey(userID), unreadVersionKey(userID)},
		version, count, c.ttl.Milliseconds()).Int64()
	if err != nil {
		c.logger.Warn("unread cache write failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return
	}
	if stored == 0 {
		c.logger.Debug("unread count invalidated during read, not cached", map[string]interface{}{
			"userId": userID,
		})
	}
}

func (c *UnreadCache) Invalidate(ctx context.Context, userID int64) {
	if c == nil {
		return
	}

	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, unreadVersionKey(userID))
		pipe.Expire(ctx, unreadVersionKey(userID), versionTTL)
		pipe.Del(ctx, unreadCacheKey(userID))
		return nil
	})
	if err != nil {
		c.logger.Warn("unread cache invalidation failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}
}

func errString(err error) string {
	if err == nil {
		return "unexpected reply"
	}
	return err.Error()
}
