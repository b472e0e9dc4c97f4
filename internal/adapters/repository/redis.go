package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/metrics"
)

const (
	defaultKeyPrefix      = "codesync:score:"
	defaultRedisOpTimeout = 500 * time.Millisecond
)

// RedisScoreCache puts a Redis read-through cache in front of a ScoreStore.
// The backing store stays authoritative: Redis failures are logged and the
// call falls through to the backing store.
type RedisScoreCache struct {
	ScoreStore
	rdb       redis.Cmdable
	prefix    string
	opTimeout time.Duration
	now       func() time.Time
	logger    logger.Logger
}

var _ ScoreStore = (*RedisScoreCache)(nil)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisScoreCache wraps backing with a cache on rdb.
func NewRedisScoreCache(backing ScoreStore, rdb redis.Cmdable, opts ...RedisOption) *RedisScoreCache {
	c := &RedisScoreCache{
		ScoreStore: backing,
		rdb:        rdb,
		prefix:     defaultKeyPrefix,
		opTimeout:  defaultRedisOpTimeout,
		now:        time.Now,
		logger:     logger.Get().Named("score-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisScoreCache) key(studentID string) string {
	return c.prefix + studentID
}

// GetScore serves from Redis when possible, otherwise from the backing store
// and repopulates Redis.
func (c *RedisScoreCache) GetScore(ctx context.Context, studentID string) (model.ScoreRecord, error) {
	if rec, ok := c.lookup(ctx, studentID); ok {
		metrics.RecordStoreCacheHit()
		return rec, nil
	}
	metrics.RecordStoreCacheMiss()

	rec, err := c.ScoreStore.GetScore(ctx, studentID)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	c.store(ctx, rec)
	return rec, nil
}

// Commit writes the backing store first and only then refreshes Redis, so a
// failed commit never leaves a cached value the store does not have.
func (c *RedisScoreCache) Commit(ctx context.Context, rec model.ScoreRecord, snap model.Snapshot) error {
	if err := c.ScoreStore.Commit(ctx, rec, snap); err != nil {
		c.evict(ctx, rec.StudentID)
		return err
	}
	c.store(ctx, rec)
	return nil
}

func (c *RedisScoreCache) lookup(ctx context.Context, studentID string) (model.ScoreRecord, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, c.key(studentID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "redis get failed", logger.String("studentID", studentID), logger.Error(err))
			metrics.RecordErrorByComponent("score_cache", "redis_get")
		}
		return model.ScoreRecord{}, false
	}
	var rec model.ScoreRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn(ctx, "dropping undecodable cache entry", logger.String("studentID", studentID), logger.Error(err))
		c.evict(ctx, studentID)
		return model.ScoreRecord{}, false
	}
	return rec, true
}

// store caches rec until its ExpiresAt. Records already past expiry are
// not cached; the backing store answers for them. A cached record computed
// after rec is kept.
func (c *RedisScoreCache) store(ctx context.Context, rec model.ScoreRecord) {
	ttl := rec.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}
	if cur, ok := c.lookup(ctx, rec.StudentID); ok && cur.ComputedAt.After(rec.ComputedAt) {
		metrics.RecordErrorByComponent("score_cache", "stale_write")
		return
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, c.key(rec.StudentID), doc, ttl).Err(); err != nil {
		c.logger.Warn(ctx, "redis set failed", logger.String("studentID", rec.StudentID), logger.Error(err))
		metrics.RecordErrorByComponent("score_cache", "redis_set")
	}
}

func (c *RedisScoreCache) evict(ctx context.Context, studentID string) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	_ = c.rdb.Del(ctx, c.key(studentID)).Err()
}
