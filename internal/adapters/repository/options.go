package repository

import "time"

// LeaderboardOption applies a configuration option to the TreapLeaderboard.
type LeaderboardOption func(*TreapLeaderboard)

// WithPrioritySeed makes treap priorities reproducible.
func WithPrioritySeed(seed int64) LeaderboardOption {
	return func(l *TreapLeaderboard) {
		l.seed = seed
	}
}

// RedisOption applies a configuration option to the RedisScoreCache.
type RedisOption func(*RedisScoreCache)

// WithKeyPrefix sets the prefix of every cache key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisScoreCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithOperationTimeout bounds each Redis round trip.
func WithOperationTimeout(d time.Duration) RedisOption {
	return func(c *RedisScoreCache) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// WithClock overrides the time source used to compute key expiry.
func WithClock(now func() time.Time) RedisOption {
	return func(c *RedisScoreCache) {
		if now != nil {
			c.now = now
		}
	}
}
