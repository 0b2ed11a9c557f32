package callsched

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agentsdr/pkg/utils"
)

// RedisLimiter caps concurrent live calls per org using a redis counter.
// The TTL bounds how long a leaked slot survives a crashed worker.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: 15 * time.Minute}
}

func limiterKey(orgID string) string {
	return fmt.Sprintf("org:%s:live_calls", orgID)
}

func (l *RedisLimiter) Acquire(ctx context.Context, orgID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, limiterKey(orgID), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, orgID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, limiterKey(orgID))
}
