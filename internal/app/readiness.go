package app

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

type redisClientAdapter struct{ c *redis.Client }

func (a redisClientAdapter) Ping(ctx context.Context) RedisPingResult { return a.c.Ping(ctx) }

// NewRedisPinger adapts a go-redis client to RedisClient. A nil client yields nil.
func NewRedisPinger(c *redis.Client) RedisClient {
	if c == nil {
		return nil
	}
	return redisClientAdapter{c: c}
}

// BuildReadinessChecks returns the db and redis readiness checks. A check is
// nil when its backing service is not configured, so /readyz skips it.
func BuildReadinessChecks(pool Pinger, rdb RedisClient) (
	dbCheck func(ctx context.Context) error,
	redisCheck func(ctx context.Context) error,
) {
	if pool != nil {
		dbCheck = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return dbCheck, redisCheck
}
