// Package ratelimit throttles write endpoints per caller using Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Backend counts a request against key under rate.
type Backend interface {
	Take(ctx context.Context, key string, rate limiter.Rate) (Decision, error)
}

// FixedWindow counts requests in fixed periods through a ulule limiter store.
type FixedWindow struct {
	Store limiter.Store
}

// NewRedisStore returns a ulule store on rdb with keys under prefix.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Take implements Backend.
func (f FixedWindow) Take(ctx context.Context, key string, rate limiter.Rate) (Decision, error) {
	if f.Store == nil || rate.Limit <= 0 || rate.Period <= 0 {
		return Decision{Allowed: true, Limit: rate.Limit, Remaining: rate.Limit, Reset: time.Now().Add(rate.Period)}, nil
	}
	lc, err := limiter.New(f.Store, rate).Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     lc.Limit,
		Remaining: lc.Remaining,
		Reset:     time.Unix(lc.Reset, 0),
	}, nil
}

// SlidingWindow keeps one sorted-set member per request and counts the
// members younger than the period.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Take implements Backend.
func (l SlidingWindow) Take(ctx context.Context, key string, rate limiter.Rate) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	until := now.Add(rate.Period)
	if l.Client == nil || rate.Limit <= 0 || rate.Period <= 0 {
		return Decision{Allowed: true, Limit: rate.Limit, Remaining: rate.Limit, Reset: until}, nil
	}

	redisKey := l.Prefix + key
	cutoff := float64(now.Add(-rate.Period).UnixNano())
	member := fmt.Sprintf("%s:%s", key, uuid.NewString())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rate.Period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	current := countCmd.Val()
	remaining := rate.Limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: current <= rate.Limit, Limit: rate.Limit, Remaining: remaining, Reset: until}, nil
}
