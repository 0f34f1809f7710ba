package docnumber

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-bengkel/internal/lock"
)

var incrementScript = redis.NewScript(`if redis.call("exists", KEYS[1]) == 0 then
  return -1
end
return redis.call("incr", KEYS[1])`)

// MaxSource reports the highest persisted number of a kind.
type MaxSource interface {
	MaxDocumentNumber(ctx context.Context, kind Kind) (int64, error)
}

// RedisSequence keeps counters in Redis and increments them with INCR. It is
// not bound to the database transaction: a rolled-back creation leaves a gap,
// numbers stay unique and increasing.
type RedisSequence struct {
	R       redis.UniversalClient
	Prefix  string
	Locker  lock.Locker
	Source  MaxSource
	LockTTL time.Duration
}

func (s RedisSequence) key(kind Kind) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "docnumber:"
	}
	return prefix + string(kind)
}

// MaxDocumentNumber delegates to the persisted source.
func (s RedisSequence) MaxDocumentNumber(ctx context.Context, kind Kind) (int64, error) {
	if s.Source == nil {
		return 0, errors.New("docnumber: redis sequence has no max source")
	}
	return s.Source.MaxDocumentNumber(ctx, kind)
}

// SeedCounter raises the counter to value under a distributed lock so that
// concurrently starting processes cannot lower each other's counters.
func (s RedisSequence) SeedCounter(ctx context.Context, kind Kind, value int64) error {
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	key := s.key(kind)
	return s.Locker.WithLock(ctx, "seed:"+key, ttl, func(ctx context.Context) error {
		current, err := s.R.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && current >= value {
			return nil
		}
		return s.R.Set(ctx, key, strconv.FormatInt(value, 10), 0).Err()
	})
}

// IncrementCounter atomically increments an existing counter.
func (s RedisSequence) IncrementCounter(ctx context.Context, kind Kind) (int64, error) {
	n, err := incrementScript.Run(ctx, s.R, []string{s.key(kind)}).Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrCounterMissing
	}
	return n, nil
}
