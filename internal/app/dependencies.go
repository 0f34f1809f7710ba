// Package app builds the shared infrastructure of the API process from
// configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-bengkel/internal/config"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/events"
	"github.com/noah-isme/backend-bengkel/internal/lock"
	"github.com/noah-isme/backend-bengkel/internal/obs"
	"github.com/noah-isme/backend-bengkel/internal/ratelimit"
	"github.com/noah-isme/backend-bengkel/internal/resilience"
	"github.com/noah-isme/backend-bengkel/internal/store"
)

// Dependencies enumerates the infrastructure shared across modules.
type Dependencies struct {
	DB         *pgxpool.Pool
	Store      *store.Store
	Redis      *redis.Client
	TaskClient *asynq.Client
	Registry   prometheus.Registerer
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// NewPool connects to Postgres with query tracing enabled and pings it.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "bengkel-billing"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis connects to Redis, instruments it and pings it. Instrumentation
// failures are logged, not fatal.
func NewRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewAllocator returns the document number allocator for the configured
// backend. With the Postgres backend numbers come from the counter table in
// the caller's transaction; with Redis they come from a shared INCR sequence
// seeded from the highest persisted number.
func NewAllocator(cfg *config.Config, st *store.Store, rdb *redis.Client) (*docnumber.Allocator, error) {
	switch cfg.DocNumberBackend {
	case config.DocNumberBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("docnumber: redis backend requires a redis client")
		}
		seq := docnumber.RedisSequence{
			R:       rdb,
			Prefix:  "bengkel:docnumber:",
			Locker:  lock.Locker{R: rdb, Prefix: "bengkel:lock:", RetryBackoff: 50 * time.Millisecond},
			Source:  st,
			LockTTL: 10 * time.Second,
		}
		return docnumber.New(cfg.DocNumberFloor, seq), nil
	default:
		return docnumber.New(cfg.DocNumberFloor, nil), nil
	}
}

// InitAllocator seeds every document kind. The process must not serve
// writes when this fails.
func InitAllocator(ctx context.Context, alloc *docnumber.Allocator, seq docnumber.Sequence) error {
	return alloc.Init(ctx, seq, docnumber.KindInvoice, docnumber.KindEstimate)
}

// NewRateLimiter builds the write limiter for the configured strategy.
func NewRateLimiter(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) (ratelimit.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimitWrites)
	if err != nil {
		return ratelimit.Handler{}, fmt.Errorf("parse RATE_LIMIT_WRITES: %w", err)
	}
	h := ratelimit.Handler{
		Rate: rate,
		Key:  ratelimit.ActorKey(cfg.TrustProxy),
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}
	switch cfg.RateLimitStrategy {
	case config.RateLimitSliding:
		h.Backend = ratelimit.SlidingWindow{Client: rdb, Prefix: "bengkel:ratelimit:sliding:"}
	default:
		st, err := ratelimit.NewRedisStore(rdb, "bengkel:ratelimit")
		if err != nil {
			return ratelimit.Handler{}, fmt.Errorf("limiter store: %w", err)
		}
		h.Backend = ratelimit.FixedWindow{Store: st}
	}
	return h, nil
}

// NewEventBus wires committed-event fan-out: a log line per event and, when
// enabled, an asynq task for external consumers behind a circuit breaker.
// The returned client is nil when the relay is disabled.
func NewEventBus(cfg *config.Config, rdb *redis.Client, reg prometheus.Registerer, logger zerolog.Logger) (*events.Bus, *asynq.Client) {
	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if !cfg.EventsAsynqEnabled || rdb == nil {
		return bus, nil
	}
	client := asynq.NewClientFromRedisClient(rdb)
	var metrics *resilience.BreakerMetrics
	if cfg.MetricsEnabled {
		metrics = resilience.NewBreakerMetrics(cfg.MetricsNamespace, reg)
	}
	bus.Scheduler = events.GuardedScheduler{
		Next: events.AsynqScheduler{Client: client, Queue: cfg.EventsAsynqQueue},
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Target:      "asynq",
			MinRequests: 5,
			OpenFor:     30 * time.Second,
			Metrics:     metrics,
			Logger:      logger,
		}),
	}
	return bus, client
}
