package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	limiter "github.com/ulule/limiter/v3"
)

// Document number sequence backends.
const (
	DocNumberBackendPostgres = "postgres"
	DocNumberBackendRedis    = "redis"
)

// Rate limiting strategies for write endpoints.
const (
	RateLimitFixed   = "fixed"
	RateLimitSliding = "sliding"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	TrustProxy         bool
	MaxBodyBytes       int64

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	AuthRequired bool

	DocNumberFloor   int64
	DocNumberBackend string

	CatalogCacheTTL       time.Duration
	IdempotencyTTL        time.Duration
	RateLimitWrites       string
	RateLimitStrategy     string
	MigrationsAuto        bool
	EventsAsynqEnabled    bool
	EventsAsynqQueue      string
	BillingDefaultPerPage int
	BillingMaxPerPage     int

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("APP_PORT"), valueOrDefault(k.String("PORT"), "8080")),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TrustProxy:         parseBool(k.String("TRUST_PROXY"), false),
		MaxBodyBytes:       parseInt64(k.String("MAX_BODY_BYTES"), 1<<20),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(k.String("JWT_AUDIENCE")),
		AuthRequired: parseBool(k.String("AUTH_REQUIRED"), true),

		DocNumberFloor:   parseInt64(k.String("DOCNUMBER_FLOOR"), 100000),
		DocNumberBackend: strings.ToLower(valueOrDefault(k.String("DOCNUMBER_BACKEND"), DocNumberBackendPostgres)),

		CatalogCacheTTL:       parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWrites:       valueOrDefault(k.String("RATE_LIMIT_WRITES"), "120-M"),
		RateLimitStrategy:     strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), RateLimitFixed)),
		MigrationsAuto:        parseBool(k.String("MIGRATIONS_AUTO"), true),
		EventsAsynqEnabled:    parseBool(k.String("EVENTS_ASYNQ_ENABLED"), false),
		EventsAsynqQueue:      valueOrDefault(k.String("EVENTS_ASYNQ_QUEUE"), "billing"),
		BillingDefaultPerPage: int(parseInt64(k.String("BILLING_DEFAULT_PER_PAGE"), 20)),
		BillingMaxPerPage:     int(parseInt64(k.String("BILLING_MAX_PER_PAGE"), 100)),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "bengkel"),
		MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:        k.String("SECURE_PPROF_BASIC_AUTH_USER"),
		PprofPass:        k.String("SECURE_PPROF_BASIC_AUTH_PASS"),

		HealthDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.AuthRequired && strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required when AUTH_REQUIRED is set"))
	}
	if c.DocNumberFloor < 0 {
		errs = append(errs, errors.New("DOCNUMBER_FLOOR must not be negative"))
	}
	switch c.DocNumberBackend {
	case DocNumberBackendPostgres, DocNumberBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("DOCNUMBER_BACKEND %q is not one of postgres, redis", c.DocNumberBackend))
	}
	if _, err := limiter.NewRateFromFormatted(c.RateLimitWrites); err != nil {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WRITES %q: %w", c.RateLimitWrites, err))
	}
	switch c.RateLimitStrategy {
	case RateLimitFixed, RateLimitSliding:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_STRATEGY %q is not one of fixed, sliding", c.RateLimitStrategy))
	}
	if c.BillingDefaultPerPage <= 0 || c.BillingMaxPerPage < c.BillingDefaultPerPage {
		errs = append(errs, errors.New("BILLING_DEFAULT_PER_PAGE must be positive and not above BILLING_MAX_PER_PAGE"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "production" || env == "prod"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	d, err := time.ParseDuration(valueOrDefault(value, fallback))
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests applies env on top of the process environment for the
// duration of Load and restores the previous values afterwards.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []error
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
