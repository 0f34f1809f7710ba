package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-bengkel/internal/app"
	"github.com/noah-isme/backend-bengkel/internal/auth"
	"github.com/noah-isme/backend-bengkel/internal/billing"
	"github.com/noah-isme/backend-bengkel/internal/catalog"
	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/config"
	"github.com/noah-isme/backend-bengkel/internal/db"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
	"github.com/noah-isme/backend-bengkel/internal/health"
	"github.com/noah-isme/backend-bengkel/internal/obs"
	"github.com/noah-isme/backend-bengkel/internal/security"
	"github.com/noah-isme/backend-bengkel/internal/store"
	"github.com/noah-isme/backend-bengkel/internal/validation"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    "bengkel-billing",
			ServiceVersion: version,
			Endpoint:       cfg.OTLPEndpoint,
			Exporter:       cfg.TracingExporter,
			SamplingRatio:  cfg.TracingSampling,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrationsAuto {
		if err := db.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := app.NewPool(connectCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	redisClient, err := app.NewRedis(connectCtx, cfg, logger)
	if err != nil {
		pool.Close()
		logger.Fatal().Err(err).Msg("connect redis")
	}
	deps := &app.Dependencies{
		DB:       pool,
		Store:    store.NewStore(pool),
		Redis:    redisClient,
		Registry: prometheus.DefaultRegisterer,
	}
	defer deps.Close(logger)

	allocator, err := app.NewAllocator(cfg, deps.Store, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise document numbers")
	}
	// Refuse to start rather than risk issuing a number twice.
	if err := app.InitAllocator(connectCtx, allocator, deps.Store.Queries); err != nil {
		logger.Fatal().Err(err).Msg("seed document counters")
	}

	bus, taskClient := app.NewEventBus(cfg, redisClient, deps.Registry, logger)
	deps.TaskClient = taskClient

	var httpMetrics *obs.HTTPMetrics
	var domainMetrics *obs.DomainMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), deps.Registry)
		domainMetrics = obs.NewDomainMetrics(cfg.MetricsNamespace, deps.Registry)
	}

	validator := validation.New()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:   deps.Store.Queries,
		Cache:     catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Validator: validator,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Service:        catalogService,
		DefaultPerPage: cfg.BillingDefaultPerPage,
		MaxPerPage:     cfg.BillingMaxPerPage,
	})

	billingService, err := billing.NewService(billing.Config{
		Tx:        billing.PgTransactor{Store: deps.Store},
		Reads:     deps.Store.Queries,
		Allocator: allocator,
		Catalog:   catalogService,
		Validator: validator,
		Bus:       bus,
		Metrics:   domainMetrics,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise billing service")
	}
	documentHandler := func(kind docnumber.Kind) *billing.Handler {
		return billing.NewHandler(billing.HandlerConfig{
			Service:        billingService,
			Kind:           kind,
			Logger:         logger,
			DefaultPerPage: cfg.BillingDefaultPerPage,
			MaxPerPage:     cfg.BillingMaxPerPage,
		})
	}
	invoiceHandler := documentHandler(docnumber.KindInvoice)
	estimateHandler := documentHandler(docnumber.KindEstimate)
	previewHandler := billing.PreviewHandler{Service: billingService, Logger: logger}

	authMiddleware := auth.Middleware{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		verifier, err := auth.NewVerifier(auth.VerifierConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise token verifier")
		}
		authMiddleware.Verifier = verifier
	}
	requireAuth := authMiddleware.Authenticate
	if cfg.AuthRequired {
		requireAuth = authMiddleware.RequireAuth
	}

	writeLimiter, err := app.NewRateLimiter(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: "bengkel:idem:"}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{EnableHSTS: cfg.IsProduction()}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{Probes: []health.Probe{
		health.DBProbe(pool, cfg.HealthDBTimeout),
		health.RedisProbe(redisClient, cfg.HealthRedisTimeout),
		allocatorProbe(allocator),
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

		v.Group(func(read chi.Router) {
			read.Use(authMiddleware.Authenticate)
			read.Get("/materials", catalogHandler.List)
			read.Get("/materials/{id}", catalogHandler.Get)
			read.Get("/invoices", invoiceHandler.List)
			read.Get("/invoices/{id}", invoiceHandler.Get)
			read.Get("/estimates", estimateHandler.List)
			read.Get("/estimates/{id}", estimateHandler.Get)
			read.Post("/billing/preview", previewHandler.Preview)
		})

		v.Group(func(write chi.Router) {
			write.Use(requireAuth)
			write.Use(writeLimiter.Middleware)

			write.With(idem.Middleware).Post("/materials", catalogHandler.Create)
			write.Patch("/materials/{id}", catalogHandler.Update)
			write.Delete("/materials/{id}", catalogHandler.Delete)

			write.With(idem.Middleware).Post("/invoices", invoiceHandler.Create)
			write.Patch("/invoices/{id}", invoiceHandler.Update)
			write.Delete("/invoices/{id}", invoiceHandler.Delete)

			write.With(idem.Middleware).Post("/estimates", estimateHandler.Create)
			write.Patch("/estimates/{id}", estimateHandler.Update)
			write.Delete("/estimates/{id}", estimateHandler.Delete)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// allocatorProbe fails readiness while a document counter is unseeded.
func allocatorProbe(alloc *docnumber.Allocator) health.Probe {
	return health.Probe{
		Name: "docnumber",
		Check: func(context.Context) error {
			for _, kind := range []docnumber.Kind{docnumber.KindInvoice, docnumber.KindEstimate} {
				if !alloc.Ready(kind) {
					return fmt.Errorf("%s counter not initialised", kind)
				}
			}
			return nil
		},
	}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
