package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/platform/cache"
	"leavedesk/internal/platform/config"
	"leavedesk/internal/platform/crypto"
	"leavedesk/internal/platform/db"
	"leavedesk/internal/platform/jobs"
	"leavedesk/internal/platform/metrics"
	leavehandler "leavedesk/internal/transport/http/handlers/leave"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/upstream/leaveapi"
)

const (
	idempotencyRetention = 24 * time.Hour
	shutdownTimeout      = 10 * time.Second
)

type idempotencyStore interface {
	middleware.IdempotencyStore
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Memory  *cache.Memory
	Metrics *metrics.Collector
	Leave   *leave.Service
	Audit   audit.Recorder
	Jobs    *jobs.Service
	Router  http.Handler

	idempotency idempotencyStore
}

// NewLogger builds the process logger. Development gets text output, every
// other environment JSON.
func NewLogger(cfg config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		level.Set(slog.LevelInfo)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Environment {
	case "development", "local", "test":
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	default:
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
}

// New connects the optional stores and wires the router. Postgres and Redis
// are used only when configured; otherwise the in-process fallbacks serve.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Metrics: metrics.New()}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect failed: %w", err)
		}
		app.DB = pool
		if err := db.Migrate(ctx, pool); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		app.idempotency = middleware.NewPostgresIdempotencyStore(pool)
		app.Audit = audit.NewPostgres(pool)
	} else {
		app.idempotency = middleware.NewMemoryIdempotencyStore(idempotencyRetention)
		app.Audit = audit.NewMemory()
	}

	var backend cache.Backend
	if cfg.RedisAddr != "" {
		client, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis connect failed: %w", err)
		}
		app.Redis = client
		sealer, err := crypto.New(cfg.CacheEncryptionKey)
		if err != nil {
			app.Close()
			return nil, err
		}
		redisBackend := cache.NewRedis(client, "leavedesk:")
		if sealer.Configured() {
			redisBackend.WithSealer(sealer)
		}
		backend = redisBackend
	} else {
		app.Memory = cache.NewMemory()
		backend = app.Memory
	}

	validator, err := leave.NewValidator(cfg.ContactPattern)
	if err != nil {
		app.Close()
		return nil, err
	}
	dashboards := cache.New[leave.Dashboard](backend, cache.Options{
		Name:           "dashboard",
		TTL:            cfg.CacheTTL,
		Retention:      cfg.CacheStaleRetention,
		Observer:       app.Metrics,
		Fallback:       leave.StaleFallbackAllowed,
		RefreshTimeout: cfg.UpstreamTimeout,
	})
	holidays := cache.New[[]leave.Holiday](backend, cache.Options{
		Name:           "holidays",
		TTL:            cfg.HolidayRefreshInterval + cfg.CacheTTL,
		Retention:      cfg.CacheStaleRetention,
		Observer:       app.Metrics,
		Fallback:       leave.StaleFallbackAllowed,
		RefreshTimeout: cfg.UpstreamTimeout,
	})

	client := leaveapi.New(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	client.Observer = app.Metrics
	app.Leave = leave.NewService(client, validator, dashboards, holidays)

	var recorder jobs.RunRecorder
	if app.DB != nil {
		recorder = jobs.NewPostgresRecorder(app.DB)
	}
	app.Jobs = jobs.New(recorder, app.Metrics)

	app.Router = app.routes()
	return app, nil
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(slog.Default()))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.Metrics(a.Metrics))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if a.DB != nil {
			if err := a.DB.Ping(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if a.Redis != nil {
			if err := a.Redis.Ping(ctx).Err(); err != nil {
				http.Error(w, "cache not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.MutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		leaveHandler := leavehandler.NewHandler(a.Leave, a.idempotency)
		leaveHandler.Audit = a.Audit
		leaveHandler.RegisterRoutes(r)
	})

	return router
}

// StartJobs launches the background worker and its schedules. They stop when
// ctx is done.
func (a *App) StartJobs(ctx context.Context) {
	cfg := a.Config
	a.Jobs.Start(ctx)

	if cfg.UpstreamServiceToken != "" {
		refresh := a.refreshHolidays
		a.Jobs.Enqueue(jobs.JobHolidayRefresh, refresh)
		a.Jobs.Schedule(ctx, jobs.JobHolidayRefresh, cfg.HolidayRefreshInterval, refresh)
	} else {
		slog.Info("holiday refresh disabled: no service token")
	}
	if a.Memory != nil {
		a.Jobs.Schedule(ctx, jobs.JobCachePrune, cfg.CachePruneInterval, a.pruneCache)
	}
	a.Jobs.Schedule(ctx, jobs.JobIdempotencyPurge, time.Hour, a.purgeIdempotency)
	if cfg.AuditRetention > 0 {
		a.Jobs.Schedule(ctx, jobs.JobAuditPurge, 24*time.Hour, a.purgeAudit)
	}
}

func (a *App) refreshHolidays(ctx context.Context) (any, error) {
	sess := auth.Session{Token: a.Config.UpstreamServiceToken}
	count, err := a.Leave.RefreshHolidays(ctx, sess)
	if err != nil {
		return nil, err
	}
	return map[string]int{"holidays": count}, nil
}

func (a *App) pruneCache(ctx context.Context) (any, error) {
	removed := a.Memory.Prune(ctx)
	return map[string]int{"removed": removed}, nil
}

func (a *App) purgeIdempotency(ctx context.Context) (any, error) {
	removed, err := a.idempotency.PurgeBefore(ctx, time.Now().Add(-idempotencyRetention))
	if err != nil {
		return nil, err
	}
	return map[string]int64{"removed": removed}, nil
}

func (a *App) purgeAudit(ctx context.Context) (any, error) {
	removed, err := a.Audit.PurgeBefore(ctx, time.Now().Add(-a.Config.AuditRetention))
	if err != nil {
		return nil, err
	}
	return map[string]int64{"removed": removed}, nil
}

// Run serves HTTP until ctx is done, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	a.StartJobs(jobCtx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("leavedesk gateway listening", "addr", a.Config.Addr, "upstream", a.Config.UpstreamBaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	stopJobs()
	a.Jobs.Wait()
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
