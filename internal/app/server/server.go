package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"detailpay/internal/domain/accounting"
	"detailpay/internal/domain/alerts"
	"detailpay/internal/domain/audit"
	"detailpay/internal/domain/auth"
	"detailpay/internal/domain/payroll"
	"detailpay/internal/platform/archive"
	"detailpay/internal/platform/cache"
	"detailpay/internal/platform/config"
	cryptoutil "detailpay/internal/platform/crypto"
	"detailpay/internal/platform/db"
	"detailpay/internal/platform/email"
	"detailpay/internal/platform/jobs"
	"detailpay/internal/platform/logging"
	"detailpay/internal/platform/metrics"
	alertshandler "detailpay/internal/transport/http/handlers/alerts"
	audithandler "detailpay/internal/transport/http/handlers/audit"
	authhandler "detailpay/internal/transport/http/handlers/auth"
	payrollhandler "detailpay/internal/transport/http/handlers/payroll"
	"detailpay/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Payroll *payroll.Service
	Jobs    *jobs.Service

	closers []func()
}

// New connects every backing service and builds the router. Redis and the e-mail provider
// are optional; the database is not.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app := &App{Config: cfg, DB: pool}
	app.closers = append(app.closers, pool.Close)

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	var docs archive.Archive
	switch cfg.ArchiveBackend {
	case config.ArchiveBackendS3:
		s3Archive, err := archive.NewS3(ctx, cfg.ArchiveS3Bucket, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint, crypto)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		docs = s3Archive
	default:
		docs = archive.NewLocal(cfg.ArchiveDir, crypto)
	}

	memory := cache.NewMemory()
	var kv cache.Store = memory
	var counter cache.Counter = memory
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "err", err)
		} else {
			kv = redisCache
			counter = redisCache
			app.closers = append(app.closers, func() {
				if err := redisCache.Close(); err != nil {
					slog.Warn("redis close failed", "err", err)
				}
			})
		}
	}

	collector := metrics.New()
	alertOpts := []alerts.Option{alerts.WithRecorder(collector)}
	if cfg.EmailEnabled && cfg.AlertEmailTo != "" {
		alertOpts = append(alertOpts, alerts.WithMailer(email.New(ctx, cfg), cfg.EmailFrom, cfg.AlertEmailTo))
	}
	if cfg.SlackWebhookURL != "" {
		alertOpts = append(alertOpts, alerts.WithSlackWebhook(cfg.SlackWebhookURL))
	}
	alertService := alerts.New(alerts.NewStore(pool), alertOpts...)

	ledgerStore := payroll.NewStore(pool)
	app.Payroll = payroll.NewService(payroll.Deps{
		History:     ledgerStore,
		Jobs:        ledgerStore,
		Employees:   ledgerStore,
		Adjustments: ledgerStore,
		Alerts:      alertService,
		Documents:   docs,
		Expenses:    accounting.NewStore(pool),
		Cache:       kv,
	}, payroll.WithDedupWindow(cfg.AlertDedupWindow), payroll.WithRecorder(collector))
	app.Jobs = jobs.New(jobs.NewRunLog(pool), cfg, app.Payroll)

	authStore := auth.NewStore(pool)
	auditService := audit.New(pool)
	payrollHandler := payrollhandler.NewHandler(app.Payroll, app.Jobs, authStore, auditService, middleware.NewIdempotencyStore(pool), cfg.CORSAllowedOrigins)
	app.closers = append(app.closers, payrollHandler.Close)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(collector))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.SensitiveMutationRateLimit(counter, cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", collector.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(authStore, cfg.JWTSecret)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Get("/auth/me", authHandler.HandleMe)

		payrollHandler.RegisterRoutes(r)
		alertshandler.NewHandler(alertService, authStore).RegisterRoutes(r)
		audithandler.NewHandler(auditService, authStore).RegisterRoutes(r)
	})

	app.Router = router
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Run() {
	cfg := config.Load()
	logging.Init("detailpay", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("detailpay server listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
