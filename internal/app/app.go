// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Carine01/agenda-courier/internal/config"
	"github.com/Carine01/agenda-courier/internal/delivery/session"
	"github.com/Carine01/agenda-courier/internal/delivery/webhook"
	"github.com/Carine01/agenda-courier/internal/pkg/ctxlog"
	"github.com/Carine01/agenda-courier/internal/pkg/httputil"
	"github.com/Carine01/agenda-courier/internal/pkg/idempotency"
	"github.com/Carine01/agenda-courier/internal/pkg/metrics"
	"github.com/Carine01/agenda-courier/internal/pkg/postgres"
	"github.com/Carine01/agenda-courier/internal/queue"
	queuepostgres "github.com/Carine01/agenda-courier/internal/queue/postgres"
	"github.com/Carine01/agenda-courier/internal/schedule"
	schedulepostgres "github.com/Carine01/agenda-courier/internal/schedule/postgres"
	"github.com/Carine01/agenda-courier/internal/templates"
	"github.com/Carine01/agenda-courier/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc

	scheduler      *queue.Scheduler
	sessionSender  *session.Session // nil unless the session strategy is active
	idempotency    *idempotency.Store
	queueService   *queue.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setup(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup application: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. The scheduler stops
// first so no batch is claimed mid-teardown; a stopped scheduler leaves
// every in-flight item recoverable via the stuck sweep.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.sessionSender != nil {
		a.sessionSender.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.idempotency != nil {
		if err := a.idempotency.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close idempotency store: %w", err))
		}
	}

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the queue scheduler instance. Used in tests to
// drive batches explicitly.
func (a *App) Scheduler() *queue.Scheduler {
	return a.scheduler
}

func (a *App) setup(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	resolver, err := templates.NewSet()
	if err != nil {
		return nil, fmt.Errorf("load message templates: %w", err)
	}

	provider, err := a.setupProvider(ctx)
	if err != nil {
		return nil, err
	}

	var idem *idempotency.Store
	if a.config.Redis.Enabled {
		idem, err = idempotency.New(ctx, idempotency.Config{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.idempotency = idem
	} else {
		slog.Warn("idempotency store disabled: duplicate enqueue requests will not be deduplicated")
	}

	queueRepo := queuepostgres.NewRepository(a.db)
	a.queueService = queue.NewService(queue.ServiceConfig{
		MaxAttempts: a.config.Queue.MaxAttempts,
	}, queueRepo, resolver, idem)
	queueHandler := queue.NewHandler(a.queueService)

	processor := queue.NewProcessor(queue.ProcessorConfig{
		BaseDelay: a.config.Queue.BaseDelay,
		MaxDelay:  a.config.Queue.MaxDelay,
	}, queueRepo, provider)

	a.scheduler = queue.NewScheduler(queue.SchedulerConfig{
		TickInterval:  a.config.Queue.TickInterval,
		BatchSize:     a.config.Queue.BatchSize,
		StuckAfter:    a.config.Queue.StuckAfter,
		RetainSentFor: a.config.Queue.RetainSentFor,
		MaintainEvery: a.config.Queue.MaintainEvery,
	}, processor, queueRepo)
	a.scheduler.Start(ctx)

	scheduleRepo := schedulepostgres.NewRepository(a.db)
	scheduleService := schedule.NewService(scheduleRepo, a.businessHours())
	scheduleHandler := schedule.NewHandler(scheduleService)

	r.Route("/api/v1", func(r chi.Router) {
		queueHandler.RegisterRoutes(r)
		scheduleHandler.RegisterRoutes(r)
	})

	return r, nil
}

// setupProvider builds the delivery provider named by the configured
// strategy. Credential presence was already validated with the config.
func (a *App) setupProvider(ctx context.Context) (queue.Provider, error) {
	switch a.config.Delivery.Strategy {
	case "webhook":
		sender, err := webhook.NewSender(webhook.Config{
			Endpoint: a.config.Delivery.Webhook.Endpoint,
			Token:    a.config.Delivery.Webhook.Token,
			Timeout:  a.config.Delivery.Webhook.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create webhook sender: %w", err)
		}
		return sender, nil

	case "session":
		sender, err := session.NewSession(session.Config{
			URL:             a.config.Delivery.Session.URL,
			Token:           a.config.Delivery.Session.Token,
			MinSendInterval: a.config.Delivery.Session.MinSendInterval,
			AckTimeout:      a.config.Delivery.Session.AckTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create session sender: %w", err)
		}
		sender.Start(ctx)
		a.sessionSender = sender
		return sender, nil

	default:
		return nil, fmt.Errorf("unknown delivery strategy %q", a.config.Delivery.Strategy)
	}
}

func (a *App) businessHours() schedule.BusinessHours {
	hours := schedule.BusinessHours{
		OpenMinute:  a.config.Schedule.OpenMinute,
		CloseMinute: a.config.Schedule.CloseMinute,
	}
	if a.config.Schedule.HalfDayWeekday >= 0 {
		weekday := time.Weekday(a.config.Schedule.HalfDayWeekday)
		hours.HalfDayWeekday = &weekday
		hours.HalfDayCloseMinute = a.config.Schedule.HalfDayCloseMinute
	}
	return hours
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
