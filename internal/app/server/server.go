package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"absence/internal/domain/audit"
	"absence/internal/domain/leave"
	"absence/internal/domain/notifications"
	"absence/internal/domain/workflow"
	"absence/internal/platform/config"
	"absence/internal/platform/db"
	"absence/internal/platform/email"
	"absence/internal/platform/events"
	"absence/internal/platform/jobs"
	"absence/internal/platform/metrics"
	"absence/internal/platform/querier"
	audithandler "absence/internal/transport/http/handlers/audit"
	leavehandler "absence/internal/transport/http/handlers/leave"
	notificationshandler "absence/internal/transport/http/handlers/notifications"
	workflowhandler "absence/internal/transport/http/handlers/workflow"
	"absence/internal/transport/http/middleware"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps is everything the router needs. Nil handlers are left unmounted.
type Deps struct {
	Config      config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Collector
	Engine      *workflow.Engine
	Leave       leavehandler.Service
	Inbox       notificationshandler.Inbox
	Audit       audithandler.Reader
	Idempotency middleware.IdempotencyKeeper
	Ready       []ReadinessCheck
}

func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var httpMetrics middleware.HTTPRecorder
	if d.Metrics != nil {
		httpMetrics = d.Metrics
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer(logger))
	router.Use(middleware.Logger(logger, httpMetrics))
	router.Use(middleware.SecureHeaders(d.Config.IsProduction()))
	router.Use(middleware.BodyLimit(d.Config.MaxBodyBytes))
	router.Use(middleware.Auth(d.Config.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range d.Ready {
			if err := check.Check(ctx); err != nil {
				logger.Warn("readiness check failed", "check", check.Name, "err", err)
				http.Error(w, check.Name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if d.Metrics != nil && d.Config.MetricsEnabled {
		router.Handle("/metrics", d.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if d.Config.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(d.Config.RateLimitPerMinute, time.Minute))
			r.Use(middleware.SensitiveMutationRateLimit(d.Config.RateLimitPerMinute, time.Minute))
		}

		if d.Engine != nil {
			workflowhandler.NewHandler(d.Engine, d.Config.DefaultRequestType).RegisterRoutes(r)
		}
		if d.Leave != nil {
			leavehandler.NewHandler(d.Leave, d.Idempotency).RegisterRoutes(r)
		}
		if d.Inbox != nil {
			notificationshandler.NewHandler(d.Inbox).RegisterRoutes(r)
		}
		if d.Audit != nil {
			audithandler.NewHandler(d.Audit).RegisterRoutes(r)
		}
	})

	return router
}

// Run wires the service against Postgres and NATS and serves until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	var bus events.Publisher = events.Noop{}
	ready := []ReadinessCheck{{Name: "database", Check: pool.Ping}}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		bus = nc
		ready = append(ready, ReadinessCheck{Name: "nats", Check: func(context.Context) error {
			if !nc.Ready() {
				return errors.New("nats disconnected")
			}
			return nil
		}})
	} else {
		logger.Info("NATS_URL not set, events are dropped")
	}

	collector := metrics.New()
	engine := workflow.NewEngine(workflow.NewStore(pool), workflow.WithRecorder(collector), workflow.WithLogger(logger))
	auditFactory := func(q querier.Querier) workflow.AuditEmitter {
		return audit.NewEmitter(audit.New(q), bus, logger)
	}
	notifier := notifications.New(notifications.NewStore(pool), bus, logger, notifications.WithMailer(email.New(cfg)))
	leaveService := leave.NewService(leave.NewStore(pool), engine, auditFactory, notifier, logger)
	idempotency := middleware.NewIdempotencyStore(pool)

	scheduler := jobs.New(pool, logger)
	scheduler.Every(jobs.JobApprovalReminder, cfg.ReminderInterval, func(ctx context.Context) (any, error) {
		n, err := leaveService.RemindStaleApprovals(ctx, cfg.ReminderAfter)
		return map[string]int{"reminded": n}, err
	})
	scheduler.Every(jobs.JobIdempotencyPurge, cfg.IdempotencyPurgeInterval, func(ctx context.Context) (any, error) {
		n, err := idempotency.Purge(ctx, time.Now().Add(-cfg.IdempotencyTTL))
		return map[string]int64{"deleted": n}, err
	})
	jobsCtx, cancelJobs := context.WithCancel(ctx)
	scheduler.Start(jobsCtx)
	defer func() {
		cancelJobs()
		scheduler.Wait()
	}()

	router := NewRouter(Deps{
		Config:      cfg,
		Logger:      logger,
		Metrics:     collector,
		Engine:      engine,
		Leave:       leaveService,
		Inbox:       notifier,
		Audit:       audit.New(pool),
		Idempotency: idempotency,
		Ready:       ready,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("absence server listening", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
