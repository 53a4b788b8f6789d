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

	"github.com/IBM/sarama"
	"github.com/bissquit/clerk-queue/internal/auth"
	"github.com/bissquit/clerk-queue/internal/config"
	"github.com/bissquit/clerk-queue/internal/ingress"
	"github.com/bissquit/clerk-queue/internal/ingress/kafka"
	ingresspostgres "github.com/bissquit/clerk-queue/internal/ingress/postgres"
	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
	"github.com/bissquit/clerk-queue/internal/pkg/httputil"
	"github.com/bissquit/clerk-queue/internal/pkg/metrics"
	"github.com/bissquit/clerk-queue/internal/pkg/postgres"
	"github.com/bissquit/clerk-queue/internal/pkg/tracing"
	"github.com/bissquit/clerk-queue/internal/queue"
	queuepostgres "github.com/bissquit/clerk-queue/internal/queue/postgres"
	"github.com/bissquit/clerk-queue/internal/version"
	"github.com/bissquit/clerk-queue/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server

	workersCancel   context.CancelFunc
	tracingShutdown tracing.Shutdown

	queueService    *queue.Service
	deadlineScanner *ingress.DeadlineScanner

	kafkaClient  sarama.Client
	consumer     *kafka.SubmissionConsumer
	consumerDone chan struct{}
	publisher    *kafka.TransitionPublisher
}

// New creates a new application instance and starts its background workers.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	app := &App{
		config: cfg,
		logger: logger,
	}

	tracingShutdown, err := tracing.Init(context.Background(), tracing.Config{
		Enabled:          cfg.Tracing.Enabled,
		ServiceName:      cfg.Tracing.ServiceName,
		ServiceVersion:   version.Version,
		ExporterEndpoint: cfg.Tracing.Endpoint,
		Insecure:         cfg.Tracing.Insecure,
		SampleRatio:      cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.tracingShutdown = tracingShutdown

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		Tracing:         cfg.Tracing.Enabled,
	})
	if err != nil {
		_ = app.closeAll(context.Background())
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	app.db = db

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL); err != nil {
			_ = app.closeAll(context.Background())
			return nil, err
		}
	}

	var publisher queue.TransitionPublisher
	if cfg.Ingress.Kafka.Enabled {
		if err := app.connectKafka(); err != nil {
			_ = app.closeAll(context.Background())
			return nil, err
		}
		if app.publisher != nil {
			publisher = app.publisher
		}
	}

	app.queueService = queue.NewService(queuepostgres.NewRepository(db), publisher, queue.Config{
		EnforceAssignee: cfg.Queue.EnforceAssignee,
		Location:        cfg.Queue.Location(),
	})

	if app.kafkaClient != nil {
		group, err := sarama.NewConsumerGroupFromClient(cfg.Ingress.Kafka.GroupID, app.kafkaClient)
		if err != nil {
			_ = app.closeAll(context.Background())
			return nil, fmt.Errorf("create consumer group: %w", err)
		}
		app.consumer = kafka.NewSubmissionConsumer(group, cfg.Ingress.Kafka.SubmissionsTopic,
			ingress.NewEnqueuer(app.queueService))
	}

	router := app.setupRouter(auth.NewAuthenticator(auth.Config{
		SecretKey: cfg.Auth.SecretKey,
		Issuer:    cfg.Auth.Issuer,
		Leeway:    cfg.Auth.Leeway,
	}))

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           otelhttp.NewHandler(router, "clerk-queue"),
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

	app.startWorkers()

	return app, nil
}

func migrateUp(databaseURL string) error {
	m, err := postgres.NewMigrator(migrations.FS, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Warn("failed to close migrator", "error", err)
		}
	}()
	return m.Up()
}

func (a *App) connectKafka() error {
	kcfg := a.config.Ingress.Kafka

	connectCtx, cancel := context.WithTimeout(context.Background(), kcfg.ConnectTimeout)
	defer cancel()

	client, err := kafka.Connect(connectCtx, kafka.ClientConfig{
		Brokers:        kcfg.Brokers,
		ClientID:       kcfg.ClientID,
		GroupID:        kcfg.GroupID,
		ConnectTimeout: kcfg.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	a.kafkaClient = client

	if kcfg.TransitionsTopic != "" {
		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("create producer: %w", err)
		}
		a.publisher = kafka.NewTransitionPublisher(producer, kcfg.TransitionsTopic)
	}

	slog.Info("kafka ingress configured",
		"brokers", kcfg.Brokers,
		"group_id", kcfg.GroupID,
		"submissions_topic", kcfg.SubmissionsTopic,
		"transitions_topic", kcfg.TransitionsTopic,
	)
	return nil
}

func (a *App) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.workersCancel = cancel

	go a.collectDBMetrics(ctx)
	go a.collectQueueMetrics(ctx)

	if a.config.Ingress.Deadline.Enabled {
		a.deadlineScanner = ingress.NewDeadlineScanner(ingress.ScannerConfig{
			PollInterval: a.config.Ingress.Deadline.PollInterval,
			Horizon:      a.config.Ingress.Deadline.Horizon,
			BatchSize:    a.config.Ingress.Deadline.BatchSize,
		}, ingresspostgres.NewDeadlineRepository(a.db), ingress.NewEnqueuer(a.queueService))
		a.deadlineScanner.Start(ctx)
	}

	if a.consumer != nil {
		a.consumerDone = make(chan struct{})
		go func() {
			defer close(a.consumerDone)
			if err := a.consumer.Run(ctx); err != nil {
				slog.Error("submission consumer stopped", "error", err)
			}
		}()
	}
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
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
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Shutdown both servers in parallel
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

	errs = append(errs, a.closeAll(ctx))
	return errors.Join(errs...)
}

// closeAll stops workers and releases every connection that was opened.
func (a *App) closeAll(ctx context.Context) error {
	var errs []error

	if a.workersCancel != nil {
		a.workersCancel()
	}
	if a.deadlineScanner != nil {
		a.deadlineScanner.Stop()
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
		if a.consumerDone != nil {
			<-a.consumerDone
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	if a.kafkaClient != nil {
		if err := a.kafkaClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka client: %w", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

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

func (a *App) collectQueueMetrics(ctx context.Context) {
	ticker := time.NewTicker(a.config.Queue.MetricsCollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			counts, err := a.queueService.CountByStatus(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("failed to count queue items", "error", err)
				}
				continue
			}
			queue.RecordQueueSize(counts)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// QueueService returns the queue engine. Used by tests to drive ingress paths directly.
func (a *App) QueueService() *queue.Service {
	return a.queueService
}

func (a *App) setupRouter(validator httputil.TokenValidator) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Clerk Queue API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	queueHandler := queue.NewHandler(a.queueService)

	r.Route("/api/v1", func(r chi.Router) {
		if a.config.RateLimit.Enabled {
			limiter := httputil.NewRateLimiter(a.config.RateLimit.Requests, a.config.RateLimit.Window)
			r.Use(limiter.Middleware)
		}
		r.Use(httputil.AuthMiddleware(validator))
		r.Use(httputil.TenantMiddleware)

		queueHandler.RegisterRoutes(r)
	})

	return r
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

	return slog.New(handler).With("service", "clerk-queue")
}
