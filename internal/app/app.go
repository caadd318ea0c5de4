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

	"github.com/ayerhssb/status-page/api"
	"github.com/ayerhssb/status-page/internal/catalog"
	catalogpostgres "github.com/ayerhssb/status-page/internal/catalog/postgres"
	"github.com/ayerhssb/status-page/internal/config"
	"github.com/ayerhssb/status-page/internal/identity"
	"github.com/ayerhssb/status-page/internal/incidents"
	incidentspostgres "github.com/ayerhssb/status-page/internal/incidents/postgres"
	"github.com/ayerhssb/status-page/internal/maintenance"
	maintenancepostgres "github.com/ayerhssb/status-page/internal/maintenance/postgres"
	"github.com/ayerhssb/status-page/internal/pkg/ctxlog"
	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/ayerhssb/status-page/internal/pkg/metrics"
	"github.com/ayerhssb/status-page/internal/pkg/postgres"
	"github.com/ayerhssb/status-page/internal/realtime"
	"github.com/ayerhssb/status-page/internal/realtime/webhook"
	"github.com/ayerhssb/status-page/internal/status"
	"github.com/ayerhssb/status-page/internal/version"
	"github.com/ayerhssb/status-page/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const applicationName = "statuspage"

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server

	// background is cancelled on shutdown and parents every worker.
	background       context.Context
	backgroundCancel context.CancelFunc

	publisher  *realtime.Publisher
	hub        *realtime.Hub
	reconciler *incidents.Reconciler
	incidents  *incidents.Service
}

// New creates a new application instance: it connects to the database,
// optionally migrates it, starts the event publisher and the reconciler and
// builds both HTTP servers.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	db, err := connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	background, cancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		background:       background,
		backgroundCancel: cancel,
	}

	go app.collectDBMetrics(background)

	router, err := app.setupRouter()
	if err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.publisher.Start(background)

	if cfg.Incidents.ReconcileSchedule != "" {
		app.reconciler = incidents.NewReconciler(app.incidents, cfg.Incidents.ReconcileSchedule)
		if err := app.reconciler.Start(background); err != nil {
			_ = app.publisher.Stop(context.Background())
			cancel()
			db.Close()
			return nil, fmt.Errorf("start reconciler: %w", err)
		}
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

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

// Reconcile re-derives every service status once and returns how many were
// repaired. It runs outside the server, so repairs reach observers only on
// their next refetch.
func Reconcile(ctx context.Context, cfg *config.Config) (int, error) {
	initLogger(cfg.Log)

	db, err := connect(cfg.Database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	service := incidents.NewService(incidentspostgres.NewRepository(db), nil, incidentsConfig(cfg.Incidents))
	return incidents.NewReconciler(service, cfg.Incidents.ReconcileSchedule).RunOnce(ctx)
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. Servers stop accepting
// writes before the publisher drains so no event is enqueued after Stop.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var errs []error

	if a.reconciler != nil {
		a.reconciler.Stop(ctx)
	}

	errs = append(errs, a.shutdownServers(ctx)...)

	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.publisher.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	a.backgroundCancel()
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) shutdownServers(ctx context.Context) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	shutdown := func(name string, srv *http.Server) {
		defer wg.Done()
		if err := srv.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
			mu.Unlock()
		}
	}

	wg.Add(2)
	go shutdown("server", a.server)
	go shutdown("metrics server", a.metricsServer)
	wg.Wait()

	return errs
}

func (a *App) collectDBMetrics(ctx context.Context) {
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

func (a *App) setupRouter() (*chi.Mux, error) {
	transports, err := a.setupTransports()
	if err != nil {
		return nil, err
	}

	verifier, err := identity.NewVerifier(identity.Config{
		Secret:            a.config.Auth.JWTSecret,
		Issuer:            a.config.Auth.Issuer,
		Audience:          a.config.Auth.Audience,
		OrganizationClaim: a.config.Auth.OrganizationClaim,
	})
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}

	rt := a.config.Realtime
	a.publisher = realtime.NewPublisher(realtime.Config{
		QueueSize:         rt.QueueSize,
		NumWorkers:        rt.NumWorkers,
		MaxAttempts:       rt.MaxAttempts,
		InitialBackoff:    rt.InitialBackoff,
		MaxBackoff:        rt.MaxBackoff,
		BackoffMultiplier: rt.BackoffMultiplier,
		PublishTimeout:    rt.PublishTimeout,
	}, transports...)

	a.incidents = incidents.NewService(incidentspostgres.NewRepository(a.db), a.publisher, incidentsConfig(a.config.Incidents))
	catalogService := catalog.NewService(catalogpostgres.NewRepository(a.db), a.incidents)
	maintenanceService := maintenance.NewService(maintenancepostgres.NewRepository(a.db), catalogService, a.publisher)
	statusService := status.NewService(catalogService, a.incidents, maintenanceService)

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)
	r.Get("/api/openapi.yaml", openAPIHandler)
	r.Get("/docs", docsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket endpoint outlives the request timeout.
		if a.hub != nil {
			r.Get("/status/{orgID}/ws", a.hub.ServeWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			status.NewHandler(statusService).RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(verifier))

				identity.NewHandler().RegisterProtectedRoutes(r)

				r.Route("/organizations/{orgID}", func(r chi.Router) {
					r.Use(httputil.RequireOrganization)

					catalog.NewHandler(catalogService).RegisterRoutes(r)
					incidents.NewHandler(a.incidents).RegisterRoutes(r)
					maintenance.NewHandler(maintenanceService).RegisterRoutes(r)
				})
			})
		})
	})

	return r, nil
}

// setupTransports builds the enabled realtime transports. Running without
// any transport is allowed; events are then only counted.
func (a *App) setupTransports() ([]realtime.Transport, error) {
	rt := a.config.Realtime
	var transports []realtime.Transport

	if rt.WebSocket.Enabled {
		a.hub = realtime.NewHub(realtime.HubConfig{
			AllowedOrigins: rt.WebSocket.AllowedOrigins,
			WriteTimeout:   rt.WebSocket.WriteTimeout,
			PingInterval:   rt.WebSocket.PingInterval,
			SendBuffer:     rt.WebSocket.SendBuffer,
		})
		transports = append(transports, a.hub)
	}

	if rt.Webhook.Enabled {
		sender, err := webhook.NewSender(webhook.Config{
			URLs:      rt.Webhook.URLs,
			Secret:    rt.Webhook.Secret,
			Timeout:   rt.Webhook.Timeout,
			RateLimit: rt.Webhook.RateLimit,
			Burst:     rt.Webhook.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("create webhook sender: %w", err)
		}
		transports = append(transports, sender)
	}

	slog.Info("realtime transports configured",
		"websocket", rt.WebSocket.Enabled,
		"webhook", rt.Webhook.Enabled,
		"webhook_urls", len(rt.Webhook.URLs),
	)
	return transports, nil
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
	httputil.JSON(w, http.StatusOK, version.Get())
}

func openAPIHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(api.OpenAPI)
}

func docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Status Page API</title>
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
}

func connect(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
		ApplicationName: applicationName,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func incidentsConfig(cfg config.IncidentsConfig) incidents.Config {
	return incidents.Config{
		MaxConflictRetries: cfg.MaxConflictRetries,
		ConflictBackoff:    cfg.ConflictBackoff,
	}
}

// initLogger builds the process logger and installs it as the slog default.
func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("app", applicationName)
	slog.SetDefault(logger)
	return logger
}
