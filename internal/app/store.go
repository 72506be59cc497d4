package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/inkdesk/api"
	"github.com/vadim/inkdesk/internal/cache"
	"github.com/vadim/inkdesk/internal/config"
	httpcontroller "github.com/vadim/inkdesk/internal/controller/http"
	"github.com/vadim/inkdesk/internal/database"
	convdao "github.com/vadim/inkdesk/internal/domain/conversation/dao"
	"github.com/vadim/inkdesk/internal/domain/conversation/policy"
	convservice "github.com/vadim/inkdesk/internal/domain/conversation/service"
	notifdao "github.com/vadim/inkdesk/internal/domain/notification/dao"
	"github.com/vadim/inkdesk/internal/domain/notification/delivery"
	notifservice "github.com/vadim/inkdesk/internal/domain/notification/service"
	"github.com/vadim/inkdesk/internal/httpx/middleware"
	"github.com/vadim/inkdesk/internal/queue"
)

// StoreApp is the Conversation Store container
type StoreApp struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	// Infrastructure
	pool        *pgxpool.Pool
	cache       *cache.Redis
	queueClient *queue.AsynqClient

	// Domain layers used by HTTP handlers
	conversationPolicy *policy.Policy
	preferenceService  *notifservice.Service
}

// NewStoreApp creates and initializes the store
func NewStoreApp(ctx context.Context, cfg config.Config) (*StoreApp, error) {
	logger := newLogger(cfg.Log).With("service", "store")

	app := &StoreApp{
		cfg:    cfg,
		router: newRouter(),
		logger: logger,
	}

	if err := app.initInfrastructure(ctx); err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	app.initDomains()
	app.registerRoutes()

	app.httpServer = newHTTPServer(cfg.Server.WithPort(cfg.Store.Port), app.router)

	return app, nil
}

// initInfrastructure connects to PostgreSQL, Redis and the task queue
func (a *StoreApp) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	rc, err := cache.NewRedis(ctx, a.cfg.Redis.URL, a.cfg.Redis.KeyPrefix)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	a.cache = rc

	if a.cfg.Queue.Enabled {
		qc, err := queue.NewAsynqClient(a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("creating queue client: %w", err)
		}
		a.queueClient = qc
	}

	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *StoreApp) initDomains() {
	svcCfg := convservice.Config{
		Cache:    a.cache,
		CacheTTL: a.cfg.Redis.CacheTTL,
	}
	if a.queueClient != nil {
		svcCfg.Notifier = delivery.NewNotifier(a.queueClient, a.cfg.Queue.Name)
	}

	convService := convservice.New(
		convdao.NewConversationPostgres(a.pool),
		convdao.NewMessagePostgres(a.pool),
		svcCfg,
		a.logger,
	)
	a.conversationPolicy = policy.New(convService)
	a.preferenceService = notifservice.New(notifdao.NewPreferencePostgres(a.pool))
}

// registerRoutes registers all HTTP routes
func (a *StoreApp) registerRoutes() {
	a.router.Get("/healthz", healthHandler)
	a.router.Get("/readyz", readyHandler(map[string]func(context.Context) error{
		"postgres": a.pool.Ping,
		"redis":    a.cache.Ping,
	}))

	swaggerHandler := httpcontroller.NewSwaggerHandler("inkdesk Conversation Store", api.OpenAPI)
	swaggerHandler.RegisterRoutes(a.router)

	a.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(a.cfg.Auth.JWTSecret))

		httpcontroller.NewConversationHandler(a.conversationPolicy).RegisterRoutes(r)
		httpcontroller.NewPreferenceHandler(a.preferenceService).RegisterRoutes(r)
	})
}

// Run starts the store and blocks until shutdown signal
func (a *StoreApp) Run(ctx context.Context) error {
	if err := serve(ctx, a.httpServer, a.logger); err != nil {
		return err
	}
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the store
func (a *StoreApp) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	err := shutdownHTTP(ctx, a.httpServer)
	a.closeInfrastructure()

	a.logger.Info("shutdown complete")
	return err
}

func (a *StoreApp) closeInfrastructure() {
	if a.queueClient != nil {
		if err := a.queueClient.Close(); err != nil {
			a.logger.Warn("closing queue client", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
