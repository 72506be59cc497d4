package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/inkdesk/internal/config"
	"github.com/vadim/inkdesk/internal/controller/console"
	"github.com/vadim/inkdesk/internal/httpx/middleware"
	"github.com/vadim/inkdesk/internal/httpx/upstream/store"
)

// ConsoleApp is the console backend container
type ConsoleApp struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	storeClient *store.Client
	registry    *console.Registry
}

// NewConsoleApp creates and initializes the console backend
func NewConsoleApp(_ context.Context, cfg config.Config) (*ConsoleApp, error) {
	logger := newLogger(cfg.Log).With("service", "console")

	app := &ConsoleApp{
		cfg:    cfg,
		router: newRouter(),
		logger: logger,
	}

	app.storeClient = store.New(
		store.WithBaseURL(cfg.Store.BaseURL),
		store.WithTimeout(cfg.Store.Timeout),
		store.WithLogger(logger),
	)
	app.registry = console.NewRegistry(app.storeClient, console.RegistryConfig{
		PageSize:     cfg.Console.PageSize,
		SessionTTL:   cfg.Console.SessionTTL,
		PollInterval: cfg.Console.UnreadPollInterval,
	}, logger)

	app.registerRoutes()
	app.httpServer = newHTTPServer(cfg.Server, app.router)

	return app, nil
}

// registerRoutes registers all HTTP routes
func (a *ConsoleApp) registerRoutes() {
	a.router.Get("/healthz", healthHandler)
	a.router.Get("/readyz", readyHandler(map[string]func(context.Context) error{
		"store": a.pingStore,
	}))

	a.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(a.cfg.Auth.JWTSecret))
		console.NewHandler(a.registry, a.logger).RegisterRoutes(r)
	})
}

// pingStore checks that the store answers its health check
func (a *ConsoleApp) pingStore(ctx context.Context) error {
	return a.storeClient.Ping(ctx)
}

// Run starts the console and blocks until shutdown signal
func (a *ConsoleApp) Run(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.registry.Run(sweepCtx)

	if err := serve(ctx, a.httpServer, a.logger); err != nil {
		return err
	}
	return a.Shutdown(context.Background())
}

// Shutdown stops the HTTP server and every session poller
func (a *ConsoleApp) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	err := shutdownHTTP(ctx, a.httpServer)
	a.registry.Close()

	a.logger.Info("shutdown complete", "error", err)
	if err != nil {
		return fmt.Errorf("console shutdown: %w", err)
	}
	return nil
}
