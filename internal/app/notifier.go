package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/inkdesk/internal/cache"
	"github.com/vadim/inkdesk/internal/config"
	"github.com/vadim/inkdesk/internal/database"
	convdao "github.com/vadim/inkdesk/internal/domain/conversation/dao"
	convservice "github.com/vadim/inkdesk/internal/domain/conversation/service"
	notifdao "github.com/vadim/inkdesk/internal/domain/notification/dao"
	"github.com/vadim/inkdesk/internal/domain/notification/delivery"
	notifservice "github.com/vadim/inkdesk/internal/domain/notification/service"
	"github.com/vadim/inkdesk/internal/queue"
)

// NotifierApp is the email delivery worker container
type NotifierApp struct {
	cfg    config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	cache       *cache.Redis
	queueClient *queue.AsynqClient
	server      *queue.AsynqServer
}

// NewNotifierApp creates and initializes the notifier
func NewNotifierApp(ctx context.Context, cfg config.Config) (*NotifierApp, error) {
	app := &NotifierApp{
		cfg:    cfg,
		logger: newLogger(cfg.Log).With("service", "notifier"),
	}

	if err := app.initInfrastructure(ctx); err != nil {
		app.close()
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	app.initDomains()
	return app, nil
}

func (a *NotifierApp) initInfrastructure(ctx context.Context) error {
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

	qc, err := queue.NewAsynqClient(a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("creating queue client: %w", err)
	}
	a.queueClient = qc

	srv, err := queue.NewAsynqServer(queue.ServerConfig{
		RedisURL:    a.cfg.Redis.URL,
		Concurrency: a.cfg.Queue.Concurrency,
		Queues:      a.cfg.Queue.Weights,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("creating queue server: %w", err)
	}
	a.server = srv

	return nil
}

// initDomains wires the task handlers. The unread summary is read through
// the same cache the store invalidates.
func (a *NotifierApp) initDomains() {
	convService := convservice.New(
		convdao.NewConversationPostgres(a.pool),
		convdao.NewMessagePostgres(a.pool),
		convservice.Config{Cache: a.cache, CacheTTL: a.cfg.Redis.CacheTTL},
		a.logger,
	)
	prefService := notifservice.New(notifdao.NewPreferencePostgres(a.pool))

	handler := delivery.NewHandler(
		prefService,
		convService,
		delivery.NewLogMailer(a.logger),
		a.queueClient,
		a.cfg.Queue.Name,
		a.logger,
	)
	handler.Register(a.server)
}

// Run processes tasks until a shutdown signal arrives or ctx is done
func (a *NotifierApp) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting queue worker", "queue", a.cfg.Queue.Name, "concurrency", a.cfg.Queue.Concurrency)
		if err := a.server.Run(runCtx); err != nil {
			errCh <- err
		}
	}()

	if err := waitForStop(ctx, errCh, a.logger); err != nil {
		return err
	}
	return a.Shutdown(context.Background())
}

// Shutdown stops the worker and releases connections
func (a *NotifierApp) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")
	err := a.server.Stop(ctx)
	a.close()
	a.logger.Info("shutdown complete")
	return err
}

func (a *NotifierApp) close() {
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
