package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UnreadRefresher re-derives the unread projection from the store
type UnreadRefresher interface {
	RefreshUnread(ctx context.Context) (int, error)
}

// Scheduler periodically refreshes the unread badge of one console session
type Scheduler struct {
	refresher    UnreadRefresher
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger
	stopCh       chan struct{}
	cancel       context.CancelFunc // stops the in-flight refresh
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex

	onRefresh func(total int)
}

// Config holds configuration for the unread poller
type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
	// OnRefresh, if set, is called with the new total after every successful refresh
	OnRefresh func(total int)
}

// New creates a new unread poller
func New(refresher UnreadRefresher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		refresher:    refresher,
		interval:     cfg.Interval,
		initialDelay: cfg.InitialDelay,
		logger:       logger,
		onRefresh:    cfg.OnRefresh,
	}
}

// Start starts the poller. Calling Start on a running poller does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Debug("unread poller started", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx, stopCh)
}

// Stop stops the poller and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	stopCh := s.stopCh
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	close(stopCh)
	s.wg.Wait()
	s.logger.Debug("unread poller stopped")
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	select {
	case <-time.After(s.initialDelay):
		s.process(ctx)
	case <-stopCh:
		return
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-ticker.C:
			s.process(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) process(ctx context.Context) {
	total, err := s.refresher.RefreshUnread(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("unread refresh failed", "error", err)
		return
	}

	s.logger.Debug("unread refreshed", "unread_total", total)
	if s.onRefresh != nil {
		s.onRefresh(total)
	}
}
