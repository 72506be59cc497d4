package console

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/inkdesk/internal/domain/conversation/engine"
	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/domain/conversation/pager"
	"github.com/vadim/inkdesk/internal/domain/conversation/scheduler"
	"github.com/vadim/inkdesk/internal/domain/notification/consumer"
	notification "github.com/vadim/inkdesk/internal/domain/notification/entity"
	"github.com/vadim/inkdesk/internal/events"
	"github.com/vadim/inkdesk/internal/httpx/upstream/store"
)

// Session is the console state of one signed-in user
type Session struct {
	ID     string
	UserID string

	Engine *engine.Engine
	Pager  *pager.Pager
	Prefs  *consumer.Consumer

	bus    *events.Bus
	poller *scheduler.Scheduler
	repo   *userStore

	lastSeen atomic.Int64
	polledAt atomic.Int64
}

// PolledAt returns when the background poller last refreshed the unread
// badge, false before the first successful poll
func (s *Session) PolledAt() (time.Time, bool) {
	n := s.polledAt.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

func (s *Session) touch(now time.Time, token string) {
	s.lastSeen.Store(now.UnixNano())
	s.repo.setToken(token)
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// close stops the poller and detaches the pager from the bus
func (s *Session) close() error {
	s.poller.Stop()
	return s.Pager.Close()
}

// userStore forwards to the store with the session's latest access token
type userStore struct {
	client *store.Client
	token  atomic.Pointer[string]
}

func (u *userStore) setToken(token string) {
	if cur := u.token.Load(); cur != nil && *cur == token {
		return
	}
	u.token.Store(&token)
}

func (u *userStore) user() *store.UserClient {
	token := ""
	if t := u.token.Load(); t != nil {
		token = *t
	}
	return u.client.ForUser(token)
}

func (u *userStore) ListConversations(ctx context.Context, q entity.ListQuery) (*entity.Page, error) {
	return u.user().ListConversations(ctx, q)
}

func (u *userStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	return u.user().GetConversation(ctx, id)
}

func (u *userStore) ToggleArchive(ctx context.Context, id string) (entity.Status, error) {
	return u.user().ToggleArchive(ctx, id)
}

func (u *userStore) MarkRead(ctx context.Context, id string) error {
	return u.user().MarkRead(ctx, id)
}

func (u *userStore) SendMessage(ctx context.Context, id, content string) (*entity.Message, error) {
	return u.user().SendMessage(ctx, id, content)
}

func (u *userStore) Leave(ctx context.Context, id string) (entity.Status, error) {
	return u.user().Leave(ctx, id)
}

func (u *userStore) RecentUnread(ctx context.Context, limit int) ([]entity.UnreadConversationSummary, error) {
	return u.user().RecentUnread(ctx, limit)
}

func (u *userStore) GetPreference(ctx context.Context) (*notification.Preference, error) {
	return u.user().GetPreference(ctx)
}

func (u *userStore) UpdatePreference(ctx context.Context, enabled bool, frequency notification.Frequency) (*notification.Preference, error) {
	return u.user().UpdatePreference(ctx, enabled, frequency)
}

// RegistryConfig holds configuration for the session registry
type RegistryConfig struct {
	PageSize     int
	SessionTTL   time.Duration
	PollInterval time.Duration
	// PollDelay postpones the first unread refresh of a new session
	PollDelay time.Duration
}

// Registry owns the console sessions, keyed by user id
type Registry struct {
	client *store.Client
	cfg    RegistryConfig
	logger *slog.Logger
	now    func() time.Time

	// sessions outlive requests; pollers run on this context
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a session registry backed by the store client
func NewRegistry(client *store.Client, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if cfg.PageSize <= 0 {
		cfg.PageSize = entity.DefaultPageSize
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		client:   client,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the user's session, creating it on first use
func (r *Registry) Acquire(userID, token string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		s.touch(r.now(), token)
		return s
	}

	s := r.newSession(userID)
	s.touch(r.now(), token)
	r.sessions[userID] = s

	s.poller.Start(r.baseCtx)

	r.logger.Info("console session created", "session_id", s.ID, "user_id", userID)
	return s
}

func (r *Registry) newSession(userID string) *Session {
	logger := r.logger.With("user_id", userID)
	repo := &userStore{client: r.client}
	bus := events.NewBus(logger)
	eng := engine.New(repo, bus, logger)
	pg := pager.New(eng, pager.WithPageSize(r.cfg.PageSize), pager.WithLogger(logger))
	if err := pg.Attach(bus); err != nil {
		// a fresh bus has no subscribers
		logger.Error("attaching pager", "error", err)
	}

	sess := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Engine: eng,
		Pager:  pg,
		Prefs:  consumer.New(repo, logger),
		bus:    bus,
		repo:   repo,
	}
	sess.poller = scheduler.New(eng, scheduler.Config{
		Interval:     r.cfg.PollInterval,
		InitialDelay: r.cfg.PollDelay,
		OnRefresh: func(int) {
			sess.polledAt.Store(r.now().UnixNano())
		},
	}, logger)
	return sess
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were evicted
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.SessionTTL)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.evict(s)
	}
	return len(idle)
}

func (r *Registry) evict(s *Session) {
	if err := s.close(); err != nil {
		r.logger.Warn("closing console session", "session_id", s.ID, "error", err)
	}
	r.logger.Info("console session evicted", "session_id", s.ID, "user_id", s.UserID)
}

// Run sweeps idle sessions until ctx is done
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.SessionTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("idle console sessions swept", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close evicts every session and stops their pollers
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.evict(s)
	}
	r.cancel()
}
