// Package engine holds the console's authoritative in-memory view of a
// user's conversations: the listed page, the open conversation and the
// unread projection. The store is the only source of truth; the engine
// replaces what it holds with each response and never patches counters,
// apart from the optimistic zeroing of MarkRead.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/events"
)

// Repository is the store façade the engine depends on
type Repository interface {
	ListConversations(ctx context.Context, q entity.ListQuery) (*entity.Page, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	ToggleArchive(ctx context.Context, id string) (entity.Status, error)
	MarkRead(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id, content string) (*entity.Message, error)
	Leave(ctx context.Context, id string) (entity.Status, error)
	RecentUnread(ctx context.Context, limit int) ([]entity.UnreadConversationSummary, error)
}

// Publisher emits invalidation signals
type Publisher interface {
	Publish(ctx context.Context, signal events.Signal)
}

// Engine is the per-user conversation state engine
type Engine struct {
	repo   Repository
	bus    Publisher
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	gen    uint64 // bumped by every authoritative replace
	list   *listState
	open   openState
	unread map[string]int
	recent []entity.UnreadConversationSummary
	// ids the store acknowledged as CLOSED; terminal, so never cleared
	closed map[string]bool
}

type listState struct {
	query     entity.ListQuery
	page      entity.Page
	stale     map[string]bool
	fetchedAt time.Time
}

type openState struct {
	id           string
	conversation *entity.Conversation
	notFound     bool
	stale        bool
	err          error
	fetchedAt    time.Time
}

// New creates a new state engine. bus may be nil when nothing listens.
func New(repo Repository, bus Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		unread: make(map[string]int),
		closed: make(map[string]bool),
	}
}

// ListOption configures a ListConversations call
type ListOption func(*listOptions)

type listOptions struct {
	current func() bool
}

// IfCurrent makes the list replace conditional: fn is evaluated under the
// engine lock when the response arrives, and a false result discards it.
func IfCurrent(fn func() bool) ListOption {
	return func(o *listOptions) {
		o.current = fn
	}
}

// ListConversations fetches one page and replaces the in-memory list with it.
// On failure the previous list is kept as is.
func (e *Engine) ListConversations(ctx context.Context, q entity.ListQuery, opts ...ListOption) (*entity.Page, error) {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}

	page, err := e.repo.ListConversations(ctx, q)
	if err != nil {
		if o.current != nil && !o.current() {
			return nil, ErrSuperseded
		}
		e.logger.Warn("conversation list fetch failed",
			"status", string(q.Status),
			"page", q.Page,
			"error", err,
		)
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if o.current != nil && !o.current() {
		return nil, ErrSuperseded
	}

	e.gen++
	stored := clonePage(*page)
	e.list = &listState{
		query:     q,
		page:      stored,
		stale:     make(map[string]bool),
		fetchedAt: e.now(),
	}
	for _, c := range stored.Data {
		e.observeUnreadLocked(c.ID, c.Status, c.UnreadCount)
	}

	out := clonePage(stored)
	return &out, nil
}

// OpenConversation fetches a conversation with its messages for the detail
// view. It does not mark anything read.
func (e *Engine) OpenConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	conv, err := e.repo.GetConversation(ctx, id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		if IsNotFound(err) {
			e.gen++
			e.open = openState{id: id, notFound: true, err: entity.ErrConversationNotFound, fetchedAt: e.now()}
			delete(e.unread, id)
			return nil, fmt.Errorf("opening conversation %s: %w", id, entity.ErrConversationNotFound)
		}

		// keep the last good detail of the same conversation
		if e.open.id != id {
			e.open = openState{id: id}
		}
		e.open.err = err
		return nil, fmt.Errorf("opening conversation %s: %w", id, err)
	}

	e.gen++
	stored := conv.Clone()
	e.open = openState{id: id, conversation: &stored, fetchedAt: e.now()}
	e.observeUnreadLocked(stored.ID, stored.Status, stored.UnreadCount)

	out := stored.Clone()
	return &out, nil
}

// MarkRead acknowledges a conversation as read. The local count is zeroed
// optimistically and restored if the store rejects the request; the next
// refetch supersedes it either way.
func (e *Engine) MarkRead(ctx context.Context, id string) error {
	e.mu.Lock()
	restore := e.zeroUnreadLocked(id)
	e.mu.Unlock()

	if err := e.repo.MarkRead(ctx, id); err != nil {
		e.mu.Lock()
		restore()
		e.mu.Unlock()
		return fmt.Errorf("marking conversation %s read: %w", id, err)
	}

	return nil
}

// ToggleResult is the outcome of an archive toggle
type ToggleResult struct {
	ID       string
	Previous entity.Status
	// Reported is the status the store answered with. It is informational:
	// the local item is marked stale until the next refetch.
	Reported entity.Status
}

// ToggleArchive flips a conversation between ACTIVE and ARCHIVED. CLOSED or
// unknown conversations fail with ErrPrecondition and no request is sent.
func (e *Engine) ToggleArchive(ctx context.Context, id string) (*ToggleResult, error) {
	e.mu.RLock()
	current, known := e.knownStatusLocked(id)
	e.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, ErrUnknownConversation)
	}
	if _, err := entity.ToggleTarget(current); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}

	reported, err := e.repo.ToggleArchive(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("toggling archive for %s: %w", id, err)
	}

	e.mu.Lock()
	e.markStaleLocked(id)
	if reported != entity.StatusActive {
		e.dropUnreadLocked(id)
	}
	e.mu.Unlock()

	e.logger.Info("conversation archive toggled",
		"conversation_id", id,
		"previous", string(current),
		"reported", string(reported),
	)

	return &ToggleResult{ID: id, Previous: current, Reported: reported}, nil
}

// CanToggle reports whether the archive control should be enabled for id
func (e *Engine) CanToggle(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status, known := e.knownStatusLocked(id)
	return known && entity.CanToggle(status)
}

// SendMessage validates and sends a message. The conversation is marked
// stale so the next refetch picks up the new ordering.
func (e *Engine) SendMessage(ctx context.Context, id, content string) (*entity.Message, error) {
	if err := entity.ValidateMessageContent(content); err != nil {
		return nil, err
	}

	e.mu.RLock()
	status, known := e.knownStatusLocked(id)
	e.mu.RUnlock()
	if known && status.IsTerminal() {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, entity.ErrConversationClosed)
	}

	msg, err := e.repo.SendMessage(ctx, id, content)
	if err != nil {
		return nil, fmt.Errorf("sending message to %s: %w", id, err)
	}

	e.mu.Lock()
	e.markStaleLocked(id)
	e.mu.Unlock()

	return msg, nil
}

// LeaveConversation closes a conversation and, once the store has
// acknowledged it, emits the conversationLeft signal.
func (e *Engine) LeaveConversation(ctx context.Context, id string) (entity.Status, error) {
	status, err := e.repo.Leave(ctx, id)
	if err != nil {
		return "", fmt.Errorf("leaving conversation %s: %w", id, err)
	}

	e.mu.Lock()
	e.markStaleLocked(id)
	if status.IsTerminal() {
		e.recordClosedLocked(id, status)
	}
	e.mu.Unlock()

	e.logger.Info("conversation left", "conversation_id", id, "status", string(status))

	if e.bus != nil {
		e.bus.Publish(ctx, events.SignalConversationLeft)
	}

	return status, nil
}

// RefreshUnread re-derives the whole unread projection from the store's
// summary of unread ACTIVE conversations.
func (e *Engine) RefreshUnread(ctx context.Context) (int, error) {
	summaries, err := e.repo.RecentUnread(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("refreshing unread summary: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	e.unread = make(map[string]int, len(summaries))
	e.recent = make([]entity.UnreadConversationSummary, 0, len(summaries))
	for _, s := range summaries {
		count := s.UnreadCount
		if count < 0 {
			count = 0
		}
		e.unread[s.ConversationID] = count
		if count > 0 {
			s.UnreadCount = count
			e.recent = append(e.recent, s)
		}
	}

	return e.totalLocked(), nil
}

// observeUnreadLocked records an authoritative count for a conversation.
// Only ACTIVE conversations contribute to the total.
func (e *Engine) observeUnreadLocked(id string, status entity.Status, count int) {
	if status != entity.StatusActive || e.closed[id] {
		delete(e.unread, id)
		return
	}
	if count < 0 {
		count = 0
	}
	e.unread[id] = count
}

// zeroUnreadLocked zeroes every local copy of a conversation's unread count
// and returns a function restoring the previous values. The restore is a
// no-op once an authoritative response has replaced the projection.
func (e *Engine) zeroUnreadLocked(id string) func() {
	gen := e.gen
	prevUnread, hadUnread := e.unread[id]
	prevRecent := e.recent

	if hadUnread {
		e.unread[id] = 0
	}

	var listPrev, openPrev = -1, -1
	if e.list != nil {
		for i := range e.list.page.Data {
			if e.list.page.Data[i].ID == id {
				listPrev = e.list.page.Data[i].UnreadCount
				e.list.page.Data[i].UnreadCount = 0
				break
			}
		}
	}
	if e.open.conversation != nil && e.open.id == id {
		openPrev = e.open.conversation.UnreadCount
		e.open.conversation.UnreadCount = 0
	}

	recent := make([]entity.UnreadConversationSummary, 0, len(e.recent))
	for _, s := range e.recent {
		if s.ConversationID != id {
			recent = append(recent, s)
		}
	}
	e.recent = recent

	return func() {
		if e.gen != gen {
			return
		}
		if hadUnread {
			e.unread[id] = prevUnread
		}
		if listPrev >= 0 {
			for i := range e.list.page.Data {
				if e.list.page.Data[i].ID == id {
					e.list.page.Data[i].UnreadCount = listPrev
				}
			}
		}
		if openPrev >= 0 && e.open.conversation != nil {
			e.open.conversation.UnreadCount = openPrev
		}
		e.recent = prevRecent
	}
}

// dropUnreadLocked removes id from the unread projection once it left ACTIVE
func (e *Engine) dropUnreadLocked(id string) {
	delete(e.unread, id)
	kept := e.recent[:0:0]
	for _, s := range e.recent {
		if s.ConversationID != id {
			kept = append(kept, s)
		}
	}
	e.recent = kept
}

// recordClosedLocked applies a terminal status the store acknowledged
func (e *Engine) recordClosedLocked(id string, status entity.Status) {
	e.closed[id] = true
	e.dropUnreadLocked(id)
	if e.list != nil {
		for i := range e.list.page.Data {
			if e.list.page.Data[i].ID == id {
				e.list.page.Data[i].Status = status
			}
		}
	}
	if e.open.id == id && e.open.conversation != nil {
		e.open.conversation.Status = status
	}
}

// knownStatusLocked returns the freshest status the engine has seen for id
func (e *Engine) knownStatusLocked(id string) (entity.Status, bool) {
	if e.closed[id] {
		return entity.StatusClosed, true
	}

	var (
		status entity.Status
		at     time.Time
		found  bool
	)

	if e.list != nil {
		for _, c := range e.list.page.Data {
			if c.ID == id {
				status, at, found = c.Status, e.list.fetchedAt, true
				break
			}
		}
	}

	if e.open.conversation != nil && e.open.id == id {
		if !found || !e.open.fetchedAt.Before(at) {
			status, found = e.open.conversation.Status, true
		}
	}

	return status, found
}

func (e *Engine) markStaleLocked(id string) {
	if e.list != nil {
		for _, c := range e.list.page.Data {
			if c.ID == id {
				e.list.stale[id] = true
				break
			}
		}
	}
	if e.open.id == id && e.open.conversation != nil {
		e.open.stale = true
	}
}

func (e *Engine) totalLocked() int {
	total := 0
	for _, n := range e.unread {
		total += n
	}
	return total
}

func clonePage(p entity.Page) entity.Page {
	out := p
	out.Data = make([]entity.Conversation, len(p.Data))
	for i, c := range p.Data {
		out.Data[i] = c.Clone()
	}
	return out
}
