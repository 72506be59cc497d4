// Package pager windows the conversation list over fixed-size pages for one
// status filter at a time.
package pager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vadim/inkdesk/internal/domain/conversation/engine"
	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/events"
)

var (
	ErrNoPrevPage     = errors.New("already on the first page")
	ErrNoNextPage     = errors.New("already on the last page")
	ErrPageOutOfRange = errors.New("page out of range")
	ErrAttached       = errors.New("pager already attached")
)

// Lister is the part of the state engine the pager drives
type Lister interface {
	ListConversations(ctx context.Context, q entity.ListQuery, opts ...engine.ListOption) (*entity.Page, error)
	List() engine.ListSnapshot
}

// Pager is the list view's pagination controller
type Pager struct {
	lister   Lister
	pageSize int
	logger   *slog.Logger

	seq atomic.Uint64

	mu      sync.Mutex
	filter  entity.Status
	page    int
	cancel  context.CancelFunc
	loading bool
	err     error
	bus     *events.Bus
	subID   string
}

// Option configures a Pager
type Option func(*Pager)

// WithPageSize overrides the default page size
func WithPageSize(n int) Option {
	return func(p *Pager) {
		if n > 0 && n <= entity.MaxPageSize {
			p.pageSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pager) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pager showing page 1 of ACTIVE conversations. Nothing is
// fetched until the first navigation call.
func New(lister Lister, opts ...Option) *Pager {
	p := &Pager{
		lister:   lister,
		pageSize: entity.DefaultPageSize,
		logger:   slog.Default(),
		filter:   entity.StatusActive,
		page:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetFilter switches the status filter and fetches its first page
func (p *Pager) SetFilter(ctx context.Context, status entity.Status) error {
	if !status.IsListable() {
		return entity.ErrInvalidStatus
	}
	return p.fetch(ctx, status, 1)
}

// Next moves one page forward
func (p *Pager) Next(ctx context.Context) error {
	p.mu.Lock()
	filter, page := p.filter, p.page
	p.mu.Unlock()

	totalPages, _, ok := p.totals(filter)
	if !ok || page >= totalPages {
		return ErrNoNextPage
	}
	return p.fetch(ctx, filter, page+1)
}

// Prev moves one page back
func (p *Pager) Prev(ctx context.Context) error {
	p.mu.Lock()
	filter, page := p.filter, p.page
	p.mu.Unlock()

	if page <= 1 {
		return ErrNoPrevPage
	}
	return p.fetch(ctx, filter, page-1)
}

// GoTo jumps to a page of the current filter. Page 1 is always reachable.
func (p *Pager) GoTo(ctx context.Context, page int) error {
	p.mu.Lock()
	filter := p.filter
	p.mu.Unlock()

	totalPages, _, _ := p.totals(filter)
	if page < 1 || (page > 1 && page > totalPages) {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, totalPages)
	}
	return p.fetch(ctx, filter, page)
}

// Refresh refetches the current page and filter
func (p *Pager) Refresh(ctx context.Context) error {
	p.mu.Lock()
	filter, page := p.filter, p.page
	p.mu.Unlock()

	return p.fetch(ctx, filter, page)
}

// DismissError clears the error indicator
func (p *Pager) DismissError() {
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
}

// fetch issues a list request that supersedes every earlier one. A superseded
// response is dropped silently and nil is returned.
func (p *Pager) fetch(ctx context.Context, filter entity.Status, page int) error {
	p.mu.Lock()
	p.filter, p.page = filter, page
	seq := p.seq.Add(1)
	if p.cancel != nil {
		p.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loading = true
	p.mu.Unlock()
	defer cancel()

	q := entity.ListQuery{Page: page, PageSize: p.pageSize, Status: filter}
	_, err := p.lister.ListConversations(fctx, q, engine.IfCurrent(func() bool {
		return p.seq.Load() == seq
	}))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seq.Load() != seq || errors.Is(err, engine.ErrSuperseded) {
		p.logger.Debug("superseded list response dropped", "status", string(filter), "page", page)
		return nil
	}

	p.loading = false
	p.cancel = nil

	if err != nil {
		p.err = err
		// fall back to what is still on screen
		if snap := p.lister.List(); snap.Loaded {
			p.filter, p.page = snap.Query.Status, snap.Query.Page
		}
		return err
	}

	p.err = nil
	return nil
}

// totals returns the store's page count and total for filter, and false when
// the engine holds no page for that filter
func (p *Pager) totals(filter entity.Status) (int, int, bool) {
	snap := p.lister.List()
	if !snap.Loaded || snap.Query.Status != filter {
		return 0, 0, false
	}
	return snap.TotalPages, snap.Total, true
}

// View is what the list view renders
type View struct {
	Status     entity.Status `json:"status"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	Total      int           `json:"total"`
	Items      []engine.Item `json:"items"`
	Loading    bool          `json:"loading"`
	Loaded     bool          `json:"loaded"`
	HasPrev    bool          `json:"hasPrev"`
	HasNext    bool          `json:"hasNext"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
}

// View returns the current list view. Items and totals are taken from the
// engine only when its list belongs to the desired filter.
func (p *Pager) View() View {
	p.mu.Lock()
	v := View{
		Status:   p.filter,
		Page:     p.page,
		PageSize: p.pageSize,
		Loading:  p.loading,
		Err:      p.err,
		Items:    []engine.Item{},
	}
	p.mu.Unlock()

	if v.Err != nil {
		v.Error = v.Err.Error()
	}

	snap := p.lister.List()
	if snap.Loaded && snap.Query.Status == v.Status {
		v.Items = snap.Items
		v.TotalPages = snap.TotalPages
		v.Total = snap.Total
		v.Loaded = true
	}

	v.HasPrev = v.Page > 1
	v.HasNext = v.Loaded && v.Page < v.TotalPages
	return v
}

// Attach subscribes the pager to conversationLeft so that a closed
// conversation triggers a refetch of the current page
func (p *Pager) Attach(bus *events.Bus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bus != nil {
		return ErrAttached
	}

	id := "pager-" + uuid.NewString()
	err := bus.Subscribe(id, events.SignalConversationLeft, func(ctx context.Context) {
		if err := p.Refresh(ctx); err != nil {
			p.logger.Warn("list refresh after conversation left failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing pager: %w", err)
	}

	p.bus, p.subID = bus, id
	return nil
}

// Close detaches the pager and cancels any in-flight fetch
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.bus == nil {
		return nil
	}

	err := p.bus.Unsubscribe(p.subID)
	p.bus, p.subID = nil, ""
	return err
}
