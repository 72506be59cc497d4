package engine

import (
	"time"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

// Item is a listed conversation as the UI renders it
type Item struct {
	entity.Conversation
	Stale     bool `json:"stale,omitempty"`
	CanToggle bool `json:"canToggle"`
}

// ListSnapshot is a copy of the last successfully fetched page
type ListSnapshot struct {
	Query      entity.ListQuery
	Items      []Item
	Page       int
	TotalPages int
	Total      int
	FetchedAt  time.Time
	Loaded     bool
}

// OpenState is a copy of the detail view state
type OpenState struct {
	ID           string
	Conversation *entity.Conversation
	NotFound     bool
	Stale        bool
	Err          error
}

// List returns the current list projection
func (e *Engine) List() ListSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.list == nil {
		return ListSnapshot{Items: []Item{}}
	}

	items := make([]Item, len(e.list.page.Data))
	for i, c := range e.list.page.Data {
		items[i] = Item{
			Conversation: c.Clone(),
			Stale:        e.list.stale[c.ID],
			CanToggle:    entity.CanToggle(c.Status) && !e.closed[c.ID],
		}
	}

	return ListSnapshot{
		Query:      e.list.query,
		Items:      items,
		Page:       e.list.page.Page,
		TotalPages: e.list.page.TotalPages,
		Total:      e.list.page.Total,
		FetchedAt:  e.list.fetchedAt,
		Loaded:     true,
	}
}

// Open returns the detail view state
func (e *Engine) Open() OpenState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := OpenState{
		ID:       e.open.id,
		NotFound: e.open.notFound,
		Stale:    e.open.stale,
		Err:      e.open.err,
	}
	if e.open.conversation != nil {
		c := e.open.conversation.Clone()
		out.Conversation = &c
	}
	return out
}

// UnreadTotal returns the sum of unread counts over ACTIVE conversations
func (e *Engine) UnreadTotal() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalLocked()
}

// Unread returns the last known unread count for a conversation
func (e *Engine) Unread(id string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unread[id]
}

// RecentUnread returns up to n summaries from the last unread refresh,
// most recent first. n <= 0 returns all of them.
func (e *Engine) RecentUnread(n int) []entity.UnreadConversationSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n <= 0 || n > len(e.recent) {
		n = len(e.recent)
	}
	out := make([]entity.UnreadConversationSummary, n)
	copy(out, e.recent[:n])
	return out
}
