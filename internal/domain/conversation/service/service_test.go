package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vadim/inkdesk/internal/cache"
	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

type memoryStore struct {
	mu       sync.Mutex
	convs    map[string]*entity.Conversation
	messages map[string][]entity.Message
	unreadQ  int
	// afterUnread runs once, after a summary query read its rows
	afterUnread func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		convs:    make(map[string]*entity.Conversation),
		messages: make(map[string][]entity.Message),
	}
}

func (m *memoryStore) Create(_ context.Context, conv *entity.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := conv.Clone()
	m.convs[c.ID] = &c
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, nil
	}
	out := c.Clone()
	return &out, nil
}

func (m *memoryStore) filtered(userID string, status entity.Status) []entity.Conversation {
	var out []entity.Conversation
	for _, c := range m.convs {
		if c.Status == status && c.IsParticipant(userID) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		if (a == nil) != (b == nil) {
			return a != nil
		}
		if a != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memoryStore) ListByParticipant(_ context.Context, userID string, status entity.Status, limit, offset int) ([]entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filtered(userID, status)
	if offset >= len(all) {
		return []entity.Conversation{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memoryStore) CountByParticipant(_ context.Context, userID string, status entity.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filtered(userID, status)), nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id string, to entity.Status, from ...entity.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[id]
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ToggleArchive(_ context.Context, id string) (entity.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[id]
	next, err := entity.ToggleTarget(c.Status)
	if err != nil {
		return "", false, nil
	}
	c.Status = next
	return next, true, nil
}

func (m *memoryStore) ResetUnread(_ context.Context, id string, role entity.SenderRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role == entity.SenderRoleClient {
		m.convs[id].Counters.Client = 0
	} else {
		m.convs[id].Counters.Salon = 0
	}
	return nil
}

func (m *memoryStore) AppendMessage(_ context.Context, msg *entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[msg.ConversationID]
	if c.Status == entity.StatusClosed {
		return entity.ErrConversationClosed
	}
	m.messages[c.ID] = append(m.messages[c.ID], *msg)
	at := msg.CreatedAt
	c.LastMessage = &entity.LastMessage{Content: msg.Content, SenderRole: msg.SenderRole, CreatedAt: at}
	c.LastMessageAt = &at
	if msg.SenderRole == entity.SenderRoleSalon {
		c.Counters.Client++
	} else {
		c.Counters.Salon++
	}
	return nil
}

func (m *memoryStore) RecentUnread(_ context.Context, userID string, _ int) ([]entity.UnreadConversationSummary, error) {
	m.mu.Lock()
	m.unreadQ++
	out := []entity.UnreadConversationSummary{}
	for _, c := range m.filtered(userID, entity.StatusActive) {
		n := c.Counters.For(c.SelfRole(userID))
		if n > 0 {
			out = append(out, entity.UnreadConversationSummary{ConversationID: c.ID, UnreadCount: n})
		}
	}
	hook := m.afterUnread
	m.afterUnread = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memoryStore) UnreadTotal(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.filtered(userID, entity.StatusActive) {
		total += c.Counters.For(c.SelfRole(userID))
	}
	return total, nil
}

func (m *memoryStore) GetByConversationID(_ context.Context, id string, _, _ int) ([]entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Message{}, m.messages[id]...), nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Del(_ context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

func (c *mapCache) Ping(context.Context) error { return nil }
func (c *mapCache) Close() error               { return nil }

type recordingNotifier struct {
	calls [][2]string
}

func (n *recordingNotifier) NotifyUnreadActivity(_ context.Context, conversationID, recipient string) error {
	n.calls = append(n.calls, [2]string{conversationID, recipient})
	return nil
}

const (
	salonUser  = "salon-user"
	clientUser = "client-user"
)

func newTestService(t *testing.T) (*Service, *memoryStore, *recordingNotifier) {
	t.Helper()
	store := newMemoryStore()
	notifier := &recordingNotifier{}
	svc := New(store, store, Config{Cache: &mapCache{data: map[string]string{}}, Notifier: notifier}, nil)
	return svc, store, notifier
}

func createConversation(t *testing.T, svc *Service) *entity.Conversation {
	t.Helper()
	conv, err := svc.Create(context.Background(), CreateInput{
		Salon:  entity.Party{UserID: salonUser, Name: "Black Lotus"},
		Client: entity.Party{UserID: clientUser, FirstName: "Ana", LastName: "Lima"},
	})
	require.NoError(t, err)
	return conv
}

func TestService_ListPagesAndTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		createConversation(t, svc)
	}

	page, err := svc.List(ctx, salonUser, entity.ListQuery{Page: 1, PageSize: 20, Status: entity.StatusActive})
	require.NoError(t, err)
	require.Len(t, page.Data, 20)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 25, page.Total)

	page, err = svc.List(ctx, salonUser, entity.ListQuery{Page: 2, PageSize: 20, Status: entity.StatusActive})
	require.NoError(t, err)
	require.Len(t, page.Data, 5)

	page, err = svc.List(ctx, salonUser, entity.ListQuery{Page: 1, PageSize: 20, Status: entity.StatusArchived})
	require.NoError(t, err)
	require.Empty(t, page.Data)
	require.Equal(t, 0, page.TotalPages)
}

func TestService_SendBumpsRecipientUnreadAndNotifies(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	total, err := svc.UnreadCount(ctx, clientUser)
	require.NoError(t, err)
	require.Equal(t, 0, total)

	_, err = svc.Send(ctx, conv, salonUser, "your session is confirmed")
	require.NoError(t, err)

	total, err = svc.UnreadCount(ctx, clientUser)
	require.NoError(t, err)
	require.Equal(t, 1, total)

	total, err = svc.UnreadCount(ctx, salonUser)
	require.NoError(t, err)
	require.Equal(t, 0, total)

	require.Equal(t, [][2]string{{conv.ID, clientUser}}, notifier.calls)
}

func TestService_DetailDoesNotMarkRead(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	_, err := svc.Send(ctx, conv, salonUser, "hi")
	require.NoError(t, err)

	fresh, err := svc.Lookup(ctx, conv.ID)
	require.NoError(t, err)
	detail, err := svc.Detail(ctx, fresh, clientUser)
	require.NoError(t, err)
	require.Equal(t, 1, detail.UnreadCount)
	require.Len(t, detail.Messages, 1)

	require.NoError(t, svc.MarkRead(ctx, fresh, clientUser))
	total, err := svc.UnreadCount(ctx, clientUser)
	require.NoError(t, err)
	require.Equal(t, 0, total)
}

func TestService_ToggleArchiveRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	status, err := svc.ToggleArchive(ctx, conv)
	require.NoError(t, err)
	require.Equal(t, entity.StatusArchived, status)

	conv, err = svc.Lookup(ctx, conv.ID)
	require.NoError(t, err)
	status, err = svc.ToggleArchive(ctx, conv)
	require.NoError(t, err)
	require.Equal(t, entity.StatusActive, status)
}

func TestService_ClosedConversationIsFinal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	status, err := svc.Leave(ctx, conv)
	require.NoError(t, err)
	require.Equal(t, entity.StatusClosed, status)

	conv, err = svc.Lookup(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusClosed, conv.Status)

	status, err = svc.Leave(ctx, conv)
	require.NoError(t, err)
	require.Equal(t, entity.StatusClosed, status)

	_, err = svc.ToggleArchive(ctx, conv)
	require.ErrorIs(t, err, entity.ErrConversationClosed)

	_, err = svc.Send(ctx, conv, salonUser, "still there?")
	require.ErrorIs(t, err, entity.ErrConversationClosed)
}

func TestService_UnreadSummaryIsCachedAndInvalidated(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	_, err := svc.RecentUnread(ctx, clientUser, 5)
	require.NoError(t, err)
	_, err = svc.RecentUnread(ctx, clientUser, 5)
	require.NoError(t, err)
	require.Equal(t, 1, store.unreadQ)

	_, err = svc.Send(ctx, conv, salonUser, "hello")
	require.NoError(t, err)

	recent, err := svc.RecentUnread(ctx, clientUser, 5)
	require.NoError(t, err)
	require.Equal(t, 2, store.unreadQ)
	require.Len(t, recent, 1)
	require.Equal(t, 1, recent[0].UnreadCount)
}

func TestService_LookupRejectsMalformedID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Lookup(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, entity.ErrConversationNotFound)
}

func TestService_SendValidatesContent(t *testing.T) {
	svc, _, _ := newTestService(t)
	conv := createConversation(t, svc)

	_, err := svc.Send(context.Background(), conv, salonUser, "")
	require.ErrorIs(t, err, entity.ErrEmptyMessage)

	_, err = svc.Send(context.Background(), conv, "stranger", "hi")
	require.ErrorIs(t, err, entity.ErrNotParticipant)
}

func TestService_StaleSummaryIsNotServedAfterWrite(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	// a message lands between the summary query and its cache fill
	store.afterUnread = func() {
		_, err := svc.Send(ctx, conv, salonUser, "are you free on friday?")
		require.NoError(t, err)
	}
	recent, err := svc.RecentUnread(ctx, clientUser, 0)
	require.NoError(t, err)
	require.Empty(t, recent)

	recent, err = svc.RecentUnread(ctx, clientUser, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, 1, recent[0].UnreadCount)
	require.Equal(t, 2, store.unreadQ)
}

func TestService_UnreadCountSkipsArchived(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	conv := createConversation(t, svc)

	_, err := svc.Send(ctx, conv, salonUser, "deposit received")
	require.NoError(t, err)
	total, err := svc.UnreadCount(ctx, clientUser)
	require.NoError(t, err)
	require.Equal(t, 1, total)

	_, err = svc.ToggleArchive(ctx, conv)
	require.NoError(t, err)
	total, err = svc.UnreadCount(ctx, clientUser)
	require.NoError(t, err)
	require.Zero(t, total)
}
