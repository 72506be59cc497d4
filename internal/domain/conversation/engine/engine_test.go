package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/events"
	"github.com/vadim/inkdesk/internal/httpx/upstream/store"
)

type fakeRepo struct {
	mu sync.Mutex

	conversations map[string]*entity.Conversation
	order         []string

	listErr   error
	getErr    error
	toggleErr error
	readErr   error
	leaveErr  error

	calls map[string]int
}

func newFakeRepo(convs ...entity.Conversation) *fakeRepo {
	r := &fakeRepo{
		conversations: make(map[string]*entity.Conversation),
		calls:         make(map[string]int),
	}
	for i := range convs {
		c := convs[i]
		r.conversations[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
	return r
}

func (r *fakeRepo) called(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRepo) ListConversations(_ context.Context, q entity.ListQuery) (*entity.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["list"]++
	if r.listErr != nil {
		return nil, r.listErr
	}

	var matched []entity.Conversation
	for _, id := range r.order {
		if c := r.conversations[id]; c.Status == q.Status {
			matched = append(matched, c.Clone())
		}
	}

	data := []entity.Conversation{}
	if off := q.Offset(); off < len(matched) {
		end := off + q.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		data = matched[off:end]
	}

	return &entity.Page{
		Data:       data,
		Page:       q.Page,
		TotalPages: entity.TotalPages(len(matched), q.PageSize),
		Total:      len(matched),
	}, nil
}

func (r *fakeRepo) GetConversation(_ context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get"]++
	if r.getErr != nil {
		return nil, r.getErr
	}
	c, ok := r.conversations[id]
	if !ok {
		return nil, &store.Error{Kind: store.KindNotFound, Status: 404, Message: "conversation not found"}
	}
	out := c.Clone()
	return &out, nil
}

func (r *fakeRepo) ToggleArchive(_ context.Context, id string) (entity.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["toggle"]++
	if r.toggleErr != nil {
		return "", r.toggleErr
	}
	c := r.conversations[id]
	next, err := entity.ToggleTarget(c.Status)
	if err != nil {
		return "", &store.Error{Kind: store.KindConflict, Status: 409, Message: err.Error()}
	}
	c.Status = next
	return next, nil
}

func (r *fakeRepo) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["read"]++
	if r.readErr != nil {
		return r.readErr
	}
	r.conversations[id].UnreadCount = 0
	return nil
}

func (r *fakeRepo) SendMessage(_ context.Context, id, content string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["send"]++
	return &entity.Message{ID: "m1", ConversationID: id, Content: content, SenderRole: entity.SenderRoleSalon}, nil
}

func (r *fakeRepo) Leave(_ context.Context, id string) (entity.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["leave"]++
	if r.leaveErr != nil {
		return "", r.leaveErr
	}
	r.conversations[id].Status = entity.StatusClosed
	return entity.StatusClosed, nil
}

func (r *fakeRepo) RecentUnread(_ context.Context, _ int) ([]entity.UnreadConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["recent"]++
	out := []entity.UnreadConversationSummary{}
	for _, id := range r.order {
		c := r.conversations[id]
		if c.Status == entity.StatusActive && c.UnreadCount > 0 {
			out = append(out, entity.UnreadConversationSummary{ConversationID: c.ID, UnreadCount: c.UnreadCount})
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	signals []events.Signal
}

func (p *recordingPublisher) Publish(_ context.Context, s events.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, s)
}

func conv(id string, status entity.Status, unread int) entity.Conversation {
	return entity.Conversation{ID: id, Status: status, UnreadCount: unread}
}

func activeQuery() entity.ListQuery {
	return entity.ListQuery{Page: 1, PageSize: entity.DefaultPageSize, Status: entity.StatusActive}
}

func TestToggleArchive_ClosedIsRejectedWithoutRequest(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusClosed, 0))
	e := New(repo, nil, nil)

	_, err := e.OpenConversation(context.Background(), "c1")
	require.NoError(t, err)

	_, err = e.ToggleArchive(context.Background(), "c1")
	require.ErrorIs(t, err, ErrPrecondition)
	require.ErrorIs(t, err, entity.ErrConversationClosed)
	require.Equal(t, 0, repo.called("toggle"))
	require.False(t, e.CanToggle("c1"))
}

func TestToggleArchive_UnknownConversation(t *testing.T) {
	repo := newFakeRepo()
	e := New(repo, nil, nil)

	_, err := e.ToggleArchive(context.Background(), "nope")
	require.ErrorIs(t, err, ErrPrecondition)
	require.ErrorIs(t, err, ErrUnknownConversation)
	require.Equal(t, 0, repo.called("toggle"))
}

func TestToggleArchive_TwiceRestoresStatus(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 0))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)

	res, err := e.ToggleArchive(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, entity.StatusActive, res.Previous)
	require.Equal(t, entity.StatusArchived, res.Reported)

	// local item is not guessed, only marked stale
	list := e.List()
	require.Equal(t, entity.StatusActive, list.Items[0].Status)
	require.True(t, list.Items[0].Stale)

	_, err = e.ListConversations(ctx, entity.ListQuery{Page: 1, PageSize: 20, Status: entity.StatusArchived})
	require.NoError(t, err)

	res, err = e.ToggleArchive(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, entity.StatusArchived, res.Previous)

	_, err = e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	list = e.List()
	require.Len(t, list.Items, 1)
	require.Equal(t, entity.StatusActive, list.Items[0].Status)
	require.False(t, list.Items[0].Stale)
}

func TestOpenConversation_DoesNotChangeUnread(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 4), conv("c2", entity.StatusActive, 1))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	require.Equal(t, 5, e.UnreadTotal())

	c, err := e.OpenConversation(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 4, c.UnreadCount)
	require.Equal(t, 5, e.UnreadTotal())
	require.Equal(t, 0, repo.called("read"))
}

func TestOpenConversation_NotFound(t *testing.T) {
	e := New(newFakeRepo(), nil, nil)

	_, err := e.OpenConversation(context.Background(), "gone")
	require.ErrorIs(t, err, entity.ErrConversationNotFound)
	require.True(t, IsNotFound(err))

	open := e.Open()
	require.True(t, open.NotFound)
	require.Nil(t, open.Conversation)
}

func TestMarkRead_OptimisticThenRefetch(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 3), conv("c2", entity.StatusActive, 2))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)

	require.NoError(t, e.MarkRead(ctx, "c1"))
	require.Equal(t, 0, e.Unread("c1"))
	require.Equal(t, 2, e.UnreadTotal())
	require.Equal(t, 0, e.List().Items[0].UnreadCount)

	// the store reports new activity; the refetch wins
	repo.mu.Lock()
	repo.conversations["c1"].UnreadCount = 1
	repo.mu.Unlock()

	_, err = e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	require.Equal(t, 1, e.Unread("c1"))
	require.Equal(t, 3, e.UnreadTotal())
}

func TestMarkRead_FailureRestoresCount(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 3))
	repo.readErr = &store.Error{Kind: store.KindTransient, Status: 503}
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)

	err = e.MarkRead(ctx, "c1")
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, 3, e.Unread("c1"))
	require.Equal(t, 3, e.List().Items[0].UnreadCount)
}

func TestListConversations_FailureKeepsPreviousList(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 0))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)

	repo.listErr = &store.Error{Kind: store.KindTransient, Status: 502}
	_, err = e.ListConversations(ctx, activeQuery())
	require.Error(t, err)
	require.True(t, IsTransient(err))

	list := e.List()
	require.True(t, list.Loaded)
	require.Len(t, list.Items, 1)
	require.Equal(t, "c1", list.Items[0].ID)
}

func TestListConversations_RejectsInvalidQuery(t *testing.T) {
	repo := newFakeRepo()
	e := New(repo, nil, nil)

	_, err := e.ListConversations(context.Background(), entity.ListQuery{Page: 1, PageSize: 20, Status: entity.StatusClosed})
	require.ErrorIs(t, err, entity.ErrInvalidStatus)
	require.Equal(t, 0, repo.called("list"))
}

func TestListConversations_SupersededResponseIsDiscarded(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 0))
	e := New(repo, nil, nil)

	_, err := e.ListConversations(context.Background(), activeQuery(), IfCurrent(func() bool { return false }))
	require.ErrorIs(t, err, ErrSuperseded)
	require.False(t, e.List().Loaded)
}

func TestUnreadTotal_ArchivedPageDropsEntries(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 2), conv("c2", entity.StatusActive, 3))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	require.Equal(t, 5, e.UnreadTotal())

	_, err = e.ToggleArchive(ctx, "c2")
	require.NoError(t, err)

	_, err = e.ListConversations(ctx, entity.ListQuery{Page: 1, PageSize: 20, Status: entity.StatusArchived})
	require.NoError(t, err)
	require.Equal(t, 2, e.UnreadTotal())
}

func TestRefreshUnread_ReplacesProjection(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 2), conv("c2", entity.StatusArchived, 7))
	e := New(repo, nil, nil)

	total, err := e.RefreshUnread(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, 2, e.UnreadTotal())
	require.Len(t, e.RecentUnread(5), 1)
}

func TestLeaveConversation_PublishesAfterAck(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 0))
	pub := &recordingPublisher{}
	e := New(repo, pub, nil)

	status, err := e.LeaveConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, entity.StatusClosed, status)
	require.Equal(t, []events.Signal{events.SignalConversationLeft}, pub.signals)
}

func TestLeaveConversation_FailureDoesNotPublish(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 0))
	repo.leaveErr = errors.New("boom")
	pub := &recordingPublisher{}
	e := New(repo, pub, nil)

	_, err := e.LeaveConversation(context.Background(), "c1")
	require.Error(t, err)
	require.Empty(t, pub.signals)
}

func TestSendMessage_ValidatesContent(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 0))
	e := New(repo, nil, nil)

	_, err := e.SendMessage(context.Background(), "c1", "   ")
	require.ErrorIs(t, err, entity.ErrEmptyMessage)
	require.True(t, IsValidation(err))
	require.Equal(t, 0, repo.called("send"))

	msg, err := e.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Content)
}

func TestLeaveConversation_ClosedStatusSurvivesRefetch(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 2), conv("c2", entity.StatusActive, 0))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	_, err = e.OpenConversation(ctx, "c1")
	require.NoError(t, err)

	_, err = e.LeaveConversation(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, entity.StatusClosed, e.Open().Conversation.Status)
	require.Zero(t, e.UnreadTotal())

	// c1 is gone from the ACTIVE page, only the open detail remembers it
	_, err = e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	require.Len(t, e.List().Items, 1)
	require.False(t, e.CanToggle("c1"))

	_, err = e.ToggleArchive(ctx, "c1")
	require.ErrorIs(t, err, ErrPrecondition)
	require.ErrorIs(t, err, entity.ErrConversationClosed)
	require.Equal(t, 0, repo.called("toggle"))

	_, err = e.SendMessage(ctx, "c1", "still there?")
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, 0, repo.called("send"))
}

func TestToggleArchive_ArchivedLeavesUnreadTotal(t *testing.T) {
	repo := newFakeRepo(conv("c1", entity.StatusActive, 3), conv("c2", entity.StatusActive, 1))
	e := New(repo, nil, nil)
	ctx := context.Background()

	_, err := e.RefreshUnread(ctx)
	require.NoError(t, err)
	_, err = e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	require.Equal(t, 4, e.UnreadTotal())

	_, err = e.ToggleArchive(ctx, "c1")
	require.NoError(t, err)

	_, err = e.ListConversations(ctx, activeQuery())
	require.NoError(t, err)
	require.Len(t, e.List().Items, 1)
	require.Equal(t, 1, e.UnreadTotal())
	require.Equal(t, 0, e.Unread("c1"))

	recent := e.RecentUnread(0)
	require.Len(t, recent, 1)
	require.Equal(t, "c2", recent[0].ConversationID)
}
