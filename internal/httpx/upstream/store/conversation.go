package store

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

// ListConversations retrieves one page of conversations for a status filter
// GET /conversations?page&limit&status
func (u *UserClient) ListConversations(ctx context.Context, q entity.ListQuery) (*entity.Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.PageSize))
	params.Set("status", string(q.Status))

	req, err := u.newRequest(ctx, http.MethodGet, "/conversations?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out entity.Page
	if err := u.do(req, &out); err != nil {
		return nil, err
	}

	if out.Data == nil {
		out.Data = []entity.Conversation{}
	}
	for i := range out.Data {
		if err := u.normalizeConversation(&out.Data[i]); err != nil {
			return nil, err
		}
	}
	if out.Total < 0 {
		out.Total = 0
	}
	if out.TotalPages < 0 {
		out.TotalPages = 0
	}

	return &out, nil
}

// GetConversation retrieves a conversation with its message history
// GET /conversations/{id}
func (u *UserClient) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	req, err := u.newRequest(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out entity.Conversation
	if err := u.do(req, &out); err != nil {
		return nil, err
	}

	if err := u.normalizeConversation(&out); err != nil {
		return nil, err
	}

	return &out, nil
}

// statusResponse is returned by status-changing endpoints
type statusResponse struct {
	Status entity.Status `json:"status"`
}

// ToggleArchive flips ACTIVE/ARCHIVED; the store decides the resulting status
// POST /conversations/{id}/archive
func (u *UserClient) ToggleArchive(ctx context.Context, id string) (entity.Status, error) {
	return u.postStatus(ctx, "/conversations/"+url.PathEscape(id)+"/archive")
}

// Leave closes the conversation for good
// POST /conversations/{id}/leave
func (u *UserClient) Leave(ctx context.Context, id string) (entity.Status, error) {
	return u.postStatus(ctx, "/conversations/"+url.PathEscape(id)+"/leave")
}

func (u *UserClient) postStatus(ctx context.Context, path string) (entity.Status, error) {
	req, err := u.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return "", err
	}

	var out statusResponse
	if err := u.do(req, &out); err != nil {
		return "", err
	}

	if !out.Status.IsValid() {
		return "", &Error{Kind: KindTransient, Message: "unexpected status " + strconv.Quote(string(out.Status))}
	}

	return out.Status, nil
}

// MarkRead acknowledges every message of the conversation as read
// POST /conversations/{id}/read
func (u *UserClient) MarkRead(ctx context.Context, id string) error {
	req, err := u.newRequest(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/read", nil)
	if err != nil {
		return err
	}

	return u.do(req, nil)
}

// sendMessageRequest is the body of a message send
type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage appends a message to the conversation
// POST /conversations/{id}/messages
func (u *UserClient) SendMessage(ctx context.Context, id, content string) (*entity.Message, error) {
	req, err := u.newRequest(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/messages", sendMessageRequest{Content: content})
	if err != nil {
		return nil, err
	}

	var out entity.Message
	if err := u.do(req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// RecentUnread retrieves unread ACTIVE conversations, most recent first.
// A limit of 0 asks for all of them.
// GET /conversations/unread/recent
func (u *UserClient) RecentUnread(ctx context.Context, limit int) ([]entity.UnreadConversationSummary, error) {
	path := "/conversations/unread/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	req, err := u.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out []entity.UnreadConversationSummary
	if err := u.do(req, &out); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].UnreadCount < 0 {
			u.c.logger.Warn("store returned negative unread count",
				"conversation_id", out[i].ConversationID,
				"unread_count", out[i].UnreadCount,
			)
			out[i].UnreadCount = 0
		}
	}
	if out == nil {
		out = []entity.UnreadConversationSummary{}
	}

	return out, nil
}

// unreadCountResponse is the body of the unread total endpoint
type unreadCountResponse struct {
	Total int `json:"total"`
}

// UnreadCount retrieves the unread total across ACTIVE conversations
// GET /conversations/unread/count
func (u *UserClient) UnreadCount(ctx context.Context) (int, error) {
	req, err := u.newRequest(ctx, http.MethodGet, "/conversations/unread/count", nil)
	if err != nil {
		return 0, err
	}

	var out unreadCountResponse
	if err := u.do(req, &out); err != nil {
		return 0, err
	}

	if out.Total < 0 {
		return 0, nil
	}
	return out.Total, nil
}

// normalizeConversation enforces the invariants the core relies on
func (u *UserClient) normalizeConversation(c *entity.Conversation) error {
	if !c.Status.IsValid() {
		return &Error{Kind: KindTransient, Message: "unexpected status " + strconv.Quote(string(c.Status)) + " for conversation " + c.ID}
	}
	if c.UnreadCount < 0 {
		u.c.logger.Warn("store returned negative unread count",
			"conversation_id", c.ID,
			"unread_count", c.UnreadCount,
		)
		c.UnreadCount = 0
	}
	if c.LastMessageAt == nil && c.LastMessage != nil {
		at := c.LastMessage.CreatedAt
		c.LastMessageAt = &at
	}
	return nil
}
