package policy

import (
	"context"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/domain/conversation/service"
)

// ConversationService defines the interface for the conversation service
type ConversationService interface {
	Create(ctx context.Context, in service.CreateInput) (*entity.Conversation, error)
	Lookup(ctx context.Context, id string) (*entity.Conversation, error)
	List(ctx context.Context, userID string, q entity.ListQuery) (*entity.Page, error)
	Detail(ctx context.Context, conv *entity.Conversation, userID string) (*entity.Conversation, error)
	Send(ctx context.Context, conv *entity.Conversation, userID, content string) (*entity.Message, error)
	MarkRead(ctx context.Context, conv *entity.Conversation, userID string) error
	ToggleArchive(ctx context.Context, conv *entity.Conversation) (entity.Status, error)
	Leave(ctx context.Context, conv *entity.Conversation) (entity.Status, error)
	RecentUnread(ctx context.Context, userID string, limit int) ([]entity.UnreadConversationSummary, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Policy handles conversation operations with participant authorization.
// A conversation the caller does not take part in is reported as not found.
type Policy struct {
	svc ConversationService
}

// New creates a new conversation policy
func New(svc ConversationService) *Policy {
	return &Policy{svc: svc}
}

// authorize loads a conversation and checks that userID participates in it
func (p *Policy) authorize(ctx context.Context, userID, id string) (*entity.Conversation, error) {
	conv, err := p.svc.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, entity.ErrConversationNotFound
	}
	return conv, nil
}

// CreateInput represents input for opening a conversation
type CreateInput struct {
	UserID  string
	Salon   entity.Party
	Client  entity.Party
	Subject string
}

// Create opens a conversation. The caller must be one of the two parties.
func (p *Policy) Create(ctx context.Context, in CreateInput) (*entity.Conversation, error) {
	if in.UserID != in.Salon.UserID && in.UserID != in.Client.UserID {
		return nil, entity.ErrNotParticipant
	}
	return p.svc.Create(ctx, service.CreateInput{
		Salon:   in.Salon,
		Client:  in.Client,
		Subject: in.Subject,
	})
}

// List retrieves one page of the caller's conversations
func (p *Policy) List(ctx context.Context, userID string, q entity.ListQuery) (*entity.Page, error) {
	return p.svc.List(ctx, userID, q)
}

// Get retrieves a conversation with its messages
func (p *Policy) Get(ctx context.Context, userID, id string) (*entity.Conversation, error) {
	conv, err := p.authorize(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return p.svc.Detail(ctx, conv, userID)
}

// Send sends a message as the caller
func (p *Policy) Send(ctx context.Context, userID, id, content string) (*entity.Message, error) {
	conv, err := p.authorize(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return p.svc.Send(ctx, conv, userID, content)
}

// MarkRead acknowledges the conversation for the caller
func (p *Policy) MarkRead(ctx context.Context, userID, id string) error {
	conv, err := p.authorize(ctx, userID, id)
	if err != nil {
		return err
	}
	return p.svc.MarkRead(ctx, conv, userID)
}

// ToggleArchive flips the conversation between ACTIVE and ARCHIVED
func (p *Policy) ToggleArchive(ctx context.Context, userID, id string) (entity.Status, error) {
	conv, err := p.authorize(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return p.svc.ToggleArchive(ctx, conv)
}

// Leave closes the conversation
func (p *Policy) Leave(ctx context.Context, userID, id string) (entity.Status, error) {
	conv, err := p.authorize(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return p.svc.Leave(ctx, conv)
}

// RecentUnread returns the caller's unread conversations
func (p *Policy) RecentUnread(ctx context.Context, userID string, limit int) ([]entity.UnreadConversationSummary, error) {
	return p.svc.RecentUnread(ctx, userID, limit)
}

// UnreadCount returns the caller's unread total
func (p *Policy) UnreadCount(ctx context.Context, userID string) (int, error) {
	return p.svc.UnreadCount(ctx, userID)
}
