package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/inkdesk/internal/cache"
	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID string, status entity.Status, limit, offset int) ([]entity.Conversation, error)
	CountByParticipant(ctx context.Context, userID string, status entity.Status) (int, error)
	UpdateStatus(ctx context.Context, id string, to entity.Status, from ...entity.Status) (bool, error)
	ToggleArchive(ctx context.Context, id string) (entity.Status, bool, error)
	ResetUnread(ctx context.Context, id string, role entity.SenderRole) error
	AppendMessage(ctx context.Context, msg *entity.Message) error
	RecentUnread(ctx context.Context, userID string, limit int) ([]entity.UnreadConversationSummary, error)
	UnreadTotal(ctx context.Context, userID string) (int, error)
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	GetByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]entity.Message, error)
}

// Notifier schedules an unread-activity email for the recipient of a message
type Notifier interface {
	NotifyUnreadActivity(ctx context.Context, conversationID, recipientUserID string) error
}

// Service handles conversation store business logic
type Service struct {
	convRepo ConversationRepository
	msgRepo  MessageRepository
	cache    cache.Cache
	cacheTTL time.Duration
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Config holds optional collaborators of the service
type Config struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Notifier Notifier
}

// New creates a new conversation service
func New(convRepo ConversationRepository, msgRepo MessageRepository, cfg Config, logger *slog.Logger) *Service {
	if cfg.Cache == nil {
		cfg.Cache = cache.Noop{}
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		notifier: cfg.Notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateInput represents input for opening a conversation
type CreateInput struct {
	Salon   entity.Party
	Client  entity.Party
	Subject string
}

// Create opens a new ACTIVE conversation between a salon and a client
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Conversation, error) {
	if strings.TrimSpace(in.Salon.UserID) == "" || strings.TrimSpace(in.Client.UserID) == "" {
		return nil, fmt.Errorf("%w: both participants are required", entity.ErrInvalidQuery)
	}

	conv := &entity.Conversation{
		ID:        uuid.NewString(),
		Salon:     in.Salon,
		Client:    in.Client,
		Status:    entity.StatusActive,
		Subject:   in.Subject,
		CreatedAt: s.now().UTC(),
	}
	if conv.Salon.ID == "" {
		conv.Salon.ID = conv.Salon.UserID
	}
	if conv.Client.ID == "" {
		conv.Client.ID = conv.Client.UserID
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	return conv, nil
}

// Lookup retrieves a conversation regardless of who asks
func (s *Service) Lookup(ctx context.Context, id string) (*entity.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrConversationNotFound
	}

	conv, err := s.convRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	if conv == nil {
		return nil, entity.ErrConversationNotFound
	}
	return conv, nil
}

// List retrieves one page of a user's conversations in a status
func (s *Service) List(ctx context.Context, userID string, q entity.ListQuery) (*entity.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	total, err := s.convRepo.CountByParticipant(ctx, userID, q.Status)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	conversations, err := s.convRepo.ListByParticipant(ctx, userID, q.Status, q.PageSize, q.Offset())
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	data := make([]entity.Conversation, len(conversations))
	for i, c := range conversations {
		data[i] = c.ViewFor(userID)
	}

	return &entity.Page{
		Data:       data,
		Page:       q.Page,
		TotalPages: entity.TotalPages(total, q.PageSize),
		Total:      total,
	}, nil
}

// Detail returns the conversation as seen by userID, with its full history
func (s *Service) Detail(ctx context.Context, conv *entity.Conversation, userID string) (*entity.Conversation, error) {
	messages, err := s.msgRepo.GetByConversationID(ctx, conv.ID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("getting messages: %w", err)
	}

	out := conv.ViewFor(userID)
	out.Messages = messages
	return &out, nil
}

// Send appends a message from userID to the conversation
func (s *Service) Send(ctx context.Context, conv *entity.Conversation, userID, content string) (*entity.Message, error) {
	if err := entity.ValidateMessageContent(content); err != nil {
		return nil, err
	}
	if conv.Status.IsTerminal() {
		return nil, entity.ErrConversationClosed
	}

	role := conv.SelfRole(userID)
	if role == "" {
		return nil, entity.ErrNotParticipant
	}

	msg := &entity.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Content:        content,
		SenderRole:     role,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.convRepo.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, entity.ErrConversationClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.invalidate(ctx, conv.Salon.UserID, conv.Client.UserID)

	recipient := conv.Other(userID)
	if s.notifier != nil {
		if err := s.notifier.NotifyUnreadActivity(ctx, conv.ID, recipient.UserID); err != nil {
			s.logger.Warn("failed to schedule unread notification",
				"conversation_id", conv.ID,
				"user_id", recipient.UserID,
				"error", err,
			)
		}
	}

	return msg, nil
}

// MarkRead zeroes userID's unread counter for the conversation
func (s *Service) MarkRead(ctx context.Context, conv *entity.Conversation, userID string) error {
	role := conv.SelfRole(userID)
	if role == "" {
		return entity.ErrNotParticipant
	}

	if err := s.convRepo.ResetUnread(ctx, conv.ID, role); err != nil {
		return fmt.Errorf("marking read: %w", err)
	}

	s.invalidate(ctx, userID)
	return nil
}

// ToggleArchive flips ACTIVE and ARCHIVED. CLOSED conversations are refused.
func (s *Service) ToggleArchive(ctx context.Context, conv *entity.Conversation) (entity.Status, error) {
	if _, err := entity.ToggleTarget(conv.Status); err != nil {
		return "", err
	}

	status, ok, err := s.convRepo.ToggleArchive(ctx, conv.ID)
	if err != nil {
		return "", fmt.Errorf("toggling archive: %w", err)
	}
	if !ok {
		// closed between lookup and update
		return "", entity.ErrConversationClosed
	}

	s.invalidate(ctx, conv.Salon.UserID, conv.Client.UserID)

	s.logger.Info("conversation archive toggled",
		"conversation_id", conv.ID,
		"from", string(conv.Status),
		"to", string(status),
	)
	return status, nil
}

// Leave closes the conversation. Leaving a closed conversation succeeds.
func (s *Service) Leave(ctx context.Context, conv *entity.Conversation) (entity.Status, error) {
	if conv.Status.IsTerminal() {
		return entity.StatusClosed, nil
	}

	if _, err := s.convRepo.UpdateStatus(ctx, conv.ID, entity.StatusClosed, entity.StatusActive, entity.StatusArchived); err != nil {
		return "", fmt.Errorf("closing conversation: %w", err)
	}

	s.invalidate(ctx, conv.Salon.UserID, conv.Client.UserID)

	s.logger.Info("conversation closed", "conversation_id", conv.ID, "from", string(conv.Status))
	return entity.StatusClosed, nil
}

// RecentUnread returns up to limit unread ACTIVE conversations of userID,
// most recent first. limit <= 0 returns all of them.
func (s *Service) RecentUnread(ctx context.Context, userID string, limit int) ([]entity.UnreadConversationSummary, error) {
	all, err := s.unreadSummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// UnreadCount returns userID's unread total over ACTIVE conversations
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	total, err := s.convRepo.UnreadTotal(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("getting unread total: %w", err)
	}
	return total, nil
}

// The unread summary is cached under a per-user generation. Writers bump the
// generation after commit, so a reader that fetched before the bump can only
// fill a key nobody reads anymore.
func unreadKey(userID, generation string) string {
	return "unread:" + userID + ":" + generation
}

func unreadGenerationKey(userID string) string {
	return "unread-gen:" + userID
}

func (s *Service) unreadGeneration(ctx context.Context, userID string) string {
	gen, err := s.cache.Get(ctx, unreadGenerationKey(userID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("unread generation read failed", "user_id", userID, "error", err)
		}
		return "0"
	}
	return gen
}

// unreadSummary reads the full unread summary through the cache
func (s *Service) unreadSummary(ctx context.Context, userID string) ([]entity.UnreadConversationSummary, error) {
	key := unreadKey(userID, s.unreadGeneration(ctx, userID))

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var out []entity.UnreadConversationSummary
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
		s.logger.Warn("dropping malformed unread cache entry", "user_id", userID)
	case !errors.Is(err, cache.ErrMiss):
		s.logger.Warn("unread cache read failed", "user_id", userID, "error", err)
	}

	out, err := s.convRepo.RecentUnread(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("getting unread conversations: %w", err)
	}

	if b, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, string(b), s.cacheTTL); err != nil {
			s.logger.Warn("unread cache write failed", "user_id", userID, "error", err)
		}
	}

	return out, nil
}

// invalidate moves each user to a fresh generation. The generation outlives
// the summaries so an expired one cannot revive a summary cached under "0".
func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.cache.Set(ctx, unreadGenerationKey(id), uuid.NewString(), 2*s.cacheTTL); err != nil {
			s.logger.Warn("unread cache invalidation failed", "user_id", id, "error", err)
		}
	}
}
