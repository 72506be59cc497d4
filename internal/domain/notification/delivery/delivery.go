// Package delivery turns unread activity into emails according to each
// recipient's notification preference.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	convEntity "github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/domain/notification/entity"
	"github.com/vadim/inkdesk/internal/queue"
)

// Task types
const (
	TaskUnreadActivity = "notification:unread_activity"
	TaskUnreadDigest   = "notification:unread_digest"
)

// DefaultQueue is the queue notification tasks go to
const DefaultQueue = "notifications"

// ActivityPayload is the payload of TaskUnreadActivity
type ActivityPayload struct {
	ConversationID  string `json:"conversationId"`
	RecipientUserID string `json:"recipientUserId"`
}

// DigestPayload is the payload of TaskUnreadDigest. It carries only the
// recipient so that one digest per user and window is deduplicated.
type DigestPayload struct {
	RecipientUserID string `json:"recipientUserId"`
}

// Notifier enqueues unread-activity tasks for the store
type Notifier struct {
	client    queue.Client
	queueName string
}

// NewNotifier creates a notifier enqueuing to queueName
func NewNotifier(client queue.Client, queueName string) *Notifier {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Notifier{client: client, queueName: queueName}
}

// NotifyUnreadActivity schedules processing of a new unread message
func (n *Notifier) NotifyUnreadActivity(ctx context.Context, conversationID, recipientUserID string) error {
	payload, err := json.Marshal(ActivityPayload{ConversationID: conversationID, RecipientUserID: recipientUserID})
	if err != nil {
		return fmt.Errorf("encoding activity payload: %w", err)
	}

	_, err = n.client.Enqueue(ctx, queue.Task{Type: TaskUnreadActivity, Payload: payload}, queue.EnqueueOption{
		Queue:    n.queueName,
		MaxRetry: 5,
	})
	if err != nil {
		return fmt.Errorf("enqueueing unread activity: %w", err)
	}
	return nil
}

// PreferenceReader loads a user's notification preference
type PreferenceReader interface {
	Get(ctx context.Context, userID string) (*entity.Preference, error)
}

// UnreadReader lists a user's unread ACTIVE conversations
type UnreadReader interface {
	RecentUnread(ctx context.Context, userID string, limit int) ([]convEntity.UnreadConversationSummary, error)
}

// Mailer sends the unread email
type Mailer interface {
	SendUnread(ctx context.Context, userID string, items []convEntity.UnreadConversationSummary) error
}

// Handler processes notification tasks
type Handler struct {
	prefs     PreferenceReader
	unread    UnreadReader
	mailer    Mailer
	client    queue.Client
	queueName string
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a notification task handler. client is used to
// schedule digests.
func NewHandler(prefs PreferenceReader, unread UnreadReader, mailer Mailer, client queue.Client, queueName string, logger *slog.Logger) *Handler {
	if queueName == "" {
		queueName = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		prefs:     prefs,
		unread:    unread,
		mailer:    mailer,
		client:    client,
		queueName: queueName,
		logger:    logger,
		now:       time.Now,
	}
}

// Register binds the task handlers to srv
func (h *Handler) Register(srv queue.Server) {
	srv.Register(TaskUnreadActivity, h.HandleActivity)
	srv.Register(TaskUnreadDigest, h.HandleDigest)
}

// HandleActivity decides, from the recipient's preference, whether to mail
// now, schedule a digest or drop the activity
func (h *Handler) HandleActivity(ctx context.Context, t queue.Task) error {
	var p ActivityPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding activity payload: %v", queue.ErrSkipRetry, err)
	}

	pref, err := h.prefs.Get(ctx, p.RecipientUserID)
	if err != nil {
		return fmt.Errorf("loading preference: %w", err)
	}

	if !pref.WantsEmail() {
		h.logger.Debug("unread activity dropped by preference",
			"user_id", p.RecipientUserID,
			"conversation_id", p.ConversationID,
		)
		return nil
	}

	if pref.EmailFrequency == entity.FrequencyImmediate {
		return h.deliver(ctx, p.RecipientUserID)
	}

	return h.scheduleDigest(ctx, p.RecipientUserID, pref.NextDelivery(h.now()))
}

// HandleDigest mails a scheduled digest, re-checking the preference first
func (h *Handler) HandleDigest(ctx context.Context, t queue.Task) error {
	var p DigestPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding digest payload: %v", queue.ErrSkipRetry, err)
	}

	pref, err := h.prefs.Get(ctx, p.RecipientUserID)
	if err != nil {
		return fmt.Errorf("loading preference: %w", err)
	}
	if !pref.WantsEmail() {
		return nil
	}

	return h.deliver(ctx, p.RecipientUserID)
}

func (h *Handler) scheduleDigest(ctx context.Context, userID string, at time.Time) error {
	payload, err := json.Marshal(DigestPayload{RecipientUserID: userID})
	if err != nil {
		return fmt.Errorf("encoding digest payload: %w", err)
	}

	_, err = h.client.Enqueue(ctx, queue.Task{Type: TaskUnreadDigest, Payload: payload}, queue.EnqueueOption{
		Queue:     h.queueName,
		ProcessAt: at,
		UniqueTTL: at.Sub(h.now()) + time.Minute,
		MaxRetry:  5,
	})
	if errors.Is(err, queue.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scheduling digest: %w", err)
	}

	h.logger.Debug("unread digest scheduled", "user_id", userID, "process_at", at)
	return nil
}

// deliver mails the recipient's unread conversations, if any are left
func (h *Handler) deliver(ctx context.Context, userID string) error {
	items, err := h.unread.RecentUnread(ctx, userID, 0)
	if err != nil {
		return fmt.Errorf("loading unread conversations: %w", err)
	}
	if len(items) == 0 {
		h.logger.Debug("nothing unread left, skipping email", "user_id", userID)
		return nil
	}

	if err := h.mailer.SendUnread(ctx, userID, items); err != nil {
		return fmt.Errorf("sending unread email: %w", err)
	}
	return nil
}
