package delivery

import (
	"context"
	"log/slog"

	convEntity "github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

// LogMailer writes unread emails to the log instead of sending them
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that logs through logger
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendUnread(_ context.Context, userID string, items []convEntity.UnreadConversationSummary) error {
	total := 0
	ids := make([]string, len(items))
	for i, it := range items {
		total += it.UnreadCount
		ids[i] = it.ConversationID
	}

	m.logger.Info("unread email",
		"user_id", userID,
		"conversations", len(items),
		"unread_total", total,
		"conversation_ids", ids,
	)
	return nil
}
