package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
)

// ConversationPostgres implements conversation repository for PostgreSQL
type ConversationPostgres struct {
	pool *pgxpool.Pool
}

// NewConversationPostgres creates a new PostgreSQL conversation repository
func NewConversationPostgres(pool *pgxpool.Pool) *ConversationPostgres {
	return &ConversationPostgres{pool: pool}
}

const conversationColumns = `
	id::text, salon_id, salon_user_id, salon_name, salon_image,
	client_id, client_user_id, client_first_name, client_last_name, client_image,
	status, subject, last_message_content, last_message_sender_role, last_message_at,
	salon_unread_count, client_unread_count, created_at
`

// Create inserts a new conversation
func (r *ConversationPostgres) Create(ctx context.Context, conv *entity.Conversation) error {
	query := `
		INSERT INTO conversations (
			id, salon_id, salon_user_id, salon_name, salon_image,
			client_id, client_user_id, client_first_name, client_last_name, client_image,
			status, subject, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`

	_, err := r.pool.Exec(ctx, query,
		conv.ID,
		conv.Salon.ID,
		conv.Salon.UserID,
		conv.Salon.Name,
		conv.Salon.Image,
		conv.Client.ID,
		conv.Client.UserID,
		conv.Client.FirstName,
		conv.Client.LastName,
		conv.Client.Image,
		conv.Status,
		conv.Subject,
		conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	return nil
}

// GetByID retrieves a conversation by ID, nil if it does not exist
func (r *ConversationPostgres) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return conv, nil
}

// ListByParticipant retrieves one page of a user's conversations in a status,
// most recent activity first
func (r *ConversationPostgres) ListByParticipant(ctx context.Context, userID string, status entity.Status, limit, offset int) ([]entity.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE (salon_user_id = $1 OR client_user_id = $1)
		  AND status = $2
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC, id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// CountByParticipant returns how many conversations a user has in a status
func (r *ConversationPostgres) CountByParticipant(ctx context.Context, userID string, status entity.Status) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations
		WHERE (salon_user_id = $1 OR client_user_id = $1) AND status = $2
	`, userID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return count, nil
}

// UpdateStatus moves a conversation to status, but only from one of the
// allowed source statuses. It reports whether a row changed.
func (r *ConversationPostgres) UpdateStatus(ctx context.Context, id string, to entity.Status, from ...entity.Status) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	ct, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, allowed)
	if err != nil {
		return false, fmt.Errorf("updating conversation status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ToggleArchive flips ACTIVE and ARCHIVED atomically and returns the new
// status. false means the conversation was CLOSED or missing.
func (r *ConversationPostgres) ToggleArchive(ctx context.Context, id string) (entity.Status, bool, error) {
	var status entity.Status
	err := r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET status = CASE status WHEN 'ACTIVE' THEN 'ARCHIVED' ELSE 'ACTIVE' END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('ACTIVE', 'ARCHIVED')
		RETURNING status
	`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("toggling conversation archive: %w", err)
	}
	return status, true, nil
}

// ResetUnread zeroes one side's unread counter
func (r *ConversationPostgres) ResetUnread(ctx context.Context, id string, role entity.SenderRole) error {
	column := "salon_unread_count"
	if role == entity.SenderRoleClient {
		column = "client_unread_count"
	}

	_, err := r.pool.Exec(ctx, `UPDATE conversations SET `+column+` = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("resetting unread count: %w", err)
	}
	return nil
}

// AppendMessage inserts a message and, in the same transaction, bumps the
// conversation's last message and the recipient's unread counter
func (r *ConversationPostgres) AppendMessage(ctx context.Context, msg *entity.Message) error {
	recipientColumn := "client_unread_count"
	if msg.SenderRole == entity.SenderRoleClient {
		recipientColumn = "salon_unread_count"
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, content, sender_role, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, msg.ConversationID, msg.Content, msg.SenderRole, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		ct, err := tx.Exec(ctx, `
			UPDATE conversations
			SET last_message_content = $2,
			    last_message_sender_role = $3,
			    last_message_at = $4,
			    `+recipientColumn+` = `+recipientColumn+` + 1,
			    updated_at = NOW()
			WHERE id = $1 AND status <> 'CLOSED'
		`, msg.ConversationID, msg.Content, msg.SenderRole, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("updating last message: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return entity.ErrConversationClosed
		}
		return nil
	})
}

// RecentUnread returns a user's ACTIVE conversations with unread messages,
// most recent first. limit <= 0 returns all of them.
func (r *ConversationPostgres) RecentUnread(ctx context.Context, userID string, limit int) ([]entity.UnreadConversationSummary, error) {
	query := `
		SELECT id::text,
		       CASE WHEN salon_user_id = $1 THEN client_first_name ELSE salon_name END,
		       CASE WHEN salon_user_id = $1 THEN client_last_name ELSE '' END,
		       CASE WHEN salon_user_id = $1 THEN client_image ELSE salon_image END,
		       subject, last_message_content, last_message_at,
		       CASE WHEN salon_user_id = $1 THEN salon_unread_count ELSE client_unread_count END AS unread
		FROM conversations
		WHERE status = 'ACTIVE'
		  AND ((salon_user_id = $1 AND salon_unread_count > 0)
		    OR (client_user_id = $1 AND client_unread_count > 0))
		ORDER BY last_message_at DESC NULLS LAST, id
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unread conversations: %w", err)
	}
	defer rows.Close()

	out := []entity.UnreadConversationSummary{}
	for rows.Next() {
		summary, err := scanUnreadSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unread conversations: %w", err)
	}

	return out, nil
}

// UnreadTotal sums a user's unread counters over ACTIVE conversations
func (r *ConversationPostgres) UnreadTotal(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN salon_user_id = $1 THEN salon_unread_count ELSE client_unread_count END), 0)
		FROM conversations
		WHERE status = 'ACTIVE' AND (salon_user_id = $1 OR client_user_id = $1)
	`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing unread counts: %w", err)
	}
	return total, nil
}

func scanUnreadSummary(row pgx.Row) (entity.UnreadConversationSummary, error) {
	var (
		s             entity.UnreadConversationSummary
		lastMessage   *string
		lastMessageAt *time.Time
	)
	if err := row.Scan(
		&s.ConversationID,
		&s.ClientFirstName,
		&s.ClientLastName,
		&s.ClientImage,
		&s.Subject,
		&lastMessage,
		&lastMessageAt,
		&s.UnreadCount,
	); err != nil {
		return s, fmt.Errorf("scanning unread conversation: %w", err)
	}
	if lastMessage != nil {
		s.LastMessage = *lastMessage
	}
	if lastMessageAt != nil {
		s.LastMessageAt = *lastMessageAt
	}
	return s, nil
}

func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var (
		conv          entity.Conversation
		lastContent   *string
		lastRole      *string
		lastMessageAt *time.Time
	)

	err := row.Scan(
		&conv.ID,
		&conv.Salon.ID,
		&conv.Salon.UserID,
		&conv.Salon.Name,
		&conv.Salon.Image,
		&conv.Client.ID,
		&conv.Client.UserID,
		&conv.Client.FirstName,
		&conv.Client.LastName,
		&conv.Client.Image,
		&conv.Status,
		&conv.Subject,
		&lastContent,
		&lastRole,
		&lastMessageAt,
		&conv.Counters.Salon,
		&conv.Counters.Client,
		&conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastContent != nil && lastMessageAt != nil {
		lm := entity.LastMessage{Content: *lastContent, CreatedAt: *lastMessageAt}
		if lastRole != nil {
			lm.SenderRole = entity.SenderRole(*lastRole)
		}
		conv.LastMessage = &lm
	}
	conv.LastMessageAt = lastMessageAt

	return &conv, nil
}

func scanConversations(rows pgx.Rows) ([]entity.Conversation, error) {
	conversations := []entity.Conversation{}

	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}
