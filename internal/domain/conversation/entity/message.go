package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SenderRole identifies which party authored a message
type SenderRole string

const (
	SenderRoleSalon  SenderRole = "SALON"
	SenderRoleClient SenderRole = "CLIENT"
)

// Message represents an immutable message in a conversation
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Content        string     `json:"content"`
	SenderRole     SenderRole `json:"senderRole"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// MaxMessageLength is the maximum length of a message, in runes
const MaxMessageLength = 2000

// ValidateMessageContent validates the content of a new message
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
