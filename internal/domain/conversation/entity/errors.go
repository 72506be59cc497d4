package entity

import "errors"

// Domain errors for conversations
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationClosed   = errors.New("conversation is closed")
	ErrInvalidStatus        = errors.New("invalid conversation status")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidQuery         = errors.New("invalid list query")
	ErrEmptyMessage         = errors.New("message content cannot be empty")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
)
