package engine

import (
	"errors"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/httpx/upstream/store"
)

var (
	// ErrPrecondition is returned when an operation is rejected locally and
	// no request is sent
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnknownConversation means the engine has never seen the conversation
	ErrUnknownConversation = errors.New("conversation not loaded")

	// ErrSuperseded is returned for a list response that arrived after a
	// newer request was issued. It is never shown to the user.
	ErrSuperseded = errors.New("list request superseded")
)

// IsTransient reports whether err is a retryable store failure
func IsTransient(err error) bool {
	return errors.Is(err, store.ErrTransient)
}

// IsNotFound reports whether the conversation does not exist or is not visible
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, entity.ErrConversationNotFound)
}

// IsValidation reports whether the store or the engine rejected the input
func IsValidation(err error) bool {
	return errors.Is(err, store.ErrValidation) ||
		errors.Is(err, entity.ErrInvalidQuery) ||
		errors.Is(err, entity.ErrInvalidStatus) ||
		errors.Is(err, entity.ErrEmptyMessage) ||
		errors.Is(err, entity.ErrMessageTooLong)
}

// IsConflict reports whether the store refused a state change
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrConflict) || errors.Is(err, ErrPrecondition)
}

// IsUnauthorized reports whether the store rejected the caller's credential
func IsUnauthorized(err error) bool {
	return errors.Is(err, store.ErrUnauthorized)
}
