package entity

import "strings"

// Status represents the lifecycle state of a conversation
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
	StatusClosed   Status = "CLOSED"
)

// IsValid returns true for the three known statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusClosed:
		return true
	}
	return false
}

// IsListable returns true if the status can be used as a list filter.
// CLOSED conversations are only reachable by id.
func (s Status) IsListable() bool {
	return s == StatusActive || s == StatusArchived
}

// IsTerminal returns true if no transition leaves this status
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// ParseStatus parses a status string, case-insensitively
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// ParseListFilter parses a status string and rejects non-listable values
func ParseListFilter(s string) (Status, error) {
	status, err := ParseStatus(s)
	if err != nil {
		return "", err
	}
	if !status.IsListable() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// ToggleTarget returns the status the archive toggle moves a conversation to.
// ACTIVE and ARCHIVED are inverses of each other; CLOSED has no toggle.
func ToggleTarget(from Status) (Status, error) {
	switch from {
	case StatusActive:
		return StatusArchived, nil
	case StatusArchived:
		return StatusActive, nil
	case StatusClosed:
		return "", ErrConversationClosed
	default:
		return "", ErrInvalidStatus
	}
}

// CanToggle reports whether the archive toggle is enabled for the status
func CanToggle(from Status) bool {
	_, err := ToggleTarget(from)
	return err == nil
}

// CanTransition reports whether moving from one status to another is legal.
// Staying in the same status is legal for everything except unknown values,
// which keeps repeated archive/leave requests idempotent.
func CanTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusClosed {
		return true
	}
	target, err := ToggleTarget(from)
	return err == nil && target == to
}
