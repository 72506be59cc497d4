package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the normalized class of a store failure
type Kind string

const (
	KindTransient    Kind = "transient"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
)

// Sentinels matched by errors.Is against any *Error of the same kind
var (
	ErrTransient    = errors.New("store: transient failure")
	ErrNotFound     = errors.New("store: not found")
	ErrValidation   = errors.New("store: validation failed")
	ErrConflict     = errors.New("store: conflict")
	ErrUnauthorized = errors.New("store: unauthorized")
)

// Error is a normalized Conversation Store error
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("store %s error (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("store %s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransient:
		return ErrTransient
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// kindForStatus classifies an HTTP error status
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindValidation
	}
}

// KindOf returns the kind of a normalized error, or "" for anything else
func KindOf(err error) Kind {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return ""
}
