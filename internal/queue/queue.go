// Package queue is the background job port used for notification delivery.
package queue

import (
	"context"
	"errors"
	"time"
)

// Task is a background job with a stable type and an opaque payload
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks for a retry. Handlers must
// be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption controls enqueue behavior. Zero values mean unspecified.
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	ProcessAt time.Time // takes precedence over ProcessIn
	MaxRetry  int
	UniqueTTL time.Duration
}

// Client enqueues tasks
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers. Run blocks until ctx is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ErrDuplicate is returned by Enqueue when a unique task is already queued
var ErrDuplicate = errors.New("queue: duplicate task")

// ErrSkipRetry wraps handler errors that must not be retried
var ErrSkipRetry = errors.New("queue: skip retry")
