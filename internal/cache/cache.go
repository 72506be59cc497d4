// Package cache is the key-value cache used by the store for per-user unread
// summaries.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a string key-value cache. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when the key does not exist
	Get(ctx context.Context, key string) (string, error)
	// Set stores value with ttl; ttl <= 0 means no expiration
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss
var ErrMiss = errors.New("cache: miss")

// Noop is a cache that never stores anything
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string) (string, error)              { return "", ErrMiss }
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Noop) Del(context.Context, ...string) (int64, error)            { return 0, nil }
func (Noop) Ping(context.Context) error                               { return nil }
func (Noop) Close() error                                             { return nil }
