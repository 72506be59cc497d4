// Package events provides payload-free invalidation signals between console components.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Signal names an invalidation event. Signals carry no payload: a receiver
// always refetches authoritative state instead of patching what it holds.
type Signal string

// SignalConversationLeft fires after the store acknowledged that a
// conversation moved to CLOSED.
const SignalConversationLeft Signal = "conversationLeft"

// Handler is invoked when a subscribed signal is published.
type Handler func(ctx context.Context)

// subscription represents an active signal subscription.
type subscription struct {
	id      string
	signal  Signal
	handler Handler
}

// Bus is an in-process, fire-and-forget signal bus.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	logger        *slog.Logger
}

// NewBus creates a new signal bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscriptions: make(map[string]*subscription),
		logger:        logger,
	}
}

// Publish invokes every handler subscribed to the signal, in subscription id
// order. With no subscribers the signal is dropped.
func (b *Bus) Publish(ctx context.Context, signal Signal) {
	b.mu.RLock()
	var subs []*subscription
	for _, sub := range b.subscriptions {
		if sub.signal == signal {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("signal dropped, no subscribers", "signal", string(signal))
		return
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	// Invoke handlers outside the lock so a handler may unsubscribe
	for _, sub := range subs {
		b.invoke(ctx, signal, sub)
	}
}

func (b *Bus) invoke(ctx context.Context, signal Signal, sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("signal handler panicked",
				"signal", string(signal),
				"subscription_id", sub.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sub.handler(ctx)
}

// Subscribe registers a handler for a signal under a unique id.
func (b *Bus) Subscribe(id string, signal Signal, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}

	b.subscriptions[id] = &subscription{
		id:      id,
		signal:  signal,
		handler: handler,
	}

	return nil
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}

	delete(b.subscriptions, id)
	return nil
}

// Errors for bus operations.
var (
	ErrInvalidSubscriptionID = &BusError{Message: "subscription ID is required"}
	ErrNilHandler            = &BusError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &BusError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &BusError{Message: "subscription not found"}
)

// BusError represents an error from bus operations.
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}
