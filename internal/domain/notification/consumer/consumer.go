// Package consumer reads and replaces the signed-in user's email
// notification preference on behalf of the console.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vadim/inkdesk/internal/domain/notification/entity"
)

// Repository is the store façade for preferences
type Repository interface {
	GetPreference(ctx context.Context) (*entity.Preference, error)
	UpdatePreference(ctx context.Context, enabled bool, frequency entity.Frequency) (*entity.Preference, error)
}

// Consumer holds the last acknowledged preference
type Consumer struct {
	repo   Repository
	logger *slog.Logger

	mu      sync.RWMutex
	current *entity.Preference
}

// New creates a preference consumer
func New(repo Repository, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{repo: repo, logger: logger}
}

// Get fetches the preference. A user without a stored record gets the
// defaults from the store, which is not an error.
func (c *Consumer) Get(ctx context.Context) (entity.Preference, error) {
	pref, err := c.repo.GetPreference(ctx)
	if err != nil {
		return entity.Preference{}, fmt.Errorf("getting notification preference: %w", err)
	}

	c.mu.Lock()
	c.current = pref
	c.mu.Unlock()

	return *pref, nil
}

// Update replaces the preference. The held value changes only once the
// store has acknowledged the update.
func (c *Consumer) Update(ctx context.Context, enabled bool, frequency entity.Frequency) (entity.Preference, error) {
	if !frequency.IsValid() {
		return entity.Preference{}, entity.ErrInvalidFrequency
	}

	pref, err := c.repo.UpdatePreference(ctx, enabled, frequency)
	if err != nil {
		c.logger.Warn("notification preference update failed",
			"enabled", enabled,
			"frequency", string(frequency),
			"error", err,
		)
		return entity.Preference{}, fmt.Errorf("updating notification preference: %w", err)
	}

	c.mu.Lock()
	c.current = pref
	c.mu.Unlock()

	return *pref, nil
}

// Current returns the last acknowledged preference, false if none was loaded yet
func (c *Consumer) Current() (entity.Preference, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return entity.Preference{}, false
	}
	return *c.current, true
}
