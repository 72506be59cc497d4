package service

import (
	"context"
	"fmt"

	"github.com/vadim/inkdesk/internal/domain/notification/entity"
)

// PreferenceRepository defines the interface for preference storage
type PreferenceRepository interface {
	GetOrCreate(ctx context.Context, userID string) (*entity.Preference, error)
	Upsert(ctx context.Context, p *entity.Preference) error
}

// Service handles notification preference business logic
type Service struct {
	repo PreferenceRepository
}

// New creates a new preference service
func New(repo PreferenceRepository) *Service {
	return &Service{repo: repo}
}

// Get returns the user's preference, the defaults if none was saved
func (s *Service) Get(ctx context.Context, userID string) (*entity.Preference, error) {
	p, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting preference: %w", err)
	}
	return p, nil
}

// Update replaces the user's preference. Any frequency is accepted
// whether or not notifications are enabled.
func (s *Service) Update(ctx context.Context, userID string, enabled bool, frequency entity.Frequency) (*entity.Preference, error) {
	p := &entity.Preference{
		UserID:                    userID,
		EmailNotificationsEnabled: enabled,
		EmailFrequency:            frequency,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("updating preference: %w", err)
	}
	return p, nil
}
