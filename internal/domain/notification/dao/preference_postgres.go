package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/inkdesk/internal/domain/notification/entity"
)

// PreferencePostgres implements preference repository for PostgreSQL
type PreferencePostgres struct {
	pool *pgxpool.Pool
}

// NewPreferencePostgres creates a new PostgreSQL preference repository
func NewPreferencePostgres(pool *pgxpool.Pool) *PreferencePostgres {
	return &PreferencePostgres{pool: pool}
}

// GetOrCreate retrieves a user's preference, persisting the defaults first
// when the user has none
func (r *PreferencePostgres) GetOrCreate(ctx context.Context, userID string) (*entity.Preference, error) {
	def := entity.DefaultPreference(userID)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, email_notifications_enabled, email_frequency)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, def.EmailNotificationsEnabled, def.EmailFrequency)
	if err != nil {
		return nil, fmt.Errorf("inserting default preference: %w", err)
	}

	var p entity.Preference
	err = r.pool.QueryRow(ctx, `
		SELECT user_id, email_notifications_enabled, email_frequency, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.EmailNotificationsEnabled, &p.EmailFrequency, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning preference: %w", err)
	}

	return &p, nil
}

// Upsert replaces a user's preference
func (r *PreferencePostgres) Upsert(ctx context.Context, p *entity.Preference) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, email_notifications_enabled, email_frequency, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email_notifications_enabled = EXCLUDED.email_notifications_enabled,
			email_frequency = EXCLUDED.email_frequency,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, p.UserID, p.EmailNotificationsEnabled, p.EmailFrequency).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting preference: %w", err)
	}
	return nil
}
