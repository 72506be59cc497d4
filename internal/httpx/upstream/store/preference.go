package store

import (
	"context"
	"net/http"

	"github.com/vadim/inkdesk/internal/domain/notification/entity"
)

// GetPreference retrieves the user's email notification policy
// GET /notification-preference
func (u *UserClient) GetPreference(ctx context.Context) (*entity.Preference, error) {
	req, err := u.newRequest(ctx, http.MethodGet, "/notification-preference", nil)
	if err != nil {
		return nil, err
	}

	var out entity.Preference
	if err := u.do(req, &out); err != nil {
		return nil, err
	}

	if out.EmailFrequency == "" {
		out.EmailFrequency = entity.FrequencyImmediate
	}

	return &out, nil
}

// updatePreferenceRequest is the full-replace body of a preference update
type updatePreferenceRequest struct {
	Enabled   bool             `json:"enabled"`
	Frequency entity.Frequency `json:"frequency"`
}

// UpdatePreference replaces the user's email notification policy
// PUT /notification-preference
func (u *UserClient) UpdatePreference(ctx context.Context, enabled bool, frequency entity.Frequency) (*entity.Preference, error) {
	req, err := u.newRequest(ctx, http.MethodPut, "/notification-preference", updatePreferenceRequest{
		Enabled:   enabled,
		Frequency: frequency,
	})
	if err != nil {
		return nil, err
	}

	var out entity.Preference
	if err := u.do(req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
