package entity

import (
	"errors"
	"strings"
	"time"
)

// Frequency controls how often unread activity is emailed
type Frequency string

const (
	FrequencyImmediate Frequency = "IMMEDIATE"
	FrequencyHourly    Frequency = "HOURLY"
	FrequencyDaily     Frequency = "DAILY"
	FrequencyNever     Frequency = "NEVER"
)

// ErrInvalidFrequency is returned for values outside the frequency enum
var ErrInvalidFrequency = errors.New("invalid email frequency")

// IsValid checks if the frequency is one of the known values
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyNever:
		return true
	}
	return false
}

// ParseFrequency parses a frequency string, case-insensitively
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", ErrInvalidFrequency
	}
	return f, nil
}

// Preference is the per-user email notification policy
type Preference struct {
	UserID                    string    `json:"-"`
	EmailNotificationsEnabled bool      `json:"enabled"`
	EmailFrequency            Frequency `json:"frequency"`
	UpdatedAt                 time.Time `json:"updatedAt,omitempty"`
}

// DefaultPreference returns the policy used when nothing is persisted yet
func DefaultPreference(userID string) Preference {
	return Preference{
		UserID:                    userID,
		EmailNotificationsEnabled: false,
		EmailFrequency:            FrequencyImmediate,
	}
}

// Validate validates the preference fields
func (p Preference) Validate() error {
	if !p.EmailFrequency.IsValid() {
		return ErrInvalidFrequency
	}
	return nil
}

// WantsEmail returns true if unread activity should produce any email at all.
// The frequency is only meaningful while notifications are enabled.
func (p Preference) WantsEmail() bool {
	return p.EmailNotificationsEnabled && p.EmailFrequency != FrequencyNever
}

// NextDelivery returns when a digest for activity at t should go out.
// IMMEDIATE returns t itself.
func (p Preference) NextDelivery(t time.Time) time.Time {
	switch p.EmailFrequency {
	case FrequencyHourly:
		return t.Truncate(time.Hour).Add(time.Hour)
	case FrequencyDaily:
		y, m, d := t.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}
