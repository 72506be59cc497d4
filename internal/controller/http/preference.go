package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/inkdesk/internal/domain/notification/entity"
	"github.com/vadim/inkdesk/internal/httpx/middleware"
	"github.com/vadim/inkdesk/internal/httpx/response"
)

// PreferenceService defines the interface for notification preference operations
type PreferenceService interface {
	Get(ctx context.Context, userID string) (*entity.Preference, error)
	Update(ctx context.Context, userID string, enabled bool, frequency entity.Frequency) (*entity.Preference, error)
}

// PreferenceHandler handles HTTP requests for notification preferences
type PreferenceHandler struct {
	svc PreferenceService
}

// NewPreferenceHandler creates a new preference handler
func NewPreferenceHandler(svc PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{svc: svc}
}

// RegisterRoutes registers preference routes
func (h *PreferenceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/notification-preference", h.Get())
	r.Put("/notification-preference", h.Update())
}

// Get handles GET /notification-preference
func (h *PreferenceHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.svc.Get(r.Context(), middleware.UserID(r.Context()))
		if err != nil {
			handlePreferenceError(w, err)
			return
		}

		response.OK(w, p)
	}
}

// UpdatePreferenceRequest is the full-replace body of a preference update
type UpdatePreferenceRequest struct {
	Enabled   *bool            `json:"enabled"`
	Frequency entity.Frequency `json:"frequency"`
}

// Update handles PUT /notification-preference
func (h *PreferenceHandler) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdatePreferenceRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}
		if req.Enabled == nil {
			response.BadRequest(w, "enabled is required")
			return
		}

		p, err := h.svc.Update(r.Context(), middleware.UserID(r.Context()), *req.Enabled, req.Frequency)
		if err != nil {
			handlePreferenceError(w, err)
			return
		}

		response.OK(w, p)
	}
}

func handlePreferenceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidFrequency):
		response.UnprocessableEntity(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
