package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/inkdesk/internal/domain/conversation/engine"
	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/domain/conversation/pager"
	notification "github.com/vadim/inkdesk/internal/domain/notification/entity"
	"github.com/vadim/inkdesk/internal/httpx/middleware"
	"github.com/vadim/inkdesk/internal/httpx/response"
	"github.com/vadim/inkdesk/internal/httpx/upstream/store"
)

const defaultRecentUnread = 5

type sessionKey struct{}

// Handler serves the console UI surfaces over the per-user sessions
type Handler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHandler creates a new console handler
func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// RegisterRoutes registers console routes. The router must already run the
// Auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/console", func(r chi.Router) {
		r.Use(h.withSession)

		r.Route("/conversations", func(r chi.Router) {
			// List view
			r.Get("/", h.List())
			r.Put("/filter", h.SetFilter())
			r.Post("/page/next", h.NextPage())
			r.Post("/page/prev", h.PrevPage())
			r.Post("/page/{page}", h.GoToPage())
			r.Post("/refresh", h.Refresh())
			r.Delete("/error", h.DismissError())

			// Detail view
			r.Get("/{id}", h.Open())
			r.Post("/{id}/read", h.MarkRead())
			r.Post("/{id}/archive", h.ToggleArchive())
			r.Post("/{id}/messages", h.SendMessage())
			r.Post("/{id}/leave", h.Leave())
		})

		// Badge and dashboard widget
		r.Get("/unread", h.Unread())

		// Settings
		r.Get("/notification-preference", h.GetPreference())
		r.Put("/notification-preference", h.UpdatePreference())
	})
}

func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			response.Unauthorized(w, "missing user")
			return
		}

		s := h.registry.Acquire(userID, middleware.AccessToken(r.Context()))
		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// FailureResponse is a failed operation together with the last good state
type FailureResponse struct {
	Error string `json:"error"`
	View  any    `json:"view,omitempty"`
}

// List handles GET /console/conversations. The first call loads page 1 of
// the default filter.
func (h *Handler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())

		if v := s.Pager.View(); !v.Loaded && !v.Loading && v.Err == nil {
			if err := s.Pager.Refresh(r.Context()); err != nil {
				h.handleError(w, err, s.Pager.View())
				return
			}
		}

		response.OK(w, s.Pager.View())
	}
}

// SetFilterRequest selects the list filter
type SetFilterRequest struct {
	Status string `json:"status"`
}

// SetFilter handles PUT /console/conversations/filter
func (h *Handler) SetFilter() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetFilterRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		status, err := entity.ParseStatus(req.Status)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		s := sessionFrom(r.Context())
		h.respondList(w, s, s.Pager.SetFilter(r.Context(), status))
	}
}

// NextPage handles POST /console/conversations/page/next
func (h *Handler) NextPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		h.respondList(w, s, s.Pager.Next(r.Context()))
	}
}

// PrevPage handles POST /console/conversations/page/prev
func (h *Handler) PrevPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		h.respondList(w, s, s.Pager.Prev(r.Context()))
	}
}

// GoToPage handles POST /console/conversations/page/{page}
func (h *Handler) GoToPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(chi.URLParam(r, "page"))
		if err != nil {
			response.BadRequest(w, "page must be an integer")
			return
		}

		s := sessionFrom(r.Context())
		h.respondList(w, s, s.Pager.GoTo(r.Context(), page))
	}
}

// Refresh handles POST /console/conversations/refresh, the retry action
func (h *Handler) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		h.respondList(w, s, s.Pager.Refresh(r.Context()))
	}
}

// DismissError handles DELETE /console/conversations/error
func (h *Handler) DismissError() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		s.Pager.DismissError()
		response.OK(w, s.Pager.View())
	}
}

func (h *Handler) respondList(w http.ResponseWriter, s *Session, err error) {
	if err != nil {
		h.handleError(w, err, s.Pager.View())
		return
	}
	response.OK(w, s.Pager.View())
}

// DetailResponse is what the detail view renders
type DetailResponse struct {
	*entity.Conversation
	Stale     bool `json:"stale,omitempty"`
	CanToggle bool `json:"canToggle"`
}

func detailOf(s *Session) *DetailResponse {
	open := s.Engine.Open()
	if open.Conversation == nil {
		return nil
	}
	return &DetailResponse{
		Conversation: open.Conversation,
		Stale:        open.Stale,
		CanToggle:    s.Engine.CanToggle(open.ID),
	}
}

// Open handles GET /console/conversations/{id}. Opening does not mark the
// conversation read.
func (h *Handler) Open() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		id := chi.URLParam(r, "id")

		if _, err := s.Engine.OpenConversation(r.Context(), id); err != nil {
			var last any
			if d := detailOf(s); d != nil && d.ID == id {
				last = d
			}
			h.handleError(w, err, last)
			return
		}

		response.OK(w, detailOf(s))
	}
}

// MarkReadResponse carries the unread state after an acknowledgement
type MarkReadResponse struct {
	UnreadCount int `json:"unreadCount"`
	UnreadTotal int `json:"unreadTotal"`
}

// MarkRead handles POST /console/conversations/{id}/read
func (h *Handler) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		id := chi.URLParam(r, "id")

		if err := s.Engine.MarkRead(r.Context(), id); err != nil {
			h.handleError(w, err, MarkReadResponse{UnreadCount: s.Engine.Unread(id), UnreadTotal: s.Engine.UnreadTotal()})
			return
		}

		response.OK(w, MarkReadResponse{UnreadCount: s.Engine.Unread(id), UnreadTotal: s.Engine.UnreadTotal()})
	}
}

// ToggleResponse is the outcome of an archive toggle with the refreshed list
type ToggleResponse struct {
	ID          string        `json:"id"`
	Previous    entity.Status `json:"previous"`
	Status      entity.Status `json:"status"`
	List        pager.View    `json:"list"`
	UnreadTotal int           `json:"unreadTotal"`
}

// ToggleArchive handles POST /console/conversations/{id}/archive. The list
// and the unread badge are refetched afterwards so the item moves to its new
// filter.
func (h *Handler) ToggleArchive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())

		res, err := s.Engine.ToggleArchive(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err, s.Pager.View())
			return
		}

		if err := s.Pager.Refresh(r.Context()); err != nil {
			h.logger.Warn("list refresh after toggle failed", "conversation_id", res.ID, "error", err)
		}
		if _, err := s.Engine.RefreshUnread(r.Context()); err != nil {
			h.logger.Warn("unread refresh after toggle failed", "conversation_id", res.ID, "error", err)
		}

		response.OK(w, ToggleResponse{
			ID:          res.ID,
			Previous:    res.Previous,
			Status:      res.Reported,
			List:        s.Pager.View(),
			UnreadTotal: s.Engine.UnreadTotal(),
		})
	}
}

// SendMessageRequest is the body of a message send
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage handles POST /console/conversations/{id}/messages
func (h *Handler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		s := sessionFrom(r.Context())
		msg, err := s.Engine.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			h.handleError(w, err, nil)
			return
		}

		response.Created(w, msg)
	}
}

// LeaveResponse is the outcome of leaving with the refreshed list
type LeaveResponse struct {
	Status      entity.Status `json:"status"`
	List        pager.View    `json:"list"`
	UnreadTotal int           `json:"unreadTotal"`
}

// Leave handles POST /console/conversations/{id}/leave. The conversationLeft
// signal refetches the list before the response is written.
func (h *Handler) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		id := chi.URLParam(r, "id")

		status, err := s.Engine.LeaveConversation(r.Context(), id)
		if err != nil {
			h.handleError(w, err, nil)
			return
		}

		if _, err := s.Engine.RefreshUnread(r.Context()); err != nil {
			h.logger.Warn("unread refresh after leave failed", "conversation_id", id, "error", err)
		}

		response.OK(w, LeaveResponse{
			Status:      status,
			List:        s.Pager.View(),
			UnreadTotal: s.Engine.UnreadTotal(),
		})
	}
}

// UnreadResponse feeds the badge and the recent-unread widget
type UnreadResponse struct {
	Total  int                                `json:"total"`
	Recent []entity.UnreadConversationSummary `json:"recent"`
	// PolledAt is the last background refresh; absent before the first one
	PolledAt *time.Time `json:"polledAt,omitempty"`
}

// Unread handles GET /console/unread
func (h *Handler) Unread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentUnread
		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil || parsed < 1 {
				response.BadRequest(w, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		s := sessionFrom(r.Context())
		out := UnreadResponse{
			Total:  s.Engine.UnreadTotal(),
			Recent: s.Engine.RecentUnread(limit),
		}
		if at, ok := s.PolledAt(); ok {
			out.PolledAt = &at
		}
		response.OK(w, out)
	}
}

// GetPreference handles GET /console/notification-preference
func (h *Handler) GetPreference() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())

		p, err := s.Prefs.Get(r.Context())
		if err != nil {
			h.handleError(w, err, currentPreference(s))
			return
		}

		response.OK(w, p)
	}
}

// UpdatePreferenceRequest replaces the email notification preference
type UpdatePreferenceRequest struct {
	Enabled   *bool  `json:"enabled"`
	Frequency string `json:"frequency"`
}

// UpdatePreference handles PUT /console/notification-preference
func (h *Handler) UpdatePreference() http.HandlerFunc {
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

		s := sessionFrom(r.Context())
		p, err := s.Prefs.Update(r.Context(), *req.Enabled, notification.Frequency(req.Frequency))
		if err != nil {
			h.handleError(w, err, currentPreference(s))
			return
		}

		response.OK(w, p)
	}
}

func currentPreference(s *Session) any {
	if p, ok := s.Prefs.Current(); ok {
		return p
	}
	return nil
}

// handleError maps a console failure to a status. Transient failures carry
// the last good state in "view".
func (h *Handler) handleError(w http.ResponseWriter, err error, last any) {
	switch {
	case errors.Is(err, engine.ErrPrecondition),
		errors.Is(err, pager.ErrNoPrevPage),
		errors.Is(err, pager.ErrNoNextPage),
		errors.Is(err, pager.ErrPageOutOfRange):
		response.Conflict(w, err.Error())
	case errors.Is(err, notification.ErrInvalidFrequency),
		errors.Is(err, entity.ErrEmptyMessage),
		errors.Is(err, entity.ErrMessageTooLong):
		response.UnprocessableEntity(w, err.Error())
	case engine.IsValidation(err):
		response.BadRequest(w, err.Error())
	case engine.IsNotFound(err):
		response.NotFound(w, entity.ErrConversationNotFound.Error())
	case engine.IsUnauthorized(err):
		response.Unauthorized(w, "store rejected credentials")
	case engine.IsConflict(err):
		response.Conflict(w, err.Error())
	default:
		h.logger.Warn("console operation failed", "kind", string(store.KindOf(err)), "error", err)
		response.JSON(w, http.StatusBadGateway, FailureResponse{Error: err.Error(), View: last})
	}
}
