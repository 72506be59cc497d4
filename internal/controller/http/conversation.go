package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/inkdesk/internal/domain/conversation/entity"
	"github.com/vadim/inkdesk/internal/domain/conversation/policy"
	"github.com/vadim/inkdesk/internal/httpx/middleware"
	"github.com/vadim/inkdesk/internal/httpx/response"
)

// ConversationPolicy defines the interface for conversation operations
type ConversationPolicy interface {
	Create(ctx context.Context, in policy.CreateInput) (*entity.Conversation, error)
	List(ctx context.Context, userID string, q entity.ListQuery) (*entity.Page, error)
	Get(ctx context.Context, userID, id string) (*entity.Conversation, error)
	Send(ctx context.Context, userID, id, content string) (*entity.Message, error)
	MarkRead(ctx context.Context, userID, id string) error
	ToggleArchive(ctx context.Context, userID, id string) (entity.Status, error)
	Leave(ctx context.Context, userID, id string) (entity.Status, error)
	RecentUnread(ctx context.Context, userID string, limit int) ([]entity.UnreadConversationSummary, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// ConversationHandler handles HTTP requests for conversations
type ConversationHandler struct {
	policy ConversationPolicy
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(p ConversationPolicy) *ConversationHandler {
	return &ConversationHandler{policy: p}
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.List())
		r.Post("/", h.Create())

		// Unread summaries, registered before /{id}
		r.Get("/unread/recent", h.RecentUnread())
		r.Get("/unread/count", h.UnreadCount())

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get())
			r.Post("/archive", h.ToggleArchive())
			r.Post("/read", h.MarkRead())
			r.Post("/messages", h.SendMessage())
			r.Post("/leave", h.Leave())
		})
	})
}

// CreateConversationRequest represents the request body for opening a conversation
type CreateConversationRequest struct {
	Salon   entity.Party `json:"salon"`
	Client  entity.Party `json:"client"`
	Subject string       `json:"subject,omitempty"`
}

// Create handles POST /conversations
func (h *ConversationHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateConversationRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		conv, err := h.policy.Create(r.Context(), policy.CreateInput{
			UserID:  middleware.UserID(r.Context()),
			Salon:   req.Salon,
			Client:  req.Client,
			Subject: req.Subject,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.Created(w, conv)
	}
}

// List handles GET /conversations
func (h *ConversationHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := entity.ListQuery{
			Page:     1,
			PageSize: entity.DefaultPageSize,
			Status:   entity.StatusActive,
		}

		if p := r.URL.Query().Get("page"); p != "" {
			parsed, err := strconv.Atoi(p)
			if err != nil {
				response.BadRequest(w, "page must be an integer")
				return
			}
			q.Page = parsed
		}

		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil {
				response.BadRequest(w, "limit must be an integer")
				return
			}
			q.PageSize = parsed
		}

		if s := r.URL.Query().Get("status"); s != "" {
			status, err := entity.ParseStatus(s)
			if err != nil {
				response.BadRequest(w, err.Error())
				return
			}
			q.Status = status
		}

		page, err := h.policy.List(r.Context(), middleware.UserID(r.Context()), q)
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, page)
	}
}

// Get handles GET /conversations/{id}
func (h *ConversationHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := h.policy.Get(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, conv)
	}
}

// StatusResponse is returned by status-changing endpoints
type StatusResponse struct {
	Status entity.Status `json:"status"`
}

// ToggleArchive handles POST /conversations/{id}/archive
func (h *ConversationHandler) ToggleArchive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.policy.ToggleArchive(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, StatusResponse{Status: status})
	}
}

// Leave handles POST /conversations/{id}/leave
func (h *ConversationHandler) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.policy.Leave(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, StatusResponse{Status: status})
	}
}

// MarkReadResponse is returned after acknowledging a conversation
type MarkReadResponse struct {
	UnreadCount int `json:"unreadCount"`
}

// MarkRead handles POST /conversations/{id}/read
func (h *ConversationHandler) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.policy.MarkRead(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, MarkReadResponse{UnreadCount: 0})
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage handles POST /conversations/{id}/messages
func (h *ConversationHandler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		msg, err := h.policy.Send(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.Created(w, msg)
	}
}

// RecentUnread handles GET /conversations/unread/recent
func (h *ConversationHandler) RecentUnread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil || parsed < 1 {
				response.BadRequest(w, "limit must be a positive integer")
				return
			}
			limit = min(parsed, entity.MaxPageSize)
		}

		items, err := h.policy.RecentUnread(r.Context(), middleware.UserID(r.Context()), limit)
		if err != nil {
			handleConversationError(w, err)
			return
		}
		if items == nil {
			items = []entity.UnreadConversationSummary{}
		}

		response.OK(w, items)
	}
}

// UnreadCountResponse is the unread total across ACTIVE conversations
type UnreadCountResponse struct {
	Total int `json:"total"`
}

// UnreadCount handles GET /conversations/unread/count
func (h *ConversationHandler) UnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := h.policy.UnreadCount(r.Context(), middleware.UserID(r.Context()))
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, UnreadCountResponse{Total: total})
	}
}

func handleConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrConversationNotFound):
		response.NotFound(w, entity.ErrConversationNotFound.Error())
	case errors.Is(err, entity.ErrConversationClosed):
		response.Conflict(w, entity.ErrConversationClosed.Error())
	case errors.Is(err, entity.ErrInvalidTransition):
		response.Conflict(w, entity.ErrInvalidTransition.Error())
	case errors.Is(err, entity.ErrInvalidQuery),
		errors.Is(err, entity.ErrInvalidStatus):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrEmptyMessage),
		errors.Is(err, entity.ErrMessageTooLong):
		response.UnprocessableEntity(w, err.Error())
	case errors.Is(err, entity.ErrNotParticipant):
		response.Error(w, http.StatusForbidden, entity.ErrNotParticipant.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
