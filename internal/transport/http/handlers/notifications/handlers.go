package notificationshandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"absence/internal/domain/notifications"
	"absence/internal/transport/http/api"
	"absence/internal/transport/http/middleware"
	"absence/internal/transport/http/shared"
)

// Inbox is the read side of the notification service.
type Inbox interface {
	List(ctx context.Context, companyID, userID string, limit, offset int) ([]notifications.Notification, error)
	CountUnread(ctx context.Context, companyID, userID string) (int, error)
	MarkRead(ctx context.Context, companyID, userID, notificationID string) error
}

var _ Inbox = (*notifications.Service)(nil)

type Handler struct {
	Service Inbox
}

func NewHandler(service Inbox) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/", h.handleList)
		r.Get("/unread-count", h.handleUnreadCount)
		r.Post("/{notificationID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	page := shared.ParsePage(r, 50, 200)
	unread, err := h.Service.CountUnread(r.Context(), user.CompanyID, user.UserID)
	if err != nil {
		slog.Warn("notification count failed", "err", err)
	}

	items, err := h.Service.List(r.Context(), user.CompanyID, user.UserID, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", requestID)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}

	w.Header().Set("X-Unread-Count", strconv.Itoa(unread))
	api.Success(w, items, requestID)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	unread, err := h.Service.CountUnread(r.Context(), user.CompanyID, user.UserID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_count_failed", "failed to count notifications", requestID)
		return
	}
	api.Success(w, map[string]int{"unread": unread}, requestID)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	notificationID := chi.URLParam(r, "notificationID")
	if err := h.Service.MarkRead(r.Context(), user.CompanyID, user.UserID, notificationID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to update notification", requestID)
		return
	}
	api.Success(w, map[string]string{"status": "read"}, requestID)
}
