package alertshandler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"detailpay/internal/domain/alerts"
	"detailpay/internal/domain/auth"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

// Inbox is the read side of the alert store.
type Inbox interface {
	ListUnread(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error)
	MarkRead(ctx context.Context, id string) error
	DismissByKey(ctx context.Context, recordType, recordKey string) (int64, error)
}

type Handler struct {
	Inbox Inbox
	Perms middleware.PermissionStore
}

func NewHandler(inbox Inbox, perms middleware.PermissionStore) *Handler {
	return &Handler{Inbox: inbox, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermAlertsRead, h.Perms))
		r.Get("/", h.handleList)
		r.Post("/{alertID}/read", h.handleMarkRead)
		r.Post("/dismiss", h.handleDismiss)
	})
}

type dismissPayload struct {
	RecordType string `json:"recordType" validate:"required"`
	RecordKey  string `json:"recordKey" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Inbox.ListUnread(r.Context(), alerts.Filter{
		Type:       q.Get("type"),
		RecordType: q.Get("recordType"),
		RecordKey:  q.Get("recordKey"),
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "alert_list_failed", "failed to list alerts", middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []alerts.Alert{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	if err := h.Inbox.MarkRead(r.Context(), alertID); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "alert not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "alert_update_failed", "failed to mark alert read", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "read"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var payload dismissPayload
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}
	n, err := h.Inbox.DismissByKey(r.Context(), payload.RecordType, payload.RecordKey)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "alert_dismiss_failed", "failed to dismiss alerts", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]int64{"dismissed": n}, middleware.GetRequestID(r.Context()))
}
