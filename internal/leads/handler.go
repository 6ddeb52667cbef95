package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/estatechat/platform/pkg/logging"
)

// Notifier re-sends the lead alert email on demand. It matches the
// notification service without importing it.
type Notifier interface {
	NotifyNewLead(ctx context.Context, lead Lead) error
}

// Handler serves the admin lead endpoints.
type Handler struct {
	repo     Repository
	notifier Notifier
	logger   *logging.Logger
}

func NewHandler(repo Repository, notifier Notifier, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("leads: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, notifier: notifier, logger: logger}
}

// GET /admin/tenants/{tenantID}/leads
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, "missing tenant id", http.StatusBadRequest)
		return
	}

	all, err := h.repo.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list leads", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"lastUpdated": time.Now().UTC(),
		"leads":       all,
	})
}

// GET /admin/tenants/{tenantID}/leads/{leadID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	leadID := chi.URLParam(r, "leadID")

	lead, err := h.repo.Get(r.Context(), tenantID, leadID)
	if errors.Is(err, ErrLeadNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get lead", "tenant_id", tenantID, "lead_id", leadID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lead)
}

// POST /admin/tenants/{tenantID}/leads/{leadID}/notify
func (h *Handler) ResendNotification(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	leadID := chi.URLParam(r, "leadID")

	if h.notifier == nil {
		http.Error(w, "notifications not configured", http.StatusServiceUnavailable)
		return
	}

	lead, err := h.repo.Get(r.Context(), tenantID, leadID)
	if errors.Is(err, ErrLeadNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get lead", "tenant_id", tenantID, "lead_id", leadID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.notifier.NotifyNewLead(r.Context(), *lead); err != nil {
		h.logger.Error("failed to resend lead notification", "tenant_id", tenantID, "lead_id", leadID, "error", err)
		http.Error(w, "notification failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}
