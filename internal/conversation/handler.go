package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/estatechat/platform/internal/billing"
	"github.com/estatechat/platform/internal/engine"
	"github.com/estatechat/platform/internal/tenancy"
	"github.com/estatechat/platform/pkg/logging"
)

type Handler struct {
	service *Service
	gate    billing.Gate
	logger  *logging.Logger
}

func NewHandler(service *Service, gate billing.Gate, logger *logging.Logger) *Handler {
	if gate == nil {
		gate = billing.AlwaysAllow{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, gate: gate, logger: logger}
}

type startRequest struct {
	WidgetID string `json:"widgetId"`
}

// POST /conversations/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	if !h.gateAllows(w, r, tenantID) {
		return
	}

	result, err := h.service.StartConversation(r.Context(), tenantID, req.WidgetID)
	if err != nil {
		h.logger.Error("failed to start conversation", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type messageRequest struct {
	ConversationID string        `json:"conversationId"`
	Text           string        `json:"text"`
	State          *engine.State `json:"state,omitempty"`
}

// POST /conversations/message
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "missing conversationId", http.StatusBadRequest)
		return
	}

	if !h.gateAllows(w, r, tenantID) {
		return
	}

	result, err := h.service.HandleMessage(r.Context(), tenantID, req.ConversationID, req.Text, req.State)
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("failed to handle message",
			"tenant_id", tenantID, "conversation_id", req.ConversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /admin/tenants/{tenantID}/conversations/{conversationID}
func (h *Handler) AdminTranscript(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	conversationID := chi.URLParam(r, "conversationID")

	messages, err := h.service.History(r.Context(), tenantID, conversationID)
	switch {
	case errors.Is(err, ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("failed to load transcript",
			"tenant_id", tenantID, "conversation_id", conversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": conversationID,
		"messages":       messages,
	})
}

// gateAllows writes the visitor-facing unavailable reply when the tenant's
// subscription lapsed. The response is a 200 with a terminal message so the
// widget renders it like any other assistant turn.
func (h *Handler) gateAllows(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	allowed, err := h.gate.Allowed(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, billing.ErrTenantNotFound) {
			http.Error(w, "unknown tenant", http.StatusNotFound)
			return false
		}
		h.logger.Error("subscription gate check failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		writeJSON(w, http.StatusOK, map[string]any{
			"reply":       billing.UnavailableMessage,
			"unavailable": true,
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
