package widget

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/estatechat/platform/internal/billing"
	"github.com/estatechat/platform/internal/conversation"
	"github.com/estatechat/platform/internal/engine"
	"github.com/estatechat/platform/internal/events"
	"github.com/estatechat/platform/pkg/logging"
)

//go:embed widget.js
var widgetJS []byte

// ConversationService is the slice of the conversation service the widget
// transport needs.
type ConversationService interface {
	StartConversation(ctx context.Context, tenantID, widgetID string) (*conversation.StartResult, error)
	HandleMessage(ctx context.Context, tenantID, conversationID, text string, hint *engine.State) (*conversation.MessageResult, error)
	History(ctx context.Context, tenantID, conversationID string) ([]conversation.StoredMessage, error)
}

// Handler serves the embeddable widget: the script itself, the WebSocket
// chat transport, and the history endpoint for reconnects.
type Handler struct {
	service  ConversationService
	gate     billing.Gate
	recorder events.Recorder
	logger   *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*wsConn // conversationID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
}

func NewHandler(service ConversationService, gate billing.Gate, recorder events.Recorder, logger *logging.Logger) *Handler {
	if service == nil {
		panic("widget: conversation service required")
	}
	if gate == nil {
		gate = billing.AlwaysAllow{}
	}
	if recorder == nil {
		recorder = events.NewMemoryRecorder()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:  service,
		gate:     gate,
		recorder: recorder,
		logger:   logger,
		sessions: make(map[string]*wsConn),
	}
}

// InboundMessage is what the widget sends over the socket.
type InboundMessage struct {
	Type           string        `json:"type"` // "start", "message", "ping"
	WidgetID       string        `json:"widgetId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	Text           string        `json:"text,omitempty"`
	State          *engine.State `json:"state,omitempty"`
}

// OutboundMessage is what the server sends to the widget.
type OutboundMessage struct {
	Type           string           `json:"type"` // "session", "message", "history", "pong", "error"
	ConversationID string           `json:"conversationId,omitempty"`
	Text           string           `json:"text,omitempty"`
	Role           string           `json:"role,omitempty"`
	State          *engine.State    `json:"state,omitempty"`
	Score          int              `json:"score,omitempty"`
	LeadCreated    bool             `json:"leadCreated,omitempty"`
	Unavailable    bool             `json:"unavailable,omitempty"`
	Messages       []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// HandleWidgetJS serves the embeddable widget JavaScript and counts the view.
// GET /widget.js?tenant=<id>&widget=<id>
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID != "" {
		if _, err := h.recorder.Record(r.Context(), events.WidgetEvent{
			EventID:  "widget_view:" + uuid.NewString(),
			TenantID: tenantID,
			Type:     events.TypeWidgetView,
		}); err != nil {
			h.logger.Warn("failed to record widget view", "tenant_id", tenantID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(widgetJS)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
// GET /widget/ws?tenant=<id>&widget=<id>&conversation=<id>
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "missing tenant parameter"})
		return
	}
	widgetID := r.URL.Query().Get("widget")
	convID := r.URL.Query().Get("conversation")

	if !h.checkGate(ctx, conn, tenantID) {
		return
	}

	if convID == "" {
		res, err := h.service.StartConversation(ctx, tenantID, widgetID)
		if err != nil {
			h.logger.Error("widget: failed to start conversation", "tenant_id", tenantID, "error", err)
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "could not start chat"})
			return
		}
		convID = res.ConversationID
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:           "session",
			ConversationID: convID,
			Text:           res.Greeting,
		})
	} else {
		h.sendHistory(ctx, conn, tenantID, convID)
	}

	wsc := &wsConn{conn: conn}
	h.mu.Lock()
	h.sessions[convID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[convID] == wsc {
			delete(h.sessions, convID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("widget: connection opened", "tenant_id", tenantID, "conversation_id", convID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("widget: connection closed", "tenant_id", tenantID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "message":
			h.processMessage(ctx, conn, tenantID, convID, msg)
		}
	}
}

func (h *Handler) processMessage(ctx context.Context, conn *websocket.Conn, tenantID, convID string, msg InboundMessage) {
	if !h.checkGate(ctx, conn, tenantID) {
		return
	}

	res, err := h.service.HandleMessage(ctx, tenantID, convID, msg.Text, msg.State)
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrMessageTooLong):
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: err.Error()})
		return
	case err != nil:
		h.logger.Error("widget: failed to handle message",
			"tenant_id", tenantID, "conversation_id", convID, "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "Sorry, something went wrong. Please try again."})
		return
	}

	state := res.State
	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:           "message",
		ConversationID: convID,
		Role:           string(engine.RoleAssistant),
		Text:           res.Reply,
		State:          &state,
		Score:          res.Score,
		LeadCreated:    res.LeadCreated,
	})
}

// checkGate sends the visitor-facing unavailable reply and reports whether
// the tenant may chat.
func (h *Handler) checkGate(ctx context.Context, conn *websocket.Conn, tenantID string) bool {
	allowed, err := h.gate.Allowed(ctx, tenantID)
	if err != nil {
		h.logger.Error("widget: gate check failed", "tenant_id", tenantID, "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "could not start chat"})
		return false
	}
	if !allowed {
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:        "message",
			Role:        string(engine.RoleAssistant),
			Text:        billing.UnavailableMessage,
			Unavailable: true,
		})
		return false
	}
	return true
}

func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, tenantID, convID string) {
	msgs, err := h.service.History(ctx, tenantID, convID)
	if err != nil {
		h.logger.Warn("widget: failed to load history", "conversation_id", convID, "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:           "history",
		ConversationID: convID,
		Messages:       toHistory(msgs),
	})
}

// HandleHistory returns chat history for a reconnecting widget.
// GET /widget/history?tenant=<id>&conversation=<id>
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	convID := r.URL.Query().Get("conversation")
	if tenantID == "" || convID == "" {
		http.Error(w, "tenant and conversation parameters required", http.StatusBadRequest)
		return
	}

	msgs, err := h.service.History(r.Context(), tenantID, convID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("widget: failed to load history", "conversation_id", convID, "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": toHistory(msgs)})
}

func toHistory(msgs []conversation.StoredMessage) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{
			Role:      string(m.Role),
			Text:      m.Text,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return history
}
