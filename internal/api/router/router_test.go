package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/estatechat/platform/internal/conversation"
	"github.com/estatechat/platform/internal/events"
	"github.com/estatechat/platform/internal/leads"
	"github.com/estatechat/platform/internal/widget"
	"github.com/estatechat/platform/pkg/logging"
)

const testAdminSecret = "router-test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.New("error")
	leadRepo := leads.NewInMemoryRepository()
	recorder := events.NewMemoryRecorder()
	service := conversation.NewService(conversation.ServiceOptions{
		Repo:     conversation.NewInMemoryRepository(),
		LeadRepo: leadRepo,
		Recorder: recorder,
		Logger:   logger,
	})

	cfg := &Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(service, nil, logger),
		LeadsHandler:        leads.NewHandler(leadRepo, nil, logger),
		WidgetHandler:       widget.NewHandler(service, nil, recorder, logger),
		AdminAuthSecret:     testAdminSecret,
		CORSAllowedOrigins:  []string{"*"},
	}

	return New(cfg)
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterConversationFlow(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"widgetId": "widget-1"})
	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "tenant-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	var started struct {
		ConversationID string `json:"conversationId"`
		Greeting       string `json:"greeting"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&started); err != nil {
		t.Fatalf("failed to decode start response: %v", err)
	}
	if started.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}

	body, _ = json.Marshal(map[string]string{
		"conversationId": started.ConversationID,
		"text":           "Hi, my name is Sarah",
	})
	req = httptest.NewRequest(http.MethodPost, "/conversations/message", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "tenant-1")
	rr = httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Sarah") {
		t.Errorf("expected reply to use the visitor's name, got %s", rr.Body.String())
	}
}

func TestRouterConversationRequiresTenantHeader(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"widgetId": "widget-1"})
	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestRouterWidgetScriptEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/widget.js?tenant=tenant-1&widget=widget-1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Fatalf("expected javascript response, got %s", ct)
	}
}

func TestRouterAdminLeadsRequireToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/tenant-1/leads", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/tenants/tenant-1/leads", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

// TestRouterAdminRoutesMissingWithoutSecret documents that admin routes are
// never mounted when no auth secret is configured, rather than being mounted
// open.
func TestRouterAdminRoutesMissingWithoutSecret(t *testing.T) {
	logger := logging.New("error")
	leadRepo := leads.NewInMemoryRepository()
	service := conversation.NewService(conversation.ServiceOptions{
		Repo:     conversation.NewInMemoryRepository(),
		LeadRepo: leadRepo,
		Logger:   logger,
	})
	router := New(&Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(service, nil, logger),
		LeadsHandler:        leads.NewHandler(leadRepo, nil, logger),
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/tenant-1/leads", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin auth is disabled, got %d", rr.Code)
	}
}

func TestRouterAdminTranscript(t *testing.T) {
	logger := logging.New("error")
	leadRepo := leads.NewInMemoryRepository()
	service := conversation.NewService(conversation.ServiceOptions{
		Repo:     conversation.NewInMemoryRepository(),
		LeadRepo: leadRepo,
		Logger:   logger,
	})
	router := New(&Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(service, nil, logger),
		AdminAuthSecret:     testAdminSecret,
	})

	started, err := service.StartConversation(t.Context(), "tenant-1", "widget-1")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	if _, err := service.HandleMessage(t.Context(), "tenant-1", started.ConversationID, "my name is Sarah", nil); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/tenant-1/conversations/"+started.ConversationID, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		ConversationID string                       `json:"conversationId"`
		Messages       []conversation.StoredMessage `json:"messages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode transcript: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected visitor and assistant messages, got %d", len(resp.Messages))
	}
}
