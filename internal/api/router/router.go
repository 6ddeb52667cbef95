package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/estatechat/platform/internal/conversation"
	httpmiddleware "github.com/estatechat/platform/internal/http/middleware"
	"github.com/estatechat/platform/internal/leads"
	"github.com/estatechat/platform/internal/widget"
	"github.com/estatechat/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	LeadsHandler        *leads.Handler
	WidgetHandler       *widget.Handler
	MetricsHandler      http.Handler
	AdminAuthSecret     string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (widget assets, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WidgetHandler != nil {
			public.Get("/widget.js", cfg.WidgetHandler.HandleWidgetJS)
			public.Get("/widget/ws", cfg.WidgetHandler.HandleWebSocket)
			public.Get("/widget/history", cfg.WidgetHandler.HandleHistory)
		}
	})

	// Tenant-scoped API routes. The widget's HTTP fallback path sends the
	// tenant id in a header instead of a WebSocket query param.
	r.Group(func(tenant chi.Router) {
		tenant.Use(httpmiddleware.RequireTenant())

		if cfg.ConversationHandler != nil {
			tenant.Route("/conversations", func(r chi.Router) {
				r.Post("/start", cfg.ConversationHandler.Start)
				r.Post("/message", cfg.ConversationHandler.Message)
			})
		}
	})

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/tenants/{tenantID}", func(tenantRoutes chi.Router) {
				if cfg.LeadsHandler != nil {
					tenantRoutes.Get("/leads", cfg.LeadsHandler.List)
					tenantRoutes.Get("/leads/{leadID}", cfg.LeadsHandler.Get)
					tenantRoutes.Post("/leads/{leadID}/notify", cfg.LeadsHandler.ResendNotification)
				}
				if cfg.ConversationHandler != nil {
					tenantRoutes.Get("/conversations/{conversationID}", cfg.ConversationHandler.AdminTranscript)
				}
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
