package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/teams-agent-bridge/internal/bot"
	"github.com/wolfman30/teams-agent-bridge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/teams-agent-bridge/internal/http/middleware"
	"github.com/wolfman30/teams-agent-bridge/internal/notify"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	TeamsWebhook   *handlers.TeamsWebhookHandler
	Bot            *bot.Handler
	Health         http.Handler
	SessionAdmin   *session.Handler
	Notify         *notify.Handler
	MetricsHandler http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	DevMode            bool
}

// New creates the chi router for the relay.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Handle("/health", cfg.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.TeamsWebhook != nil {
			public.Route("/api/teams/webhook", func(r chi.Router) {
				r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
				r.Get("/", cfg.TeamsWebhook.Ready)
				r.Post("/", cfg.TeamsWebhook.Handle)
			})
			if cfg.DevMode {
				public.Post("/api/v1/test-message", cfg.TeamsWebhook.HandleTestMessage)
			}
		}
		if cfg.Bot != nil {
			public.Route("/api/messages", func(r chi.Router) {
				r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
				r.Post("/", cfg.Bot.Messages)
				r.Get("/health", cfg.Bot.Health)
			})
		}
		if cfg.Notify != nil {
			var notifyRoutes http.Handler = cfg.Notify.Routes()
			if cors := httpmiddleware.NotifyCORS(cfg.CORSAllowedOrigins); cors.Enabled() {
				notifyRoutes = cors.Handler(notifyRoutes)
			}
			public.Mount("/api/v1", notifyRoutes)
		}
	})

	if cfg.SessionAdmin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			// Preflights carry no token, so CORS runs ahead of the JWT check.
			if cors := httpmiddleware.AdminCORS(cfg.CORSAllowedOrigins); cors.Enabled() {
				admin.Use(cors.Handler)
			}
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Mount("/sessions", cfg.SessionAdmin.Routes())
		})
	}

	return r
}
