package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdeck/internal/api/middleware"
	"github.com/eldtechnologies/chatdeck/internal/auth"
	"github.com/eldtechnologies/chatdeck/internal/config"
	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/handlers"
	"github.com/eldtechnologies/chatdeck/internal/proxy"
	"github.com/eldtechnologies/chatdeck/internal/realtime"
	"github.com/eldtechnologies/chatdeck/internal/store"
	"github.com/eldtechnologies/chatdeck/internal/telemetry"
)

// Services bundles what the router wires into handlers and middleware.
type Services struct {
	Config    *config.Config
	Data      store.DataStore
	Live      store.LiveStore
	Hub       *realtime.Hub
	CSRF      *crypto.CSRFSigner
	Verifier  auth.Verifier // nil when the auth provider failed to initialize
	Redis     *redis.Client // nil without Redis; rate limiting stays in-process
	Reporter  *telemetry.Reporter
	Analytics telemetry.Analytics
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, svc Services) *chi.Mux {
	cfg := svc.Config
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(svc.Redis, logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	// Browser front-ends send cookies, so origins must be explicit
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CSRFHeader},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(cfg, svc.Data, svc.Live, svc.Hub, svc.CSRF, svc.Reporter, svc.Analytics)
	session := middleware.NewSessionMiddleware(svc.Verifier, svc.Data, cfg.SignInURL, logger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	// Routes served by the gateway itself
	r.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.MaxBodySize(middleware.MaxGatewayBody))
		r.Use(middleware.ValidateRequest)

		r.Get("/api", h.Root)
		r.Get("/api/config", h.Config)
		r.Get("/api/csrf", h.CSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(session.RequireSession)
			r.Use(middleware.CSRF(svc.CSRF))

			r.Get("/api/users/me", h.Me)

			r.Get("/api/chats", h.ListChats)
			r.Post("/api/chats", h.CreateChat)
			r.Get("/api/chats/{id}", h.GetChat)
			r.Patch("/api/chats/{id}", h.RenameChat)
			r.Delete("/api/chats/{id}", h.DeleteChat)
			r.Get("/api/chats/{id}/messages", h.ListMessages)
			r.Post("/api/chats/{id}/messages", h.PostMessage)
			r.Get("/api/chats/{id}/status", h.Status)
			r.Get("/api/chats/{id}/ws", h.ChatSocket)

			r.Get("/api/favorites", h.GetFavorites)
			r.Put("/api/favorites", h.SetFavorites)
		})
	})

	// Everything else under /api goes to the chat backend
	r.Handle("/api/*", upstream(logger, "backend", cfg.BackendURL, "/api", svc.Reporter))

	// Pages go to the front-end app, with protected sections gated
	if cfg.FrontendURL != "" {
		frontend := upstream(logger, "frontend", cfg.FrontendURL, "", svc.Reporter)
		r.With(session.PageGate(cfg.ProtectedPaths)).Handle("/*", frontend)
	}

	return r
}

// upstream builds a proxy, falling back to a 500 responder when the URL is
// missing or invalid.
func upstream(logger zerolog.Logger, name, rawURL, stripPrefix string, reporter *telemetry.Reporter) http.Handler {
	p, err := proxy.New(name, rawURL, stripPrefix, reporter)
	if err != nil {
		logger.Warn().Err(err).Str("upstream", name).Msg("proxy disabled")
		return proxy.Unavailable(name)
	}
	logger.Info().Str("upstream", name).Str("url", rawURL).Msg("proxy configured")
	return p
}
