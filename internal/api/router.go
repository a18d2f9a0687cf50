// Package api exposes the HTTP surface: swipe, match, profile and message
// endpoints, the real-time upgrade, health and metrics.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/metrics"
	"github.com/flicker/match-app/internal/ratelimit"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger    zerolog.Logger
	Matcher   Matcher
	Messenger Messenger
	Socket    http.Handler // real-time upgrade
	Health    http.Handler
	Limiter   *ratelimit.Limiter // nil disables rate limiting
	ClientURL string             // allowed CORS origins, comma-separated
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins(d.ClientURL),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", UserHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := NewHandler(d.Matcher, d.Messenger, d.Logger)
	byUser := ratelimit.ByHeader(UserHeader)

	r.Handle("/metrics", metrics.Handler())
	if d.Health != nil {
		r.Method(http.MethodGet, "/health", d.Health)
	}
	if d.Socket != nil {
		r.With(ratelimit.Middleware(d.Limiter, ratelimit.RuleConnect, ratelimit.ByIP)).
			Method(http.MethodGet, "/ws", d.Socket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser)

		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(d.Limiter, ratelimit.RuleSwipe, byUser))
			r.Post("/swipes/right/{userID}", h.SwipeRight)
			r.Post("/swipes/left/{userID}", h.SwipeLeft)
		})

		r.Get("/matches", h.Matches)
		r.Get("/users/profiles", h.Profiles)

		r.With(ratelimit.Middleware(d.Limiter, ratelimit.RuleMessage, byUser)).
			Post("/messages", h.SendMessage)
		r.Get("/messages/{userID}", h.Conversation)
	})

	return r
}

func origins(clientURL string) []string {
	var out []string
	for _, o := range strings.Split(clientURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
