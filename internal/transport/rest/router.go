package rest

import (
	"log/slog"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/form"
	"github.com/frahmantamala/trading-panel/internal/listfetch"
	"github.com/frahmantamala/trading-panel/internal/menu"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/session"
	"github.com/frahmantamala/trading-panel/internal/transport/middleware"
	"github.com/frahmantamala/trading-panel/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Handlers is everything the router mounts. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	Health        *HealthHandler
	Session       *session.Handler
	Authorization *permission.Authorization
	Menu          *menu.Handler
	Lists         *listfetch.Handler
	Forms         *form.Handler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, server internal.ServerConfig, logger *slog.Logger) {
	router.Use(middleware.CORS(server.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Get(swagger.DocumentPath, swagger.Document())
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Session == nil {
			return
		}

		r.Post("/session/login", h.Session.Login)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Session.AuthMiddleware)

			pr.Post("/session/logout", h.Session.Logout)
			pr.Get("/session/me", h.Session.Me)

			if h.Menu != nil {
				pr.Get("/menu", h.Menu.GetMenu)
			}

			if h.Authorization != nil {
				pr.Get("/permissions", h.Authorization.ListAllowed)
				pr.Get("/permissions/{action}", h.Authorization.GetDecision)
			}

			if h.Lists != nil {
				pr.Post("/entities/{entity}/views", h.Lists.Open)
				pr.Route("/views/{id}", func(vr chi.Router) {
					vr.Get("/", h.Lists.Get)
					vr.Patch("/", h.Lists.Update)
					vr.Delete("/", h.Lists.Discard)
					vr.Post("/refetch", h.Lists.Refetch)
				})
			}

			if h.Forms != nil {
				pr.Post("/entities/{entity}/forms", h.Forms.Open)
				pr.Route("/forms/{id}", func(fr chi.Router) {
					fr.Get("/", h.Forms.Get)
					fr.Patch("/", h.Forms.Update)
					fr.Delete("/", h.Forms.Discard)
					fr.Post("/submit", h.Forms.Submit)
				})
			}
		})
	})
}
