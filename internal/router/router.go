package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"crm-api/internal/config"
	"crm-api/internal/handler"
	"crm-api/internal/metrics"
	"crm-api/internal/middleware"
)

type Handlers struct {
	Health      *handler.HealthHandler
	Docs        *handler.DocsHandler
	Auth        *handler.AuthHandler
	Lead        *handler.LeadHandler
	Opportunity *handler.OpportunityHandler
	Audit       *handler.AuditHandler
	WS          *handler.WSHandler
}

// New builds the HTTP surface. collector may be nil when metrics are disabled.
func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)
	if collector != nil {
		r.Use(collector.Middleware)
		r.Handle("/metrics", collector.Handler())
	}

	r.Get("/health", h.Health.Health)
	r.Get("/openapi.yaml", h.Docs.OpenAPI)
	r.Get("/swagger", h.Docs.SwaggerUI)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
		})

		api.Group(func(private chi.Router) {
			private.Use(authMiddleware.RequireAuth)

			private.Get("/ws", h.WS.Serve)

			private.Route("/leads", func(leads chi.Router) {
				leads.Get("/", h.Lead.List)
				leads.With(authMiddleware.RequireWrite).Post("/", h.Lead.Create)
				leads.Get("/deletions", h.Lead.PendingDeletions)
				leads.With(authMiddleware.RequireWrite).Post("/deletions/{pending_id}/undo", h.Lead.Undo)
				leads.Get("/{id}", h.Lead.Get)
				leads.With(authMiddleware.RequireWrite).Patch("/{id}", h.Lead.Update)
				leads.With(authMiddleware.RequireWrite).Delete("/{id}", h.Lead.Delete)
			})

			private.Route("/opportunities", func(opps chi.Router) {
				opps.Get("/", h.Opportunity.List)
				opps.With(authMiddleware.RequireWrite).Post("/", h.Opportunity.Create)
				opps.Get("/pipeline", h.Opportunity.Pipeline)
				opps.Get("/deletions", h.Opportunity.PendingDeletions)
				opps.With(authMiddleware.RequireWrite).Post("/deletions/{pending_id}/undo", h.Opportunity.Undo)
				opps.Get("/{id}", h.Opportunity.Get)
				opps.With(authMiddleware.RequireWrite).Patch("/{id}", h.Opportunity.Update)
				opps.With(authMiddleware.RequireWrite).Put("/{id}/move", h.Opportunity.Move)
				opps.With(authMiddleware.RequireWrite).Delete("/{id}", h.Opportunity.Delete)
			})

			private.With(authMiddleware.RequireRoles("admin")).Get("/audit", h.Audit.List)
		})
	})

	return r
}
