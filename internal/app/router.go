package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/loomline/loomline/internal/auth"
	"github.com/loomline/loomline/internal/orders"
	"github.com/loomline/loomline/internal/rbac"
	"github.com/loomline/loomline/internal/tenants"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Auth    *auth.Middleware
	RBAC    rbac.Middleware
	AuthH   *auth.Handler
	RBACH   *rbac.Handler
	Tenants *tenants.Handler
	Orders  *orders.Handler
}

// NewRouter constructs the chi.Router with Loomline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:    params.Logger,
		Config:    params.Config,
		Principal: params.Auth.Handler,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", params.AuthH.MountRoutes)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(params.RBAC.RequireAny("admin:permissions"))
			params.RBACH.MountRoutes(admin)
		})

		api.Route("/platform", func(platform chi.Router) {
			platform.Use(params.RBAC.RequireSuperAdmin)
			params.Tenants.MountRoutes(platform)
			params.RBACH.MountCeilingRoutes(platform)
		})

		api.Route("/orders", params.Orders.MountRoutes)
	})

	return r
}
