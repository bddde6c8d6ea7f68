package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/policy-portal/app"
	"github.com/upb/policy-portal/handlers"
	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/middleware"
	"github.com/upb/policy-portal/utils"
)

// resourceRoute binds a backend collection to the screens guarding it.
type resourceRoute struct {
	path        string
	resource    string
	readScreen  string
	writeScreen string
}

var resourceRoutes = []resourceRoute{
	{"/policies", handlers.ResourcePolicies, access.ScreenPolicies, access.ScreenPoliciesWrite},
	{"/licenses", handlers.ResourceLicenses, access.ScreenLicenses, access.ScreenLicensesWrite},
	{"/users", handlers.ResourceUsers, access.ScreenUsers, access.ScreenUsers},
	{"/reports", handlers.ResourceReports, access.ScreenReports, access.ScreenReports},
	{"/organization", handlers.ResourceOrganization, access.ScreenOrganization, access.ScreenOrganizationWrite},
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	r.Group(func(r chi.Router) {
		r.Use(deps.SessionMiddleware.LoadSession)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", handlers.AuthLoginHandler(deps))
			r.Post("/logout", handlers.AuthLogoutHandler(deps))
			r.Post("/refresh", handlers.AuthRefreshHandler(deps))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.SessionMiddleware.RequireSession)
			guard := deps.GuardMiddleware

			r.With(guard.RequirePermission(access.ScreenDashboard)).
				Get("/dashboard", deps.PortalHandler.HandleDashboard)

			r.Route("/api", func(r chi.Router) {
				r.Get("/me", deps.PortalHandler.HandleMe)
				r.Get("/me/activity", deps.PortalHandler.HandleActivity)

				for _, rr := range resourceRoutes {
					mountResource(r, guard, deps.ResourceHandler, rr)
				}
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// mountResource registers list/get under the read screen and
// create/update/delete under the write screen.
func mountResource(r chi.Router, guard *middleware.GuardMiddleware, h *handlers.ResourceHandler, rr resourceRoute) {
	forward := h.Forward(rr.resource)
	read := guard.RequirePermission(rr.readScreen)
	write := guard.RequirePermission(rr.writeScreen)

	r.Route(rr.path, func(r chi.Router) {
		r.With(read).Get("/", forward)
		r.With(write).Post("/", forward)
		r.With(read).Get("/{id}", forward)
		r.With(write).Put("/{id}", forward)
		r.With(write).Patch("/{id}", forward)
		r.With(write).Delete("/{id}", forward)
	})
}
