package http

import (
	"net/http"

	"github.com/Zerokoinhub/app-backend/internal/application/device"
	"github.com/Zerokoinhub/app-backend/internal/application/notification"
	"github.com/Zerokoinhub/app-backend/internal/application/scheduler"
	"github.com/Zerokoinhub/app-backend/internal/application/user"
	"github.com/Zerokoinhub/app-backend/internal/config"
	"github.com/Zerokoinhub/app-backend/internal/domain"
	jwtinfra "github.com/Zerokoinhub/app-backend/internal/infrastructure/jwt"
	"github.com/Zerokoinhub/app-backend/internal/transport/http/handler"
	appmiddleware "github.com/Zerokoinhub/app-backend/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         UserRepository
	DeviceRepo       DeviceRepository
	NotificationRepo NotificationRepository
	S3Store          ObjectStore
	JWTProvider      *jwtinfra.Provider
	// Runtimes are the background scanners exposed on the admin surface.
	Runtimes []*scheduler.Runtime
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:       deps.UserRepo,
		JWTProvider:    deps.JWTProvider,
		UnlockInterval: cfg.SessionUnlockInterval,
	})
	deviceSvc := device.NewService(device.ServiceDeps{DeviceRepo: deps.DeviceRepo})
	notifSvc := notification.NewService(notification.ServiceDeps{
		NotificationRepo: deps.NotificationRepo,
		ImageStore:       deps.S3Store,
	})

	healthH := handler.NewHealthHandler()
	userH := handler.NewUserHandler(userSvc)
	deviceH := handler.NewDeviceHandler(deviceSvc)
	notifH := handler.NewNotificationHandler(notifSvc)
	schedH := handler.NewSchedulerHandler(deps.Runtimes...)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/users/login", userH.Login)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/users/{id}", userH.Get)
			r.Put("/users/{id}", userH.Update)
			r.Post("/sessions/{number}/claim", userH.ClaimSession)

			r.Post("/devices", deviceH.Register)
			r.Get("/devices", deviceH.List)
			r.Delete("/devices/{id}", deviceH.Deactivate)

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/{id}", notifH.Get)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/users", userH.List)
				r.Delete("/users/{id}", userH.Delete)
				r.Post("/users/{id}/sessions/reset", userH.ResetSessions)

				r.Post("/notifications", notifH.Create)
				r.Put("/notifications/{id}/sent", notifH.MarkSent)
				r.Delete("/notifications/{id}", notifH.Delete)

				r.Get("/admin/schedulers", schedH.List)
				r.Post("/admin/schedulers/{name}/trigger", schedH.Trigger)
			})
		})
	})

	return r
}
