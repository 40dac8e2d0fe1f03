package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"caregiver-hub/internal/handler"
	"caregiver-hub/internal/middleware"
)

type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type Handlers struct {
	Auth    *handler.AuthHandler
	Patient *handler.PatientHandler
	Device  *handler.DeviceHandler
	User    *handler.UserHandler
	Audit   *handler.AuditHandler
	Health  *handler.HealthHandler
	Docs    *handler.DocsHandler
}

func New(opts Options, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health.Health)
	if h.Docs != nil {
		r.Get("/openapi.yaml", h.Docs.OpenAPI)
		r.Get("/swagger", h.Docs.SwaggerUI)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(opts.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/patient-login", h.Auth.PatientLogin)
			auth.Post("/device-login", h.Auth.DeviceLogin)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/patient-refresh", h.Auth.PatientRefresh)

			auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)

			auth.Group(func(user chi.Router) {
				user.Use(authMiddleware.RequireAuth, authMiddleware.RequireUser)
				user.Post("/logout", h.Auth.Logout)
				user.Get("/sessions", h.Auth.ListSessions)
				user.Delete("/sessions", h.Auth.RevokeAllSessions)
				user.Delete("/sessions/{sessionId}", h.Auth.RevokeSession)
			})
		})

		api.Group(func(caregiver chi.Router) {
			caregiver.Use(authMiddleware.RequireAuth, authMiddleware.RequireUser)

			caregiver.Post("/patients", h.Patient.Create)
			caregiver.Get("/patients/{patientId}", h.Patient.Get)
			caregiver.Post("/patients/{patientId}/pairing-codes", h.Patient.CreatePairingCode)
			caregiver.Get("/patients/{patientId}/pairing-codes", h.Patient.ListPairingCodes)
			caregiver.Delete("/pairing-codes/{codeId}", h.Patient.RevokePairingCode)

			caregiver.Get("/patients/{patientId}/devices", h.Device.List)
			caregiver.Put("/devices/{deviceId}", h.Device.Update)
			caregiver.Delete("/devices/{deviceId}", h.Device.Delete)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth, authMiddleware.RequireAdmin)
			admin.Get("/users", h.User.List)
			admin.Post("/users", h.User.Create)
			admin.Get("/audit", h.Audit.List)
		})
	})

	return r
}
