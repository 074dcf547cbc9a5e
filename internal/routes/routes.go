package routes

import (
	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes. The sensitive endpoint
// classes are throttled inside the services, so only the auth middleware and
// role gate live at the routing layer.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	securityHandler *handlers.SecurityHandler,
	enrollmentHandler *handlers.EnrollmentHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
) {
	// Public routes - no authentication required
	router.Post("/auth/login", authHandler.Login)
	router.Post("/auth/login/2fa", authHandler.CompleteTwoFactor)
	router.Post("/auth/security/request-unlock", securityHandler.RequestUnlock)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Get("/auth/security/status", securityHandler.Status)

		r.Post("/auth/2fa/setup", enrollmentHandler.Setup)
		r.Post("/auth/2fa/setup/verify", enrollmentHandler.VerifySetup)
		r.Post("/auth/2fa/disable", enrollmentHandler.Disable)
		r.Post("/auth/2fa/backup-codes", enrollmentHandler.RegenerateBackupCodes)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("admin"))
			r.Post("/admin/identities/{id}/unlock", adminHandler.UnlockIdentity)
		})
	})
}
