package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/artem13815/accounts/api/http/handlers"
)

// Register wires all HTTP routes onto given Fiber app.
func Register(app *fiber.App, auth *handlers.AuthHandler, users *handlers.UsersHandler, health *handlers.HealthHandler, authMW fiber.Handler) {
	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Health and readiness endpoints for probes/monitoring
	v1.Get("/health", health.Health)
	v1.Get("/ready", health.Ready)

	a := v1.Group("/auth")
	a.Post("/login", auth.Login)

	// Invitation-based registration flow
	v1.Get("/verify", users.VerifyInvite)
	v1.Post("/register", users.Register)
	v1.Post("/confirm/pin", users.ConfirmPin)

	// Authenticated surface
	v1.Get("/profile", authMW, users.Profile)
	v1.Post("/profile", authMW, users.UpdateProfile)
	v1.Post("/invite", authMW, users.Invite)
}
