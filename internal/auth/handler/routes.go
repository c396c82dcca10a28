package handler

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	app.Post("api/v1/register/begin", h.BeginRegister)
	app.Post("api/v1/register/finish", h.FinishRegister)
	app.Post("api/v1/login/begin", h.BeginLogin)
	app.Post("api/v1/login/finish", h.FinishLogin)
	app.Post("api/v1/refresh", h.Refresh)
	app.Delete("api/v1/session", h.Logout)
	app.Get("api/v1/health", h.Health)

	// Endpoints requiring a valid access token
	protected := app.Group("/api/v1", h.RequireAuth)
	protected.Get("/me", h.Me)
	protected.Delete("/credentials/:id", h.RevokeCredential)
}
