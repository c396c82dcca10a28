package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localsUserID = "userID"

func bearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

// RequireAuth verifies the bearer access token and stores its subject in the
// request locals.
func (h *AuthHandler) RequireAuth(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
	}

	userID, err := h.authService.VerifyAccess(c.Context(), token)
	if err != nil {
		return fail(c, err)
	}

	c.Locals(localsUserID, userID)
	return c.Next()
}
