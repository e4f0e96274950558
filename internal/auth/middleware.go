package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"erpnext-bridge/internal/engine"
	"erpnext-bridge/internal/frappe"
)

// BearerToken returns a Fiber middleware that takes the ERPNext access
// token from the Authorization header and places it on the request context,
// so every backend call made for the request carries it.
func BearerToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing access token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		c.SetUserContext(frappe.WithAccessToken(c.UserContext(), strings.TrimSpace(parts[1])))
		return c.Next()
	}
}
