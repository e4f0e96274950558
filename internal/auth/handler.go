package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"erpnext-bridge/internal/engine"
)

// AuthHandler exposes the OAuth2 flow to the automation host.
type AuthHandler struct {
	provider *Provider
}

func NewAuthHandler(p *Provider) *AuthHandler {
	return &AuthHandler{provider: p}
}

// Authorize handles GET /api/auth/authorize.
func (h *AuthHandler) Authorize(c *fiber.Ctx) error {
	redirectURI := c.Query("redirect_uri")
	if redirectURI == "" {
		return engine.RequiredFieldError("redirect_uri")
	}
	u, state, err := h.provider.AuthorizeURL(redirectURI)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"url": u, "state": state}})
}

// Token handles POST /api/auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var body struct {
		Code        string `json:"code"`
		State       string `json:"state"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Code == "" {
		return engine.RequiredFieldError("code")
	}

	tok, err := h.provider.ExchangeCode(c.UserContext(), body.Code, body.State, body.RedirectURI)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return engine.UnauthorizedError("Invalid or expired state")
		}
		return err
	}
	return c.JSON(fiber.Map{"data": tok})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
		RedirectURI  string `json:"redirect_uri"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	tok, err := h.provider.Refresh(c.UserContext(), body.RefreshToken, body.RedirectURI)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tok})
}

// Test handles GET /api/auth/test.
func (h *AuthHandler) Test(c *fiber.Ctx) error {
	user, err := h.provider.Test(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": user}})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app. Only the
// connection test needs a bearer token.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler, bearer fiber.Handler) {
	auth := app.Group("/api/auth")
	auth.Get("/authorize", h.Authorize)
	auth.Post("/token", h.Token)
	auth.Post("/refresh", h.Refresh)
	auth.Get("/test", bearer, h.Test)
}
