package middleware

import (
	"context"
	"log/slog"
	"strings"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	LocalClientID = "client_id"
	LocalRole     = "role"
)

// KeyResolver maps an API key to the client that owns it.
type KeyResolver interface {
	GetClientID(ctx context.Context, apiKey string) (int64, error)
}

type AuthMiddleware struct {
	keys KeyResolver
	cfg  config.Config
}

func NewAuthMiddleware(cfg config.Config, keys KeyResolver) *AuthMiddleware {
	return &AuthMiddleware{keys: keys, cfg: cfg}
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthMiddleware accepts a session token (cookie or bearer) or an API key
// (X-API-Key header or api_key query) and stores the caller's client id and
// role in the request locals.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Cookies(m.cfg.CookieName)
		}
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key or session",
			})
		}

		if apiKey != "" {
			if m.cfg.AdminAPIKey != "" && utils.KeysEqual(apiKey, m.cfg.AdminAPIKey) {
				c.Locals(LocalClientID, int64(0))
				c.Locals(LocalRole, transfer.RoleAdmin)
				return c.Next()
			}
			clientID, err := m.keys.GetClientID(c.UserContext(), apiKey)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid API key",
				})
			}
			c.Locals(LocalClientID, clientID)
			c.Locals(LocalRole, transfer.RoleClient)
			return c.Next()
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})
			slog.Info("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(LocalClientID, claims.ClientID)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals(LocalRole).(string); role != transfer.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}
		return c.Next()
	}
}
