package handlers

import (
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	s   service.ApiKeyService
	cfg config.Config
}

func NewAuthHandler(cfg config.Config, service service.ApiKeyService) *AuthHandler {
	return &AuthHandler{s: service, cfg: cfg}
}

// Token trades an API key for a session token, returned in the body and
// set as a cookie.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req transfer.TokenRequest
	if err := c.BodyParser(&req); err != nil || req.ApiKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "api_key is required",
		})
	}

	var (
		clientID int64
		role     = transfer.RoleClient
	)
	if h.cfg.AdminAPIKey != "" && utils.KeysEqual(req.ApiKey, h.cfg.AdminAPIKey) {
		role = transfer.RoleAdmin
	} else {
		id, err := h.s.GetClientID(c.UserContext(), req.ApiKey)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}
		clientID = id
	}

	token, err := utils.GenerateToken(h.cfg.SecretKey, clientID, role, h.cfg.SessionTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	expires := time.Now().Add(h.cfg.SessionTTL)
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   false,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  expires,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"token":      token,
		"role":       role,
		"client_id":  clientID,
		"expires_at": expires,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:   h.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.SendStatus(fiber.StatusNoContent)
}
