package handlers

import (
	"errors"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

// ConnectAccount stores the credentials of a social account. Tokens are
// encrypted before they reach the database.
func (h *AccountHandler) ConnectAccount(c *fiber.Ctx) error {
	var req transfer.AccountConnection
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}
	req.ClientID = actingClient(c, req.ClientID)

	id, err := h.s.Connect(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedPlatform) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to connect account",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": id,
	})
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	clientID := actingClient(c, int64(c.QueryInt("client_id", 0)))

	accounts, err := h.s.List(c.UserContext(), clientID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}
