package handlers

import (
	"errors"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

type ApiKeyHandler struct {
	s service.ApiKeyService
}

func NewApiKeyHandler(service service.ApiKeyService) *ApiKeyHandler {
	return &ApiKeyHandler{s: service}
}

// CreateClient registers a client and returns its first API key. The key is
// shown once.
func (h *ApiKeyHandler) CreateClient(c *fiber.Ctx) error {
	var req transfer.ClientCreation
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	client, key, err := h.s.CreateClient(c.UserContext(), req.Name)
	if err != nil {
		if errors.Is(err, service.ErrClientName) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to create client",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"client":  client,
		"api_key": key,
	})
}

func (h *ApiKeyHandler) CreateApiKey(c *fiber.Ctx) error {
	clientID := actingClient(c, int64(c.QueryInt("client_id", 0)))
	if clientID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "client_id is required",
		})
	}

	key, err := h.s.Create(c.UserContext(), clientID)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrKeyLimit):
			status = fiber.StatusConflict
		case errors.Is(err, service.ErrClientAbsent):
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error": "Unable to create API Key",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key": key,
	})
}

func (h *ApiKeyHandler) ListKeys(c *fiber.Ctx) error {
	clientID := actingClient(c, int64(c.QueryInt("client_id", 0)))

	keys, err := h.s.List(c.UserContext(), clientID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list api keys",
		})
	}

	return c.Status(fiber.StatusOK).JSON(keys)
}

func (h *ApiKeyHandler) RemoveAPIKey(c *fiber.Ctx) error {
	keyID, ok := paramID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid key id",
		})
	}
	clientID := actingClient(c, int64(c.QueryInt("client_id", 0)))

	err := h.s.RemoveAPIKey(c.UserContext(), clientID, keyID)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to delete API Key",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
