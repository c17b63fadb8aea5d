package handlers

import (
	"context"
	"errors"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/ratelimit"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/gofiber/fiber/v2"
)

type RetryQueue interface {
	List(ctx context.Context, limit int) ([]*models.RetryItem, error)
	RetryNow(ctx context.Context, id string) error
}

type UsageReader interface {
	Usage(ctx context.Context, platform string) (*ratelimit.Usage, error)
}

// OpsHandler exposes the retry queue and rate limit state to operators.
type OpsHandler struct {
	retries RetryQueue
	limits  UsageReader
}

func NewOpsHandler(retries RetryQueue, limits UsageReader) *OpsHandler {
	return &OpsHandler{retries: retries, limits: limits}
}

func (h *OpsHandler) ListRetries(c *fiber.Ctx) error {
	items, err := h.retries.List(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list retries",
		})
	}
	return c.Status(fiber.StatusOK).JSON(items)
}

// RunRetry executes one queued retry now, outside its schedule.
func (h *OpsHandler) RunRetry(c *fiber.Ctx) error {
	err := h.retries.RetryNow(c.UserContext(), c.Params("id"))
	if err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Retry succeeded",
		})
	}

	var perr *retry.Error
	switch {
	case errors.Is(err, retry.ErrItemNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, retry.ErrItemBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.As(err, &perr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": perr.Message,
			"code":  perr.Code,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Unable to run retry",
	})
}

func (h *OpsHandler) RateLimitUsage(c *fiber.Ctx) error {
	usage, err := h.limits.Usage(c.UserContext(), c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to read rate limits",
		})
	}
	return c.Status(fiber.StatusOK).JSON(usage)
}
