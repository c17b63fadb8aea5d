package handlers

import (
	"context"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/monitor"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

type FrequencyReporter interface {
	Report(ctx context.Context, clientID int64) ([]monitor.Evaluation, error)
}

type TargetWriter interface {
	Upsert(ctx context.Context, t *models.FrequencyTarget) (int64, error)
}

type FrequencyHandler struct {
	reports FrequencyReporter
	targets TargetWriter
}

func NewFrequencyHandler(reports FrequencyReporter, targets TargetWriter) *FrequencyHandler {
	return &FrequencyHandler{reports: reports, targets: targets}
}

func (h *FrequencyHandler) Report(c *fiber.Ctx) error {
	clientID, ok := paramID(c, "client_id")
	if !ok || !canAccess(c, clientID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Client not found",
		})
	}

	report, err := h.reports.Report(c.UserContext(), clientID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to build frequency report",
		})
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

// SetTarget creates or replaces the publishing target of a client channel.
func (h *FrequencyHandler) SetTarget(c *fiber.Ctx) error {
	var req transfer.FrequencyTargetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	channel, err := models.ParseChannel(req.Channel)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	period := models.FrequencyPeriod(req.Period)
	if !period.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "period must be daily, weekly or monthly",
		})
	}
	if req.TargetCount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "target_count must be positive",
		})
	}

	clientID := actingClient(c, int64(c.QueryInt("client_id", 0)))
	if clientID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "client_id is required",
		})
	}

	id, err := h.targets.Upsert(c.UserContext(), &models.FrequencyTarget{
		ClientID:    clientID,
		Channel:     channel,
		Period:      period,
		TargetCount: req.TargetCount,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to save frequency target",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id": id,
	})
}
