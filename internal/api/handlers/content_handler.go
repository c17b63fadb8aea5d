package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/publish"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

// Publisher is the scheduling surface the content endpoints drive.
type Publisher interface {
	Schedule(ctx context.Context, id int64, fireAt *time.Time) (*models.PublishJob, error)
	Cancel(ctx context.Context, id int64) error
	PublishNow(ctx context.Context, id int64) (*publish.RunResult, error)
}

type ContentHandler struct {
	s service.ContentService
	p Publisher
}

func NewContentHandler(service service.ContentService, publisher Publisher) *ContentHandler {
	return &ContentHandler{s: service, p: publisher}
}

func parseFireAt(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func contentError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrContentNotFound), errors.Is(err, publish.ErrItemNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Content item not found",
		})
	case errors.Is(err, repository.ErrStatusConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	slog.Error(fallback, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fallback,
	})
}

// load fetches an item and rejects callers who do not own it.
func (h *ContentHandler) load(c *fiber.Ctx) (*models.ContentItem, error) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid content item id",
		})
	}
	item, err := h.s.Get(c.UserContext(), id)
	if err != nil {
		return nil, contentError(c, err, "Unable to load content item")
	}
	if !canAccess(c, item.ClientID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Content item not found",
		})
	}
	return item, nil
}

// CreateContent stores a content item from a multipart form. When fire_at
// is present the item is scheduled straight away.
func (h *ContentHandler) CreateContent(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	requested := int64(c.QueryInt("client_id", 0))
	if requested == 0 {
		requested = parseInt64(c.FormValue("client_id"))
	}
	clientID := actingClient(c, requested)

	fireAt, err := parseFireAt(c.FormValue("fire_at"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "fire_at must be RFC 3339",
		})
	}

	id, err := h.s.Create(c.UserContext(), clientID, &transfer.ContentCreation{
		Title:     c.FormValue("title"),
		Body:      c.FormValue("body"),
		Permalink: c.FormValue("permalink"),
		DueDate:   c.FormValue("due_date"),
		Labels:    c.FormValue("labels"),
		Channels:  c.FormValue("channels"),
		Overrides: c.FormValue("overrides"),
	}, form.File["files"])
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	resp := fiber.Map{"id": id}
	if fireAt != nil {
		job, err := h.p.Schedule(c.UserContext(), id, fireAt)
		if err != nil {
			return contentError(c, err, "Content saved but could not be scheduled")
		}
		resp["job"] = job
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *ContentHandler) ListContent(c *fiber.Ctx) error {
	clientID := actingClient(c, int64(c.QueryInt("client_id", 0)))

	items, err := h.s.List(c.UserContext(), clientID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list content items",
		})
	}

	return c.Status(fiber.StatusOK).JSON(items)
}

func (h *ContentHandler) GetContent(c *fiber.Ctx) error {
	item, err := h.load(c)
	if item == nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

func (h *ContentHandler) Schedule(c *fiber.Ctx) error {
	item, err := h.load(c)
	if item == nil {
		return err
	}

	var req transfer.ScheduleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to parse body",
			})
		}
	}
	var fireAt *time.Time
	if req.FireAt != nil {
		fireAt, err = parseFireAt(*req.FireAt)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "fire_at must be RFC 3339",
			})
		}
	}

	job, err := h.p.Schedule(c.UserContext(), item.ID, fireAt)
	if err != nil {
		return contentError(c, err, "Error scheduling content item")
	}

	return c.Status(fiber.StatusOK).JSON(job)
}

func (h *ContentHandler) Unschedule(c *fiber.Ctx) error {
	item, err := h.load(c)
	if item == nil {
		return err
	}

	if err := h.p.Cancel(c.UserContext(), item.ID); err != nil {
		return contentError(c, err, "Error cancelling schedule")
	}

	return c.SendStatus(fiber.StatusOK)
}

// PublishNow runs the dispatcher synchronously and returns the per channel
// outcome.
func (h *ContentHandler) PublishNow(c *fiber.Ctx) error {
	item, err := h.load(c)
	if item == nil {
		return err
	}

	result, err := h.p.PublishNow(c.UserContext(), item.ID)
	if err != nil {
		return contentError(c, err, "Error publishing content item")
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *ContentHandler) Status(c *fiber.Ctx) error {
	item, err := h.load(c)
	if item == nil {
		return err
	}

	report, err := h.s.Status(c.UserContext(), item.ID)
	if err != nil {
		return contentError(c, err, "Unable to load status")
	}

	return c.Status(fiber.StatusOK).JSON(report)
}
