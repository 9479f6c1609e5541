// Package api serves the entity services over HTTP.
package api

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"coach-backend/internal/engine"
)

type Handler struct {
	services *engine.Services
}

func NewHandler(services *engine.Services) *Handler {
	return &Handler{services: services}
}

// RegisterRoutes mounts the entity routes under /api. The options route is
// registered before /:entity/:id so it is not read as an id.
func RegisterRoutes(app fiber.Router, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/_entities", h.Entities)
	api.Get("/:entity", h.List)
	api.Get("/:entity/options", h.Options)
	api.Get("/:entity/:id", h.GetByID)
	api.Post("/:entity", h.Create)
	api.Put("/:entity/:id", h.Update)
	api.Patch("/:entity/:id", h.Update)
	api.Delete("/:entity/:id", h.Delete)
}

// Entities handles GET /api/_entities
func (h *Handler) Entities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "items": h.services.Names()})
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	res := svc.ListAny(c.UserContext(), ParseListParams(c))
	if res.Error != nil {
		return res.Error
	}
	body := fiber.Map{
		"success":    true,
		"items":      res.Items,
		"total":      res.Total,
		"page":       res.Page,
		"limit":      res.Limit,
		"totalPages": res.TotalPages,
		"hasMore":    res.HasMore,
		"empty":      res.Total == 0,
		"stale":      res.IsStale,
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	return c.JSON(body)
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	res := svc.ByIDAny(c.UserContext(), c.Params("id"))
	switch {
	case res.Error != nil:
		return res.Error
	case res.Disabled:
		return engine.ConfigurationError("an id is required")
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data, "stale": res.IsStale})
}

// Create handles POST /api/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	res := svc.CreateAny(c.UserContext(), body)
	if res.Error != nil {
		return res.Error
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": res.Data})
}

// Update handles PUT and PATCH /api/:entity/:id. Both are partial.
func (h *Handler) Update(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	res := svc.UpdateAny(c.UserContext(), c.Params("id"), body)
	if res.Error != nil {
		return res.Error
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	res := svc.DeleteAny(c.UserContext(), c.Params("id"))
	if res.Error != nil {
		return res.Error
	}
	body := fiber.Map{"success": true}
	if res.Data != nil {
		body["data"] = res.Data
	}
	return c.JSON(body)
}

// Options handles GET /api/:entity/options?search=&limit=
func (h *Handler) Options(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	opts, appErr := svc.Options(c.UserContext(), c.Query("search"), c.QueryInt("limit", 0))
	if appErr != nil {
		return appErr
	}
	return c.JSON(fiber.Map{"success": true, "items": opts})
}

func parseBody(c *fiber.Ctx) (map[string]any, error) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil || body == nil {
		return nil, &engine.AppError{
			Kind:    engine.KindValidation,
			Code:    "INVALID_PAYLOAD",
			Status:  fiber.StatusBadRequest,
			Message: "Invalid JSON body",
		}
	}
	return body, nil
}

// ErrorHandler renders AppErrors with their status and everything else as
// a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.NewErrorResponse(appErr))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(engine.ErrorResponse{Code: "HTTP_ERROR", Error: fiberErr.Message})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(engine.ErrorResponse{
		Code:  "INTERNAL_ERROR",
		Error: "Internal server error",
	})
}
