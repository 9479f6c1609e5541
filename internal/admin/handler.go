// Package admin exposes entity definitions and cache controls for operators.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"coach-backend/internal/cache"
	"coach-backend/internal/engine"
	"coach-backend/internal/store"
)

type Handler struct {
	store    *store.Store
	cache    *cache.Cache
	services *engine.Services
}

func NewHandler(s *store.Store, c *cache.Cache, services *engine.Services) *Handler {
	return &Handler{store: s, cache: c, services: services}
}

func RegisterAdminRoutes(app fiber.Router, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)

	admin.Get("/cache", h.CacheStats)
	admin.Post("/cache/:entity/invalidate", h.InvalidateEntity)
}

// --- Entity Endpoints ---

// ListEntities returns the definitions recorded when tables were
// provisioned. Empty when entities are served by an upstream API.
func (h *Handler) ListEntities(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT name, table_name, definition, updated_at FROM _entities ORDER BY name")
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	for _, row := range rows {
		decodeDefinition(row)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"success": true, "data": rows})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(c.Context(), h.store.DB,
		"SELECT name, table_name, definition, updated_at FROM _entities WHERE name = "+pb.Add(name), pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return &engine.AppError{
			Kind:    engine.KindNotFound,
			Code:    "NOT_FOUND",
			Status:  fiber.StatusNotFound,
			Message: "Entity not found: " + name,
		}
	}
	if err != nil {
		return fmt.Errorf("get entity %s: %w", name, err)
	}
	decodeDefinition(row)
	return c.JSON(fiber.Map{"success": true, "data": row})
}

// decodeDefinition replaces the stored JSON text with the decoded object.
func decodeDefinition(row map[string]any) {
	var raw []byte
	switch v := row["definition"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return
	}
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err == nil {
		row["definition"] = def
	}
}

// --- Cache Endpoints ---

func (h *Handler) CacheStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":  true,
		"entries":  h.cache.Len(),
		"entities": h.services.Names(),
	})
}

// InvalidateEntity marks every cached list of one entity stale, for data
// changed outside this service.
func (h *Handler) InvalidateEntity(c *fiber.Ctx) error {
	svc, err := h.services.Get(c.Params("entity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "invalidated": svc.Invalidate()})
}
