package instrument

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"coach-backend/internal/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// eventFilters are the query parameters GET /_events matches exactly.
var eventFilters = []string{"trace_id", "kind", "op", "entity", "record_id", "status"}

// EventHandler serves the recorded events, newest first.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

func (h *EventHandler) RegisterRoutes(app fiber.Router) {
	app.Get("/_events", h.List)
}

// List handles GET /_events. An out-of-range limit falls back to the default.
func (h *EventHandler) List(c *fiber.Ctx) error {
	pb := h.dialect.NewParamBuilder()
	var where []string
	for _, col := range eventFilters {
		if v := c.Query(col); v != "" {
			where = append(where, col+" = "+pb.Add(v))
		}
	}
	limit := c.QueryInt("limit", defaultEventLimit)
	if limit < 1 || limit > maxEventLimit {
		limit = defaultEventLimit
	}

	var q strings.Builder
	q.WriteString("SELECT " + strings.Join(eventColumns[1:], ", ") + " FROM _events")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY recorded_at DESC LIMIT " + pb.Add(limit))

	rows, err := store.QueryRows(c.UserContext(), h.db, q.String(), pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"success": true, "items": rows, "total": len(rows)})
}
