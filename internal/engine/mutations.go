package engine

import (
	"context"
	"log"
	"strings"

	"coach-backend/internal/cache"
	"coach-backend/internal/document"
	"coach-backend/internal/instrument"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

// MutationResult is the outcome of create, update or delete. Data may be
// nil on success when the collaborator echoes nothing usable back.
type MutationResult[T any] struct {
	Success bool      `json:"success"`
	Data    *T        `json:"data,omitempty"`
	Error   *AppError `json:"error,omitempty"`
}

// Mutations validates inputs before any remote call and invalidates the
// cache after every successful write.
type Mutations[T, I any] struct {
	h *Hooks[T, I]
}

func (h *Hooks[T, I]) Mutations() *Mutations[T, I] {
	return &Mutations[T, I]{h: h}
}

func failed[T any](appErr *AppError) MutationResult[T] {
	return MutationResult[T]{Error: appErr}
}

// Create validates input and creates a record.
func (m *Mutations[T, I]) Create(ctx context.Context, input I) MutationResult[T] {
	v, err := schema.ValidateStrict(m.h.cfg.InputSchema, input)
	if err != nil {
		return failed[T](AsAppError(err))
	}
	return m.create(ctx, v)
}

func (m *Mutations[T, I]) create(ctx context.Context, input I) MutationResult[T] {
	ctx, span := instrument.Start(ctx, "engine.create")
	defer span.End()
	span.Entity(m.h.cfg.Entity, "")

	raw, err := m.h.cfg.Remote.Create(ctx, input)
	res := m.outcome(raw, err)
	if res.Error != nil {
		span.Fail(res.Error)
		return res
	}
	m.invalidate(ctx, "create", "")
	return res
}

// Update validates the keys present in patch and updates the record.
// Keys the input schema does not know are dropped.
func (m *Mutations[T, I]) Update(ctx context.Context, id string, patch map[string]any) MutationResult[T] {
	id = strings.TrimSpace(id)
	if id == "" {
		return failed[T](ConfigurationError("%s: update requires an id", m.h.cfg.Entity))
	}
	clean := m.h.cfg.InputSchema.Strip(patch)
	if len(clean) == 0 {
		return failed[T](&AppError{
			Kind:    KindValidation,
			Code:    "VALIDATION_FAILED",
			Status:  422,
			Message: "No updatable fields in payload",
		})
	}
	if _, err := schema.ValidatePartialStrict(m.h.cfg.InputSchema, clean); err != nil {
		return failed[T](AsAppError(err))
	}

	ctx, span := instrument.Start(ctx, "engine.update")
	defer span.End()
	span.Entity(m.h.cfg.Entity, id)

	raw, err := m.h.cfg.Remote.Update(ctx, id, clean)
	res := m.outcome(raw, err)
	if res.Error != nil {
		span.Fail(res.Error)
		return res
	}
	m.invalidate(ctx, "update", id)
	return res
}

// Delete removes the record.
func (m *Mutations[T, I]) Delete(ctx context.Context, id string) MutationResult[T] {
	id = strings.TrimSpace(id)
	if id == "" {
		return failed[T](ConfigurationError("%s: delete requires an id", m.h.cfg.Entity))
	}

	ctx, span := instrument.Start(ctx, "engine.delete")
	defer span.End()
	span.Entity(m.h.cfg.Entity, id)

	raw, err := m.h.cfg.Remote.Delete(ctx, id)
	if err != nil {
		span.Fail(err)
		return failed[T](AsAppError(err))
	}
	// Deletes often answer with no body or {success:true}; only an explicit
	// failure counts.
	if msg, bad := explicitFailure(raw); bad {
		err := EnvelopeError(msg)
		span.Fail(err)
		return failed[T](err)
	}
	res := MutationResult[T]{Success: true}
	if ent := m.h.norm.ToEntity(raw); ent.Success && schema.MatchesSchema(m.h.cfg.FullSchema, ent.Data) {
		v, _ := schema.ValidateStrict(m.h.cfg.FullSchema, ent.Data)
		res.Data = &v
	}
	m.invalidate(ctx, "delete", id)
	return res
}

// outcome turns collaborator output into a result. The echoed record is
// validated leniently: the write already happened.
func (m *Mutations[T, I]) outcome(raw any, err error) MutationResult[T] {
	if err != nil {
		return failed[T](AsAppError(err))
	}
	ent := m.h.norm.ToEntity(raw)
	if !ent.Success {
		return failed[T](EnvelopeError(ent.Error))
	}
	res := MutationResult[T]{Success: true}
	if v := schema.ValidateSafe(m.h.cfg.FullSchema, ent.Data); v != nil {
		out := transform.One(*v, m.h.cfg.Transform)
		res.Data = &out
	}
	return res
}

// invalidate refreshes everything a successful write may have changed:
// all lists of the entity, the record itself and the lists of related
// entities.
func (m *Mutations[T, I]) invalidate(ctx context.Context, action, id string) {
	c := m.h.cache
	entity := m.h.cfg.Entity

	lists := c.Invalidate(cache.Lists(entity))
	details := 0
	switch action {
	case "update":
		details = c.Invalidate(cache.Detail(entity, id))
	case "delete":
		details = c.Remove(cache.Detail(entity, id))
	}
	related := 0
	for _, rel := range m.h.cfg.RelatedEntities {
		related += c.Invalidate(cache.Lists(rel))
	}

	instrument.Record(ctx, action, entity, id, map[string]any{
		"lists":   lists,
		"details": details,
		"related": related,
	})
	if lists+details+related > 0 {
		log.Printf("Invalidated %s after %s: %d lists, %d details, %d related lists", entity, action, lists, details, related)
	}
}

func explicitFailure(raw any) (string, bool) {
	m, ok := document.Normalize(raw).(map[string]any)
	if !ok {
		return "", false
	}
	if s, present := m["success"].(bool); !present || s {
		return "", false
	}
	for _, k := range []string{"error", "message"} {
		if msg, ok := m[k].(string); ok && msg != "" {
			return msg, true
		}
	}
	return "delete failed", true
}
