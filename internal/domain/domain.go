// Package domain declares the coaching entities served by this backend and
// wires each one to the engine.
package domain

import (
	"fmt"
	"time"

	"coach-backend/internal/crud"
	"coach-backend/internal/engine"
	"coach-backend/internal/metadata"
	"coach-backend/internal/remote"
)

// Source is where entity reads and writes go. Exactly one of the two is
// set: Actions for the in-process SQL store, Client for an upstream API.
type Source struct {
	Actions *crud.Actions
	Client  *remote.Client
}

func bind[I any](src Source, entity string) engine.Remote[I] {
	if src.Client != nil {
		return remote.Bind[I](src.Client, entity)
	}
	return crud.Bind[I](src.Actions, entity)
}

type Options struct {
	StaleTime time.Duration
	// PersistFilters keeps each entity's list params across restarts.
	// Needs a Storage in the deps.
	PersistFilters bool
}

type Module struct {
	Schools *engine.Hooks[School, SchoolInput]
	Staff   *engine.Hooks[Staff, StaffInput]
	Visits  *engine.Hooks[Visit, VisitInput]
}

// Entities returns the table definitions of every entity, for provisioning
// the SQL store.
func Entities() []*metadata.Entity {
	return []*metadata.Entity{schoolEntity(), staffEntity(), visitEntity()}
}

// New builds the hooks of every entity against src.
func New(src Source, deps engine.Deps, opts Options) (*Module, error) {
	if src.Actions == nil && src.Client == nil {
		return nil, engine.ConfigurationError("domain: no collaborator configured")
	}

	var m Module
	var err error
	if m.Schools, err = engine.New(configFor(schoolEntity(), src, schoolSchema, schoolInputSchema, schoolLabel.Func(), opts), deps); err != nil {
		return nil, fmt.Errorf("schools: %w", err)
	}
	if m.Staff, err = engine.New(configFor(staffEntity(), src, staffSchema, staffInputSchema, staffLabel.Func(), opts), deps); err != nil {
		return nil, fmt.Errorf("staff: %w", err)
	}
	if m.Visits, err = engine.New(configFor(visitEntity(), src, visitSchema, visitInputSchema, visitTitle.Func(), opts), deps); err != nil {
		return nil, fmt.Errorf("visits: %w", err)
	}
	return &m, nil
}

// Services returns the type-erased services for the HTTP layer.
func (m *Module) Services() *engine.Services {
	return engine.NewServices(m.Schools.Service(), m.Staff.Service(), m.Visits.Service())
}
