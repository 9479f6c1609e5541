package metadata

import (
	"fmt"
	"regexp"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entity describes one table served by the in-process collaborator.
type Entity struct {
	Name         string     `json:"name"`
	Table        string     `json:"table"`
	PrimaryKey   PrimaryKey `json:"primary_key"`
	SoftDelete   bool       `json:"soft_delete"`
	Fields       []Field    `json:"fields"`
	SortFields   []string   `json:"sort_fields,omitempty"`
	SearchFields []string   `json:"search_fields,omitempty"`
	DefaultSort  string     `json:"default_sort,omitempty"`
	// Related lists entity types whose cached lists must be refreshed after
	// this entity changes.
	Related []string `json:"related,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// BoolFields returns the names of boolean fields.
func (e *Entity) BoolFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Type == "boolean" {
			names = append(names, f.Name)
		}
	}
	return names
}

// WritableFields returns fields that can be set by the client on create.
// Excludes generated PKs and auto-timestamp fields.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdatableFields returns fields that can be set on update.
func (e *Entity) UpdatableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field || f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// Validate checks that the definition can be turned into a table.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if !identPattern.MatchString(e.Table) {
		return fmt.Errorf("entity %s: invalid table name %q", e.Name, e.Table)
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("entity %s: at least one field is required", e.Name)
	}
	for _, f := range e.Fields {
		if !identPattern.MatchString(f.Name) {
			return fmt.Errorf("entity %s: invalid field name %q", e.Name, f.Name)
		}
	}
	if !e.HasField(e.PrimaryKey.Field) {
		return fmt.Errorf("entity %s: primary key field %q is not declared", e.Name, e.PrimaryKey.Field)
	}
	for _, name := range append(append([]string{}, e.SortFields...), e.SearchFields...) {
		if !e.HasField(name) {
			return fmt.Errorf("entity %s: unknown field %q in sort/search fields", e.Name, name)
		}
	}
	if e.DefaultSort != "" && !e.HasField(e.DefaultSort) {
		return fmt.Errorf("entity %s: unknown default sort field %q", e.Name, e.DefaultSort)
	}
	return nil
}
