package metadata

import "slices"

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Auto      string   `json:"auto,omitempty"` // "create" or "update"
}

// IsAuto returns true if the field is managed by the collaborator (timestamps).
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// Allows reports whether v satisfies the field's enum, if it has one.
func (f Field) Allows(v any) bool {
	if len(f.Enum) == 0 || v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && slices.Contains(f.Enum, s)
}
