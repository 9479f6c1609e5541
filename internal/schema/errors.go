package schema

import (
	"fmt"
	"strings"
)

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Tag     string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned by the strict validators.
type ValidationError struct {
	Schema string
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: validation failed: %v", e.Schema, e.Err)
	}
	return fmt.Sprintf("%s: validation failed: %s", e.Schema, e.Diff())
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Diff renders the field errors as "field: message; field: message".
func (e *ValidationError) Diff() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// FieldMap groups messages by field, like a form error payload.
func (e *ValidationError) FieldMap() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Message
		}
	}
	return out
}
