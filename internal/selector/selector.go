// Package selector builds labels and pick-list options for records whose
// shape is only known at runtime.
package selector

import (
	"fmt"
	"strings"

	"coach-backend/internal/document"
)

// labelFields are tried in order by GetLabel.
var labelFields = []string{
	"name", "title", "label", "displayName", "fullName", "schoolName", "staffName", "email",
}

// searchFields are concatenated by GetSearchableText.
var searchFields = []string{
	"name", "title", "label", "displayName", "fullName", "firstName", "lastName",
	"schoolName", "staffName", "description", "email", "code", "city",
}

var idFields = []string{"_id", "id"}

// GetLabel returns the first non-empty label field of item, falling back to
// its identifier and then to the empty string.
func GetLabel(item map[string]any) string {
	for _, f := range labelFields {
		if s := text(item[f]); s != "" {
			return s
		}
	}
	return GetID(item)
}

// GetID returns the stringified identifier of item, or "".
func GetID(item map[string]any) string {
	for _, f := range idFields {
		if s := text(item[f]); s != "" {
			return s
		}
	}
	return ""
}

// GetSearchableText joins the human-readable fields of item in lower case.
func GetSearchableText(item map[string]any) string {
	var parts []string
	for _, f := range searchFields {
		if s := text(item[f]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// text stringifies scalars; maps, slices and nil produce "".
func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case map[string]any, []any:
		return ""
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(val)
	}
	// Timestamps and identifiers render the way the rest of the record does.
	if s, ok := document.Normalize(v).(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}

// Option is one entry of a reference pick-list.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options builds pick-list options from raw records, skipping records
// without an identifier.
func Options(items []map[string]any) []Option {
	out := make([]Option, 0, len(items))
	for _, item := range items {
		id := GetID(item)
		if id == "" {
			continue
		}
		out = append(out, Option{Value: id, Label: GetLabel(item)})
	}
	return out
}

// OptionsOf builds options from typed entities via their document form.
func OptionsOf[T any](items []T) []Option {
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := document.Normalize(item).(map[string]any); ok {
			records = append(records, m)
		}
	}
	return Options(records)
}

// Filter keeps the records whose searchable text contains every word of search.
func Filter(items []map[string]any, search string) []map[string]any {
	words := strings.Fields(strings.ToLower(search))
	if len(words) == 0 {
		return items
	}
	var out []map[string]any
	for _, item := range items {
		haystack := GetSearchableText(item)
		matched := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, item)
		}
	}
	return out
}
