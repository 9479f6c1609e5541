// Package response reconciles the many envelope shapes collaborators return
// into one collection envelope and one entity envelope.
package response

import (
	"encoding/json"
	"fmt"
	"sort"

	"coach-backend/internal/document"
)

// Collection is the canonical list envelope.
type Collection[T any] struct {
	Items   []T    `json:"items"`
	Total   int    `json:"total"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Entity is the canonical single-record envelope. When Success is false
// Data holds the zero value.
type Entity[T any] struct {
	Data    T      `json:"data"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Shape tags the raw collaborator output. The order of the constants is
// the order the collection decision table tries them.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeArray
	ShapeItems
	ShapeFailure
	ShapeSingleList
	ShapeEnvelope
	ShapeObject
	ShapeUnsupported
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeArray:
		return "array"
	case ShapeItems:
		return "items"
	case ShapeFailure:
		return "failure"
	case ShapeSingleList:
		return "single-list"
	case ShapeEnvelope:
		return "envelope"
	case ShapeObject:
		return "object"
	default:
		return "unsupported"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Shape Shape
	// ListField names the lone array property for ShapeSingleList.
	ListField string
}

// Normalizer runs document normalization before classifying.
type Normalizer struct {
	docs *document.Normalizer
}

func New(docs *document.Normalizer) *Normalizer {
	if docs == nil {
		docs = document.New(document.TimeISO)
	}
	return &Normalizer{docs: docs}
}

var defaultNormalizer = New(nil)

// ToCollection runs the default normalizer.
func ToCollection(raw any) Collection[any] { return defaultNormalizer.ToCollection(raw) }

// ToEntity runs the default normalizer.
func ToEntity(raw any) Entity[any] { return defaultNormalizer.ToEntity(raw) }

// Classify inspects already-normalized data:
//
//  1. nil                                  -> ShapeEmpty
//  2. array                                -> ShapeArray
//  3. object with an "items" array         -> ShapeItems
//  4. object with success=false           -> ShapeFailure
//  5. object with exactly one array field  -> ShapeSingleList
//  6. object with an object "data" field   -> ShapeEnvelope
//  7. any other object                     -> ShapeObject
//  8. anything else                        -> ShapeUnsupported
func Classify(v any) Classification {
	switch val := v.(type) {
	case nil:
		return Classification{Shape: ShapeEmpty}
	case []any:
		return Classification{Shape: ShapeArray}
	case map[string]any:
		if _, ok := val["items"].([]any); ok {
			return Classification{Shape: ShapeItems}
		}
		// Failure envelopes may carry detail lists; the message wins.
		if ok, present := val["success"].(bool); present && !ok {
			return Classification{Shape: ShapeFailure}
		}
		arrays := arrayFields(val)
		if len(arrays) == 1 {
			return Classification{Shape: ShapeSingleList, ListField: arrays[0]}
		}
		if _, ok := val["data"].(map[string]any); ok && len(arrays) == 0 {
			return Classification{Shape: ShapeEnvelope}
		}
		return Classification{Shape: ShapeObject}
	default:
		return Classification{Shape: ShapeUnsupported}
	}
}

// ToCollection maps raw collaborator output onto a Collection. It is total:
// every input yields an envelope, never a panic.
func (n *Normalizer) ToCollection(raw any) (out Collection[any]) {
	defer func() {
		if r := recover(); r != nil {
			out = Collection[any]{Items: []any{}, Message: fmt.Sprintf("unreadable response: %v", r)}
		}
	}()

	v := n.docs.Normalize(raw)
	c := Classify(v)
	switch c.Shape {
	case ShapeEmpty:
		return Collection[any]{Items: []any{}, Message: "empty response"}
	case ShapeArray:
		items := v.([]any)
		return Collection[any]{Items: items, Total: len(items), Success: true}
	case ShapeItems:
		m := v.(map[string]any)
		items := m["items"].([]any)
		return Collection[any]{
			Items:   items,
			Total:   totalOf(m, len(items)),
			Success: successOf(m),
			Message: messageOf(m),
		}
	case ShapeFailure:
		m := v.(map[string]any)
		msg := messageOf(m)
		if msg == "" {
			msg = "request failed"
		}
		return Collection[any]{Items: []any{}, Message: msg}
	case ShapeSingleList:
		m := v.(map[string]any)
		items := m[c.ListField].([]any)
		return Collection[any]{
			Items:   items,
			Total:   totalOf(m, len(items)),
			Success: successOf(m),
			Message: fmt.Sprintf("auto-converted %q to items", c.ListField),
		}
	case ShapeEnvelope:
		m := v.(map[string]any)
		return Collection[any]{Items: []any{m["data"]}, Total: 1, Success: successOf(m)}
	case ShapeObject:
		return Collection[any]{Items: []any{v}, Total: 1, Success: true}
	default:
		return Collection[any]{Items: []any{}, Message: fmt.Sprintf("unsupported response type %T", raw)}
	}
}

// ToEntity maps raw collaborator output onto an Entity envelope:
//
//   - nil                       -> failure
//   - object with "data"        -> data, honoring success/error
//   - object with "items" array -> first item, failure when empty
//   - array                     -> first element, failure when empty
//   - object with success=false -> failure carrying its message
//   - any other object          -> the object itself
//   - anything else             -> failure naming the type
func (n *Normalizer) ToEntity(raw any) (out Entity[any]) {
	defer func() {
		if r := recover(); r != nil {
			out = Entity[any]{Error: fmt.Sprintf("unreadable response: %v", r)}
		}
	}()

	v := n.docs.Normalize(raw)
	switch val := v.(type) {
	case nil:
		return Entity[any]{Error: "empty response"}
	case []any:
		if len(val) == 0 {
			return Entity[any]{Error: "not found"}
		}
		return Entity[any]{Data: val[0], Success: true}
	case map[string]any:
		if data, ok := val["data"]; ok {
			if !successOf(val) {
				return Entity[any]{Error: failureMessage(val)}
			}
			if data == nil {
				return Entity[any]{Error: "not found"}
			}
			return Entity[any]{Data: data, Success: true}
		}
		if items, ok := val["items"].([]any); ok {
			if len(items) == 0 {
				return Entity[any]{Error: "not found"}
			}
			return Entity[any]{Data: items[0], Success: true}
		}
		if !successOf(val) {
			return Entity[any]{Error: failureMessage(val)}
		}
		return Entity[any]{Data: val, Success: true}
	default:
		return Entity[any]{Error: fmt.Sprintf("unsupported response type %T", raw)}
	}
}

// arrayFields lists the keys holding arrays, sorted for determinism.
func arrayFields(m map[string]any) []string {
	var keys []string
	for k, v := range m {
		if _, ok := v.([]any); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func totalOf(m map[string]any, fallback int) int {
	switch t := m["total"].(type) {
	case int:
		if t >= 0 {
			return t
		}
	case int64:
		if t >= 0 {
			return int(t)
		}
	case float64:
		if t >= 0 {
			return int(t)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil && n >= 0 {
			return int(n)
		}
	}
	return fallback
}

func successOf(m map[string]any) bool {
	if ok, present := m["success"].(bool); present {
		return ok
	}
	return true
}

func messageOf(m map[string]any) string {
	if s, ok := m["message"].(string); ok {
		return s
	}
	if s, ok := m["error"].(string); ok {
		return s
	}
	return ""
}

func failureMessage(m map[string]any) string {
	if s, ok := m["error"].(string); ok && s != "" {
		return s
	}
	if s, ok := m["message"].(string); ok && s != "" {
		return s
	}
	return "request failed"
}
