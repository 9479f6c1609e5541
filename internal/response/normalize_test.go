package response

import (
	"strings"
	"testing"
	"time"

	"coach-backend/internal/document"
)

func TestToCollection_DecisionTable(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		items   int
		total   int
		success bool
		message string
	}{
		{"nil", nil, 0, 0, false, "empty response"},
		{"bare array", []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}}, 2, 2, true, ""},
		{"items envelope", map[string]any{"items": []any{1, 2}, "total": float64(40)}, 2, 40, true, ""},
		{"items without total", map[string]any{"items": []any{1, 2, 3}}, 3, 3, true, ""},
		{"failure envelope", map[string]any{"success": false, "error": "db down"}, 0, 0, false, "db down"},
		{"failure with details", map[string]any{
			"success": false,
			"error":   "Validation failed",
			"details": []any{map[string]any{"field": "email", "message": "email must be a valid email"}},
		}, 0, 0, false, "Validation failed"},
		{"single list", map[string]any{"studentList": []any{1, 2, 3}}, 3, 3, true, `auto-converted "studentList" to items`},
		{"entity envelope", map[string]any{"data": map[string]any{"id": "x"}, "success": true}, 1, 1, true, ""},
		{"plain object", map[string]any{"id": "x", "name": "Lincoln"}, 1, 1, true, ""},
		{"two arrays", map[string]any{"a": []any{}, "b": []any{}}, 1, 1, true, ""},
		{"primitive", 42, 0, 0, false, "unsupported response type int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCollection(tt.raw)
			if len(got.Items) != tt.items {
				t.Fatalf("items: expected %d, got %d (%v)", tt.items, len(got.Items), got.Items)
			}
			if got.Total != tt.total {
				t.Fatalf("total: expected %d, got %d", tt.total, got.Total)
			}
			if got.Success != tt.success {
				t.Fatalf("success: expected %v, got %v", tt.success, got.Success)
			}
			if got.Message != tt.message {
				t.Fatalf("message: expected %q, got %q", tt.message, got.Message)
			}
			if got.Items == nil {
				t.Fatal("items must never be nil")
			}
		})
	}
}

func TestToCollection_NormalizesDocuments(t *testing.T) {
	type row struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
	}
	raw := []row{{ID: "1", CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}}

	got := ToCollection(raw)
	if !got.Success || len(got.Items) != 1 {
		t.Fatalf("unexpected collection %+v", got)
	}
	item := got.Items[0].(map[string]any)
	if item["createdAt"] != "2025-05-01T00:00:00Z" {
		t.Fatalf("expected ISO timestamp, got %v", item["createdAt"])
	}
}

func TestToCollection_TimeValueNormalizer(t *testing.T) {
	n := New(document.New(document.TimeValue))
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	got := n.ToCollection([]any{map[string]any{"at": ts}})
	if _, ok := got.Items[0].(map[string]any)["at"].(time.Time); !ok {
		t.Fatalf("expected time.Time to survive, got %T", got.Items[0].(map[string]any)["at"])
	}
}

func TestClassify(t *testing.T) {
	c := Classify(map[string]any{"visits": []any{}, "count": 0})
	if c.Shape != ShapeSingleList || c.ListField != "visits" {
		t.Fatalf("unexpected classification %+v", c)
	}
	if Classify("x").Shape.String() != "unsupported" {
		t.Fatal("expected unsupported")
	}
}

func TestToEntity(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		success bool
		errSub  string
	}{
		{"nil", nil, false, "empty"},
		{"data envelope", map[string]any{"data": map[string]any{"id": "1"}, "success": true}, true, ""},
		{"data failure", map[string]any{"data": nil, "success": false, "error": "School not found"}, false, "School not found"},
		{"null data", map[string]any{"data": nil}, false, "not found"},
		{"items", map[string]any{"items": []any{map[string]any{"id": "1"}}}, true, ""},
		{"empty items", map[string]any{"items": []any{}}, false, "not found"},
		{"array", []any{map[string]any{"id": "1"}}, true, ""},
		{"bare object", map[string]any{"id": "1"}, true, ""},
		{"failure", map[string]any{"success": false, "message": "nope"}, false, "nope"},
		{"primitive", "x", false, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToEntity(tt.raw)
			if got.Success != tt.success {
				t.Fatalf("success: expected %v, got %v (%+v)", tt.success, got.Success, got)
			}
			if !tt.success {
				if got.Data != nil {
					t.Fatalf("failed envelope must carry nil data, got %v", got.Data)
				}
				if !strings.Contains(got.Error, tt.errSub) {
					t.Fatalf("expected error containing %q, got %q", tt.errSub, got.Error)
				}
			}
		})
	}
}
