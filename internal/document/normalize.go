// Package document converts raw collaborator output into plain data:
// maps, slices, strings, numbers, booleans and one canonical time form.
package document

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// TimeFormat selects how timestamps come out of a Normalizer.
type TimeFormat int

const (
	// TimeISO renders timestamps as RFC3339Nano strings in UTC.
	TimeISO TimeFormat = iota
	// TimeValue keeps timestamps as UTC time.Time values.
	TimeValue
)

// ParseTimeFormat maps a config value ("iso" or "time") to a TimeFormat.
func ParseTimeFormat(s string) TimeFormat {
	if s == "time" {
		return TimeValue
	}
	return TimeISO
}

// hexIdentifier matches document-store object IDs that render via Hex().
type hexIdentifier interface {
	Hex() string
}

// Normalizer walks arbitrary values and rewrites identifiers and timestamps.
type Normalizer struct {
	times TimeFormat
}

func New(times TimeFormat) *Normalizer {
	return &Normalizer{times: times}
}

var defaultNormalizer = New(TimeISO)

// Normalize runs the default (ISO timestamp) normalizer.
func Normalize(v any) any {
	return defaultNormalizer.Normalize(v)
}

// Normalize returns a plain-data copy of v. It never panics; a value that
// cannot be walked is returned as-is with a warning.
func (n *Normalizer) Normalize(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARN: document normalize %T: %v", v, r)
			out = v
		}
	}()
	return n.value(v, 0)
}

// NormalizeMap normalizes every value of m into a new map.
func (n *Normalizer) NormalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	if out, ok := n.Normalize(m).(map[string]any); ok {
		return out
	}
	return m
}

const maxDepth = 64

func (n *Normalizer) value(v any, depth int) any {
	if v == nil {
		return nil
	}
	if depth > maxDepth {
		return fmt.Sprint(v)
	}

	switch val := v.(type) {
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return val
	case uuid.UUID:
		return val.String()
	case pgtype.UUID:
		if !val.Valid {
			return nil
		}
		return uuid.UUID(val.Bytes).String()
	case time.Time:
		return n.timeValue(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return n.timeValue(*val)
	case pgtype.Timestamptz:
		if !val.Valid {
			return nil
		}
		return n.timeValue(val.Time)
	case pgtype.Timestamp:
		if !val.Valid {
			return nil
		}
		return n.timeValue(val.Time)
	case pgtype.Date:
		if !val.Valid {
			return nil
		}
		return n.timeValue(val.Time)
	case pgtype.Text:
		if !val.Valid {
			return nil
		}
		return val.String
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return string(val)
		}
		return n.value(decoded, depth+1)
	case []byte:
		return n.bytesValue(val)
	case hexIdentifier:
		return val.Hex()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = n.value(item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = n.value(item, depth+1)
		}
		return out
	}

	return n.reflectValue(reflect.ValueOf(v), depth)
}

func (n *Normalizer) reflectValue(rv reflect.Value, depth int) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return n.value(rv.Elem().Interface(), depth+1)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = n.value(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = n.value(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Struct:
		out := make(map[string]any)
		n.structFields(rv, out, depth)
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return rv.Interface()
}

// structFields flattens exported fields into out using their JSON names.
// Embedded structs without a JSON name are merged into the parent.
func (n *Normalizer) structFields(rv reflect.Value, out map[string]any, depth int) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() && !f.Anonymous {
			continue
		}
		name, skip := jsonName(f)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && name == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				n.structFields(inner, out, depth+1)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = n.value(fv.Interface(), depth+1)
	}
}

func jsonName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}

func (n *Normalizer) timeValue(t time.Time) any {
	t = t.UTC()
	if n.times == TimeValue {
		return t
	}
	return t.Format(time.RFC3339Nano)
}

// bytesValue mirrors how SQL drivers hand back TEXT columns: try the
// timestamp layouts first, otherwise treat the bytes as a string.
func (n *Normalizer) bytesValue(b []byte) any {
	s := string(b)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return n.timeValue(t)
		}
	}
	return s
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}
