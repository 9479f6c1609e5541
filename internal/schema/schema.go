// Package schema validates untrusted payloads against struct types tagged
// for go-playground/validator. A Schema[T] is the structural contract for
// one entity shape; the Validate* functions pick how failures surface.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"coach-backend/internal/document"
)

// Schema describes one struct shape. Build it once with New and share it.
type Schema[T any] struct {
	name string
	// fields maps JSON key to Go field name for top-level fields.
	fields map[string]string
}

// New builds a schema for T, which must be a struct type.
func New[T any](name string) (*Schema[T], error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema %s: %s is not a struct type", name, rt)
	}
	s := &Schema[T]{name: name, fields: make(map[string]string)}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		key := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if key == "-" {
			continue
		}
		if key == "" {
			key = f.Name
		}
		s.fields[key] = f.Name
	}
	return s, nil
}

// MustNew is New for package-level schema variables.
func MustNew[T any](name string) *Schema[T] {
	s, err := New[T](name)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema[T]) Name() string { return s.name }

// Keys returns the JSON keys of the schema's top-level fields, sorted.
func (s *Schema[T]) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strip returns a copy of m holding only keys the schema knows.
func (s *Schema[T]) Strip(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := s.fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

// decode turns data into a T without validating it.
func (s *Schema[T]) decode(data any) (T, error) {
	var out T
	switch v := data.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return out, s.typeError(data)
		}
		return *v, nil
	case map[string]any:
		if err := document.Decode(v, &out); err != nil {
			return out, s.decodeError(err)
		}
		return out, nil
	}

	m, ok := document.Normalize(data).(map[string]any)
	if !ok {
		return out, s.typeError(data)
	}
	if err := document.Decode(m, &out); err != nil {
		return out, s.decodeError(err)
	}
	return out, nil
}

func (s *Schema[T]) check(v T) error {
	return s.wrap(Validate.Struct(v))
}

// checkPartial validates only the Go fields named by present JSON keys.
func (s *Schema[T]) checkPartial(v T, present map[string]any) error {
	var fields []string
	for k := range present {
		if name, ok := s.fields[k]; ok {
			fields = append(fields, name)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return s.wrap(Validate.StructPartial(v, fields...))
}

func (s *Schema[T]) wrap(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Schema: s.name, Err: err}
	}
	out := &ValidationError{Schema: s.name, Err: err}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Tag:     fe.Tag(),
			Message: fe.Translate(Translator),
		})
	}
	return out
}

func (s *Schema[T]) typeError(data any) error {
	return &ValidationError{
		Schema: s.name,
		Fields: []FieldError{{Tag: "type", Message: fmt.Sprintf("expected an object, got %T", data)}},
	}
}

func (s *Schema[T]) decodeError(err error) error {
	return &ValidationError{
		Schema: s.name,
		Fields: []FieldError{{Tag: "type", Message: err.Error()}},
		Err:    err,
	}
}

// fieldPath drops the struct type prefix from a validator namespace:
// "School.address.city" becomes "address.city".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
