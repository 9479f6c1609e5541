// Package transform applies optional post-validation transforms to entities
// before they are cached, such as computed display fields.
package transform

import (
	"fmt"
	"log"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"coach-backend/internal/document"
)

// Func maps a validated entity to its transformed form.
type Func[T any] func(T) T

// Chain composes transforms left to right. Nil entries are skipped.
func Chain[T any](fns ...Func[T]) Func[T] {
	return func(v T) T {
		for _, fn := range fns {
			if fn != nil {
				v = fn(v)
			}
		}
		return v
	}
}

// Apply runs fn over every item. A transform that panics leaves that item
// unchanged.
func Apply[T any](items []T, fn Func[T]) []T {
	if fn == nil {
		return items
	}
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = One(item, fn)
	}
	return out
}

// One runs fn on a single value with the same panic protection as Apply.
func One[T any](v T, fn Func[T]) (out T) {
	if fn == nil {
		return v
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARN: transform panicked, keeping original value: %v", r)
			out = v
		}
	}()
	return fn(v)
}

type computedField struct {
	name string
	prog *vm.Program
}

// Computed sets fields from expressions evaluated against the record.
// Expressions see the entity as `record` (JSON field names) and run in field
// name order, so a later field may use an earlier one.
type Computed[T any] struct {
	fields []computedField
}

// NewComputed compiles one expression per target field.
func NewComputed[T any](expressions map[string]string) (*Computed[T], error) {
	names := make([]string, 0, len(expressions))
	for name := range expressions {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &Computed[T]{}
	for _, name := range names {
		prog, err := expr.Compile(expressions[name])
		if err != nil {
			return nil, fmt.Errorf("compile computed field %s: %w", name, err)
		}
		c.fields = append(c.fields, computedField{name: name, prog: prog})
	}
	return c, nil
}

// MustComputed is NewComputed for expressions fixed at compile time.
func MustComputed[T any](expressions map[string]string) *Computed[T] {
	c, err := NewComputed[T](expressions)
	if err != nil {
		panic(err)
	}
	return c
}

// Apply evaluates the expressions and decodes the result back into T.
// On any evaluation or decode error the input is returned unchanged.
func (c *Computed[T]) Apply(v T) T {
	record, ok := document.Normalize(v).(map[string]any)
	if !ok {
		return v
	}
	env := map[string]any{"record": record}
	for _, f := range c.fields {
		result, err := expr.Run(f.prog, env)
		if err != nil {
			log.Printf("WARN: computed field %s: %v", f.name, err)
			return v
		}
		record[f.name] = result
	}

	var out T
	if err := document.Decode(record, &out); err != nil {
		log.Printf("WARN: computed fields decode: %v", err)
		return v
	}
	return out
}

// Func returns c.Apply as a Func for use in Chain or an engine config.
func (c *Computed[T]) Func() Func[T] {
	return c.Apply
}
