package schema

import (
	"encoding/json"
	"errors"
	"log"
)

// ValidateSafe returns the validated value, or nil after logging the field
// diff and the offending payload.
func ValidateSafe[T any](s *Schema[T], data any) *T {
	v, err := ValidateStrict(s, data)
	if err != nil {
		logFailure(s.name, err, data)
		return nil
	}
	return &v
}

// ValidateStrict returns the validated value or a *ValidationError.
func ValidateStrict[T any](s *Schema[T], data any) (T, error) {
	v, err := s.decode(data)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := s.check(v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// ValidatePartialSafe is ValidateSafe over only the keys present in data.
func ValidatePartialSafe[T any](s *Schema[T], data map[string]any) *T {
	v, err := ValidatePartialStrict(s, data)
	if err != nil {
		logFailure(s.name, err, data)
		return nil
	}
	return &v
}

// ValidatePartialStrict validates only the keys present in data; absent
// required fields are not reported. Unknown keys are ignored.
func ValidatePartialStrict[T any](s *Schema[T], data map[string]any) (T, error) {
	known := s.Strip(data)
	v, err := s.decode(known)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := s.checkPartial(v, known); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// ValidateArraySafe keeps the elements that validate and silently drops the
// rest. Order is preserved.
func ValidateArraySafe[T any](s *Schema[T], items []any) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v, err := ValidateStrict(s, item); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// MatchesSchema reports whether data validates. It never logs.
func MatchesSchema[T any](s *Schema[T], data any) bool {
	_, err := ValidateStrict(s, data)
	return err == nil
}

func logFailure(name string, err error, data any) {
	diff := err.Error()
	var verr *ValidationError
	if errors.As(err, &verr) {
		diff = verr.Diff()
	}
	payload, mErr := json.Marshal(data)
	if mErr != nil {
		log.Printf("WARN: schema %s rejected payload: %s (payload %v)", name, diff, data)
		return
	}
	log.Printf("WARN: schema %s rejected payload: %s (payload %s)", name, diff, payload)
}
