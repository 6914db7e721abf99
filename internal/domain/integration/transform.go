package integration

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TransformFunc is a pure, named transformation applied to a mapped value.
type TransformFunc func(value any) (any, error)

// TransformRegistry resolves transformation names to functions. Mappings store
// only the name; the function is never serialized.
type TransformRegistry struct {
	funcs map[string]TransformFunc
}

// NewTransformRegistry returns a registry pre-populated with the built-in
// transformations.
func NewTransformRegistry() *TransformRegistry {
	r := &TransformRegistry{funcs: make(map[string]TransformFunc)}
	r.Register("uppercase", stringTransform(strings.ToUpper))
	r.Register("lowercase", stringTransform(strings.ToLower))
	r.Register("trim", stringTransform(strings.TrimSpace))
	r.Register("titlecase", stringTransform(titleCase))
	r.Register("digits-only", stringTransform(digitsOnly))
	r.Register("iso-date", isoDate)
	return r
}

// Register adds or replaces a named transformation
func (r *TransformRegistry) Register(name string, fn TransformFunc) {
	r.funcs[name] = fn
}

// Resolve returns the transformation for name, or ErrUnknownTransformation
func (r *TransformRegistry) Resolve(name string) (TransformFunc, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransformation, name)
	}
	return fn, nil
}

// Has returns true if a transformation with the name is registered
func (r *TransformRegistry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names returns all registered transformation names
func (r *TransformRegistry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// stringTransform lifts a string function into a TransformFunc.
// Non-string values pass through unchanged.
func stringTransform(fn func(string) string) TransformFunc {
	return func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		return fn(s), nil
	}
}

func titleCase(s string) string {
	prev := ' '
	return strings.Map(func(r rune) rune {
		defer func() { prev = r }()
		if unicode.IsSpace(prev) {
			return unicode.ToUpper(r)
		}
		return unicode.ToLower(r)
	}, s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isoDate normalizes common date representations to RFC 3339 date form.
func isoDate(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format("2006-01-02"), nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006", "02.01.2006"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().Format("2006-01-02"), nil
			}
		}
		return nil, fmt.Errorf("integration: iso-date: unparseable date %q", v)
	default:
		return value, nil
	}
}
