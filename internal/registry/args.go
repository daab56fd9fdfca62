package registry

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/starford/mnemo/internal/apperr"
)

// Args are the decoded arguments of a tool call. Getters coerce loosely
// typed JSON values and fall back to a default when the key is absent or
// cannot be converted.
type Args map[string]any

// Has reports whether key is present and not null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns key as a string.
func (a Args) String(key, def string) string {
	if !a.Has(key) {
		return def
	}
	s, err := cast.ToStringE(a[key])
	if err != nil {
		return def
	}
	return s
}

// RequireString returns key as a non-empty string.
func (a Args) RequireString(key string) (string, error) {
	s := strings.TrimSpace(a.String(key, ""))
	if s == "" {
		return "", fmt.Errorf("%q is required: %w", key, apperr.ErrValidation)
	}
	return a.String(key, ""), nil
}

// Int returns key as an int.
func (a Args) Int(key string, def int) int {
	if !a.Has(key) {
		return def
	}
	n, err := cast.ToIntE(a[key])
	if err != nil {
		return def
	}
	return n
}

// Float returns key as a float64.
func (a Args) Float(key string, def float64) float64 {
	if !a.Has(key) {
		return def
	}
	f, err := cast.ToFloat64E(a[key])
	if err != nil {
		return def
	}
	return f
}

// Bool returns key as a bool. Strings such as "true" and "1" are accepted.
func (a Args) Bool(key string, def bool) bool {
	if !a.Has(key) {
		return def
	}
	b, err := cast.ToBoolE(a[key])
	if err != nil {
		return def
	}
	return b
}

// Strings returns key as a string list. A single string is split on
// commas.
func (a Args) Strings(key string) []string {
	if !a.Has(key) {
		return nil
	}
	var raw []string
	switch v := a[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	default:
		raw = cast.ToStringSlice(v)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Map returns key as an object. A JSON-encoded string is decoded.
func (a Args) Map(key string) map[string]any {
	if !a.Has(key) {
		return nil
	}
	m, err := cast.ToStringMapE(a[key])
	if err != nil {
		return nil
	}
	return m
}
