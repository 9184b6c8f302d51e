package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a free-form option bag for a component (e.g. decoder options).
// Accessors fall back to the default when a key is missing or has the wrong type.
type Options map[string]any

// Any returns the raw value for key.
func (o Options) Any(key string) (any, bool) {
	v, ok := o[key]
	return v, ok
}

// String returns a string option.
func (o Options) String(key, def string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns a boolean option. Strings such as "true" or "0" are accepted.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Int returns an integer option.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Rune returns a single-character option such as a CSV delimiter.
// "\t" and "tab" both mean a tab character.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o[key].(string)
	if !ok || s == "" {
		return def
	}
	switch s {
	case `\t`, "tab":
		return '\t'
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return def
	}
	return r
}

// StringMap returns a map option with string values. Non-string values are
// formatted with fmt.Sprint.
func (o Options) StringMap(key string) map[string]string {
	raw, ok := o[key].(map[string]any)
	if !ok {
		if m, ok := o[key].(map[string]string); ok {
			return m
		}
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
