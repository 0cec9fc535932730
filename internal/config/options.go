package config

import (
	"fmt"
	"strconv"
	"time"
)

// OptString returns the string option key, or "" if absent or not a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt returns the integer option key, or def if absent or not numeric.
// YAML integers decode as int; quoted numbers are parsed.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// OptFloat returns the numeric option key, or def if absent or not numeric.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// OptDuration returns the duration option key, or def if absent or invalid.
// Strings are parsed with time.ParseDuration; bare integers are seconds.
func (e ProviderEntry) OptDuration(key string, def time.Duration) time.Duration {
	switch v := e.Options[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	}
	return def
}

// OptStrings returns the list option key. Non-string elements are skipped.
func (e ProviderEntry) OptStrings(key string) []string {
	raw, ok := e.Options[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// OptStringMap returns the mapping option key with string values.
// Non-string values are skipped.
func (e ProviderEntry) OptStringMap(key string) map[string]string {
	raw, ok := e.Options[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func optionString(v any) string {
	return fmt.Sprint(v)
}
