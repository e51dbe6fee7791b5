package config

import (
	"fmt"
	"strings"
	"time"
)

// StringOption returns Options[key] as a string, or def when absent.
func (e ProviderEntry) StringOption(key, def string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IntOption returns Options[key] as an int, or def when absent or not numeric.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// FloatOption returns Options[key] as a float64, or def when absent or not
// numeric.
func (e ProviderEntry) FloatOption(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// BoolOption returns Options[key] as a bool, or def when absent or not a bool.
func (e ProviderEntry) BoolOption(key string, def bool) bool {
	if v, ok := e.Options[key].(bool); ok {
		return v
	}
	return def
}

// DurationOption parses Options[key] with time.ParseDuration. Plain numbers
// are taken as seconds. def is returned when the key is absent or invalid.
func (e ProviderEntry) DurationOption(key string, def time.Duration) time.Duration {
	switch v := e.Options[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return def
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return def
	}
}

// StringSliceOption returns Options[key] as a string slice. A single string is
// split on whitespace. nil is returned when the key is absent.
func (e ProviderEntry) StringSliceOption(key string) []string {
	switch v := e.Options[key].(type) {
	case string:
		return strings.Fields(v)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
