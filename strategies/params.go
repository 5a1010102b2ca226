package strategies

import "github.com/spf13/cast"

// Parameter maps arrive from JSON request bodies or YAML config, so numeric
// values may be float64, int, or string. cast smooths that over; the
// fallback applies when the key is absent or unconvertible.

func paramString(params map[string]any, key, fallback string) string {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return fallback
	}
	return s
}

func paramInt(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	n, err := cast.ToIntE(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return f
}
