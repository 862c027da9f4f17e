package core

import (
	"fmt"
	"strings"
)

// NormalizePatterns trims, drops empties and de-duplicates while keeping order.
func NormalizePatterns(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// ParseSubscribePatterns reads the "subscribe" key of a plugin config section.
// It accepts a list or a comma separated string. A missing key yields nil so
// callers can tell it apart from an explicit empty list.
func ParseSubscribePatterns(section map[string]any) []string {
	raw, ok := section["subscribe"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return NormalizePatterns(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return NormalizePatterns(out)
	case string:
		return NormalizePatterns(strings.Split(v, ","))
	default:
		return NormalizePatterns([]string{fmt.Sprint(v)})
	}
}
