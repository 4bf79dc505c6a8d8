// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// SplitList splits v on sep, trims each element and drops empty and repeated
// ones. Order is preserved.
//
// Example:
//
//	SplitList(" a:9092, b:9092,,a:9092", ",")
//	// Returns: []string{"a:9092", "b:9092"}
func SplitList(v, sep string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}

	parts := strings.Split(v, sep)
	seen := make(map[string]struct{}, len(parts))
	result := make([]string, 0, len(parts))

	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
