// Package utils holds small helpers shared by the transport and CLI layers.
package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
// Used for query parameters such as the change kinds of a realtime
// subscription ("INSERT,UPDATE") and CLI flag values.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseCSVUpper is ParseCSV with every value upper-cased.
func ParseCSVUpper(s string) []string {
	values := ParseCSV(s)
	for i, v := range values {
		values[i] = strings.ToUpper(v)
	}
	return values
}
