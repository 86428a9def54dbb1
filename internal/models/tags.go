package models

import "strings"

// NormalizeTags trims tags, drops empties and removes case-insensitive
// duplicates, keeping the first spelling and the original order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ParseTagList splits a comma-separated tag field such as "react, go,,api".
func ParseTagList(raw string) []string {
	return NormalizeTags(strings.Split(raw, ","))
}
