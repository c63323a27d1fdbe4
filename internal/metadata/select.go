// Package metadata extracts the scene attributes copied into notification payloads.
package metadata

import (
	"strings"
)

// Select builds a new map whose keys are the selection's keys and whose values are
// looked up in meta by the selection's values.
//
// A plain value is a top-level key. A value containing "/" is a path walked through
// nested maps; a "*" segment fans out over a list and yields a list of the remaining
// path's results. Entries whose path does not resolve are omitted.
func Select(meta map[string]any, selection map[string]string) map[string]any {
	out := make(map[string]any, len(selection))
	for newKey, path := range selection {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if !strings.Contains(path, "/") {
			if value, ok := meta[path]; ok {
				out[newKey] = value
			}
			continue
		}
		segments := splitPath(path)
		if value, ok := walk(meta, segments); ok {
			out[newKey] = value
		}
	}
	return out
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	segments := raw[:0]
	for _, segment := range raw {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func walk(value any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return value, true
	}
	head, rest := segments[0], segments[1:]

	if head == "*" {
		items, ok := asList(value)
		if !ok {
			return nil, false
		}
		results := make([]any, 0, len(items))
		for _, item := range items {
			if resolved, ok := walk(item, rest); ok {
				results = append(results, resolved)
			}
		}
		return results, true
	}

	switch typed := value.(type) {
	case map[string]any:
		next, ok := typed[head]
		if !ok {
			return nil, false
		}
		return walk(next, rest)
	case map[string]string:
		next, ok := typed[head]
		if !ok {
			return nil, false
		}
		return walk(next, rest)
	default:
		return nil, false
	}
}

func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []map[string]any:
		items := make([]any, len(typed))
		for i := range typed {
			items[i] = typed[i]
		}
		return items, true
	case []string:
		items := make([]any, len(typed))
		for i := range typed {
			items[i] = typed[i]
		}
		return items, true
	default:
		return nil, false
	}
}
