package logs

import (
	"encoding/json"
	"strings"

	"l2writer/internal/logging"
)

// Filter selects log lines. Empty fields match everything.
type Filter struct {
	Level     string
	Component string
	EventType string
}

// Empty reports whether f matches every line.
func (f Filter) Empty() bool {
	return f.Level == "" && f.Component == "" && f.EventType == ""
}

// Match reports whether line passes f. JSON lines are matched on their fields;
// other lines must contain every requested value.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		for _, want := range []string{f.Level, f.Component, f.EventType} {
			if want != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(want)) {
				return false
			}
		}
		return true
	}
	return fieldMatches(record, "level", f.Level) &&
		fieldMatches(record, logging.FieldComponent, f.Component) &&
		fieldMatches(record, logging.FieldEventType, f.EventType)
}

// Apply returns the lines of lines that pass f.
func (f Filter) Apply(lines []string) []string {
	if f.Empty() {
		return lines
	}
	kept := lines[:0:0]
	for _, line := range lines {
		if f.Match(line) {
			kept = append(kept, line)
		}
	}
	return kept
}

func fieldMatches(record map[string]any, key, want string) bool {
	if want == "" {
		return true
	}
	value, _ := record[key].(string)
	return strings.EqualFold(value, want)
}
