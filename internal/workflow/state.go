package workflow

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Label returns the state name for display.
func (s State) Label() string {
	return cases.Title(language.English).String(s.String())
}
