package core

import (
	"github.com/google/uuid"
)

// RunID uniquely identifies one pipeline run
type RunID string

// NewRunID creates a new random run identifier
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// String returns the string representation
func (id RunID) String() string {
	return string(id)
}

// EventID is a categorical precipitation-event label. "0" means no event.
type EventID string

// PhaseID is a categorical post-event phase label. "0" means not in a
// post-event window; any other value matches the event it follows.
type PhaseID string

// NoEvent and NoPhase are the reference levels of the two categorical axes.
const (
	NoEvent EventID = "0"
	NoPhase PhaseID = "0"
)
