// Package playevent provides the PlayEvent domain entity.
package playevent

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Action represents the kind of play intent that was recorded.
type Action string

const (
	ActionStart    Action = "START"
	ActionPause    Action = "PAUSE"
	ActionSkip     Action = "SKIP"
	ActionComplete Action = "COMPLETE"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// ParseAction parses an action name (case-insensitive).
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionStart, ActionPause, ActionSkip, ActionComplete:
		return a, nil
	default:
		return "", errors.Newf("unknown play action: %q", s)
	}
}

// Event is an append-only record of a play intent.
// It is never mutated after creation.
type Event struct {
	ID        int64     // Assigned by storage (0 before insert)
	TrackID   int64     // Track the action applies to
	Timestamp time.Time // When the action happened
	Action    Action    // START, PAUSE, SKIP or COMPLETE
}

// New creates an event that storage has not yet assigned an id to.
func New(trackID int64, action Action, at time.Time) Event {
	return Event{
		TrackID:   trackID,
		Timestamp: at,
		Action:    action,
	}
}
