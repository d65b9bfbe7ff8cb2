// Package playback keeps an in-memory playback model in sync with an external engine.
package playback

import (
	"time"

	"github.com/osa030/scenebox/internal/domain/track"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No queue set
	StateLoaded               // Queue set, not yet playing
	StatePlaying              // Engine confirmed playback
	StatePaused               // Engine confirmed pause
	StateEnded                // Current track reached its end
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the playback model.
type Snapshot struct {
	State        State
	Queue        []track.Track // Shared, must not be modified
	CurrentIndex int
	IsPlaying    bool
	Position     time.Duration
	Duration     time.Duration
	Ready        bool // Engine connection established
}

// CurrentTrack returns Queue[CurrentIndex], or false when the queue is empty.
func (s Snapshot) CurrentTrack() (track.Track, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return track.Track{}, false
	}
	return s.Queue[s.CurrentIndex], true
}

// model is the mutable state owned by the controller goroutine.
type model struct {
	state           State
	queue           []track.Track
	byItemID        map[string]track.Track
	index           int
	playing         bool
	position        time.Duration
	duration        time.Duration
	lastCompletedID string // Item id of the last COMPLETE, empty when none
	suppressSkip    bool   // One-shot guard for programmatic jumps
}

func (m *model) current() (track.Track, bool) {
	if m.index < 0 || m.index >= len(m.queue) {
		return track.Track{}, false
	}
	return m.queue[m.index], true
}

// replace swaps in a new queue as one unit.
func (m *model) replace(tracks []track.Track, index int) {
	queue := make([]track.Track, len(tracks))
	copy(queue, tracks)
	byID := make(map[string]track.Track, len(queue))
	for _, t := range queue {
		byID[ItemID(t)] = t
	}
	m.queue = queue
	m.byItemID = byID
	m.index = index
	m.position = 0
	m.duration = 0
	m.lastCompletedID = ""
	m.suppressSkip = true
	m.state = StateLoaded
}

func (m *model) indexOf(itemID string) int {
	for i, t := range m.queue {
		if ItemID(t) == itemID {
			return i
		}
	}
	return -1
}

func (m *model) snapshot(ready bool) *Snapshot {
	return &Snapshot{
		State:        m.state,
		Queue:        m.queue,
		CurrentIndex: m.index,
		IsPlaying:    m.playing,
		Position:     m.position,
		Duration:     m.duration,
		Ready:        ready,
	}
}
