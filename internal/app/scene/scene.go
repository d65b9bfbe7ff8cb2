// Package scene derives a listening scene from the time of day.
package scene

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Scene represents a coarse time-of-day listening context.
type Scene int

const (
	Morning Scene = iota // 05:00-10:59
	Commute              // 11:00-17:59
	Night                // 18:00-04:59
)

// String returns the string representation of the scene.
func (s Scene) String() string {
	switch s {
	case Morning:
		return "morning"
	case Commute:
		return "commute"
	case Night:
		return "night"
	default:
		return "unknown"
	}
}

// Parse parses a scene name (case-insensitive).
func Parse(name string) (Scene, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "morning":
		return Morning, nil
	case "commute":
		return Commute, nil
	case "night":
		return Night, nil
	default:
		return Night, errors.Newf("unknown scene: %q", name)
	}
}

// Resolve maps the wall-clock hour of now in loc to a scene.
// A nil loc is treated as UTC.
func Resolve(now time.Time, loc *time.Location) Scene {
	if loc == nil {
		loc = time.UTC
	}
	switch h := now.In(loc).Hour(); {
	case h >= 5 && h <= 10:
		return Morning
	case h >= 11 && h <= 17:
		return Commute
	default:
		return Night
	}
}

// ResolveMillis is Resolve for a Unix millisecond timestamp.
func ResolveMillis(nowMs int64, loc *time.Location) Scene {
	return Resolve(time.UnixMilli(nowMs), loc)
}
