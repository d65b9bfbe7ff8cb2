// Package state provides session state management.
package state

import (
	"time"

	"github.com/osa030/scenebox/internal/app/scene"
)

// ScanPhase represents the library scan lifecycle.
type ScanPhase int

const (
	ScanIdle     ScanPhase = iota // No scan has run yet
	ScanRunning                   // A scan is in progress
	ScanFinished                  // Last scan completed
	ScanFailed                    // Last scan failed
)

// String returns the string representation of the scan phase.
func (p ScanPhase) String() string {
	switch p {
	case ScanIdle:
		return "idle"
	case ScanRunning:
		return "running"
	case ScanFinished:
		return "finished"
	case ScanFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SceneMode represents how the active scene is chosen.
type SceneMode int

const (
	SceneAuto   SceneMode = iota // Follow the clock
	SceneManual                  // Pinned by the user
)

// String returns the string representation of the scene mode.
func (m SceneMode) String() string {
	switch m {
	case SceneAuto:
		return "auto"
	case SceneManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ScanStats summarizes the last library scan.
type ScanStats struct {
	Imported int
	Skipped  int
	Rejected int
	At       time.Time
}

// Info is a consistent copy of the session state.
type Info struct {
	SessionID string
	StartedAt time.Time
	SceneMode SceneMode
	Scene     scene.Scene // Pinned scene; only meaningful in manual mode
	ScanPhase ScanPhase
	LastScan  ScanStats
	LastError string
}
