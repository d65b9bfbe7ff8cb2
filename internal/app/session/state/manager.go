package state

import (
	"sync"
	"time"

	"github.com/osa030/scenebox/internal/app/scene"
)

// Manager manages session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	// Session identity
	sessionID string
	startedAt time.Time

	// Scene selection
	sceneMode SceneMode
	scene     scene.Scene

	// Library
	scanPhase ScanPhase
	lastScan  ScanStats

	// Last user-visible failure
	lastError string
}

// New creates a new state manager.
func New(sessionID string, startedAt time.Time) *Manager {
	return &Manager{
		sessionID: sessionID,
		startedAt: startedAt,
		sceneMode: SceneAuto,
		scanPhase: ScanIdle,
	}
}

// GetSessionID returns the session ID.
func (m *Manager) GetSessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// PinScene selects a scene manually.
func (m *Manager) PinScene(s scene.Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sceneMode = SceneManual
	m.scene = s
}

// FollowClock returns scene selection to the clock.
func (m *Manager) FollowClock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sceneMode = SceneAuto
}

// GetScene returns the pinned scene, if any.
func (m *Manager) GetScene() (scene.Scene, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scene, m.sceneMode == SceneManual
}

// TryStartScan marks a scan as running. It returns false if one already is.
func (m *Manager) TryStartScan() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanPhase == ScanRunning {
		return false
	}
	m.scanPhase = ScanRunning
	return true
}

// FinishScan records a completed scan.
func (m *Manager) FinishScan(stats ScanStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanPhase = ScanFinished
	m.lastScan = stats
}

// FailScan records a failed scan.
func (m *Manager) FailScan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanPhase = ScanFailed
}

// IsScanning returns true while a scan is running.
func (m *Manager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanPhase == ScanRunning
}

// SetError records a user-visible error message.
func (m *Manager) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = msg
}

// ClearError clears the user-visible error message.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = ""
}

// GetError returns the last user-visible error message.
func (m *Manager) GetError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// BuildInfo creates a consistent copy of all fields.
func (m *Manager) BuildInfo() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		SessionID: m.sessionID,
		StartedAt: m.startedAt,
		SceneMode: m.sceneMode,
		Scene:     m.scene,
		ScanPhase: m.scanPhase,
		LastScan:  m.lastScan,
		LastError: m.lastError,
	}
}
