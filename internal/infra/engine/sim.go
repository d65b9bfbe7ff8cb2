// Package engine provides playback engines for the playback controller.
package engine

import (
	"slices"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/app/playback"
)

// restartThreshold is how far into a track SeekToPrevious restarts it instead.
const restartThreshold = 3 * time.Second

// Sim is a playback engine driven by a virtual clock. It produces no audio
// but reports callbacks in the same order a real player does.
//
// Listeners must not call mutating Sim methods from a callback.
type Sim struct {
	// emitMu is held across a state change and its callbacks, so listeners
	// see callbacks in the order the changes happened. Taken before mu.
	emitMu sync.Mutex

	mu        sync.Mutex
	items     []playback.MediaItem
	index     int
	position  time.Duration
	playing   bool
	state     playback.EngineState
	listeners []playback.Listener
	released  bool

	defaultDuration time.Duration
	speed           float64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSim creates a simulated engine. tick is the clock resolution; speed
// scales virtual time (2 plays twice as fast).
func NewSim(defaultDuration, tick time.Duration, speed float64) *Sim {
	s := &Sim{
		state:           playback.EngineIdle,
		defaultDuration: defaultDuration,
		speed:           speed,
		stop:            make(chan struct{}),
	}
	if tick > 0 {
		s.wg.Add(1)
		go s.run(tick)
	}
	return s
}

func (s *Sim) run(tick time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Advance(time.Duration(float64(tick) * s.speed))
		case <-s.stop:
			return
		}
	}
}

// Advance moves the virtual clock forward while playing, finishing tracks as needed.
func (s *Sim) Advance(d time.Duration) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.released || !s.playing || len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.position += d
	duration := s.durationLocked()
	if s.position < duration {
		s.mu.Unlock()
		return
	}

	// Current item finished
	if s.index+1 < len(s.items) {
		s.mu.Unlock()
		s.jump(s.index+1, 0, playback.DiscontinuityAutoTransition, playback.TransitionAuto)
		return
	}

	s.position = duration
	s.playing = false
	s.state = playback.EngineEnded
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.OnPlayingChanged(false)
		l.OnStateChanged(playback.EngineEnded)
	}
}

func (s *Sim) durationLocked() time.Duration {
	if s.index < 0 || s.index >= len(s.items) {
		return 0
	}
	if d := s.items[s.index].Duration; d > 0 {
		return d
	}
	return s.defaultDuration
}

// SetItems replaces the item list.
func (s *Sim) SetItems(items []playback.MediaItem, startIndex int, startPosition time.Duration) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.items = slices.Clone(items)
	s.index = min(max(startIndex, 0), max(len(items)-1, 0))
	s.position = max(startPosition, 0)
	s.state = playback.EngineIdle
	id := ""
	if len(s.items) > 0 {
		id = s.items[s.index].ID
	}
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()

	zlog.Debug().Msgf("sim engine: items set: count=%d start=%d", len(items), startIndex)
	for _, l := range ls {
		l.OnTimelineChanged()
		l.OnItemTransition(id, playback.TransitionPlaylistChanged)
	}
}

// Prepare moves the engine to READY once items are loaded.
func (s *Sim) Prepare() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.released || len(s.items) == 0 || s.state == playback.EngineReady {
		s.mu.Unlock()
		return
	}
	s.state = playback.EngineReady
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.OnStateChanged(playback.EngineBuffering)
		l.OnStateChanged(playback.EngineReady)
	}
}

// Play starts playback. It has no effect once the last item ended.
func (s *Sim) Play() {
	s.setPlaying(true)
}

// Pause pauses playback.
func (s *Sim) Pause() {
	s.setPlaying(false)
}

func (s *Sim) setPlaying(playing bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.released || len(s.items) == 0 || s.playing == playing || (playing && s.state == playback.EngineEnded) {
		s.mu.Unlock()
		return
	}
	s.playing = playing
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.OnPlayingChanged(playing)
	}
}

// SeekTo moves within the current item.
func (s *Sim) SeekTo(position time.Duration) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.released || len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	old := playback.Position{Index: s.index, Offset: s.position}
	s.position = min(max(position, 0), s.durationLocked())
	cur := playback.Position{Index: s.index, Offset: s.position}
	revived := s.state == playback.EngineEnded
	if revived {
		s.state = playback.EngineReady
	}
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.OnPositionDiscontinuity(old, cur, playback.DiscontinuitySeek)
		if revived {
			l.OnStateChanged(playback.EngineReady)
		}
	}
}

// SeekToNext moves to the next item. It has no effect on the last item.
func (s *Sim) SeekToNext() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	target := s.index + 1
	s.mu.Unlock()
	s.jump(target, 0, playback.DiscontinuitySeek, playback.TransitionSeek)
}

// SeekToPrevious restarts the current item when it played past a few
// seconds, otherwise moves to the previous item.
func (s *Sim) SeekToPrevious() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	target := s.index - 1
	if s.position > restartThreshold || target < 0 {
		target = s.index
	}
	s.mu.Unlock()

	s.jump(target, 0, playback.DiscontinuitySeek, playback.TransitionSeek)
}

// SeekToIndex moves to an item. Out of range indexes are ignored.
func (s *Sim) SeekToIndex(index int, position time.Duration) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.jump(index, position, playback.DiscontinuitySeek, playback.TransitionSeek)
}

// ExternalNext skips forward as a media button would, without a controller command.
func (s *Sim) ExternalNext() {
	s.SeekToNext()
}

// jump moves to index and reports a discontinuity, plus a transition when
// the item changed. The caller holds emitMu.
func (s *Sim) jump(index int, position time.Duration, dr playback.DiscontinuityReason, tr playback.TransitionReason) {
	s.mu.Lock()
	if s.released || index < 0 || index >= len(s.items) {
		s.mu.Unlock()
		return
	}
	old := playback.Position{Index: s.index, Offset: s.position}
	s.index = index
	s.position = min(max(position, 0), s.durationLocked())
	cur := playback.Position{Index: s.index, Offset: s.position}
	id := s.items[index].ID
	revived := s.state == playback.EngineEnded
	if revived {
		s.state = playback.EngineReady
	}
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.OnPositionDiscontinuity(old, cur, dr)
		if old.Index != index {
			l.OnItemTransition(id, tr)
		}
		if revived {
			l.OnStateChanged(playback.EngineReady)
		}
	}
}

// CurrentPosition returns the playhead offset in the current item.
func (s *Sim) CurrentPosition() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// CurrentDuration returns the length of the current item.
func (s *Sim) CurrentDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

// CurrentItemIndex returns the current item index.
func (s *Sim) CurrentItemIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// ItemCount returns the number of items.
func (s *Sim) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ItemAt returns the item at index.
func (s *Sim) ItemAt(index int) (playback.MediaItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return playback.MediaItem{}, false
	}
	return s.items[index], true
}

// IsPlaying reports whether the clock is running.
func (s *Sim) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// AddListener registers a callback receiver.
func (s *Sim) AddListener(l playback.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener unregisters a callback receiver.
func (s *Sim) RemoveListener(l playback.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = slices.DeleteFunc(s.listeners, func(x playback.Listener) bool { return x == l })
}

// Release stops the clock. The engine ignores every later command.
func (s *Sim) Release() {
	// Waits for an in-flight fan-out; the clock goroutine is stopped after
	// emitMu is released so a pending Advance can finish.
	s.emitMu.Lock()
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		s.emitMu.Unlock()
		return
	}
	s.released = true
	s.playing = false
	s.listeners = nil
	s.mu.Unlock()
	s.emitMu.Unlock()

	close(s.stop)
	s.wg.Wait()
	zlog.Debug().Msg("sim engine: released")
}

var _ playback.Engine = (*Sim)(nil)
