package playback

import (
	"slices"
	"sync"
	"time"
)

// fakeEngine is an in-memory Engine that mimics the callback order of a real player.
type fakeEngine struct {
	mu        sync.Mutex
	items     []MediaItem
	index     int
	position  time.Duration
	duration  time.Duration
	playing   bool
	listeners []Listener
	calls     []string
	released  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{}
}

func (e *fakeEngine) record(call string) {
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) snapshotListeners() []Listener {
	return slices.Clone(e.listeners)
}

// Calls returns the recorded command names in order.
func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

func (e *fakeEngine) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *fakeEngine) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *fakeEngine) SetItems(items []MediaItem, startIndex int, startPosition time.Duration) {
	e.mu.Lock()
	e.record("set_items")
	e.items = slices.Clone(items)
	e.index = startIndex
	e.position = startPosition
	id := items[startIndex].ID
	ls := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range ls {
		l.OnTimelineChanged()
		l.OnItemTransition(id, TransitionPlaylistChanged)
	}
}

func (e *fakeEngine) Prepare() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("prepare")
}

func (e *fakeEngine) Play() {
	e.mu.Lock()
	e.record("play")
	changed := !e.playing && len(e.items) > 0
	e.playing = e.playing || changed
	ls := e.snapshotListeners()
	e.mu.Unlock()

	if changed {
		for _, l := range ls {
			l.OnPlayingChanged(true)
		}
	}
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	e.record("pause")
	changed := e.playing
	e.playing = false
	ls := e.snapshotListeners()
	e.mu.Unlock()

	if changed {
		for _, l := range ls {
			l.OnPlayingChanged(false)
		}
	}
}

func (e *fakeEngine) SeekTo(position time.Duration) {
	e.mu.Lock()
	e.record("seek")
	old := Position{Index: e.index, Offset: e.position}
	e.position = position
	cur := Position{Index: e.index, Offset: position}
	ls := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range ls {
		l.OnPositionDiscontinuity(old, cur, DiscontinuitySeek)
	}
}

func (e *fakeEngine) SeekToNext() {
	e.mu.Lock()
	e.record("seek_next")
	target := e.index + 1
	e.mu.Unlock()
	e.jump(target, DiscontinuitySeek, TransitionSeek)
}

func (e *fakeEngine) SeekToPrevious() {
	e.mu.Lock()
	e.record("seek_previous")
	target := max(e.index-1, 0)
	e.mu.Unlock()
	e.jump(target, DiscontinuitySeek, TransitionSeek)
}

func (e *fakeEngine) SeekToIndex(index int, _ time.Duration) {
	e.mu.Lock()
	e.record("seek_index")
	e.mu.Unlock()
	e.jump(index, DiscontinuitySeek, TransitionSeek)
}

func (e *fakeEngine) CurrentPosition() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *fakeEngine) CurrentDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *fakeEngine) CurrentItemIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

func (e *fakeEngine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

func (e *fakeEngine) ItemAt(index int) (MediaItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.items) {
		return MediaItem{}, false
	}
	return e.items[index], true
}

func (e *fakeEngine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *fakeEngine) RemoveListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("remove_listener")
	e.listeners = slices.DeleteFunc(e.listeners, func(x Listener) bool { return x == l })
}

func (e *fakeEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("release")
	e.released = true
}

// jump moves to index and reports it as a discontinuity followed by a transition.
func (e *fakeEngine) jump(index int, dr DiscontinuityReason, tr TransitionReason) {
	e.mu.Lock()
	if index < 0 || index >= len(e.items) {
		e.mu.Unlock()
		return
	}
	old := Position{Index: e.index, Offset: e.position}
	e.index = index
	e.position = 0
	id := e.items[index].ID
	ls := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range ls {
		l.OnPositionDiscontinuity(old, Position{Index: index}, dr)
		if old.Index != index {
			l.OnItemTransition(id, tr)
		}
	}
}

// SetPosition moves the playhead without any callback, as playback would.
func (e *fakeEngine) SetPosition(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = d
}

func (e *fakeEngine) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
}

// ExternalSkip jumps to the next item as if a hardware button was pressed.
func (e *fakeEngine) ExternalSkip() {
	e.mu.Lock()
	target := e.index + 1
	e.mu.Unlock()
	e.jump(target, DiscontinuitySeek, TransitionSeek)
}

// Finish ends the current item: auto advance, or ENDED on the last item.
func (e *fakeEngine) Finish() {
	e.mu.Lock()
	if e.index+1 < len(e.items) {
		target := e.index + 1
		e.mu.Unlock()
		e.jump(target, DiscontinuityAutoTransition, TransitionAuto)
		return
	}
	e.playing = false
	ls := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range ls {
		l.OnPlayingChanged(false)
		l.OnStateChanged(EngineEnded)
	}
}

// FireEnded reports ENDED without moving.
func (e *fakeEngine) FireEnded() {
	e.mu.Lock()
	ls := e.snapshotListeners()
	e.mu.Unlock()
	for _, l := range ls {
		l.OnStateChanged(EngineEnded)
	}
}

// FireTransition reports an item transition without moving.
func (e *fakeEngine) FireTransition(itemID string, reason TransitionReason) {
	e.mu.Lock()
	ls := e.snapshotListeners()
	e.mu.Unlock()
	for _, l := range ls {
		l.OnItemTransition(itemID, reason)
	}
}

// ReplaceItems swaps the item list underneath the controller.
func (e *fakeEngine) ReplaceItems(items []MediaItem, index int) {
	e.mu.Lock()
	e.items = slices.Clone(items)
	e.index = index
	ls := e.snapshotListeners()
	e.mu.Unlock()
	for _, l := range ls {
		l.OnTimelineChanged()
	}
}
