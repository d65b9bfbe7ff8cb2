package playback

import (
	"sync"
	"sync/atomic"
)

// inbox is an unbounded FIFO of callbacks waiting for the loop goroutine.
// Engines may invoke callbacks synchronously from inside a command, so
// pushing must never block.
type inbox struct {
	mu     sync.Mutex
	items  []func(*Controller)
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(fn func(*Controller)) {
	b.mu.Lock()
	b.items = append(b.items, fn)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) drain() []func(*Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

var _ Listener = (*engineListener)(nil)

// engineListener forwards engine callbacks into the controller's inbox.
type engineListener struct {
	inbox    *inbox
	detached atomic.Bool
}

func (l *engineListener) detach() {
	l.detached.Store(true)
}

func (l *engineListener) post(fn func(*Controller)) {
	if l.detached.Load() {
		return
	}
	l.inbox.push(fn)
}

func (l *engineListener) OnPlayingChanged(playing bool) {
	l.post(func(c *Controller) { c.handlePlayingChanged(playing) })
}

func (l *engineListener) OnStateChanged(state EngineState) {
	l.post(func(c *Controller) { c.handleStateChanged(state) })
}

func (l *engineListener) OnItemTransition(itemID string, reason TransitionReason) {
	l.post(func(c *Controller) { c.handleItemTransition(itemID, reason) })
}

func (l *engineListener) OnPositionDiscontinuity(oldPos, newPos Position, reason DiscontinuityReason) {
	l.post(func(c *Controller) { c.handleDiscontinuity(oldPos, newPos, reason) })
}

func (l *engineListener) OnTimelineChanged() {
	l.post(func(c *Controller) { c.handleTimelineChanged() })
}
