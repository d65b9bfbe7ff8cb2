package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/domain/track"
)

// Errors
var (
	ErrEmptyQueue     = errors.New("queue is empty")
	ErrIndexRange     = errors.New("queue index out of range")
	ErrEngineNotReady = errors.New("playback engine not ready")
	ErrClosed         = errors.New("playback controller closed")
)

const eventBufferSize = 64

// Config holds controller configuration.
type Config struct {
	SkipThreshold   time.Duration // Jumps before this offset count as skips
	PositionRefresh time.Duration // Position polling cadence
	ConnectTimeout  time.Duration // How long commands wait for the engine
}

// DefaultConfig returns the standard controller configuration.
func DefaultConfig() Config {
	return Config{
		SkipThreshold:   15 * time.Second,
		PositionRefresh: 500 * time.Millisecond,
		ConnectTimeout:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SkipThreshold <= 0 {
		c.SkipThreshold = d.SkipThreshold
	}
	if c.PositionRefresh <= 0 {
		c.PositionRefresh = d.PositionRefresh
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	return c
}

type command struct {
	name   string
	ctx    context.Context
	run    func() error
	result chan error
}

type connectResult struct {
	engine Engine
	err    error
}

// Controller owns the playback model and serializes every mutation onto one goroutine.
// Commands and engine callbacks may come from any goroutine; reads never block.
type Controller struct {
	config Config

	// Owned by the loop goroutine
	engine     Engine
	connectErr error
	pending    []command
	m          model

	snapshot atomic.Pointer[Snapshot]
	ready    chan struct{}

	listener *engineListener
	inbox    *inbox

	cmdCh     chan command
	connectCh chan connectResult
	eventCh   chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates a controller and starts connecting to the engine.
func NewController(config Config, connector Connector) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:    config.withDefaults(),
		ready:     make(chan struct{}),
		inbox:     newInbox(),
		cmdCh:     make(chan command),
		connectCh: make(chan connectResult),
		eventCh:   make(chan Event, eventBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.listener = &engineListener{inbox: c.inbox}
	c.snapshot.Store(c.m.snapshot(false))

	go c.connect(connector)
	go c.loop()

	return c
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Ready is closed once the engine connection is established.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// CurrentTrack returns the current track, or false when the queue is empty.
func (c *Controller) CurrentTrack() (track.Track, bool) {
	return c.Snapshot().CurrentTrack()
}

// IsCurrentTrack reports whether the track with id is the current one.
func (c *Controller) IsCurrentTrack(id int64) bool {
	t, ok := c.CurrentTrack()
	return ok && t.ID == id
}

// IsPlaying returns the engine-confirmed playing flag.
func (c *Controller) IsPlaying() bool {
	return c.Snapshot().IsPlaying
}

// Position returns the last polled playback position.
func (c *Controller) Position() time.Duration {
	return c.Snapshot().Position
}

// Duration returns the duration of the current item (0 when unknown).
func (c *Controller) Duration() time.Duration {
	return c.Snapshot().Duration
}

// Queue returns the current queue. The slice must not be modified.
func (c *Controller) Queue() []track.Track {
	return c.Snapshot().Queue
}

// CurrentIndex returns the index of the current track.
func (c *Controller) CurrentIndex() int {
	return c.Snapshot().CurrentIndex
}

// HasMedia reports whether a queue is loaded.
func (c *Controller) HasMedia() bool {
	return len(c.Snapshot().Queue) > 0
}

// SetQueue replaces the queue, starts at startIndex and begins playback.
// An empty list returns ErrEmptyQueue and an out-of-range startIndex returns
// ErrIndexRange; both leave the state unchanged.
func (c *Controller) SetQueue(ctx context.Context, tracks []track.Track, startIndex int) error {
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return errors.Wrapf(ErrIndexRange, "start index %d of %d", startIndex, len(tracks))
	}
	return c.do(ctx, "set_queue", func() error {
		c.load(tracks, startIndex)
		c.engine.Play()
		return nil
	})
}

// SetSingle loads a single track without starting playback.
func (c *Controller) SetSingle(ctx context.Context, t track.Track) error {
	return c.do(ctx, "set_single", func() error {
		c.load([]track.Track{t}, 0)
		return nil
	})
}

// Play asks the engine to start or resume playback.
func (c *Controller) Play(ctx context.Context) error {
	return c.do(ctx, "play", func() error {
		if len(c.m.queue) > 0 {
			c.engine.Play()
		}
		return nil
	})
}

// Pause asks the engine to pause.
func (c *Controller) Pause(ctx context.Context) error {
	return c.do(ctx, "pause", func() error {
		if len(c.m.queue) > 0 {
			c.engine.Pause()
		}
		return nil
	})
}

// TogglePlayPause pauses when playing and plays otherwise.
func (c *Controller) TogglePlayPause(ctx context.Context) error {
	return c.do(ctx, "toggle", func() error {
		if len(c.m.queue) == 0 {
			return nil
		}
		if c.m.playing {
			c.engine.Pause()
		} else {
			c.engine.Play()
		}
		return nil
	})
}

// SeekTo moves within the current track. The position is clamped to the track.
func (c *Controller) SeekTo(ctx context.Context, position time.Duration) error {
	return c.do(ctx, "seek", func() error {
		if len(c.m.queue) == 0 {
			return nil
		}
		position = max(position, 0)
		if c.m.duration > 0 {
			position = min(position, c.m.duration)
		}
		c.m.suppressSkip = true
		c.engine.SeekTo(position)
		c.m.position = position
		return nil
	})
}

// SkipToNext moves to the next track. It is a no-op on the last track.
func (c *Controller) SkipToNext(ctx context.Context) error {
	return c.do(ctx, "skip_next", func() error {
		if c.m.index+1 >= len(c.m.queue) {
			return nil
		}
		c.m.suppressSkip = true
		c.engine.SeekToNext()
		return nil
	})
}

// SkipToPrevious moves to the previous track or restarts the current one.
func (c *Controller) SkipToPrevious(ctx context.Context) error {
	return c.do(ctx, "skip_previous", func() error {
		if len(c.m.queue) == 0 {
			return nil
		}
		c.m.suppressSkip = true
		c.engine.SeekToPrevious()
		return nil
	})
}

// PlayFromQueue jumps to index and plays. Out-of-range indexes are ignored.
func (c *Controller) PlayFromQueue(ctx context.Context, index int) error {
	return c.do(ctx, "play_from_queue", func() error {
		if index < 0 || index >= len(c.m.queue) {
			return nil
		}
		c.m.suppressSkip = true
		c.engine.SeekToIndex(index, 0)
		c.engine.Play()
		c.m.index = index
		c.m.position = 0
		return nil
	})
}

// WaitReady blocks until the engine is connected or ctx is done.
func (c *Controller) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return errors.Mark(ctx.Err(), ErrEngineNotReady)
	case <-c.done:
		return ErrClosed
	}
}

// Close detaches from the engine, stops polling and releases the engine.
// It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		close(c.eventCh)
	})
}

// load replaces the queue and hands it to the engine without playing.
// Must be called from the loop goroutine with the engine attached.
func (c *Controller) load(tracks []track.Track, startIndex int) {
	c.m.replace(tracks, startIndex)
	items := make([]MediaItem, len(c.m.queue))
	for i, t := range c.m.queue {
		items[i] = ToMediaItem(t)
	}
	c.engine.SetItems(items, startIndex, 0)
	c.engine.Prepare()
	zlog.Debug().Msgf("playback: queue loaded: size=%d start_index=%d", len(items), startIndex)
}

// do submits a command to the loop goroutine and waits for it to finish.
// Commands issued before the engine connects wait for it.
func (c *Controller) do(ctx context.Context, name string, fn func() error) error {
	cmd := command{
		name:   name,
		ctx:    ctx,
		run:    fn,
		result: make(chan error, 1),
	}

	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}

	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) connect(connector Connector) {
	eng, err := connector.Connect(c.ctx)
	select {
	case c.connectCh <- connectResult{engine: eng, err: err}:
	case <-c.ctx.Done():
		if eng != nil {
			eng.Release()
		}
	}
}

func (c *Controller) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.config.PositionRefresh)
	connectTimer := time.NewTimer(c.config.ConnectTimeout)
	defer connectTimer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.teardown(ticker)
			return

		case res := <-c.connectCh:
			c.onConnected(res)

		case <-connectTimer.C:
			if c.engine == nil && c.connectErr == nil {
				c.connectErr = errors.Wrapf(ErrEngineNotReady, "no connection after %v", c.config.ConnectTimeout)
				zlog.Error().Msgf("playback: %v", c.connectErr)
				c.failPending(c.connectErr)
			}

		case cmd := <-c.cmdCh:
			c.dispatchCallbacks()
			switch {
			case c.engine != nil:
				c.execute(cmd)
			case c.connectErr != nil:
				cmd.result <- c.connectErr
			default:
				c.pending = append(c.pending, cmd)
			}

		case <-c.inbox.signal:
			c.dispatchCallbacks()

		case <-ticker.C:
			c.refreshPosition()
		}
	}
}

func (c *Controller) onConnected(res connectResult) {
	if res.err != nil || res.engine == nil {
		err := res.err
		if err == nil {
			err = errors.New("connector returned no engine")
		}
		c.connectErr = errors.Mark(errors.Wrap(err, "failed to connect playback engine"), ErrEngineNotReady)
		zlog.Error().Msgf("playback: %v", c.connectErr)
		c.failPending(c.connectErr)
		return
	}

	c.engine = res.engine
	c.connectErr = nil
	c.engine.AddListener(c.listener)
	close(c.ready)
	zlog.Info().Msgf("playback: engine connected: pending_commands=%d", len(c.pending))

	c.refreshDurationAndIndex()
	c.rebuildQueue()
	c.publish()

	pending := c.pending
	c.pending = nil
	for _, cmd := range pending {
		c.dispatchCallbacks()
		c.execute(cmd)
	}
}

func (c *Controller) execute(cmd command) {
	if err := cmd.ctx.Err(); err != nil {
		cmd.result <- err
		return
	}
	err := cmd.run()
	if err != nil {
		zlog.Debug().Msgf("playback: command failed: name=%s err=%v", cmd.name, err)
	}
	c.publish()
	cmd.result <- err
}

func (c *Controller) failPending(err error) {
	for _, cmd := range c.pending {
		cmd.result <- err
	}
	c.pending = nil
}

// teardown detaches callbacks and stops polling before releasing the engine.
func (c *Controller) teardown(ticker *time.Ticker) {
	if c.engine != nil {
		c.engine.RemoveListener(c.listener)
	}
	c.listener.detach()
	ticker.Stop()
	if c.engine != nil {
		c.engine.Release()
		c.engine = nil
	}
	c.failPending(ErrClosed)
	zlog.Debug().Msg("playback: controller released")
}

func (c *Controller) dispatchCallbacks() {
	fns := c.inbox.drain()
	if len(fns) == 0 || c.engine == nil {
		return
	}
	for _, fn := range fns {
		fn(c)
	}
	c.publish()
}

func (c *Controller) refreshPosition() {
	if c.engine == nil {
		return
	}
	pos := c.engine.CurrentPosition()
	if pos == c.m.position {
		return
	}
	c.m.position = pos
	c.publish()
}

func (c *Controller) refreshDurationAndIndex() {
	c.m.duration = max(c.engine.CurrentDuration(), 0)
	if idx := c.engine.CurrentItemIndex(); idx >= 0 && idx < len(c.m.queue) {
		c.m.index = idx
	}
}

// rebuildQueue re-reads the item list from the engine, falling back to
// item metadata for ids the known queue does not contain.
func (c *Controller) rebuildQueue() {
	n := c.engine.ItemCount()
	if n == 0 {
		return
	}
	queue := make([]track.Track, 0, n)
	for i := 0; i < n; i++ {
		item, ok := c.engine.ItemAt(i)
		if !ok {
			continue
		}
		if t, known := c.m.byItemID[item.ID]; known {
			queue = append(queue, t)
		} else {
			queue = append(queue, fallbackTrack(item))
		}
	}
	if len(queue) == 0 {
		return
	}
	c.m.queue = queue
	if idx := c.engine.CurrentItemIndex(); idx >= 0 && idx < len(queue) {
		c.m.index = idx
	} else if c.m.index >= len(queue) {
		c.m.index = len(queue) - 1
	}
	if c.m.state == StateIdle {
		c.m.state = StateLoaded
	}
}

func (c *Controller) handleTimelineChanged() {
	c.rebuildQueue()
	c.m.duration = max(c.engine.CurrentDuration(), 0)
}

func (c *Controller) handlePlayingChanged(playing bool) {
	c.m.playing = playing
	switch {
	case playing:
		c.m.state = StatePlaying
	case c.m.state == StatePlaying:
		c.m.state = StatePaused
	}
}

func (c *Controller) handleStateChanged(state EngineState) {
	if state == EngineEnded {
		if t, ok := c.m.current(); ok {
			c.completeOnce(t)
			c.m.state = StateEnded
		}
	}
	c.refreshDurationAndIndex()
}

func (c *Controller) handleItemTransition(itemID string, reason TransitionReason) {
	idx := c.m.indexOf(itemID)
	if idx < 0 {
		// Left over from a queue that has since been replaced
		zlog.Debug().Msgf("playback: ignoring transition to unknown item: item_id=%s reason=%s", itemID, reason)
		return
	}
	// The model may already point at itemID when a discontinuity arrived first
	if prev, ok := c.m.current(); ok && reason == TransitionAuto && ItemID(prev) != itemID {
		c.completeOnce(prev)
	}
	c.m.duration = max(c.engine.CurrentDuration(), 0)
	c.m.index = idx
	if c.m.state == StateEnded {
		c.m.state = StateLoaded
	}
	if c.m.playing {
		c.m.state = StatePlaying
	}
}

func (c *Controller) handleDiscontinuity(oldPos, newPos Position, reason DiscontinuityReason) {
	if reason == DiscontinuitySeek && oldPos.Index != newPos.Index {
		if c.m.suppressSkip {
			c.m.suppressSkip = false
		} else if item, ok := c.engine.ItemAt(oldPos.Index); ok {
			if t, known := c.m.byItemID[item.ID]; known && oldPos.Offset < c.config.SkipThreshold {
				c.emit(EventTrackSkipped, t)
			}
		}
	}
	if reason == DiscontinuityAutoTransition && oldPos.Index != newPos.Index {
		// Resolved through the engine's item so a stale index cannot name another track
		if item, ok := c.engine.ItemAt(oldPos.Index); ok {
			if i := c.m.indexOf(item.ID); i >= 0 {
				c.completeOnce(c.m.queue[i])
			}
		}
	}
	c.m.duration = max(c.engine.CurrentDuration(), 0)
	if newPos.Index >= 0 && newPos.Index < len(c.m.queue) {
		c.m.index = newPos.Index
	}
}

func (c *Controller) completeOnce(t track.Track) {
	id := ItemID(t)
	if c.m.lastCompletedID == id {
		return
	}
	c.m.lastCompletedID = id
	c.emit(EventTrackCompleted, t)
}

// emit delivers a play intent. Intents are never dropped while the controller is open.
func (c *Controller) emit(typ EventType, t track.Track) {
	zlog.Debug().Msgf("playback: %s: track_id=%d title=%s", typ, t.ID, t.Title)
	select {
	case c.eventCh <- Event{Type: typ, Track: t, Snapshot: *c.m.snapshot(c.engine != nil)}:
	case <-c.ctx.Done():
	}
}

// publish stores a fresh snapshot and notifies without blocking.
func (c *Controller) publish() {
	s := c.m.snapshot(c.engine != nil)
	c.snapshot.Store(s)
	select {
	case c.eventCh <- Event{Type: EventStateChanged, Snapshot: *s}:
	default:
		// Readers can always load the latest snapshot
	}
}
