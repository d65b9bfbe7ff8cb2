// Package session provides the session manager.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/app/notification"
	"github.com/osa030/scenebox/internal/app/playback"
	"github.com/osa030/scenebox/internal/app/scene"
	"github.com/osa030/scenebox/internal/app/scoring"
	"github.com/osa030/scenebox/internal/app/session/state"
	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/playlist"
	"github.com/osa030/scenebox/internal/domain/track"
	"github.com/osa030/scenebox/internal/infra/config"
	"github.com/osa030/scenebox/internal/infra/library"
)

var (
	ErrSmartQueueEmpty = errors.New("smart queue is empty")
	ErrScanInProgress  = errors.New("library scan already running")
	ErrNoLibraryPaths  = errors.New("no library paths configured")
	ErrPlaylistEmpty   = errors.New("playlist has no playable tracks")
)

// Event windows used to build the smart queue.
const (
	countWindow  = 7 * 24 * time.Hour
	recentWindow = 24 * time.Hour
)

const eventLogTimeout = 5 * time.Second

// Repository is the persistence the session needs.
type Repository interface {
	AllTracks(ctx context.Context) ([]track.Track, error)
	AllTracksSnapshot(ctx context.Context) ([]track.Track, error)
	WatchTracks(ctx context.Context) (<-chan []track.Track, func(), error)
	Track(ctx context.Context, id int64) (track.Track, error)
	FavoriteTrackIDs(ctx context.Context) (map[int64]struct{}, error)
	UpsertTracks(ctx context.Context, tracks []track.Track) error
	ClearAllTracks(ctx context.Context) error
	UpdateFavorite(ctx context.Context, id int64, favorite bool) error

	CreatePlaylist(ctx context.Context, name string, createdAt time.Time, trackIDs []int64) (int64, error)
	AddToPlaylist(ctx context.Context, playlistID int64, trackIDs []int64) error
	Playlists(ctx context.Context) ([]playlist.Playlist, error)
	Playlist(ctx context.Context, id int64) (playlist.Playlist, error)
	DeletePlaylist(ctx context.Context, id int64) error

	LogEvent(ctx context.Context, e playevent.Event) (int64, error)
	RecentEvents(ctx context.Context, limit int) ([]playevent.Event, error)
	StartCountsSince(ctx context.Context, since time.Time) (map[int64]int, error)
	SkipCountsSince(ctx context.Context, since time.Time) (map[int64]int, error)
	DistinctStartedTrackIDsSince(ctx context.Context, since time.Time) (map[int64]struct{}, error)
}

// Scanner discovers tracks in the configured library.
type Scanner interface {
	Scan(ctx context.Context) (library.Result, error)
}

// OpError is a failed user operation. Message is the text shown to the user.
type OpError struct {
	Op      string
	Message string
	Err     error
}

func (e *OpError) Error() string { return e.Message }

func (e *OpError) Unwrap() error { return e.Err }

// Status is a point-in-time view of the session.
type Status struct {
	Session    state.Info
	Scene      scene.Scene // Effective scene
	Playback   playback.Snapshot
	SmartQueue []track.Track // Last generated smart queue
}

// LibraryUpdate is published whenever the catalog changes.
type LibraryUpdate struct {
	TrackCount    int
	FavoriteCount int
}

// Manager orchestrates user intents over the catalog, the play event log
// and the playback controller.
type Manager struct {
	// Serializes user operations
	opMu sync.Mutex

	config *config.Config
	loc    *time.Location

	// Components
	repo         Repository
	scanner      Scanner
	stateMgr     *state.Manager
	playback     *playback.Controller
	scoring      *scoring.Engine
	notification *notification.Manager

	smartMu    sync.RWMutex
	smartQueue []track.Track

	now func() time.Time

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a new session manager. scanner may be nil when no
// library paths are configured.
func NewManager(
	cfg *config.Config,
	repo Repository,
	connector playback.Connector,
	scanner Scanner,
) (*Manager, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	m := &Manager{
		config:  cfg,
		loc:     loc,
		repo:    repo,
		scanner: scanner,
		// Session state uses a random ID like any other session
		stateMgr: state.New(uuid.New().String(), now),
		playback: playback.NewController(playback.Config{
			SkipThreshold:   cfg.Playback.SkipThreshold(),
			PositionRefresh: cfg.Playback.PositionRefresh(),
			ConnectTimeout:  cfg.Playback.ConnectTimeout(),
		}, connector),
		scoring: scoring.New(scoring.Weights{
			FavoriteBonus: cfg.Scoring.FavoriteBonus,
			StartBonus:    cfg.Scoring.StartBonus,
			StartBonusCap: cfg.Scoring.StartBonusCap,
			RecentBonus:   cfg.Scoring.RecentBonus,
			SkipPenalty:   cfg.Scoring.SkipPenalty,
			MaxQueueSize:  cfg.Scoring.MaxQueueSize,
		}),
		notification: notification.NewManager(),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		loopDone:     make(chan struct{}),
	}

	zlog.Info().Msgf("session: created: id=%s timezone=%s", m.stateMgr.GetSessionID(), loc)
	return m, nil
}

// Start begins consuming playback intents and catalog changes.
func (m *Manager) Start() error {
	var err error
	m.startOnce.Do(func() {
		var (
			updates <-chan []track.Track
			stop    func()
		)
		updates, stop, err = m.repo.WatchTracks(m.ctx)
		if err != nil {
			err = errors.Wrap(err, "failed to watch catalog")
			return
		}

		m.started.Store(true)
		go m.playbackLoop()
		m.wg.Go(func() {
			defer stop()
			m.libraryLoop(updates)
		})
		zlog.Info().Msgf("session: started: id=%s", m.stateMgr.GetSessionID())
	})
	return err
}

// Close stops the session. Intents already emitted by the controller are
// logged before Close returns.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.playback.Close()
		if m.started.Load() {
			select {
			case <-m.loopDone:
			case <-time.After(eventLogTimeout):
				zlog.Warn().Msg("session: playback loop did not drain in time")
			}
		}
		m.cancel()
		m.wg.Wait()
		m.notification.Close()
		zlog.Info().Msgf("session: closed: id=%s", m.stateMgr.GetSessionID())
	})
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// Playback returns the playback controller.
func (m *Manager) Playback() *playback.Controller {
	return m.playback
}

// CurrentScene returns the pinned scene, or the scene for now.
func (m *Manager) CurrentScene() scene.Scene {
	if s, pinned := m.stateMgr.GetScene(); pinned {
		return s
	}
	return scene.Resolve(m.now(), m.loc)
}

// SelectScene pins a scene. It only affects future smart queues.
func (m *Manager) SelectScene(s scene.Scene) {
	m.stateMgr.PinScene(s)
	zlog.Info().Msgf("session: scene pinned: scene=%s", s)
	m.publishStatus()
}

// FollowClock returns scene selection to the time of day.
func (m *Manager) FollowClock() {
	m.stateMgr.FollowClock()
	zlog.Info().Msgf("session: scene follows clock: scene=%s", m.CurrentScene())
	m.publishStatus()
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	m.smartMu.RLock()
	queue := m.smartQueue
	m.smartMu.RUnlock()

	return Status{
		Session:    m.stateMgr.BuildInfo(),
		Scene:      m.CurrentScene(),
		Playback:   m.playback.Snapshot(),
		SmartQueue: queue,
	}
}

// Scanning reports whether a library scan is running.
func (m *Manager) Scanning() bool {
	return m.stateMgr.IsScanning()
}

// Tracks returns the catalog ordered by title.
func (m *Manager) Tracks(ctx context.Context) ([]track.Track, error) {
	return m.repo.AllTracks(ctx)
}

// RecentEvents returns the newest play events first.
func (m *Manager) RecentEvents(ctx context.Context, limit int) ([]playevent.Event, error) {
	return m.repo.RecentEvents(ctx, limit)
}

// PlaySmartQueue ranks the catalog for the current scene and plays the
// result from its first track.
func (m *Manager) PlaySmartQueue(ctx context.Context) ([]track.Track, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	now := m.now()
	queue, err := m.generateSmartQueue(ctx, now)
	if err != nil {
		return nil, m.fail("generate smart queue", err)
	}

	m.smartMu.Lock()
	m.smartQueue = queue
	m.smartMu.Unlock()

	if len(queue) == 0 {
		return nil, m.fail("play smart queue", ErrSmartQueueEmpty)
	}
	if err := m.playback.SetQueue(ctx, queue, 0); err != nil {
		return nil, m.fail("play smart queue", err)
	}
	m.logEvent(ctx, queue[0], playevent.ActionStart)
	m.stateMgr.ClearError()

	zlog.Info().Msgf("session: smart queue playing: size=%d first=%s", len(queue), queue[0].Title)
	return queue, nil
}

func (m *Manager) generateSmartQueue(ctx context.Context, now time.Time) ([]track.Track, error) {
	tracks, err := m.repo.AllTracksSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}

	weekAgo := now.Add(-countWindow)
	starts, err := m.repo.StartCountsSince(ctx, weekAgo)
	if err != nil {
		return nil, err
	}
	skips, err := m.repo.SkipCountsSince(ctx, weekAgo)
	if err != nil {
		return nil, err
	}
	recent, err := m.repo.DistinctStartedTrackIDsSince(ctx, now.Add(-recentWindow))
	if err != nil {
		return nil, err
	}

	return m.scoring.GenerateQueue(scoring.Input{
		Tracks:         tracks,
		StartCounts:    starts,
		SkipCounts:     skips,
		PlayedRecently: recent,
		Scene:          m.CurrentScene(),
		Now:            now,
	}), nil
}

// TrackClicked plays a catalog track. Clicking the current track toggles
// play and pause instead.
func (m *Manager) TrackClicked(ctx context.Context, id int64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	t, err := m.repo.Track(ctx, id)
	if err != nil {
		return m.fail("play track", err)
	}

	snap := m.playback.Snapshot()
	prev, hasPrev := snap.CurrentTrack()
	if hasPrev && prev.ID == t.ID {
		return m.togglePlayPause(ctx, prev, snap)
	}

	// Leaving a playing track early counts as a skip
	if hasPrev && snap.IsPlaying && m.playback.Position() < m.config.Playback.SkipThreshold() {
		m.logEvent(ctx, prev, playevent.ActionSkip)
	}

	if err := m.playback.SetSingle(ctx, t); err != nil {
		return m.fail("play track", err)
	}
	if err := m.playback.Play(ctx); err != nil {
		return m.fail("play track", err)
	}
	m.logEvent(ctx, t, playevent.ActionStart)
	return nil
}

// TogglePlayPause toggles the current track. With nothing loaded it
// starts the first catalog track.
func (m *Manager) TogglePlayPause(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	snap := m.playback.Snapshot()
	t, ok := snap.CurrentTrack()
	if !ok {
		tracks, err := m.repo.AllTracksSnapshot(ctx)
		if err != nil {
			return m.fail("toggle playback", err)
		}
		if len(tracks) == 0 {
			return nil
		}
		t = tracks[0]
	}
	return m.togglePlayPause(ctx, t, snap)
}

func (m *Manager) togglePlayPause(ctx context.Context, t track.Track, snap playback.Snapshot) error {
	if len(snap.Queue) == 0 {
		if err := m.playback.SetSingle(ctx, t); err != nil {
			return m.fail("toggle playback", err)
		}
	}

	if snap.IsPlaying {
		if err := m.playback.Pause(ctx); err != nil {
			return m.fail("pause", err)
		}
		m.logEvent(ctx, t, playevent.ActionPause)
		return nil
	}

	if err := m.playback.Play(ctx); err != nil {
		return m.fail("play", err)
	}
	m.logEvent(ctx, t, playevent.ActionStart)
	return nil
}

// ToggleFavorite flips a track's favorite flag and returns the new value.
func (m *Manager) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	t, err := m.repo.Track(ctx, id)
	if err != nil {
		return false, m.fail("update favorite", err)
	}
	if err := m.repo.UpdateFavorite(ctx, id, !t.IsFavorite); err != nil {
		return false, m.fail("update favorite", err)
	}
	zlog.Info().Msgf("session: favorite updated: track_id=%d favorite=%v", id, !t.IsFavorite)
	return !t.IsFavorite, nil
}

// SeekTo moves within the current track.
func (m *Manager) SeekTo(ctx context.Context, position time.Duration) error {
	return m.passThrough(ctx, "seek", func(ctx context.Context) error {
		return m.playback.SeekTo(ctx, position)
	})
}

// Next skips to the next queued track.
func (m *Manager) Next(ctx context.Context) error {
	return m.passThrough(ctx, "skip to next", m.playback.SkipToNext)
}

// Previous restarts the track or goes back one, as the engine decides.
func (m *Manager) Previous(ctx context.Context) error {
	return m.passThrough(ctx, "skip to previous", m.playback.SkipToPrevious)
}

// PlayFromQueue jumps to a queue index. Out-of-range indexes are ignored.
func (m *Manager) PlayFromQueue(ctx context.Context, index int) error {
	return m.passThrough(ctx, "play from queue", func(ctx context.Context) error {
		return m.playback.PlayFromQueue(ctx, index)
	})
}

func (m *Manager) passThrough(ctx context.Context, op string, fn func(context.Context) error) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := fn(ctx); err != nil {
		return m.fail(op, err)
	}
	return nil
}

// ScanLibrary imports every supported file under the library paths.
// Existing favorites survive the import.
func (m *Manager) ScanLibrary(ctx context.Context) (library.Result, error) {
	if m.scanner == nil {
		return library.Result{}, m.fail("scan library", ErrNoLibraryPaths)
	}
	if !m.stateMgr.TryStartScan() {
		return library.Result{}, m.fail("scan library", ErrScanInProgress)
	}
	m.stateMgr.ClearError()
	m.publishStatus()

	res, err := m.scanner.Scan(ctx)
	if err == nil {
		err = m.importTracks(ctx, res.Tracks)
	}
	if err != nil {
		m.stateMgr.FailScan()
		return library.Result{}, m.fail("scan library", err)
	}

	rejected := 0
	for _, n := range res.Rejected {
		rejected += n
	}
	m.stateMgr.FinishScan(state.ScanStats{
		Imported: len(res.Tracks),
		Skipped:  res.Skipped,
		Rejected: rejected,
		At:       m.now(),
	})
	m.publishStatus()

	zlog.Info().Msgf("session: library scanned: found=%d imported=%d skipped=%d rejected=%d",
		res.Found, len(res.Tracks), res.Skipped, rejected)
	return res, nil
}

// ImportFiles imports individual files. Unreadable files are skipped and
// the number of imported tracks is returned.
func (m *Manager) ImportFiles(ctx context.Context, paths []string) (int, error) {
	tracks := make([]track.Track, 0, len(paths))
	for _, p := range paths {
		t, err := library.ReadTrack(p)
		if err != nil {
			zlog.Warn().Msgf("session: import skipped: path=%s err=%v", p, err)
			continue
		}
		tracks = append(tracks, t)
	}

	if err := m.importTracks(ctx, tracks); err != nil {
		return 0, m.fail("import files", err)
	}
	zlog.Info().Msgf("session: files imported: requested=%d imported=%d", len(paths), len(tracks))
	return len(tracks), nil
}

// importTracks upserts tracks while keeping the favorite flag of known ids.
func (m *Manager) importTracks(ctx context.Context, tracks []track.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	favorites, err := m.repo.FavoriteTrackIDs(ctx)
	if err != nil {
		return err
	}
	for i := range tracks {
		if _, ok := favorites[tracks[i].ID]; ok {
			tracks[i].IsFavorite = true
		}
	}
	return m.repo.UpsertTracks(ctx, tracks)
}

// ClearLibrary removes every track. The play event log is kept.
func (m *Manager) ClearLibrary(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.repo.ClearAllTracks(ctx); err != nil {
		return m.fail("clear library", err)
	}
	zlog.Info().Msg("session: library cleared")
	return nil
}

// fail records a user-visible failure and returns it as an OpError.
func (m *Manager) fail(op string, err error) error {
	msg := fmt.Sprintf("Failed to %s: %v", op, err)
	if errors.Is(err, ErrSmartQueueEmpty) {
		msg = "Smart queue is empty."
	}
	zlog.Error().Msgf("session: %s", msg)
	m.stateMgr.SetError(msg)
	m.notification.Publish(notification.KindError, msg)
	return &OpError{Op: op, Message: msg, Err: err}
}

// logEvent appends a play event. Failures are logged and reported but never
// interrupt playback.
func (m *Manager) logEvent(ctx context.Context, t track.Track, action playevent.Action) {
	e := playevent.New(t.ID, action, m.now())
	id, err := m.repo.LogEvent(ctx, e)
	if err != nil {
		zlog.Error().Msgf("session: failed to log play event: track_id=%d action=%s err=%v", t.ID, action, err)
		m.stateMgr.SetError(fmt.Sprintf("Failed to log play event: %v", err))
		return
	}
	e.ID = id
	zlog.Info().Msgf("session: play event: action=%s track_id=%d title=%s", action, t.ID, t.Title)
	m.notification.Publish(notification.KindPlayEvent, e)
}

func (m *Manager) publishStatus() {
	m.notification.Publish(notification.KindStatus, m.Status())
}

// playbackLoop records intents emitted by the controller until its event
// channel closes.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: %v", r)
			// Restart loop so intents keep being drained
			zlog.Info().Msg("session: restarting playback loop")
			go m.playbackLoop()
			return
		}
		close(m.loopDone)
	}()

	for event := range m.playback.Events() {
		m.handlePlaybackEvent(event)
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	switch event.Type {
	case playback.EventTrackCompleted:
		m.logIntent(event.Track, playevent.ActionComplete)

	case playback.EventTrackSkipped:
		m.logIntent(event.Track, playevent.ActionSkip)

	case playback.EventStateChanged:
		m.publishStatus()
	}
}

// logIntent logs an intent with a fresh context so intents emitted during
// shutdown are still recorded.
func (m *Manager) logIntent(t track.Track, action playevent.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), eventLogTimeout)
	defer cancel()
	m.logEvent(ctx, t, action)
}

// libraryLoop publishes catalog changes.
func (m *Manager) libraryLoop(updates <-chan []track.Track) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case tracks, ok := <-updates:
			if !ok {
				return
			}
			update := LibraryUpdate{TrackCount: len(tracks)}
			for _, t := range tracks {
				if t.IsFavorite {
					update.FavoriteCount++
				}
			}
			zlog.Debug().Msgf("session: catalog changed: tracks=%d favorites=%d", update.TrackCount, update.FavoriteCount)
			m.notification.Publish(notification.KindLibrary, update)
		}
	}
}
