package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/scenebox/internal/app/notification"
	"github.com/osa030/scenebox/internal/app/playback"
	"github.com/osa030/scenebox/internal/app/scene"
	"github.com/osa030/scenebox/internal/app/session/state"
	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/track"
	"github.com/osa030/scenebox/internal/infra/config"
	"github.com/osa030/scenebox/internal/infra/engine"
	"github.com/osa030/scenebox/internal/infra/library"
	"github.com/osa030/scenebox/internal/infra/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeScanner struct {
	result library.Result
	err    error
}

func (s *fakeScanner) Scan(context.Context) (library.Result, error) {
	return s.result, s.err
}

type recordingStream struct {
	mu  sync.Mutex
	got []*notification.Notification
}

func (s *recordingStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *recordingStream) kinds() map[notification.Kind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(map[notification.Kind]int)
	for _, n := range s.got {
		kinds[n.Kind]++
	}
	return kinds
}

type fixture struct {
	m    *Manager
	repo *store.Store
	sim  *engine.Sim
	now  time.Time
}

func newFixture(t *testing.T, scanner Scanner) *fixture {
	t.Helper()

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Playback.PositionRefreshMs = 50
	cfg.Scene.Timezone = "UTC"

	repo, err := store.OpenMemory()
	require.NoError(t, err)

	sim := engine.NewSim(3*time.Minute, 0, 1)
	connector := playback.ConnectorFunc(func(context.Context) (playback.Engine, error) {
		return sim, nil
	})

	m, err := NewManager(cfg, repo, connector, scanner)
	require.NoError(t, err)

	f := &fixture{
		m:    m,
		repo: repo,
		sim:  sim,
		now:  time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	m.now = func() time.Time { return f.now }

	require.NoError(t, m.Start())
	t.Cleanup(func() {
		m.Close()
		repo.Close()
	})
	require.NoError(t, m.Playback().WaitReady(context.Background()))
	return f
}

func (f *fixture) seed(t *testing.T, tracks ...track.Track) {
	t.Helper()
	require.NoError(t, f.repo.UpsertTracks(context.Background(), tracks))
}

func (f *fixture) events(t *testing.T) []playevent.Event {
	t.Helper()
	events, err := f.repo.RecentEvents(context.Background(), 100)
	require.NoError(t, err)
	// Oldest first reads better in assertions
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events
}

func (f *fixture) waitPlaying(t *testing.T, playing bool) {
	t.Helper()
	require.Eventually(t, func() bool { return f.m.Playback().IsPlaying() == playing }, waitFor, tick)
}

func actions(events []playevent.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action.String()
	}
	return out
}

func catalog() []track.Track {
	return []track.Track{
		{ID: 1, Title: "Alpha", Duration: 10 * time.Second, SourceURI: "/m/a.mp3"},
		{ID: 2, Title: "Bravo", Duration: 10 * time.Second, SourceURI: "/m/b.mp3"},
		{ID: 3, Title: "Charlie", Duration: 10 * time.Second, SourceURI: "/m/c.mp3", IsFavorite: true},
	}
}

func TestManager_PlaySmartQueueEmptyCatalog(t *testing.T) {
	f := newFixture(t, nil)
	stream := &recordingStream{}
	f.m.Notifications().Subscribe(stream)

	queue, err := f.m.PlaySmartQueue(context.Background())
	assert.Nil(t, queue)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Smart queue is empty.", opErr.Message)
	assert.ErrorIs(t, err, ErrSmartQueueEmpty)
	assert.Equal(t, "Smart queue is empty.", f.m.Status().Session.LastError)
	assert.Equal(t, 1, stream.kinds()[notification.KindError])
	assert.Empty(t, f.events(t))
	assert.False(t, f.m.Playback().HasMedia())
}

func TestManager_PlaySmartQueue(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	// Bravo was started recently and often
	for range 3 {
		_, err := f.repo.LogEvent(ctx, playevent.New(2, playevent.ActionStart, f.now.Add(-time.Hour)))
		require.NoError(t, err)
	}

	queue, err := f.m.PlaySmartQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, int64(3), queue[0].ID, "favorite ranks first")
	assert.Equal(t, int64(2), queue[1].ID)

	f.waitPlaying(t, true)
	current, ok := f.m.Playback().CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, int64(3), current.ID)

	events := f.events(t)
	last := events[len(events)-1]
	assert.Equal(t, playevent.ActionStart, last.Action)
	assert.Equal(t, int64(3), last.TrackID)
	assert.Equal(t, queue, f.m.Status().SmartQueue)
}

func TestManager_CompletedTracksAreLogged(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)

	queue, err := f.m.PlaySmartQueue(context.Background())
	require.NoError(t, err)
	f.waitPlaying(t, true)

	f.sim.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		for _, e := range f.events(t) {
			if e.Action == playevent.ActionComplete && e.TrackID == queue[0].ID {
				return true
			}
		}
		return false
	}, waitFor, tick)
	require.Eventually(t, func() bool { return f.m.Playback().CurrentIndex() == 1 }, waitFor, tick)
}

func TestManager_TrackClickedSkipsEarlyLeave(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	require.NoError(t, f.m.TrackClicked(ctx, 1))
	f.waitPlaying(t, true)

	f.sim.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return f.m.Playback().Position() >= 5*time.Second }, waitFor, tick)

	require.NoError(t, f.m.TrackClicked(ctx, 2))
	f.waitPlaying(t, true)

	events := f.events(t)
	assert.Equal(t, []string{"START", "SKIP", "START"}, actions(events))
	assert.Equal(t, int64(1), events[1].TrackID)
	assert.Equal(t, int64(2), events[2].TrackID)

	current, ok := f.m.Playback().CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, int64(2), current.ID)
}

func TestManager_TrackClickedAfterThresholdIsNotSkip(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, track.Track{ID: 1, Title: "Long", Duration: time.Minute}, track.Track{ID: 2, Title: "Other"})
	ctx := context.Background()

	require.NoError(t, f.m.TrackClicked(ctx, 1))
	f.waitPlaying(t, true)

	f.sim.Advance(20 * time.Second)
	require.Eventually(t, func() bool { return f.m.Playback().Position() >= 20*time.Second }, waitFor, tick)

	require.NoError(t, f.m.TrackClicked(ctx, 2))
	assert.Equal(t, []string{"START", "START"}, actions(f.events(t)))
}

func TestManager_TrackClickedSameTrackToggles(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	require.NoError(t, f.m.TrackClicked(ctx, 1))
	f.waitPlaying(t, true)

	require.NoError(t, f.m.TrackClicked(ctx, 1))
	f.waitPlaying(t, false)

	require.NoError(t, f.m.TrackClicked(ctx, 1))
	f.waitPlaying(t, true)

	assert.Equal(t, []string{"START", "PAUSE", "START"}, actions(f.events(t)))
}

func TestManager_TrackClickedUnknownTrack(t *testing.T) {
	f := newFixture(t, nil)

	err := f.m.TrackClicked(context.Background(), 99)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "play track", opErr.Op)
	assert.ErrorIs(t, err, store.ErrTrackNotFound)
	assert.Contains(t, f.m.Status().Session.LastError, "Failed to play track")
}

func TestManager_TogglePlayPauseStartsFirstTrack(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	require.NoError(t, f.m.TogglePlayPause(ctx))
	f.waitPlaying(t, true)

	current, ok := f.m.Playback().CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "Alpha", current.Title, "first track in title order")

	require.NoError(t, f.m.TogglePlayPause(ctx))
	f.waitPlaying(t, false)

	events := f.events(t)
	assert.Equal(t, []string{"START", "PAUSE"}, actions(events))
	assert.Equal(t, int64(1), events[1].TrackID)
}

func TestManager_TogglePlayPauseEmptyCatalog(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.m.TogglePlayPause(context.Background()))
	assert.False(t, f.m.Playback().HasMedia())
	assert.Empty(t, f.events(t))
}

func TestManager_ToggleFavorite(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	fav, err := f.m.ToggleFavorite(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fav)

	fav, err = f.m.ToggleFavorite(ctx, 3)
	require.NoError(t, err)
	assert.False(t, fav)

	ids, err := f.repo.FavoriteTrackIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}}, ids)
}

func TestManager_NavigationPassesThrough(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	_, err := f.m.PlaySmartQueue(ctx)
	require.NoError(t, err)
	f.waitPlaying(t, true)

	require.NoError(t, f.m.Next(ctx))
	require.Eventually(t, func() bool { return f.m.Playback().CurrentIndex() == 1 }, waitFor, tick)

	require.NoError(t, f.m.Previous(ctx))
	require.Eventually(t, func() bool { return f.m.Playback().CurrentIndex() == 0 }, waitFor, tick)

	require.NoError(t, f.m.PlayFromQueue(ctx, 2))
	require.Eventually(t, func() bool { return f.m.Playback().CurrentIndex() == 2 }, waitFor, tick)

	require.NoError(t, f.m.PlayFromQueue(ctx, 42))
	assert.Equal(t, 2, f.m.Playback().CurrentIndex())

	require.NoError(t, f.m.SeekTo(ctx, 4*time.Second))
	require.Eventually(t, func() bool { return f.m.Playback().Position() == 4*time.Second }, waitFor, tick)

	// Navigation is not a skip
	for _, e := range f.events(t) {
		assert.NotEqual(t, playevent.ActionSkip, e.Action)
	}
}

func TestManager_SceneSelection(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, scene.Morning, f.m.CurrentScene())
	f.now = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, scene.Night, f.m.CurrentScene())

	f.m.SelectScene(scene.Commute)
	assert.Equal(t, scene.Commute, f.m.CurrentScene())
	assert.Equal(t, state.SceneManual, f.m.Status().Session.SceneMode)

	f.m.FollowClock()
	assert.Equal(t, scene.Night, f.m.Status().Scene)
}

func TestManager_ScanLibraryPreservesFavorites(t *testing.T) {
	scanner := &fakeScanner{result: library.Result{
		Found:   4,
		Skipped: 1,
		Tracks: []track.Track{
			{ID: 3, Title: "Charlie (rescanned)", SourceURI: "/m/c.mp3"},
			{ID: 4, Title: "Delta", SourceURI: "/m/d.mp3"},
		},
		Rejected: map[string]int{"excluded_path": 1},
	}}
	f := newFixture(t, scanner)
	f.seed(t, catalog()...)
	ctx := context.Background()

	res, err := f.m.ScanLibrary(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 2)

	got, err := f.repo.Track(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Charlie (rescanned)", got.Title)
	assert.True(t, got.IsFavorite)

	all, err := f.m.Tracks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4, "scan upserts without clearing")

	info := f.m.Status().Session
	assert.Equal(t, state.ScanFinished, info.ScanPhase)
	assert.Equal(t, 2, info.LastScan.Imported)
	assert.Equal(t, 1, info.LastScan.Skipped)
	assert.Equal(t, 1, info.LastScan.Rejected)
	assert.Equal(t, f.now, info.LastScan.At)
	assert.False(t, f.m.Scanning())
}

func TestManager_ScanLibraryFailure(t *testing.T) {
	f := newFixture(t, &fakeScanner{err: errors.New("disk gone")})

	_, err := f.m.ScanLibrary(context.Background())
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Failed to scan library: disk gone", opErr.Message)
	assert.Equal(t, state.ScanFailed, f.m.Status().Session.ScanPhase)
}

func TestManager_ScanLibraryWithoutPaths(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.m.ScanLibrary(context.Background())
	assert.ErrorIs(t, err, ErrNoLibraryPaths)
}

func TestManager_ClearLibraryKeepsEvents(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	require.NoError(t, f.m.TrackClicked(ctx, 1))
	require.NoError(t, f.m.ClearLibrary(ctx))

	all, err := f.m.Tracks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	events, err := f.m.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestManager_LibraryChangesAreBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	stream := &recordingStream{}
	f.m.Notifications().Subscribe(stream)

	f.seed(t, catalog()...)

	require.Eventually(t, func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		for _, n := range stream.got {
			if n.Kind != notification.KindLibrary {
				continue
			}
			if n.Payload.(LibraryUpdate) == (LibraryUpdate{TrackCount: 3, FavoriteCount: 1}) {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.m.Close()
	f.m.Close()

	_, err := f.m.RecentEvents(context.Background(), 1)
	assert.NoError(t, err)
}
