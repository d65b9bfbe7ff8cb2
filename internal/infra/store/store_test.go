package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTracks() []track.Track {
	added := time.UnixMilli(1_700_000_000_000)
	return []track.Track{
		{ID: 3, Title: "charlie", Artist: "X", SourceURI: "/m/c.mp3", AddedAt: added, Duration: 3 * time.Minute},
		{ID: 1, Title: "Alpha", SourceURI: "/m/a.mp3", AddedAt: added},
		{ID: 2, Title: "bravo", Album: "Y", SourceURI: "/m/b.flac", AddedAt: added, IsFavorite: true},
	}
}

func TestStore_AllTracksOrderedByTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTracks(ctx, sampleTracks()))

	got, err := s.AllTracks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Alpha", got[0].Title)
	assert.Equal(t, "bravo", got[1].Title)
	assert.Equal(t, "charlie", got[2].Title)

	assert.Equal(t, "X", got[2].Artist)
	assert.Equal(t, "", got[0].Artist)
	assert.Equal(t, "Y", got[1].Album)
	assert.Equal(t, 3*time.Minute, got[2].Duration)
	assert.True(t, got[1].IsFavorite)
	assert.Equal(t, int64(1_700_000_000_000), got[0].AddedAt.UnixMilli())
}

func TestStore_UpsertReplacesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTracks(ctx, sampleTracks()))
	require.NoError(t, s.UpsertTracks(ctx, []track.Track{{ID: 1, Title: "Alpha (remaster)", SourceURI: "/m/a.mp3"}}))

	got, err := s.AllTracksSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Alpha (remaster)", got[0].Title)
}

func TestStore_ClearAllTracks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTracks(ctx, sampleTracks()))
	_, err := s.LogEvent(ctx, playevent.New(1, playevent.ActionStart, time.Now()))
	require.NoError(t, err)

	require.NoError(t, s.ClearAllTracks(ctx))

	got, err := s.AllTracks(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Events survive a catalog clear
	events, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_Favorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTracks(ctx, sampleTracks()))

	favs, err := s.FavoriteTrackIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{2: {}}, favs)

	require.NoError(t, s.UpdateFavorite(ctx, 3, true))
	require.NoError(t, s.UpdateFavorite(ctx, 2, false))

	favs, err = s.FavoriteTrackIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{3: {}}, favs)

	tr, err := s.Track(ctx, 3)
	require.NoError(t, err)
	assert.True(t, tr.IsFavorite)
}

func TestStore_UnknownTrack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateFavorite(ctx, 42, true)
	assert.ErrorIs(t, err, ErrTrackNotFound)

	_, err = s.Track(ctx, 42)
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestStore_EventAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.UnixMilli(1_700_000_000_000)
	old := now.Add(-8 * 24 * time.Hour)
	recent := now.Add(-2 * time.Hour)
	lastWeek := now.Add(-3 * 24 * time.Hour)

	events := []playevent.Event{
		playevent.New(1, playevent.ActionStart, old),
		playevent.New(1, playevent.ActionStart, lastWeek),
		playevent.New(1, playevent.ActionStart, recent),
		playevent.New(2, playevent.ActionStart, lastWeek),
		playevent.New(2, playevent.ActionSkip, lastWeek),
		playevent.New(2, playevent.ActionSkip, recent),
		playevent.New(3, playevent.ActionPause, recent),
		playevent.New(3, playevent.ActionComplete, recent),
	}
	for _, e := range events {
		_, err := s.LogEvent(ctx, e)
		require.NoError(t, err)
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	starts, err := s.StartCountsSince(ctx, weekAgo)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, starts)

	skips, err := s.SkipCountsSince(ctx, weekAgo)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{2: 2}, skips)

	played, err := s.DistinctStartedTrackIDsSince(ctx, dayAgo)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}}, played)
}

func TestStore_ThresholdIsInclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.UnixMilli(1_700_000_000_000)
	_, err := s.LogEvent(ctx, playevent.New(5, playevent.ActionStart, at))
	require.NoError(t, err)

	starts, err := s.StartCountsSince(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, starts[5])

	starts, err = s.StartCountsSince(ctx, at.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, starts)
}

func TestStore_RecentEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	for i, action := range []playevent.Action{playevent.ActionStart, playevent.ActionPause, playevent.ActionComplete} {
		id, err := s.LogEvent(ctx, playevent.New(7, action, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	events, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, playevent.ActionComplete, events[0].Action)
	assert.Equal(t, playevent.ActionPause, events[1].Action)
	assert.Equal(t, int64(7), events[0].TrackID)
}

func TestStore_WatchTracks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, cancel, err := s.WatchTracks(ctx)
	require.NoError(t, err)
	defer cancel()

	initial := <-ch
	assert.Empty(t, initial)

	require.NoError(t, s.UpsertTracks(ctx, sampleTracks()))
	select {
	case got := <-ch:
		assert.Len(t, got, 3)
	case <-time.After(time.Second):
		t.Fatal("no catalog update delivered")
	}

	// Two unread changes collapse into the newest list
	require.NoError(t, s.UpdateFavorite(ctx, 1, true))
	require.NoError(t, s.ClearAllTracks(ctx))
	got := <-ch
	assert.Empty(t, got)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()
}

func TestStore_MigratesVersionOneDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE tracks (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT,
			album TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			source_uri TEXT NOT NULL,
			added_at INTEGER NOT NULL
		);
		INSERT INTO tracks (id, title, source_uri, added_at) VALUES (1, 'Legacy', '/m/l.mp3', 0);
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := hasColumn(s.db, "tracks", "is_favorite")
	require.NoError(t, err)
	assert.True(t, ok)

	var version int
	require.NoError(t, s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	got, err := s.AllTracks(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Legacy", got[0].Title)
	assert.False(t, got[0].IsFavorite)
}

func TestStore_OpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "scenebox.db")
	s, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
