// Package store persists the track catalog, playlists and play events in SQLite.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/track"
)

// Store is the SQLite-backed event repository.
type Store struct {
	db *sql.DB

	subsMu sync.Mutex
	subs   map[int]chan []track.Track
	nextID int
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	zlog.Debug().Msgf("store: database opened: path=%s", path)
	return &Store{
		db:   db,
		subs: make(map[int]chan []track.Track),
	}, nil
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes every subscription and the database.
func (s *Store) Close() error {
	s.subsMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	return s.db.Close()
}

// WatchTracks streams the catalog ordered by title. The current list is
// delivered immediately; later lists follow every catalog change. Slow
// readers only see the latest list. The returned func cancels the stream.
func (s *Store) WatchTracks(ctx context.Context) (<-chan []track.Track, func(), error) {
	initial, err := s.AllTracks(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []track.Track, 1)
	ch <- initial

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

// notifyTracks publishes the current catalog to every watcher.
func (s *Store) notifyTracks(ctx context.Context) {
	s.subsMu.Lock()
	n := len(s.subs)
	s.subsMu.Unlock()
	if n == 0 {
		return
	}

	tracks, err := s.AllTracks(ctx)
	if err != nil {
		zlog.Error().Msgf("store: failed to reload tracks for watchers: %v", err)
		return
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		// Replace any unread list with the newest one
		select {
		case <-ch:
		default:
		}
		ch <- tracks
	}
}

// AllTracks returns the catalog ordered by title.
func (s *Store) AllTracks(ctx context.Context) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, artist, album, duration_ms, source_uri, added_at, is_favorite
		FROM tracks
		ORDER BY title COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracks")
	}
	defer rows.Close()

	return collectTracks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTrack reads the eight catalog columns in table order.
func scanTrack(row rowScanner) (track.Track, error) {
	var (
		t          track.Track
		artist     sql.NullString
		album      sql.NullString
		durationMs int64
		addedAtMs  int64
	)
	if err := row.Scan(&t.ID, &t.Title, &artist, &album, &durationMs, &t.SourceURI, &addedAtMs, &t.IsFavorite); err != nil {
		return track.Track{}, err
	}
	t.Artist = nullStringValue(artist)
	t.Album = nullStringValue(album)
	t.Duration = time.Duration(durationMs) * time.Millisecond
	t.AddedAt = time.UnixMilli(addedAtMs)
	return t, nil
}

func collectTracks(rows *sql.Rows) ([]track.Track, error) {
	tracks := make([]track.Track, 0)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan track")
		}
		tracks = append(tracks, t)
	}
	return tracks, errors.Wrap(rows.Err(), "failed to iterate tracks")
}

// AllTracksSnapshot returns the catalog for a single scoring run.
func (s *Store) AllTracksSnapshot(ctx context.Context) ([]track.Track, error) {
	return s.AllTracks(ctx)
}

// FavoriteTrackIDs returns the ids of every favorite track.
func (s *Store) FavoriteTrackIDs(ctx context.Context) (map[int64]struct{}, error) {
	return s.idSet(ctx, `SELECT id FROM tracks WHERE is_favorite = 1`)
}

// UpsertTracks inserts or replaces tracks by id.
func (s *Store) UpsertTracks(ctx context.Context, tracks []track.Track) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tracks (id, title, artist, album, duration_ms, source_uri, added_at, is_favorite)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				artist = excluded.artist,
				album = excluded.album,
				duration_ms = excluded.duration_ms,
				source_uri = excluded.source_uri,
				added_at = excluded.added_at,
				is_favorite = excluded.is_favorite
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tracks {
			if _, err := stmt.ExecContext(ctx,
				t.ID, t.Title, nullString(t.Artist), nullString(t.Album),
				t.Duration.Milliseconds(), t.SourceURI, t.AddedAt.UnixMilli(), t.IsFavorite,
			); err != nil {
				return errors.Wrapf(err, "track %d", t.ID)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to upsert tracks")
	}

	s.notifyTracks(ctx)
	return nil
}

// ClearAllTracks removes the whole catalog. Play events are kept.
func (s *Store) ClearAllTracks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracks`); err != nil {
		return errors.Wrap(err, "failed to clear tracks")
	}
	s.notifyTracks(ctx)
	return nil
}

// UpdateFavorite sets the favorite flag of one track.
func (s *Store) UpdateFavorite(ctx context.Context, id int64, favorite bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tracks SET is_favorite = ? WHERE id = ?`, favorite, id)
	if err != nil {
		return errors.Wrap(err, "failed to update favorite")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrTrackNotFound, "track %d", id)
	}
	s.notifyTracks(ctx)
	return nil
}

// Track returns one track by id.
func (s *Store) Track(ctx context.Context, id int64) (track.Track, error) {
	t, err := scanTrack(s.db.QueryRowContext(ctx, `
		SELECT id, title, artist, album, duration_ms, source_uri, added_at, is_favorite
		FROM tracks WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return track.Track{}, errors.Wrapf(ErrTrackNotFound, "track %d", id)
	}
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to query track")
	}
	return t, nil
}

// ErrTrackNotFound is returned when a track id is not in the catalog.
var ErrTrackNotFound = errors.New("track not found")

// LogEvent appends a play event and returns its storage id.
func (s *Store) LogEvent(ctx context.Context, e playevent.Event) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO play_events (track_id, played_at, action) VALUES (?, ?, ?)`,
		e.TrackID, e.Timestamp.UnixMilli(), e.Action.String(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to log play event")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read play event id")
	}
	return id, nil
}

// RecentEvents returns the newest play events first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]playevent.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, track_id, played_at, action
		FROM play_events
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query play events")
	}
	defer rows.Close()

	events := make([]playevent.Event, 0, limit)
	for rows.Next() {
		var (
			e      playevent.Event
			atMs   int64
			action string
		)
		if err := rows.Scan(&e.ID, &e.TrackID, &atMs, &action); err != nil {
			return nil, errors.Wrap(err, "failed to scan play event")
		}
		e.Timestamp = time.UnixMilli(atMs)
		if e.Action, err = playevent.ParseAction(action); err != nil {
			zlog.Warn().Msgf("store: skipping play event with unknown action: id=%d action=%s", e.ID, action)
			continue
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "failed to iterate play events")
}

// StartCountsSince counts START events per track since t.
func (s *Store) StartCountsSince(ctx context.Context, t time.Time) (map[int64]int, error) {
	return s.countsSince(ctx, playevent.ActionStart, t)
}

// SkipCountsSince counts SKIP events per track since t.
func (s *Store) SkipCountsSince(ctx context.Context, t time.Time) (map[int64]int, error) {
	return s.countsSince(ctx, playevent.ActionSkip, t)
}

// DistinctStartedTrackIDsSince returns every track with a START since t.
func (s *Store) DistinctStartedTrackIDsSince(ctx context.Context, t time.Time) (map[int64]struct{}, error) {
	return s.idSet(ctx,
		`SELECT DISTINCT track_id FROM play_events WHERE action = ? AND played_at >= ?`,
		playevent.ActionStart.String(), t.UnixMilli(),
	)
}

func (s *Store) countsSince(ctx context.Context, action playevent.Action, t time.Time) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, COUNT(*)
		FROM play_events
		WHERE action = ? AND played_at >= ?
		GROUP BY track_id
	`, action.String(), t.UnixMilli())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count %s events", action)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			id    int64
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan count")
		}
		counts[id] = count
	}
	return counts, errors.Wrap(rows.Err(), "failed to iterate counts")
}

func (s *Store) idSet(ctx context.Context, query string, args ...any) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query ids")
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan id")
		}
		ids[id] = struct{}{}
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate ids")
}
