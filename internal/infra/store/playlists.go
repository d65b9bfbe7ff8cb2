package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/domain/playlist"
	"github.com/osa030/scenebox/internal/domain/track"
)

// ErrPlaylistNotFound is returned when a playlist id does not exist.
var ErrPlaylistNotFound = errors.New("playlist not found")

// CreatePlaylist stores a playlist with the given tracks in order and returns its id.
// Repeated track ids keep their first position.
func (s *Store) CreatePlaylist(ctx context.Context, name string, createdAt time.Time, trackIDs []int64) (int64, error) {
	var id int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO playlists (name, created_at) VALUES (?, ?)`,
			name, createdAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return insertPlaylistTracks(ctx, tx, id, 0, trackIDs)
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to create playlist")
	}

	zlog.Debug().Msgf("store: playlist created: id=%d name=%s tracks=%d", id, name, len(trackIDs))
	return id, nil
}

// AddToPlaylist appends tracks after the playlist's current last entry.
func (s *Store) AddToPlaylist(ctx context.Context, playlistID int64, trackIDs []int64) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var next sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT MAX(position) + 1 FROM playlist_tracks WHERE playlist_id = p.id)
			FROM playlists p WHERE p.id = ?
		`, playlistID).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrPlaylistNotFound, "playlist %d", playlistID)
		}
		if err != nil {
			return err
		}
		return insertPlaylistTracks(ctx, tx, playlistID, next.Int64, trackIDs)
	})
	return errors.Wrap(err, "failed to add to playlist")
}

func insertPlaylistTracks(ctx context.Context, tx *sql.Tx, playlistID, start int64, trackIDs []int64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, trackID := range trackIDs {
		if _, err := stmt.ExecContext(ctx, playlistID, trackID, start+int64(i)); err != nil {
			return errors.Wrapf(err, "track %d", trackID)
		}
	}
	return nil
}

// Playlists returns every playlist, newest first, with its tracks.
func (s *Store) Playlists(ctx context.Context) ([]playlist.Playlist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM playlists ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlists")
	}

	lists := make([]playlist.Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan playlist")
		}
		lists = append(lists, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, errors.Wrap(err, "failed to iterate playlists")
	}

	// The connection is free again once rows is closed
	for i := range lists {
		if lists[i].Tracks, err = s.playlistTracks(ctx, lists[i].ID); err != nil {
			return nil, err
		}
	}
	return lists, nil
}

// Playlist returns one playlist with its tracks.
func (s *Store) Playlist(ctx context.Context, id int64) (playlist.Playlist, error) {
	p, err := scanPlaylist(s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM playlists WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return playlist.Playlist{}, errors.Wrapf(ErrPlaylistNotFound, "playlist %d", id)
	}
	if err != nil {
		return playlist.Playlist{}, errors.Wrap(err, "failed to query playlist")
	}

	if p.Tracks, err = s.playlistTracks(ctx, id); err != nil {
		return playlist.Playlist{}, err
	}
	return p, nil
}

// DeletePlaylist removes a playlist and its entries. Tracks stay in the catalog.
func (s *Store) DeletePlaylist(ctx context.Context, id int64) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.Wrapf(ErrPlaylistNotFound, "playlist %d", id)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM playlist_tracks WHERE playlist_id = ?`, id)
		return err
	})
	return errors.Wrap(err, "failed to delete playlist")
}

// playlistTracks joins entries against the catalog, so entries whose
// track was cleared are skipped until the track is imported again.
func (s *Store) playlistTracks(ctx context.Context, id int64) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.artist, t.album, t.duration_ms, t.source_uri, t.added_at, t.is_favorite
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlist tracks")
	}
	defer rows.Close()
	return collectTracks(rows)
}

func scanPlaylist(row rowScanner) (playlist.Playlist, error) {
	var (
		p           playlist.Playlist
		createdAtMs int64
	)
	if err := row.Scan(&p.ID, &p.Name, &createdAtMs); err != nil {
		return playlist.Playlist{}, err
	}
	p.CreatedAt = time.UnixMilli(createdAtMs)
	return p, nil
}
