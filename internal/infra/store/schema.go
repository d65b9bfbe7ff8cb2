package store

import (
	"database/sql"

	"github.com/cockroachdb/errors"
)

const currentSchemaVersion = 3

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT,
			album TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			source_uri TEXT NOT NULL,
			added_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title);

		CREATE TABLE IF NOT EXISTS play_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER NOT NULL,
			played_at INTEGER NOT NULL,
			action TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_play_events_action_time ON play_events(action, played_at);

		CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id INTEGER NOT NULL,
			track_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (playlist_id, track_id)
		);
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	// Migration: version 1 databases have no favorite flag
	hasFavorite, err := hasColumn(db, "tracks", "is_favorite")
	if err != nil {
		return err
	}
	if !hasFavorite {
		if _, err := db.Exec(`ALTER TABLE tracks ADD COLUMN is_favorite INTEGER NOT NULL DEFAULT 0`); err != nil {
			return errors.Wrap(err, "failed to add is_favorite column")
		}
	}

	_, err = db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
	return errors.Wrap(err, "failed to record schema version")
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, errors.Wrapf(err, "failed to inspect table %s", table)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, errors.Wrap(err, "failed to scan column name")
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
