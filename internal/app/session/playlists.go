package session

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/playlist"
)

// Playlists returns saved playlists, newest first.
func (m *Manager) Playlists(ctx context.Context) ([]playlist.Playlist, error) {
	return m.repo.Playlists(ctx)
}

// CreatePlaylist saves trackIDs under name. With no ids the last smart
// queue is saved instead.
func (m *Manager) CreatePlaylist(ctx context.Context, name string, trackIDs []int64) (playlist.Playlist, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	name, err := playlist.NormalizeName(name)
	if err != nil {
		return playlist.Playlist{}, m.fail("create playlist", err)
	}

	if len(trackIDs) == 0 {
		m.smartMu.RLock()
		for _, t := range m.smartQueue {
			trackIDs = append(trackIDs, t.ID)
		}
		m.smartMu.RUnlock()
		if len(trackIDs) == 0 {
			return playlist.Playlist{}, m.fail("create playlist", ErrSmartQueueEmpty)
		}
	}
	if err := m.checkTracks(ctx, trackIDs); err != nil {
		return playlist.Playlist{}, m.fail("create playlist", err)
	}

	id, err := m.repo.CreatePlaylist(ctx, name, m.now(), trackIDs)
	if err != nil {
		return playlist.Playlist{}, m.fail("create playlist", err)
	}
	p, err := m.repo.Playlist(ctx, id)
	if err != nil {
		return playlist.Playlist{}, m.fail("create playlist", err)
	}

	zlog.Info().Msgf("session: playlist created: id=%d name=%s tracks=%d", p.ID, p.Name, len(p.Tracks))
	return p, nil
}

// AddToPlaylist appends catalog tracks to a playlist.
func (m *Manager) AddToPlaylist(ctx context.Context, id int64, trackIDs []int64) (playlist.Playlist, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.checkTracks(ctx, trackIDs); err != nil {
		return playlist.Playlist{}, m.fail("add to playlist", err)
	}
	if err := m.repo.AddToPlaylist(ctx, id, trackIDs); err != nil {
		return playlist.Playlist{}, m.fail("add to playlist", err)
	}
	p, err := m.repo.Playlist(ctx, id)
	if err != nil {
		return playlist.Playlist{}, m.fail("add to playlist", err)
	}
	return p, nil
}

// PlayPlaylist queues a playlist and plays it from the first track.
func (m *Manager) PlayPlaylist(ctx context.Context, id int64) (playlist.Playlist, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	p, err := m.repo.Playlist(ctx, id)
	if err != nil {
		return playlist.Playlist{}, m.fail("play playlist", err)
	}
	if len(p.Tracks) == 0 {
		return playlist.Playlist{}, m.fail("play playlist", ErrPlaylistEmpty)
	}
	if err := m.playback.SetQueue(ctx, p.Tracks, 0); err != nil {
		return playlist.Playlist{}, m.fail("play playlist", err)
	}
	m.logEvent(ctx, p.Tracks[0], playevent.ActionStart)
	m.stateMgr.ClearError()

	zlog.Info().Msgf("session: playlist playing: id=%d name=%s size=%d", p.ID, p.Name, len(p.Tracks))
	return p, nil
}

// DeletePlaylist removes a playlist. Its tracks stay in the catalog.
func (m *Manager) DeletePlaylist(ctx context.Context, id int64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.repo.DeletePlaylist(ctx, id); err != nil {
		return m.fail("delete playlist", err)
	}
	zlog.Info().Msgf("session: playlist deleted: id=%d", id)
	return nil
}

func (m *Manager) checkTracks(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := m.repo.Track(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
