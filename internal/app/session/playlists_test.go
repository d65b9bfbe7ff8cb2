package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/playlist"
	"github.com/osa030/scenebox/internal/infra/store"
)

func TestManager_CreatePlaylist(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	p, err := f.m.CreatePlaylist(ctx, "  Drive  ", []int64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, "Drive", p.Name)
	assert.Equal(t, []int64{2, 1}, p.TrackIDs())
	assert.Equal(t, f.now.UnixMilli(), p.CreatedAt.UnixMilli())

	_, err = f.m.CreatePlaylist(ctx, "Broken", []int64{1, 99})
	assert.ErrorIs(t, err, store.ErrTrackNotFound)

	_, err = f.m.CreatePlaylist(ctx, " ", []int64{1})
	assert.ErrorIs(t, err, playlist.ErrInvalidName)

	lists, err := f.m.Playlists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
}

func TestManager_CreatePlaylistFromSmartQueue(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	_, err := f.m.CreatePlaylist(ctx, "Nothing yet", nil)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Smart queue is empty.", opErr.Message)

	queue, err := f.m.PlaySmartQueue(ctx)
	require.NoError(t, err)

	p, err := f.m.CreatePlaylist(ctx, "Morning picks", nil)
	require.NoError(t, err)
	require.Len(t, p.Tracks, len(queue))
	for i := range queue {
		assert.Equal(t, queue[i].ID, p.Tracks[i].ID)
	}
}

func TestManager_PlayPlaylist(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	p, err := f.m.CreatePlaylist(ctx, "Reverse", []int64{3, 2, 1})
	require.NoError(t, err)

	_, err = f.m.PlayPlaylist(ctx, p.ID)
	require.NoError(t, err)
	f.waitPlaying(t, true)

	snap := f.m.Playback().Snapshot()
	require.Len(t, snap.Queue, 3)
	current, ok := snap.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, int64(3), current.ID)

	events := f.events(t)
	require.NotEmpty(t, events)
	assert.Equal(t, playevent.ActionStart, events[len(events)-1].Action)
	assert.Equal(t, int64(3), events[len(events)-1].TrackID)
}

func TestManager_PlayPlaylistErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	_, err := f.m.PlayPlaylist(ctx, 42)
	assert.ErrorIs(t, err, store.ErrPlaylistNotFound)

	p, err := f.m.CreatePlaylist(ctx, "Soon empty", []int64{1})
	require.NoError(t, err)
	require.NoError(t, f.m.ClearLibrary(ctx))

	_, err = f.m.PlayPlaylist(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPlaylistEmpty)
	assert.False(t, f.m.Playback().HasMedia())
}

func TestManager_AddAndDeletePlaylist(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, catalog()...)
	ctx := context.Background()

	p, err := f.m.CreatePlaylist(ctx, "Grow", []int64{1})
	require.NoError(t, err)

	p, err = f.m.AddToPlaylist(ctx, p.ID, []int64{3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, p.TrackIDs())

	_, err = f.m.AddToPlaylist(ctx, p.ID, []int64{77})
	assert.ErrorIs(t, err, store.ErrTrackNotFound)

	require.NoError(t, f.m.DeletePlaylist(ctx, p.ID))
	assert.ErrorIs(t, f.m.DeletePlaylist(ctx, p.ID), store.ErrPlaylistNotFound)

	tracks, err := f.m.Tracks(ctx)
	require.NoError(t, err)
	assert.Len(t, tracks, 3)
}
