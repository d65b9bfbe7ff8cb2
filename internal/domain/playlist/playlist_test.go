package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/scenebox/internal/domain/track"
)

func TestPlaylist_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []int64
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: []int64{},
		},
		{
			name:     "single track",
			tracks:   []track.Track{{ID: 1}},
			expected: []int64{1},
		},
		{
			name:     "keeps play order",
			tracks:   []track.Track{{ID: 3}, {ID: 1}, {ID: -7}},
			expected: []int64{3, 1, -7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{ID: 1, Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TrackIDs())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected time.Duration
	}{
		{
			name:     "empty playlist",
			tracks:   nil,
			expected: 0,
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: 1, Duration: 2 * time.Minute},
				{ID: 2, Duration: 3*time.Minute + 30*time.Second},
			},
			expected: 5*time.Minute + 30*time.Second,
		},
		{
			name: "unknown durations count as zero",
			tracks: []track.Track{
				{ID: 1, Duration: 90 * time.Second},
				{ID: 2},
			},
			expected: 90 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{ID: 1, Name: "Test Playlist", Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TotalDuration())
		})
	}
}

func TestNormalizeName(t *testing.T) {
	name, err := NormalizeName("  Late drive  ")
	require.NoError(t, err)
	assert.Equal(t, "Late drive", name)

	_, err = NormalizeName("   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	long := make([]rune, MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = NormalizeName(string(long))
	assert.ErrorIs(t, err, ErrInvalidName)
}
