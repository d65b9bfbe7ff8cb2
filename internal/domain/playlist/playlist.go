// Package playlist provides the Playlist domain entity.
package playlist

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/scenebox/internal/domain/track"
)

// MaxNameLength bounds playlist names.
const MaxNameLength = 100

// ErrInvalidName is returned for blank or overlong playlist names.
var ErrInvalidName = errors.New("invalid playlist name")

// Playlist is a named, ordered selection of catalog tracks.
type Playlist struct {
	ID        int64         // Storage id
	Name      string        // Display name
	CreatedAt time.Time     // Creation time, newest playlists list first
	Tracks    []track.Track // Tracks in play order
}

// NormalizeName trims name and rejects empty or overlong values.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.Wrap(ErrInvalidName, "name is empty")
	}
	if len([]rune(name)) > MaxNameLength {
		return "", errors.Wrapf(ErrInvalidName, "name exceeds %d characters", MaxNameLength)
	}
	return name, nil
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []int64 {
	ids := make([]int64, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the summed duration of all tracks.
// Tracks with unknown duration contribute nothing.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}
