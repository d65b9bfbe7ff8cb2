// Package track provides the Track domain entity.
package track

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Track represents a playable item in the local catalog.
// Storage owns tracks; everything else holds read-only copies.
type Track struct {
	ID         int64         // Catalog id; imported files use LocalID
	Title      string        // Track title
	Artist     string        // Artist name (optional)
	Album      string        // Album name (optional)
	Duration   time.Duration // Track duration (0 when unknown)
	SourceURI  string        // Location the engine loads from
	AddedAt    time.Time     // Time the track entered the catalog
	IsFavorite bool          // Favorite flag, the only mutable field
}

// supportedExtensions lists file extensions accepted regardless of MIME type.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".aac":  true,
}

// LocalID derives the id of an imported item from its source URI.
// The result is always negative so it cannot collide with catalog ids.
func LocalID(sourceURI string) int64 {
	id := int64(xxhash.Sum64String(sourceURI) & math.MaxInt64)
	if id == 0 {
		id = 1
	}
	return -id
}

// IsSupportedAudio reports whether a file with the given name and MIME type can be imported.
func IsSupportedAudio(name, mimeType string) bool {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return true
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// TitleFromPath returns the file name without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Contains reports whether tracks holds a track with the given id.
func Contains(tracks []Track, id int64) bool {
	for _, t := range tracks {
		if t.ID == id {
			return true
		}
	}
	return false
}
