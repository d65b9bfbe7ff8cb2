package playback

import (
	"context"
	"strconv"
	"time"

	"github.com/osa030/scenebox/internal/domain/track"
)

// EngineState is the coarse playback state reported by an Engine.
type EngineState int

const (
	EngineIdle EngineState = iota
	EngineBuffering
	EngineReady
	EngineEnded
)

// String returns the string representation of the engine state.
func (s EngineState) String() string {
	switch s {
	case EngineIdle:
		return "idle"
	case EngineBuffering:
		return "buffering"
	case EngineReady:
		return "ready"
	case EngineEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// TransitionReason explains why the engine moved to another item.
type TransitionReason int

const (
	TransitionAuto            TransitionReason = iota // Previous item finished
	TransitionSeek                                    // Seek to another item
	TransitionRepeat                                  // Item repeated
	TransitionPlaylistChanged                         // Item list replaced
)

// String returns the string representation of the transition reason.
func (r TransitionReason) String() string {
	switch r {
	case TransitionAuto:
		return "auto"
	case TransitionSeek:
		return "seek"
	case TransitionRepeat:
		return "repeat"
	case TransitionPlaylistChanged:
		return "playlist_changed"
	default:
		return "unknown"
	}
}

// DiscontinuityReason explains a position jump.
type DiscontinuityReason int

const (
	DiscontinuityAutoTransition DiscontinuityReason = iota
	DiscontinuitySeek
	DiscontinuityRemove
	DiscontinuityInternal
)

// String returns the string representation of the discontinuity reason.
func (r DiscontinuityReason) String() string {
	switch r {
	case DiscontinuityAutoTransition:
		return "auto_transition"
	case DiscontinuitySeek:
		return "seek"
	case DiscontinuityRemove:
		return "remove"
	case DiscontinuityInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Position identifies a point in the engine's item list.
type Position struct {
	Index  int
	Offset time.Duration
}

// MediaItem is the engine-side representation of a track.
type MediaItem struct {
	ID       string
	URI      string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration // Catalog length hint, 0 when unknown
}

// Listener receives asynchronous engine callbacks.
// Implementations must not block.
type Listener interface {
	OnPlayingChanged(playing bool)
	OnStateChanged(state EngineState)
	OnItemTransition(itemID string, reason TransitionReason) // itemID is empty when no item is current
	OnPositionDiscontinuity(oldPos, newPos Position, reason DiscontinuityReason)
	OnTimelineChanged()
}

// Engine is the external player that decodes and outputs audio.
// Commands are requests; their effects are reported through Listener callbacks.
type Engine interface {
	SetItems(items []MediaItem, startIndex int, startPosition time.Duration)
	Prepare()
	Play()
	Pause()
	SeekTo(position time.Duration)
	SeekToNext()
	SeekToPrevious()
	SeekToIndex(index int, position time.Duration)

	CurrentPosition() time.Duration
	CurrentDuration() time.Duration // 0 when unknown
	CurrentItemIndex() int
	ItemCount() int
	ItemAt(index int) (MediaItem, bool)

	AddListener(l Listener)
	RemoveListener(l Listener)
	Release()
}

// Connector establishes the engine connection. Connect is called exactly once.
type Connector interface {
	Connect(ctx context.Context) (Engine, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Engine, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Engine, error) {
	return f(ctx)
}

// ItemID returns the media item id used for a track.
func ItemID(t track.Track) string {
	return strconv.FormatInt(t.ID, 10)
}

// ToMediaItem converts a track into an engine item.
func ToMediaItem(t track.Track) MediaItem {
	return MediaItem{
		ID:       ItemID(t),
		URI:      t.SourceURI,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Duration: t.Duration,
	}
}

// fallbackTrack builds a track for an engine item that is not in the known queue.
func fallbackTrack(item MediaItem) track.Track {
	id, _ := strconv.ParseInt(item.ID, 10, 64)
	title := item.Title
	if title == "" {
		title = "Unknown"
	}
	return track.Track{
		ID:        id,
		Title:     title,
		Artist:    item.Artist,
		Album:     item.Album,
		Duration:  item.Duration,
		SourceURI: item.URI,
	}
}
