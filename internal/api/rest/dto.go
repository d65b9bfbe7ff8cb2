package rest

import (
	"time"

	"github.com/osa030/scenebox/internal/app/notification"
	"github.com/osa030/scenebox/internal/app/session"
	"github.com/osa030/scenebox/internal/app/session/state"
	"github.com/osa030/scenebox/internal/domain/playevent"
	"github.com/osa030/scenebox/internal/domain/playlist"
	"github.com/osa030/scenebox/internal/domain/track"
)

// TrackResponse is the JSON form of a catalog track.
type TrackResponse struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	Album      string    `json:"album,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	SourceURI  string    `json:"source_uri"`
	AddedAt    time.Time `json:"added_at"`
	Favorite   bool      `json:"favorite"`
}

// EventResponse is the JSON form of a play event.
type EventResponse struct {
	ID        int64     `json:"id"`
	TrackID   int64     `json:"track_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
}

// ScanResponse describes the library scan state.
type ScanResponse struct {
	Phase    string     `json:"phase"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Rejected int        `json:"rejected"`
	At       *time.Time `json:"at,omitempty"`
}

// StatusResponse is the JSON form of session.Status.
type StatusResponse struct {
	SessionID    string          `json:"session_id"`
	StartedAt    time.Time       `json:"started_at"`
	Scene        string          `json:"scene"`
	SceneMode    string          `json:"scene_mode"`
	State        string          `json:"state"`
	Ready        bool            `json:"ready"`
	IsPlaying    bool            `json:"is_playing"`
	PositionMs   int64           `json:"position_ms"`
	DurationMs   int64           `json:"duration_ms"`
	CurrentIndex int             `json:"current_index"`
	CurrentTrack *TrackResponse  `json:"current_track,omitempty"`
	Queue        []TrackResponse `json:"queue"`
	SmartQueue   []TrackResponse `json:"smart_queue"`
	Scan         ScanResponse    `json:"scan"`
	LastError    string          `json:"last_error,omitempty"`
}

// LibraryResponse summarizes the catalog.
type LibraryResponse struct {
	TrackCount    int `json:"track_count"`
	FavoriteCount int `json:"favorite_count"`
}

// ScanResultResponse is returned by a scan request.
type ScanResultResponse struct {
	Found    int            `json:"found"`
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	Rejected map[string]int `json:"rejected,omitempty"`
}

// NotificationResponse is one websocket message.
type NotificationResponse struct {
	SequenceNo uint64            `json:"sequence_no"`
	Kind       notification.Kind `json:"kind"`
	Time       time.Time         `json:"time"`
	Payload    any               `json:"payload,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a command.
type MessageResponse struct {
	Message string `json:"message"`
}

// Request bodies
type (
	SeekRequest struct {
		PositionMs int64 `json:"position_ms"`
	}
	SceneRequest struct {
		Scene string `json:"scene"` // Scene name, or "auto"
	}
	ImportRequest struct {
		Paths []string `json:"paths"`
	}
	PlaylistRequest struct {
		Name     string  `json:"name"`
		TrackIDs []int64 `json:"track_ids,omitempty"` // Empty saves the last smart queue
	}
	PlaylistTracksRequest struct {
		TrackIDs []int64 `json:"track_ids"`
	}
	FavoriteResponse struct {
		ID       int64 `json:"id"`
		Favorite bool  `json:"favorite"`
	}
	SceneResponse struct {
		Scene string `json:"scene"`
		Mode  string `json:"mode"`
	}
)

// PlaylistResponse is the JSON form of a saved playlist.
type PlaylistResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	CreatedAt  time.Time       `json:"created_at"`
	DurationMs int64           `json:"duration_ms"`
	Tracks     []TrackResponse `json:"tracks"`
}

func toPlaylist(p playlist.Playlist) PlaylistResponse {
	return PlaylistResponse{
		ID:         p.ID,
		Name:       p.Name,
		CreatedAt:  p.CreatedAt,
		DurationMs: p.TotalDuration().Milliseconds(),
		Tracks:     toTracks(p.Tracks),
	}
}

func toTrack(t track.Track) TrackResponse {
	return TrackResponse{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		DurationMs: t.Duration.Milliseconds(),
		SourceURI:  t.SourceURI,
		AddedAt:    t.AddedAt,
		Favorite:   t.IsFavorite,
	}
}

func toTracks(tracks []track.Track) []TrackResponse {
	out := make([]TrackResponse, len(tracks))
	for i, t := range tracks {
		out[i] = toTrack(t)
	}
	return out
}

func toEvent(e playevent.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TrackID:   e.TrackID,
		Timestamp: e.Timestamp,
		Action:    e.Action.String(),
	}
}

func toScan(info state.Info) ScanResponse {
	resp := ScanResponse{
		Phase:    info.ScanPhase.String(),
		Imported: info.LastScan.Imported,
		Skipped:  info.LastScan.Skipped,
		Rejected: info.LastScan.Rejected,
	}
	if !info.LastScan.At.IsZero() {
		at := info.LastScan.At
		resp.At = &at
	}
	return resp
}

func toStatus(s session.Status) StatusResponse {
	pb := s.Playback
	resp := StatusResponse{
		SessionID:    s.Session.SessionID,
		StartedAt:    s.Session.StartedAt,
		Scene:        s.Scene.String(),
		SceneMode:    s.Session.SceneMode.String(),
		State:        pb.State.String(),
		Ready:        pb.Ready,
		IsPlaying:    pb.IsPlaying,
		PositionMs:   pb.Position.Milliseconds(),
		DurationMs:   pb.Duration.Milliseconds(),
		CurrentIndex: pb.CurrentIndex,
		Queue:        toTracks(pb.Queue),
		SmartQueue:   toTracks(s.SmartQueue),
		Scan:         toScan(s.Session),
		LastError:    s.Session.LastError,
	}
	if t, ok := pb.CurrentTrack(); ok {
		cur := toTrack(t)
		resp.CurrentTrack = &cur
	}
	return resp
}

// toPayload converts a notification payload to its JSON form.
func toPayload(payload any) any {
	switch p := payload.(type) {
	case session.Status:
		return toStatus(p)
	case playevent.Event:
		return toEvent(p)
	case session.LibraryUpdate:
		return LibraryResponse{TrackCount: p.TrackCount, FavoriteCount: p.FavoriteCount}
	case string:
		return MessageResponse{Message: p}
	default:
		return p
	}
}
