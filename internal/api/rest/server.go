// Package rest provides the HTTP control surface and the websocket
// notification stream.
package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/app/playback"
	"github.com/osa030/scenebox/internal/app/scene"
	"github.com/osa030/scenebox/internal/app/session"
	"github.com/osa030/scenebox/internal/domain/playlist"
	"github.com/osa030/scenebox/internal/infra/config"
	"github.com/osa030/scenebox/internal/infra/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
)

// Server exposes a session over HTTP.
type Server struct {
	session *session.Manager
	config  *config.Config
}

// NewServer creates a new Server.
func NewServer(session *session.Manager, cfg *config.Config) *Server {
	return &Server{
		session: session,
		config:  cfg,
	}
}

// Handler returns the router with every route registered.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(NewTokenAuth(s.config.Server.Token))

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/tracks", s.handleTracks).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}/play", s.handleTrackClicked).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}/favorite", s.handleToggleFavorite).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	api.HandleFunc("/playback/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/playback/next", s.handleNext).Methods(http.MethodPost)
	api.HandleFunc("/playback/previous", s.handlePrevious).Methods(http.MethodPost)
	api.HandleFunc("/playback/seek", s.handleSeek).Methods(http.MethodPost)
	api.HandleFunc("/queue/{index}/play", s.handlePlayFromQueue).Methods(http.MethodPost)
	api.HandleFunc("/smart-queue", s.handleSmartQueue).Methods(http.MethodPost)

	api.HandleFunc("/playlists", s.handlePlaylists).Methods(http.MethodGet)
	api.HandleFunc("/playlists", s.handleCreatePlaylist).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}/tracks", s.handleAddToPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}/play", s.handlePlayPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}", s.handleDeletePlaylist).Methods(http.MethodDelete)

	api.HandleFunc("/scene", s.handleGetScene).Methods(http.MethodGet)
	api.HandleFunc("/scene", s.handleSelectScene).Methods(http.MethodPut)

	api.HandleFunc("/library/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/library/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/library", s.handleClear).Methods(http.MethodDelete)

	router.HandleFunc("/ws", s.handleNotifications).Methods(http.MethodGet)
	return router
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(s.session.Status()))
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.session.Tracks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTracks(tracks))
}

func (s *Server) handleTrackClicked(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := s.session.TrackClicked(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(s.session.Status()))
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	fav, err := s.session.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteResponse{ID: id, Favorite: fav})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.session.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = toEvent(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.session.TogglePlayPause(r.Context()))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.session.Next(r.Context()))
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.session.Previous(r.Context()))
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.command(w, s.session.SeekTo(r.Context(), time.Duration(req.PositionMs)*time.Millisecond))
}

func (s *Server) handlePlayFromQueue(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	s.command(w, s.session.PlayFromQueue(r.Context(), int(index)))
}

func (s *Server) handleSmartQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.session.PlaySmartQueue(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTracks(queue))
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.session.Playlists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]PlaylistResponse, len(lists))
	for i, p := range lists {
		out[i] = toPlaylist(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req PlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.session.CreatePlaylist(r.Context(), req.Name, req.TrackIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlaylist(p))
}

func (s *Server) handleAddToPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req PlaylistTracksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.session.AddToPlaylist(r.Context(), id, req.TrackIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylist(p))
}

func (s *Server) handlePlayPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	p, err := s.session.PlayPlaylist(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylist(p))
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := s.session.DeletePlaylist(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Playlist deleted."})
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sceneResponse())
}

func (s *Server) handleSelectScene(w http.ResponseWriter, r *http.Request) {
	var req SceneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.Scene), "auto") {
		s.session.FollowClock()
	} else {
		sc, err := scene.Parse(req.Scene)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		s.session.SelectScene(sc)
	}
	writeJSON(w, http.StatusOK, s.sceneResponse())
}

func (s *Server) sceneResponse() SceneResponse {
	st := s.session.Status()
	return SceneResponse{Scene: st.Scene.String(), Mode: st.Session.SceneMode.String()}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.ScanLibrary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResultResponse{
		Found:    res.Found,
		Imported: len(res.Tracks),
		Skipped:  res.Skipped,
		Rejected: res.Rejected,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := s.session.ImportFiles(r.Context(), req.Paths)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResultResponse{
		Found:    len(req.Paths),
		Imported: n,
		Skipped:  len(req.Paths) - n,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.session.ClearLibrary(r.Context()))
}

// command replies with the fresh status, or the error.
func (s *Server) command(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(s.session.Status()))
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusCode maps an operation failure to an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrTrackNotFound),
		errors.Is(err, store.ErrPlaylistNotFound):
		return http.StatusNotFound
	case errors.Is(err, playlist.ErrInvalidName),
		errors.Is(err, playback.ErrIndexRange):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSmartQueueEmpty),
		errors.Is(err, session.ErrPlaylistEmpty),
		errors.Is(err, session.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoLibraryPaths):
		return http.StatusPreconditionFailed
	case errors.Is(err, playback.ErrEngineNotReady),
		errors.Is(err, playback.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var opErr *session.OpError
	if errors.As(err, &opErr) {
		msg = opErr.Message
	}
	writeJSON(w, statusCode(err), ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("rest: failed to write response: err=%v", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zlog.Debug().Msgf("rest: %s %s: elapsed=%s", r.Method, r.URL.Path, time.Since(start))
	})
}
