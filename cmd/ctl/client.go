package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/scenebox/internal/api/rest"
)

// client calls the scenebox HTTP API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(base, token string) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  http.DefaultClient,
	}
}

// call sends body as JSON and decodes the response into out.
func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(rest.TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e rest.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return errors.Newf("%s %s: %s", method, path, resp.Status)
		}
		return errors.New(e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (c *client) status(ctx context.Context) (rest.StatusResponse, error) {
	var s rest.StatusResponse
	err := c.call(ctx, http.MethodGet, "/api/status", nil, &s)
	return s, err
}

func (c *client) tracks(ctx context.Context) ([]rest.TrackResponse, error) {
	var ts []rest.TrackResponse
	err := c.call(ctx, http.MethodGet, "/api/tracks", nil, &ts)
	return ts, err
}

func (c *client) events(ctx context.Context, limit int) ([]rest.EventResponse, error) {
	var es []rest.EventResponse
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/events?limit=%d", limit), nil, &es)
	return es, err
}

// command posts to a playback route and returns the fresh status.
func (c *client) command(ctx context.Context, method, path string, body any) (rest.StatusResponse, error) {
	var s rest.StatusResponse
	err := c.call(ctx, method, path, body, &s)
	return s, err
}

func (c *client) smartQueue(ctx context.Context) ([]rest.TrackResponse, error) {
	var ts []rest.TrackResponse
	err := c.call(ctx, http.MethodPost, "/api/smart-queue", nil, &ts)
	return ts, err
}

func (c *client) favorite(ctx context.Context, id int64) (rest.FavoriteResponse, error) {
	var f rest.FavoriteResponse
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/tracks/%d/favorite", id), nil, &f)
	return f, err
}

func (c *client) scene(ctx context.Context, name string) (rest.SceneResponse, error) {
	var s rest.SceneResponse
	if name == "" {
		err := c.call(ctx, http.MethodGet, "/api/scene", nil, &s)
		return s, err
	}
	err := c.call(ctx, http.MethodPut, "/api/scene", rest.SceneRequest{Scene: name}, &s)
	return s, err
}

func (c *client) scan(ctx context.Context) (rest.ScanResultResponse, error) {
	var r rest.ScanResultResponse
	err := c.call(ctx, http.MethodPost, "/api/library/scan", nil, &r)
	return r, err
}

func (c *client) importFiles(ctx context.Context, paths []string) (rest.ScanResultResponse, error) {
	var r rest.ScanResultResponse
	err := c.call(ctx, http.MethodPost, "/api/library/import", rest.ImportRequest{Paths: paths}, &r)
	return r, err
}

func (c *client) playlists(ctx context.Context) ([]rest.PlaylistResponse, error) {
	var ps []rest.PlaylistResponse
	err := c.call(ctx, http.MethodGet, "/api/playlists", nil, &ps)
	return ps, err
}

func (c *client) createPlaylist(ctx context.Context, name string, trackIDs []int64) (rest.PlaylistResponse, error) {
	var p rest.PlaylistResponse
	err := c.call(ctx, http.MethodPost, "/api/playlists", rest.PlaylistRequest{Name: name, TrackIDs: trackIDs}, &p)
	return p, err
}

func (c *client) addToPlaylist(ctx context.Context, id int64, trackIDs []int64) (rest.PlaylistResponse, error) {
	var p rest.PlaylistResponse
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/playlists/%d/tracks", id), rest.PlaylistTracksRequest{TrackIDs: trackIDs}, &p)
	return p, err
}

func (c *client) playPlaylist(ctx context.Context, id int64) (rest.PlaylistResponse, error) {
	var p rest.PlaylistResponse
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/playlists/%d/play", id), nil, &p)
	return p, err
}

func (c *client) deletePlaylist(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/api/playlists/%d", id), nil, nil)
}

// wsURL returns the notification stream URL.
func (c *client) wsURL() string {
	switch {
	case strings.HasPrefix(c.base, "https://"):
		return "wss://" + strings.TrimPrefix(c.base, "https://") + "/ws"
	case strings.HasPrefix(c.base, "http://"):
		return "ws://" + strings.TrimPrefix(c.base, "http://") + "/ws"
	default:
		return "ws://" + c.base + "/ws"
	}
}
