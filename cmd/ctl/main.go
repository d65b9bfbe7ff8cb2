// Package main provides the scenebox control CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/osa030/scenebox/internal/api/rest"
	"github.com/osa030/scenebox/internal/app/scene"
)

var (
	app     = kingpin.New("scenebox-ctl", "scenebox control client")
	server  = app.Flag("server", "Server address").Default("http://127.0.0.1:7019").Envar("SCENEBOX_SERVER").String()
	token   = app.Flag("token", "Control token (or set SCENEBOX_TOKEN env)").Envar("SCENEBOX_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	// status command
	statusCmd = app.Command("status", "Show playback status")

	// tracks command
	tracksCmd = app.Command("tracks", "List the catalog").Alias("ls")

	// play command
	playCmd   = app.Command("play", "Play a track (toggles when it is current)")
	playTrack = playCmd.Arg("track-id", "Track ID").Required().Int64()

	toggleCmd = app.Command("toggle", "Toggle play/pause")
	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Restart or go to the previous track")

	// seek command
	seekCmd = app.Command("seek", "Seek within the current track")
	seekTo  = seekCmd.Arg("position", "Position, e.g. 1m30s").Required().Duration()

	// jump command
	jumpCmd   = app.Command("jump", "Play a queue entry")
	jumpIndex = jumpCmd.Arg("index", "Queue index (0-based)").Required().Int()

	smartCmd = app.Command("smart", "Generate and play the smart queue")

	// favorite command
	favCmd   = app.Command("fav", "Toggle a track's favorite flag")
	favTrack = favCmd.Arg("track-id", "Track ID").Required().Int64()

	// scene command
	sceneCmd  = app.Command("scene", "Show or select the scene")
	sceneName = sceneCmd.Arg("name", "morning, commute, night or auto").String()

	// scene-at command (offline)
	sceneAtCmd  = app.Command("scene-at", "Resolve the scene for a time without a server")
	sceneAtTime = sceneAtCmd.Arg("time", "Time as HH:MM or RFC3339 (default: now)").String()
	sceneAtZone = sceneAtCmd.Flag("timezone", "IANA time zone").Default("Local").String()

	scanCmd = app.Command("scan", "Scan the library paths")

	// import command
	importCmd   = app.Command("import", "Import individual files")
	importPaths = importCmd.Arg("paths", "Audio files").Required().ExistingFiles()

	clearCmd = app.Command("clear", "Remove every track from the catalog")

	// events command
	eventsCmd   = app.Command("events", "Show recent play events")
	eventsLimit = eventsCmd.Flag("limit", "Number of events").Short('n').Default("20").Int()

	// playlist commands
	playlistCmd        = app.Command("playlist", "Manage saved playlists")
	playlistListCmd    = playlistCmd.Command("list", "List playlists").Default()
	playlistSaveCmd    = playlistCmd.Command("save", "Save tracks, or the last smart queue, as a playlist")
	playlistSaveName   = playlistSaveCmd.Arg("name", "Playlist name").Required().String()
	playlistSaveTracks = playlistSaveCmd.Arg("track-ids", "Track IDs (default: last smart queue)").Int64List()
	playlistAddCmd     = playlistCmd.Command("add", "Append tracks to a playlist")
	playlistAddID      = playlistAddCmd.Arg("playlist-id", "Playlist ID").Required().Int64()
	playlistAddTracks  = playlistAddCmd.Arg("track-ids", "Track IDs").Required().Int64List()
	playlistPlayCmd    = playlistCmd.Command("play", "Play a playlist")
	playlistPlayID     = playlistPlayCmd.Arg("playlist-id", "Playlist ID").Required().Int64()
	playlistRmCmd      = playlistCmd.Command("rm", "Delete a playlist")
	playlistRmID       = playlistRmCmd.Arg("playlist-id", "Playlist ID").Required().Int64()

	// watch command
	watchCmd = app.Command("watch", "Print notifications until interrupted")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Offline command
	if command == sceneAtCmd.FullCommand() {
		exitOnError(sceneAt(os.Stdout, *sceneAtTime, *sceneAtZone, time.Now()))
		return
	}

	c := newClient(*server, *token)

	if command == watchCmd.FullCommand() {
		exitOnError(watch(c))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Execute command
	var err error
	switch command {
	case statusCmd.FullCommand():
		err = showStatus(ctx, c)
	case tracksCmd.FullCommand():
		err = listTracks(ctx, c)
	case playCmd.FullCommand():
		err = printCommand(c.command(ctx, "POST", fmt.Sprintf("/api/tracks/%d/play", *playTrack), nil))
	case toggleCmd.FullCommand():
		err = printCommand(c.command(ctx, "POST", "/api/playback/toggle", nil))
	case nextCmd.FullCommand():
		err = printCommand(c.command(ctx, "POST", "/api/playback/next", nil))
	case prevCmd.FullCommand():
		err = printCommand(c.command(ctx, "POST", "/api/playback/previous", nil))
	case seekCmd.FullCommand():
		err = printCommand(c.command(ctx, "POST", "/api/playback/seek", rest.SeekRequest{PositionMs: seekTo.Milliseconds()}))
	case jumpCmd.FullCommand():
		err = printCommand(c.command(ctx, "POST", fmt.Sprintf("/api/queue/%d/play", *jumpIndex), nil))
	case smartCmd.FullCommand():
		err = playSmart(ctx, c)
	case favCmd.FullCommand():
		err = toggleFavorite(ctx, c, *favTrack)
	case sceneCmd.FullCommand():
		err = selectScene(ctx, c, *sceneName)
	case scanCmd.FullCommand():
		err = printScan(c.scan(ctx))
	case importCmd.FullCommand():
		err = printScan(c.importFiles(ctx, *importPaths))
	case clearCmd.FullCommand():
		_, err = c.command(ctx, "DELETE", "/api/library", nil)
		if err == nil {
			fmt.Println("Library cleared")
		}
	case eventsCmd.FullCommand():
		err = listEvents(ctx, c, *eventsLimit)
	case playlistListCmd.FullCommand():
		err = listPlaylists(ctx, c)
	case playlistSaveCmd.FullCommand():
		err = printPlaylist(c.createPlaylist(ctx, *playlistSaveName, *playlistSaveTracks))
	case playlistAddCmd.FullCommand():
		err = printPlaylist(c.addToPlaylist(ctx, *playlistAddID, *playlistAddTracks))
	case playlistPlayCmd.FullCommand():
		err = printPlaylist(c.playPlaylist(ctx, *playlistPlayID))
	case playlistRmCmd.FullCommand():
		if err = c.deletePlaylist(ctx, *playlistRmID); err == nil {
			fmt.Printf("Playlist %d deleted\n", *playlistRmID)
		}
	}
	exitOnError(err)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func showStatus(ctx context.Context, c *client) error {
	s, err := c.status(ctx)
	if err != nil {
		return err
	}
	printStatus(os.Stdout, s)
	return nil
}

func printCommand(s rest.StatusResponse, err error) error {
	if err != nil {
		return err
	}
	printStatus(os.Stdout, s)
	return nil
}

func printStatus(w io.Writer, s rest.StatusResponse) {
	fmt.Fprintln(w, "\n=== PLAYBACK STATUS ===")
	fmt.Fprintf(w, "State: %s\n", s.State)
	fmt.Fprintf(w, "Scene: %s (%s)\n", s.Scene, s.SceneMode)

	if s.CurrentTrack != nil {
		fmt.Fprintln(w, "\nCurrent Track:")
		fmt.Fprintf(w, "  [%d] %s\n", s.CurrentTrack.ID, trackLabel(*s.CurrentTrack))
		fmt.Fprintf(w, "  Position: %s / %s\n", clock(s.PositionMs), clock(s.DurationMs))
		fmt.Fprintf(w, "  Queue: %d of %d\n", s.CurrentIndex+1, len(s.Queue))
	} else {
		fmt.Fprintln(w, "\nNo track loaded")
	}

	fmt.Fprintf(w, "\nLibrary scan: %s", s.Scan.Phase)
	if s.Scan.At != nil {
		fmt.Fprintf(w, " (%s, %s imported)", humanize.Time(*s.Scan.At), humanize.Comma(int64(s.Scan.Imported)))
	}
	fmt.Fprintln(w)
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", s.LastError)
	}
	fmt.Fprintln(w)
}

func listTracks(ctx context.Context, c *client) error {
	tracks, err := c.tracks(ctx)
	if err != nil {
		return err
	}
	printTracks(os.Stdout, tracks)
	return nil
}

func printTracks(w io.Writer, tracks []rest.TrackResponse) {
	var total int64
	for _, t := range tracks {
		fav := " "
		if t.Favorite {
			fav = "*"
		}
		fmt.Fprintf(w, "%s %20d  %6s  %s\n", fav, t.ID, clock(t.DurationMs), trackLabel(t))
		total += t.DurationMs
	}
	fmt.Fprintf(w, "\n%s tracks, %s total\n", humanize.Comma(int64(len(tracks))), clock(total))
}

func playSmart(ctx context.Context, c *client) error {
	queue, err := c.smartQueue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Smart queue (%d tracks):\n", len(queue))
	for i, t := range queue {
		fmt.Printf("  %2d. %s\n", i+1, trackLabel(t))
	}
	return nil
}

func toggleFavorite(ctx context.Context, c *client, id int64) error {
	f, err := c.favorite(ctx, id)
	if err != nil {
		return err
	}
	if f.Favorite {
		fmt.Printf("Track %d marked as favorite\n", f.ID)
	} else {
		fmt.Printf("Track %d removed from favorites\n", f.ID)
	}
	return nil
}

func selectScene(ctx context.Context, c *client, name string) error {
	s, err := c.scene(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("Scene: %s (%s)\n", s.Scene, s.Mode)
	return nil
}

func printScan(r rest.ScanResultResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Found %s files, imported %s, skipped %s\n",
		humanize.Comma(int64(r.Found)), humanize.Comma(int64(r.Imported)), humanize.Comma(int64(r.Skipped)))
	for code, n := range r.Rejected {
		fmt.Printf("  rejected by %s: %d\n", code, n)
	}
	return nil
}

func listEvents(ctx context.Context, c *client, limit int) error {
	events, err := c.events(ctx, limit)
	if err != nil {
		return err
	}
	printEvents(os.Stdout, events)
	return nil
}

func printEvents(w io.Writer, events []rest.EventResponse) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No play events")
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%-8s %20d  %s\n", e.Action, e.TrackID, humanize.Time(e.Timestamp))
	}
}

func listPlaylists(ctx context.Context, c *client) error {
	lists, err := c.playlists(ctx)
	if err != nil {
		return err
	}
	printPlaylists(os.Stdout, lists)
	return nil
}

func printPlaylists(w io.Writer, lists []rest.PlaylistResponse) {
	if len(lists) == 0 {
		fmt.Fprintln(w, "No playlists")
		return
	}
	for _, p := range lists {
		fmt.Fprintf(w, "%6d  %-30s %4d tracks  %8s  %s\n",
			p.ID, p.Name, len(p.Tracks), clock(p.DurationMs), humanize.Time(p.CreatedAt))
	}
}

func printPlaylist(p rest.PlaylistResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Playlist %d: %s (%d tracks, %s)\n", p.ID, p.Name, len(p.Tracks), clock(p.DurationMs))
	for i, t := range p.Tracks {
		fmt.Printf("  %2d. %s\n", i+1, trackLabel(t))
	}
	return nil
}

// sceneAt resolves a scene locally. at accepts HH:MM (today) or RFC3339.
func sceneAt(w io.Writer, at, zone string, now time.Time) error {
	loc := time.Local
	if zone != "" && zone != "Local" {
		var err error
		if loc, err = time.LoadLocation(zone); err != nil {
			return err
		}
	}

	t := now.In(loc)
	switch {
	case at == "":
	case len(at) == len("15:04"):
		hm, err := time.ParseInLocation("15:04", at, loc)
		if err != nil {
			return err
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), hm.Hour(), hm.Minute(), 0, 0, loc)
	default:
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return err
		}
		t = parsed
	}

	fmt.Fprintf(w, "%s -> %s\n", t.In(loc).Format("Mon 15:04 MST"), scene.Resolve(t, loc))
	return nil
}

// watch prints notifications until interrupted.
func watch(c *client) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var n struct {
			SequenceNo uint64          `json:"sequence_no"`
			Kind       string          `json:"kind"`
			Time       time.Time       `json:"time"`
			Payload    json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&n); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		printNotification(os.Stdout, n.SequenceNo, n.Kind, n.Time, n.Payload)
	}
}

func printNotification(w io.Writer, seq uint64, kind string, at time.Time, payload json.RawMessage) {
	prefix := fmt.Sprintf("[%d %s] %-10s", seq, at.Local().Format(time.TimeOnly), kind)
	switch kind {
	case "status":
		var s rest.StatusResponse
		if json.Unmarshal(payload, &s) == nil {
			line := fmt.Sprintf("%s scene=%s", s.State, s.Scene)
			if s.CurrentTrack != nil {
				line += fmt.Sprintf(" track=%q %s/%s", s.CurrentTrack.Title, clock(s.PositionMs), clock(s.DurationMs))
			}
			fmt.Fprintf(w, "%s %s\n", prefix, line)
			return
		}
	case "play_event":
		var e rest.EventResponse
		if json.Unmarshal(payload, &e) == nil {
			fmt.Fprintf(w, "%s %s track=%d\n", prefix, e.Action, e.TrackID)
			return
		}
	case "library":
		var l rest.LibraryResponse
		if json.Unmarshal(payload, &l) == nil {
			fmt.Fprintf(w, "%s tracks=%d favorites=%d\n", prefix, l.TrackCount, l.FavoriteCount)
			return
		}
	}
	fmt.Fprintf(w, "%s %s\n", prefix, string(payload))
}

func trackLabel(t rest.TrackResponse) string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// clock formats milliseconds as m:ss, or h:mm:ss past an hour.
func clock(ms int64) string {
	d := time.Duration(max(ms, 0)) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
