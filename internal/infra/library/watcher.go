package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Watcher reports library changes after a quiet period.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(ctx context.Context)
}

// NewWatcher watches every directory under roots. onChange runs on the
// watcher goroutine once no event arrived for debounce.
func NewWatcher(roots []string, debounce time.Duration, onChange func(ctx context.Context)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}

	w := &Watcher{
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
	}
	for _, root := range roots {
		w.addTree(root)
	}
	if len(fw.WatchList()) == 0 {
		fw.Close()
		return nil, errors.New("no library directory could be watched")
	}
	return w, nil
}

// addTree watches root and all of its subdirectories.
func (w *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skipping errors
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			zlog.Warn().Msgf("library: watch failed: path=%s err=%v", path, err)
		}
		return nil
	})
}

// Run dispatches events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time // nil until a change is pending
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
				}
			}
			zlog.Debug().Msgf("library: change detected: %s %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("library: watcher error: %v", err)

		case <-fire:
			fire = nil
			zlog.Info().Msg("library: changes settled, rescanning")
			w.onChange(ctx)

		case <-ctx.Done():
			return
		}
	}
}
