// Package library discovers local audio files and turns them into catalog tracks.
package library

import (
	"context"
	"io/fs"
	"mime"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/app/filter"
	"github.com/osa030/scenebox/internal/domain/track"
)

const defaultWorkers = 4

// Result summarizes one scan.
type Result struct {
	Tracks   []track.Track  // Accepted tracks, ordered by path
	Found    int            // Supported audio files discovered
	Skipped  int            // Files that could not be read
	Rejected map[string]int // Files dropped by the filter chain, per code
}

// Scanner walks the configured directories and reads every supported file.
type Scanner struct {
	paths   []string
	workers int
	chain   *filter.Chain
	read    func(path string) (track.Track, error)
}

// NewScanner creates a scanner. A nil chain accepts every readable file.
func NewScanner(paths []string, workers int, chain *filter.Chain) *Scanner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if chain == nil {
		chain = filter.NewChain()
	}
	return &Scanner{
		paths:   slices.Clone(paths),
		workers: workers,
		chain:   chain,
		read:    ReadTrack,
	}
}

// Paths returns the scanned directories.
func (s *Scanner) Paths() []string {
	return slices.Clone(s.paths)
}

// Scan discovers and reads every supported file under the configured paths.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	files := discoverFiles(s.paths)
	zlog.Info().Msgf("library: discovered audio files: count=%d", len(files))

	var skipped atomic.Int64
	workCh := make(chan string)
	resultCh := make(chan track.Track, len(files))

	var wg sync.WaitGroup
	for range s.workers {
		wg.Go(func() {
			for path := range workCh {
				t, err := readRecovered(s.read, path)
				if err != nil {
					skipped.Add(1)
					zlog.Warn().Msgf("library: skipping unreadable file: path=%s err=%v", path, err)
					continue
				}
				resultCh <- t
			}
		})
	}

	go func() {
		defer close(workCh)
		for _, path := range files {
			select {
			case workCh <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(resultCh)

	if err := ctx.Err(); err != nil {
		return Result{}, errors.Wrap(err, "scan cancelled")
	}

	candidates := make([]track.Track, 0, len(files))
	for t := range resultCh {
		candidates = append(candidates, t)
	}
	slices.SortFunc(candidates, func(a, b track.Track) int {
		return strings.Compare(a.SourceURI, b.SourceURI)
	})

	accepted, rejected := s.chain.Apply(ctx, candidates)

	result := Result{
		Tracks:   accepted,
		Found:    len(files),
		Skipped:  int(skipped.Load()),
		Rejected: rejected,
	}
	zlog.Info().Msgf("library: scan finished: found=%d imported=%d skipped=%d rejected=%d",
		result.Found, len(result.Tracks), result.Skipped, len(candidates)-len(accepted))
	return result, nil
}

// readRecovered turns a panic in a decoder into an unreadable-file error so
// one broken file cannot stop the scan.
func readRecovered(read func(string) (track.Track, error), path string) (t track.Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("decoder panicked: %v", r), ErrUnreadable)
		}
	}()
	return read(path)
}

// discoverFiles walks the given directories and returns every supported audio file.
func discoverFiles(roots []string) []string {
	seen := make(map[string]struct{})
	files := make([]string, 0)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			// Keep scanning the rest of the tree
			if walkErr != nil {
				zlog.Warn().Msgf("library: walk error: path=%s err=%v", path, walkErr)
				return nil //nolint:nilerr // intentionally skipping errors
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !track.IsSupportedAudio(path, mime.TypeByExtension(filepath.Ext(path))) {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}
			files = append(files, path)
			return nil
		})
		if err != nil {
			zlog.Warn().Msgf("library: failed to walk: root=%s err=%v", root, err)
		}
	}
	return files
}
