package filter

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/scenebox/internal/domain/track"
)

// ExcludePathConfig represents the configuration for ExcludePathFilter.
type ExcludePathConfig struct {
	Patterns []string `mapstructure:"patterns" validate:"dive,required"`
}

// ExcludePathFilter skips files whose name or parent directory matches a glob.
type ExcludePathFilter struct {
	patterns []string
}

func (f *ExcludePathFilter) Name() string {
	return "exclude_path_filter"
}

func (f *ExcludePathFilter) Description() string {
	return "Skips files whose name or any parent directory matches a glob pattern"
}

func (f *ExcludePathFilter) ReturnCodes() []string {
	return []string{CodeExcludedPath}
}

func (f *ExcludePathFilter) ValidateConfig(settings map[string]any) error {
	var config ExcludePathConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	for _, p := range config.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return errors.Wrapf(err, "invalid pattern %q", p)
		}
	}
	f.patterns = config.Patterns
	return nil
}

func (f *ExcludePathFilter) Check(ctx context.Context, t track.Track, accepted []track.Track) Result {
	if len(f.patterns) == 0 {
		return Accept()
	}
	parts := strings.Split(filepath.ToSlash(filepath.Clean(t.SourceURI)), "/")
	for _, part := range parts {
		if part == "" {
			continue
		}
		for _, p := range f.patterns {
			if ok, _ := filepath.Match(p, part); ok {
				return Reject(CodeExcludedPath)
			}
		}
	}
	return Accept()
}

func init() {
	Register("exclude_path_filter", func() Filter {
		return &ExcludePathFilter{}
	})
}
