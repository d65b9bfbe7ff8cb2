package filter

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Build creates a chain from the enabled filters and their settings.
// Filters run in name order so results do not depend on map iteration.
func Build(enabled map[string]map[string]any) (*Chain, error) {
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	slices.Sort(names)

	chain := NewChain()
	for _, name := range names {
		f, ok := New(name)
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		if err := f.ValidateConfig(enabled[name]); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("filter: enabled: name=%s", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the candidate.
func (c *Chain) Execute(ctx context.Context, candidate track.Track, accepted []track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, candidate, accepted)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply runs the chain over candidates in order and returns the accepted
// tracks plus a count of rejections per code.
func (c *Chain) Apply(ctx context.Context, candidates []track.Track) ([]track.Track, map[string]int) {
	accepted := make([]track.Track, 0, len(candidates))
	rejected := make(map[string]int)
	for _, t := range candidates {
		result := c.Execute(ctx, t, accepted)
		if !result.Accepted {
			rejected[result.Code]++
			zlog.Debug().Msgf("filter: rejected: path=%s code=%s", t.SourceURI, result.Code)
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
