package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/domain/track"
)

// DurationLimitConfig holds the accepted length range.
type DurationLimitConfig struct {
	MinSeconds float64 `mapstructure:"min_seconds" default:"30" validate:"gte=0"`
	MaxMinutes float64 `mapstructure:"max_minutes" validate:"gte=0"` // 0 means no upper limit
}

// DurationLimitFilter skips jingles and very long recordings.
// Tracks of unknown length are always accepted.
type DurationLimitFilter struct {
	min time.Duration
	max time.Duration
}

// NewDurationLimitFilter creates an unconfigured filter that accepts everything.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Skips tracks shorter or longer than the configured limits"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{CodeTooShort, CodeTooLong}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}

	minDur := time.Duration(config.MinSeconds * float64(time.Second))
	maxDur := time.Duration(config.MaxMinutes * float64(time.Minute))
	if maxDur > 0 && minDur > maxDur {
		return errors.Newf("min_seconds (%v) exceeds max_minutes (%v)", config.MinSeconds, config.MaxMinutes)
	}

	f.min, f.max = minDur, maxDur
	zlog.Info().Msgf("filter: duration limit: min=%s max=%s", f.min, f.max)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, t track.Track, accepted []track.Track) Result {
	switch {
	case t.Duration <= 0:
		return Accept()
	case t.Duration < f.min:
		return Reject(CodeTooShort)
	case f.max > 0 && t.Duration > f.max:
		return Reject(CodeTooLong)
	default:
		return Accept()
	}
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}
