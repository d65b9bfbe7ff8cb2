// Package filter decides which files found by a library scan enter the catalog.
package filter

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/scenebox/internal/domain/track"
)

// Rejection codes, counted per scan.
const (
	CodeTooShort     = "duration_too_short"
	CodeTooLong      = "duration_too_long"
	CodeExcludedPath = "excluded_path"
	CodeDuplicate    = "duplicate_track"
)

// Result is the verdict of one filter for one candidate.
type Result struct {
	Accepted bool
	Code     string // Set when rejected
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Code: code}
}

// Filter is one import rule.
type Filter interface {
	// Name is the key used under library.filters in the config.
	Name() string
	Description() string
	// ReturnCodes lists every code Check can reject with.
	ReturnCodes() []string
	// ValidateConfig decodes and applies the filter settings.
	ValidateConfig(settings map[string]any) error
	// Check inspects a candidate against the tracks already accepted in this scan.
	Check(ctx context.Context, candidate track.Track, accepted []track.Track) Result
}

var registry = make(map[string]func() Filter)

// Register makes a filter available to Build under name.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New returns a fresh, unconfigured filter.
func New(name string) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// decodeSettings fills out from a settings map, then applies struct
// defaults and validation tags.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
