package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/scenebox/internal/domain/track"
)

type rejectAll struct{ code string }

func (f rejectAll) Name() string                           { return "reject_all" }
func (f rejectAll) Description() string                    { return "" }
func (f rejectAll) ReturnCodes() []string                  { return []string{f.code} }
func (f rejectAll) ValidateConfig(map[string]any) error    { return nil }
func (f rejectAll) Check(context.Context, track.Track, []track.Track) Result {
	return Reject(f.code)
}

func TestChain_EmptyAcceptsEverything(t *testing.T) {
	c := NewChain()
	result := c.Execute(context.Background(), track.Track{ID: 1}, nil)
	assert.True(t, result.Accepted)
	assert.Empty(t, c.Filters())
}

func TestChain_StopsAtFirstRejection(t *testing.T) {
	c := NewChain()
	c.Add(rejectAll{code: "first"})
	c.Add(rejectAll{code: "second"})

	result := c.Execute(context.Background(), track.Track{ID: 1}, nil)
	assert.False(t, result.Accepted)
	assert.Equal(t, "first", result.Code)
}

func TestChain_Apply(t *testing.T) {
	c := NewChain()
	c.Add(NewDuplicateTrackFilter())
	dl := NewDurationLimitFilter()
	require.NoError(t, dl.ValidateConfig(map[string]any{"min_seconds": 30}))
	c.Add(dl)

	candidates := []track.Track{
		{ID: 1, Title: "Song", Artist: "Band", Duration: 3 * time.Minute},
		{ID: 2, Title: "Song (Remastered)", Artist: "Band", Duration: 3 * time.Minute},
		{ID: 3, Title: "Jingle", Artist: "Band", Duration: 5 * time.Second},
		{ID: 4, Title: "Other", Artist: "Band"},
	}

	accepted, rejected := c.Apply(context.Background(), candidates)
	require.Len(t, accepted, 2)
	assert.Equal(t, int64(1), accepted[0].ID)
	assert.Equal(t, int64(4), accepted[1].ID)
	assert.Equal(t, map[string]int{CodeDuplicate: 1, CodeTooShort: 1}, rejected)
}

func TestBuild(t *testing.T) {
	chain, err := Build(map[string]map[string]any{
		"exclude_path_filter":   {"patterns": []any{"Podcasts"}},
		"duplicate_track_filter": nil,
	})
	require.NoError(t, err)

	names := make([]string, 0)
	for _, f := range chain.Filters() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"duplicate_track_filter", "exclude_path_filter"}, names)
}

func TestBuild_UnknownFilter(t *testing.T) {
	_, err := Build(map[string]map[string]any{"nope": nil})
	assert.Error(t, err)
}

func TestBuild_InvalidSettings(t *testing.T) {
	_, err := Build(map[string]map[string]any{
		"duration_limit_filter": {"min_seconds": -5},
	})
	assert.Error(t, err)
}

func TestExcludePathFilter(t *testing.T) {
	f := &ExcludePathFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{
		"patterns": []string{"Podcasts", "*.demo.mp3", ".*"},
	}))

	tests := []struct {
		path     string
		accepted bool
	}{
		{"/music/Rock/song.mp3", true},
		{"/music/Podcasts/episode.mp3", false},
		{"/music/Rock/take1.demo.mp3", false},
		{"/music/.trash/old.mp3", false},
		{"/music/Rock/Podcasts are fun.mp3", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := f.Check(context.Background(), track.Track{SourceURI: tt.path}, nil)
			assert.Equal(t, tt.accepted, result.Accepted)
			if !tt.accepted {
				assert.Equal(t, "excluded_path", result.Code)
			}
		})
	}
}

func TestExcludePathFilter_InvalidPattern(t *testing.T) {
	f := &ExcludePathFilter{}
	assert.Error(t, f.ValidateConfig(map[string]any{"patterns": []string{"[unclosed"}}))
}

func TestRegistry(t *testing.T) {
	names := []string{"duplicate_track_filter", "duration_limit_filter", "exclude_path_filter"}
	assert.Equal(t, names, Names())
	for _, name := range names {
		f, ok := New(name)
		require.True(t, ok, name)
		assert.Equal(t, name, f.Name())
	}
	_, ok := New("market_filter")
	assert.False(t, ok)
}
