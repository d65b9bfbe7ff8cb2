package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7019", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Library.Workers)
	assert.Equal(t, 15*time.Second, cfg.Playback.SkipThreshold())
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.PositionRefresh())
	assert.Equal(t, 10*time.Second, cfg.Playback.ConnectTimeout())
	assert.Equal(t, 2*time.Second, cfg.Library.Debounce())
	assert.Equal(t, "Local", cfg.Scene.Timezone)
	assert.Equal(t, "sim", cfg.Engine.Type)
	assert.Equal(t, ScoringConfig{
		FavoriteBonus: 50,
		StartBonus:    5,
		StartBonusCap: 40,
		RecentBonus:   10,
		SkipPenalty:   20,
		MaxQueueSize:  30,
	}, cfg.Scoring)
}

func TestParse_FileValues(t *testing.T) {
	data := []byte(`
server:
  addr: ":9000"
database:
  path: /tmp/scenebox-test.db
library:
  paths: [/music, /podcasts]
  watch: true
  workers: 8
playback:
  skip_threshold_ms: 20000
scene:
  timezone: Asia/Tokyo
engine:
  type: sim
  settings:
    connect_delay_ms: 250
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"/music", "/podcasts"}, cfg.Library.Paths)
	assert.True(t, cfg.Library.Watch)
	assert.Equal(t, 8, cfg.Library.Workers)
	assert.Equal(t, 20*time.Second, cfg.Playback.SkipThreshold())
	assert.Equal(t, 250, cfg.Engine.Settings["connect_delay_ms"])

	path, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scenebox-test.db", path)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{name: "valid", yaml: "library:\n  workers: 2\n"},
		{name: "too many workers", yaml: "library:\n  workers: 64\n", wantErr: true, errMsg: "Workers"},
		{name: "refresh too fast", yaml: "playback:\n  position_refresh_ms: 1\n", wantErr: true, errMsg: "PositionRefreshMs"},
		{name: "empty library path", yaml: "library:\n  paths: [\"\"]\n", wantErr: true, errMsg: "Paths"},
		{name: "unknown timezone", yaml: "scene:\n  timezone: Mars/Olympus\n", wantErr: true, errMsg: "timezone"},
		{name: "bad yaml", yaml: "server: [", wantErr: true, errMsg: "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenebox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":1\"\n"), 0o644))

	t.Setenv("SCENEBOX_ADDR", ":2")
	t.Setenv("SCENEBOX_DB_PATH", filepath.Join(dir, "db.sqlite"))
	t.Setenv("SCENEBOX_LIBRARY_PATHS", "/a"+string(os.PathListSeparator)+"/b")
	t.Setenv("SCENEBOX_TIMEZONE", "UTC")
	t.Setenv("SCENEBOX_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":2", cfg.Server.Addr)
	assert.Equal(t, filepath.Join(dir, "db.sqlite"), cfg.Database.Path)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Library.Paths)
	assert.Equal(t, "UTC", cfg.Scene.Timezone)
	assert.Equal(t, "secret", cfg.Server.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLibraryConfig_Filters(t *testing.T) {
	data := []byte(`
library:
  filters:
    duplicate_track_filter:
      enabled: true
    duration_limit_filter:
      enabled: false
      settings:
        min_seconds: 20
    exclude_path_filter:
      enabled: true
      settings:
        patterns: ["Podcasts"]
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.True(t, cfg.Library.IsFilterEnabled("duplicate_track_filter"))
	assert.False(t, cfg.Library.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.Library.IsFilterEnabled("unknown"))

	enabled := cfg.Library.EnabledFilters()
	assert.Len(t, enabled, 2)
	assert.Contains(t, enabled, "exclude_path_filter")
	assert.Equal(t, []any{"Podcasts"}, enabled["exclude_path_filter"]["patterns"])
}
