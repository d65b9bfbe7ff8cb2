// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const appName = "scenebox"

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Library  LibraryConfig  `yaml:"library"`
	Playback PlaybackConfig `yaml:"playback"`
	Scene    SceneConfig    `yaml:"scene"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig represents HTTP control surface configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:"127.0.0.1:7019" validate:"required"`
	// Token guards mutating requests when set
	Token string `yaml:"token"`
}

// DatabaseConfig represents event repository configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"` // Empty means the XDG data directory
}

// LibraryConfig represents local media discovery configuration.
type LibraryConfig struct {
	Paths      []string `yaml:"paths" validate:"dive,required"`
	Watch      bool     `yaml:"watch"`
	Workers    int      `yaml:"workers" default:"4" validate:"gte=1,lte=32"`
	DebounceMs int      `yaml:"debounce_ms" default:"2000" validate:"gte=0,lte=60000"`
	// Filters maps an import filter name to its configuration
	Filters map[string]FilterConfig `yaml:"filters"`
}

// FilterConfig represents an import filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// PlaybackConfig represents playback synchronizer configuration.
type PlaybackConfig struct {
	SkipThresholdMs   int `yaml:"skip_threshold_ms" default:"15000" validate:"gte=0"`
	PositionRefreshMs int `yaml:"position_refresh_ms" default:"500" validate:"gte=50,lte=10000"`
	ConnectTimeoutMs  int `yaml:"connect_timeout_ms" default:"10000" validate:"gte=100"`
}

// SceneConfig represents scene resolution configuration.
type SceneConfig struct {
	Timezone string `yaml:"timezone" default:"Local" validate:"required"`
}

// ScoringConfig represents smart queue scoring weights.
type ScoringConfig struct {
	FavoriteBonus int `yaml:"favorite_bonus" default:"50" validate:"gte=0"`
	StartBonus    int `yaml:"start_bonus" default:"5" validate:"gte=0"`
	StartBonusCap int `yaml:"start_bonus_cap" default:"40" validate:"gte=0"`
	RecentBonus   int `yaml:"recent_bonus" default:"10" validate:"gte=0"`
	SkipPenalty   int `yaml:"skip_penalty" default:"20" validate:"gte=0"`
	MaxQueueSize  int `yaml:"max_queue_size" default:"30" validate:"gte=1,lte=1000"`
}

// EngineConfig selects and configures the playback engine.
type EngineConfig struct {
	Type     string         `yaml:"type" default:"sim" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	return Parse(nil)
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SCENEBOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SCENEBOX_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("SCENEBOX_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SCENEBOX_LIBRARY_PATHS"); v != "" {
		c.Library.Paths = filepath.SplitList(v)
	}
	if v := os.Getenv("SCENEBOX_TIMEZONE"); v != "" {
		c.Scene.Timezone = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Location returns the time zone used for scene resolution.
func (c *Config) Location() (*time.Location, error) {
	if strings.EqualFold(c.Scene.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scene.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid scene timezone %q", c.Scene.Timezone)
	}
	return loc, nil
}

// DatabasePath returns the configured database path, or the XDG data file.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	path, err := xdg.DataFile(filepath.Join(appName, appName+".db"))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve data directory")
	}
	return path, nil
}

// SkipThreshold returns the skip threshold as a duration.
func (p PlaybackConfig) SkipThreshold() time.Duration {
	return time.Duration(p.SkipThresholdMs) * time.Millisecond
}

// PositionRefresh returns the position polling interval.
func (p PlaybackConfig) PositionRefresh() time.Duration {
	return time.Duration(p.PositionRefreshMs) * time.Millisecond
}

// ConnectTimeout returns the engine connection timeout.
func (p PlaybackConfig) ConnectTimeout() time.Duration {
	return time.Duration(p.ConnectTimeoutMs) * time.Millisecond
}

// IsFilterEnabled checks if an import filter is enabled.
func (l LibraryConfig) IsFilterEnabled(name string) bool {
	if f, ok := l.Filters[name]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the settings of every enabled import filter.
func (l LibraryConfig) EnabledFilters() map[string]map[string]any {
	enabled := make(map[string]map[string]any)
	for name, f := range l.Filters {
		if f.Enabled {
			enabled[name] = f.Settings
		}
	}
	return enabled
}

// Debounce returns the watcher debounce interval.
func (l LibraryConfig) Debounce() time.Duration {
	return time.Duration(l.DebounceMs) * time.Millisecond
}
