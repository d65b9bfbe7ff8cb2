package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/scenebox/internal/app/playback"
	"github.com/osa030/scenebox/internal/infra/config"
)

// SimConfig represents the settings of the simulated engine.
type SimConfig struct {
	ConnectDelayMs    int     `mapstructure:"connect_delay_ms" validate:"gte=0,lte=60000"`
	DefaultDurationMs int     `mapstructure:"default_duration_ms" default:"180000" validate:"gte=1000"`
	TickMs            int     `mapstructure:"tick_ms" default:"100" validate:"gte=10,lte=1000"`
	Speed             float64 `mapstructure:"speed" default:"1" validate:"gt=0,lte=100"`
}

// NewConnectorFromConfig creates the engine connector selected by configuration.
func NewConnectorFromConfig(cfg config.EngineConfig) (playback.Connector, error) {
	zlog.Debug().Msgf("creating playback engine: type=%s settings=%+v", cfg.Type, cfg.Settings)
	switch cfg.Type {
	case "sim":
		simCfg, err := decodeSimConfig(cfg.Settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to configure sim engine")
		}
		zlog.Info().Msgf("registered playback engine: type=sim config=%+v", simCfg)
		return NewSimConnector(simCfg), nil

	default:
		return nil, errors.Newf("unsupported engine type: %s", cfg.Type)
	}
}

// NewSimConnector returns a connector that creates a Sim after the configured delay.
func NewSimConnector(cfg SimConfig) playback.Connector {
	return playback.ConnectorFunc(func(ctx context.Context) (playback.Engine, error) {
		if cfg.ConnectDelayMs > 0 {
			timer := time.NewTimer(time.Duration(cfg.ConnectDelayMs) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "sim engine connect cancelled")
			}
		}
		return NewSim(
			time.Duration(cfg.DefaultDurationMs)*time.Millisecond,
			time.Duration(cfg.TickMs)*time.Millisecond,
			cfg.Speed,
		), nil
	})
}

func decodeSimConfig(settings map[string]any) (SimConfig, error) {
	var cfg SimConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return SimConfig{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return SimConfig{}, errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&cfg); err != nil {
		return SimConfig{}, errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return SimConfig{}, errors.Wrap(err, "validation failed")
	}
	return cfg, nil
}
