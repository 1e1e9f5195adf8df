// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Transport types.
const (
	TransportSimulated = "simulated"
	TransportSpotify   = "spotify"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Playback PlaybackConfig `yaml:"playback"`
	Loop     LoopConfig     `yaml:"loop"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Client   ClientConfig   `yaml:"client"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr     string      `yaml:"addr" default:":4000"`
	APIToken string      `yaml:"api_token"`
	Hooks    HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// StorageConfig represents the SQLite storage configuration.
type StorageConfig struct {
	Path      string `yaml:"path" default:"data/loopbox.db" validate:"required"`
	CacheSize int    `yaml:"cache_size" default:"512" validate:"gte=1,lte=100000"`
}

// PlaybackConfig represents playback transport configuration.
type PlaybackConfig struct {
	PollIntervalMs int             `yaml:"poll_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	Transport      TransportConfig `yaml:"transport"`
}

// TransportConfig selects and configures the playback transport.
type TransportConfig struct {
	Type     string         `yaml:"type" default:"simulated" validate:"oneof=simulated spotify"`
	Settings map[string]any `yaml:"settings"`
}

// LoopConfig represents loop editing and enforcement timings.
type LoopConfig struct {
	SaveDebounceMs    int     `yaml:"save_debounce_ms" default:"500" validate:"gte=0,lte=60000"`
	RepetitionGapMs   int     `yaml:"repetition_gap_ms" default:"500" validate:"gte=0,lte=10000"`
	DragThresholdPx   float64 `yaml:"drag_threshold_px" default:"3" validate:"gte=0"`
	DragResetMs       int     `yaml:"drag_reset_ms" default:"50" validate:"gte=0,lte=5000"`
	MagnifierHideMs   int     `yaml:"magnifier_hide_ms" default:"1200" validate:"gte=0,lte=60000"`
	NudgeStepMs       int     `yaml:"nudge_step_ms" default:"50" validate:"gte=1"`
	NudgeCoarseStepMs int     `yaml:"nudge_coarse_step_ms" default:"250" validate:"gte=1"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// ClientConfig represents the practice client's connection settings.
type ClientConfig struct {
	ServerURL string `yaml:"server_url" validate:"omitempty,url"`
	UserID    string `yaml:"user_id"`
}

// Load loads configuration from a YAML file. An empty path yields the
// defaults. Environment variables take precedence over file values for
// sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LOOPBOX_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("LOOPBOX_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("LOOPBOX_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("LOOPBOX_USER_ID"); v != "" {
		c.Client.UserID = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Loop.NudgeCoarseStepMs < c.Loop.NudgeStepMs {
		return errors.Newf("nudge_coarse_step_ms (%d) must not be smaller than nudge_step_ms (%d)",
			c.Loop.NudgeCoarseStepMs, c.Loop.NudgeStepMs)
	}
	if c.Playback.Transport.Type == TransportSpotify && !c.Spotify.Enabled() {
		return errors.New("spotify transport requires client_id, client_secret and refresh_token")
	}
	return nil
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// PollInterval returns the transport sampling interval.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// SaveDebounce returns the quiet period before a loop save.
func (l LoopConfig) SaveDebounce() time.Duration {
	return time.Duration(l.SaveDebounceMs) * time.Millisecond
}

// RepetitionGap returns the minimum time between two loop repetitions.
func (l LoopConfig) RepetitionGap() time.Duration {
	return time.Duration(l.RepetitionGapMs) * time.Millisecond
}

// DragReset returns how long a finished segment drag suppresses clicks.
func (l LoopConfig) DragReset() time.Duration {
	return time.Duration(l.DragResetMs) * time.Millisecond
}

// MagnifierHide returns the magnifier inactivity timeout.
func (l LoopConfig) MagnifierHide() time.Duration {
	return time.Duration(l.MagnifierHideMs) * time.Millisecond
}

// DecodeSettings decodes a free-form settings map into out, applies its
// default tags and validates it.
func DecodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
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
