package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loopbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, "data/loopbox.db", cfg.Storage.Path)
	assert.Equal(t, 512, cfg.Storage.CacheSize)
	assert.Equal(t, TransportSimulated, cfg.Playback.Transport.Type)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.PollInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.Loop.SaveDebounce())
	assert.Equal(t, 500*time.Millisecond, cfg.Loop.RepetitionGap())
	assert.Equal(t, 50*time.Millisecond, cfg.Loop.DragReset())
	assert.Equal(t, 1200*time.Millisecond, cfg.Loop.MagnifierHide())
	assert.Equal(t, 3.0, cfg.Loop.DragThresholdPx)
	assert.Equal(t, 50, cfg.Loop.NudgeStepMs)
	assert.Equal(t, 250, cfg.Loop.NudgeCoarseStepMs)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.False(t, cfg.Spotify.Enabled())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  api_token: "file-token"
  hooks:
    on_started: ["echo up"]
storage:
  path: /tmp/loops.db
playback:
  poll_interval_ms: 250
  transport:
    type: spotify
    settings:
      device_id: abc
loop:
  repetition_gap_ms: 800
spotify:
  client_id: id
  client_secret: secret
  refresh_token: refresh
  market: US
client:
  server_url: http://localhost:4000
  user_id: alice
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "file-token", cfg.Server.APIToken)
	assert.Equal(t, []string{"echo up"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, "/tmp/loops.db", cfg.Storage.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Playback.PollInterval())
	assert.Equal(t, TransportSpotify, cfg.Playback.Transport.Type)
	assert.Equal(t, "abc", cfg.Playback.Transport.Settings["device_id"])
	assert.Equal(t, 800*time.Millisecond, cfg.Loop.RepetitionGap())
	assert.Equal(t, 500*time.Millisecond, cfg.Loop.SaveDebounce(), "unset values keep defaults")
	assert.True(t, cfg.Spotify.Enabled())
	assert.Equal(t, "alice", cfg.Client.UserID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  api_token: file-token
`)
	t.Setenv("LOOPBOX_API_TOKEN", "env-token")
	t.Setenv("LOOPBOX_DB_PATH", "/var/lib/loopbox.db")
	t.Setenv("LOOPBOX_SERVER_URL", "http://loops.example.com")
	t.Setenv("LOOPBOX_USER_ID", "bob")
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "env-refresh")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Server.APIToken)
	assert.Equal(t, "/var/lib/loopbox.db", cfg.Storage.Path)
	assert.Equal(t, "http://loops.example.com", cfg.Client.ServerURL)
	assert.Equal(t, "bob", cfg.Client.UserID)
	assert.True(t, cfg.Spotify.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed yaml", body: "server: [unclosed"},
		{name: "unknown transport", body: "playback:\n  transport:\n    type: vinyl\n"},
		{name: "spotify transport without credentials", body: "playback:\n  transport:\n    type: spotify\n"},
		{name: "poll interval too small", body: "playback:\n  poll_interval_ms: 5\n"},
		{name: "coarse step below fine step", body: "loop:\n  nudge_step_ms: 500\n  nudge_coarse_step_ms: 100\n"},
		{name: "bad market", body: "spotify:\n  market: JPN\n"},
		{name: "bad server url", body: "client:\n  server_url: not a url\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

type testSettings struct {
	DeviceID string `mapstructure:"device_id" validate:"required"`
	Volume   int    `mapstructure:"volume" default:"80" validate:"gte=0,lte=100"`
}

func TestDecodeSettings(t *testing.T) {
	var s testSettings
	require.NoError(t, DecodeSettings(map[string]any{"device_id": "abc"}, &s))
	assert.Equal(t, "abc", s.DeviceID)
	assert.Equal(t, 80, s.Volume)

	var weak testSettings
	require.NoError(t, DecodeSettings(map[string]any{"device_id": "abc", "volume": "40"}, &weak))
	assert.Equal(t, 40, weak.Volume)

	var missing testSettings
	assert.Error(t, DecodeSettings(map[string]any{}, &missing))

	var loud testSettings
	assert.Error(t, DecodeSettings(map[string]any{"device_id": "abc", "volume": 300}, &loud))
}
