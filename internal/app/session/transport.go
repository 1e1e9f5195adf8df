package session

import (
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"github.com/osa030/loopbox/internal/app/playback"
	"github.com/osa030/loopbox/internal/infra/config"
	"github.com/osa030/loopbox/internal/infra/spotify"
)

// NewTransport creates the transport selected by cfg.Playback.Transport.
// client is only used by the spotify transport.
func NewTransport(cfg *config.Config, client *spotify.Client, clock clockwork.Clock) (playback.Transport, error) {
	transportCfg := cfg.Playback.Transport
	switch transportCfg.Type {
	case "", config.TransportSimulated:
		return playback.NewController(playback.Config{Clock: clock}), nil

	case config.TransportSpotify:
		if client == nil {
			return nil, errors.New("spotify transport requires a spotify client")
		}
		var settings spotify.PlayerSettings
		if err := config.DecodeSettings(transportCfg.Settings, &settings); err != nil {
			return nil, errors.Wrap(err, "invalid spotify transport settings")
		}
		return spotify.NewPlayer(client, settings, clock), nil
	}
	return nil, errors.Newf("unknown transport type: %s", transportCfg.Type)
}
