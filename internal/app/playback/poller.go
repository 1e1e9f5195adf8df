package playback

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
)

// DefaultPollInterval is the sampling cadence for remote transports.
const DefaultPollInterval = 500 * time.Millisecond

// Poller samples a transport on a fixed interval and publishes the updates.
type Poller struct {
	transport Transport
	interval  time.Duration
	clock     clockwork.Clock
	updates   chan Update
}

// NewPoller creates a poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(t Transport, interval time.Duration, clock clockwork.Clock) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		transport: t,
		interval:  interval,
		clock:     clock,
		updates:   make(chan Update, 8),
	}
}

// Updates returns the update channel. It is closed when Run returns.
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

// Run samples until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.updates)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.sample(ctx)
		}
	}
}

func (p *Poller) sample(ctx context.Context) {
	u, err := p.transport.Sample(ctx)
	if err != nil {
		if IsCannotPlay(err) {
			zlog.Debug().Msgf("playback: sample skipped: %v", err)
		} else {
			zlog.Warn().Msgf("playback: sample failed: %v", err)
		}
		return
	}

	select {
	case p.updates <- u:
	default:
		// Consumer is behind; the next sample supersedes this one
	}
}
