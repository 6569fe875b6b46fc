package session

import (
	"context"
	"math"
	"time"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/rs/zerolog"
)

// Player is the part of queue.Manager the poller reads.
type Player interface {
	Current() (queue.Track, bool)
	State() audio.PlayState
	Time() float64
}

// PlaybackUpdate is one observation of the player
type PlaybackUpdate struct {
	EntryID  string          // Current track ("" when the queue is empty)
	State    audio.PlayState // Backend state
	Time     float64         // Offset in seconds
	Duration float64         // Track length in seconds
}

// Poller samples the player at regular intervals and whenever woken
type Poller struct {
	player   Player
	interval time.Duration
	wake     chan struct{}
	logger   zerolog.Logger
}

// NewPoller creates a new Poller instance
func NewPoller(player Player, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		player:   player,
		interval: interval,
		wake:     make(chan struct{}, 1),
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Wake requests an immediate poll. It never blocks.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run starts the polling loop and sends updates to the provided channel
// Blocks until context is cancelled
func (p *Poller) Run(ctx context.Context, updates chan<- PlaybackUpdate) error {
	p.logger.Debug().
		Dur("interval", p.interval).
		Msg("Starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, updates)
		case <-p.wake:
			p.poll(ctx, updates)
		}
	}
}

// poll reads the player and sends an update
func (p *Poller) poll(ctx context.Context, updates chan<- PlaybackUpdate) {
	update := PlaybackUpdate{State: p.player.State()}
	if track, ok := p.player.Current(); ok {
		update.EntryID = track.EntryID
		update.Duration = track.Duration
		update.Time = p.player.Time()
	}

	select {
	case updates <- update:
	case <-ctx.Done():
	}
}

// trackFinished reports whether cur shows the end of the track observed in
// prev. A backend that reaches the end either keeps reporting an offset at
// the track's length or drops to stopped right after a sample taken near
// the end.
func trackFinished(prev, cur PlaybackUpdate, interval time.Duration) bool {
	if cur.EntryID == "" || cur.Duration <= 0 {
		return false
	}
	if cur.State == audio.StatePlaying && cur.Time >= math.Floor(cur.Duration) {
		return true
	}
	if prev.EntryID != cur.EntryID || prev.State != audio.StatePlaying || cur.State != audio.StateStopped {
		return false
	}
	slack := 2*interval.Seconds() + 1
	return prev.Time >= cur.Duration-slack
}
