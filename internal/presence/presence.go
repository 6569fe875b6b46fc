// Package presence publishes the playing track to Discord Rich Presence.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
)

// seekTolerance is how far the computed start time may drift before the
// activity is sent again.
const seekTolerance = 2

type rpcClient interface {
	SetActivity(Activity) error
	Close()
}

// Player reports playback state. *queue.Manager satisfies it.
type Player interface {
	State() audio.PlayState
	Time() float64
}

// Presence manages Discord Rich Presence updates.
type Presence struct {
	appID   string
	quality bandcamp.Quality
	player  Player
	logger  zerolog.Logger
	client  rpcClient
	connect func(string) (rpcClient, error)
	now     func() time.Time
	last    lastActivity
}

type lastActivity struct {
	entryID string
	start   int64
	playing bool
}

// New creates a Presence for the Discord application appID.
func New(appID string, quality bandcamp.Quality, player Player, logger zerolog.Logger) *Presence {
	return &Presence{
		appID:   appID,
		quality: quality,
		player:  player,
		logger:  logger.With().Str("component", "presence").Logger(),
		connect: func(appID string) (rpcClient, error) {
			return ipcConnect(appID)
		},
		now: time.Now,
	}
}

// HandleEvent updates the activity for a queue event. Discord is
// connected lazily on the first playing track; when it isn't running the
// error is logged and the next event retries.
func (p *Presence) HandleEvent(ctx context.Context, event queue.Event) {
	if ctx.Err() != nil {
		return
	}
	if event.Track == nil || p.player.State() != audio.StatePlaying {
		if p.last.playing {
			p.clearActivity()
			p.last = lastActivity{}
		}
		return
	}
	p.handleTrack(*event.Track, p.player.Time())
}

func (p *Presence) handleTrack(track queue.Track, offset float64) {
	start := p.now().Add(-time.Duration(offset * float64(time.Second)))
	cur := lastActivity{entryID: track.EntryID, start: start.Unix(), playing: true}
	if cur.entryID == p.last.entryID && p.last.playing && abs(cur.start-p.last.start) <= seekTolerance {
		return
	}

	if err := p.ensureConnected(); err != nil {
		p.logger.Warn().Err(err).Msg("Discord not available")
		return
	}

	activity := Activity{
		Type:    2, // Listening
		Name:    "Bandcamp",
		Details: track.Title,
		State:   "by " + track.Artist,
		Assets: &Assets{
			LargeImage: bandcamp.ArtworkURL(track.ArtID, p.quality),
			LargeText:  track.Album,
			SmallImage: "campfire",
			SmallText:  "campfire",
		},
	}
	if track.Duration > 0 {
		startUnix := cur.start
		endUnix := start.Add(time.Duration(track.Duration * float64(time.Second))).Unix()
		activity.Timestamps = &Timestamps{Start: &startUnix, End: &endUnix}
	}

	if err := p.client.SetActivity(activity); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to set activity")
		p.close()
		return
	}
	p.last = cur
}

// Close clears the activity and disconnects.
func (p *Presence) Close() error {
	if p.last.playing {
		p.clearActivity()
		p.last = lastActivity{}
	}
	p.close()
	return nil
}

func (p *Presence) ensureConnected() error {
	if p.client != nil {
		return nil
	}
	client, err := p.connect(p.appID)
	if err != nil {
		return err
	}
	p.logger.Info().Msg("Connected to Discord")
	p.client = client
	return nil
}

func (p *Presence) clearActivity() {
	if p.client == nil {
		return
	}
	if err := p.client.SetActivity(Activity{}); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to clear activity")
		p.close()
	}
}

func (p *Presence) close() {
	if p.client == nil {
		return
	}
	p.client.Close()
	p.client = nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
