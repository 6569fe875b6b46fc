package audio

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
)

// MPD plays streams through a Music Player Daemon. Each command uses a
// short-lived connection; an idle watcher on the "player" subsystem
// reports pauses, stops and track ends made by MPD itself or other clients.
type MPD struct {
	network  string
	addr     string
	password string
	logger   zerolog.Logger

	mu       sync.Mutex
	watcher  *mpd.Watcher
	onChange func()
	volume   int

	dial func() (mpdConn, error)
}

// mpdConn is the subset of *mpd.Client used here.
type mpdConn interface {
	Status() (mpd.Attrs, error)
	Clear() error
	Add(uri string) error
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	SeekCur(d time.Duration, relative bool) error
	SetVolume(volume int) error
	Close() error
}

// NewMPD creates an MPD backend for the server at network/addr. Nothing is
// dialed until the first command.
func NewMPD(network, addr, password string, logger zerolog.Logger) *MPD {
	m := &MPD{
		network:  network,
		addr:     addr,
		password: password,
		logger:   logger.With().Str("component", "mpd").Logger(),
		volume:   -1,
	}
	m.dial = func() (mpdConn, error) {
		if m.password != "" {
			return mpd.DialAuthenticated(m.network, m.addr, m.password)
		}
		return mpd.Dial(m.network, m.addr)
	}
	return m
}

// do runs fn on a fresh connection.
func (m *MPD) do(fn func(c mpdConn) error) error {
	c, err := m.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to mpd at %s: %w", m.addr, err)
	}
	defer c.Close()
	return fn(c)
}

func (m *MPD) status() (mpd.Attrs, error) {
	var attrs mpd.Attrs
	err := m.do(func(c mpdConn) error {
		var err error
		attrs, err = c.Status()
		return err
	})
	return attrs, err
}

// LoadTrack replaces the MPD playlist with url and plays it.
func (m *MPD) LoadTrack(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	volume := m.volume
	m.mu.Unlock()

	err := m.do(func(c mpdConn) error {
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		if err := c.Add(url); err != nil {
			return fmt.Errorf("add: %w", err)
		}
		if volume >= 0 {
			_ = c.SetVolume(volume)
		}
		if err := c.Play(0); err != nil {
			return fmt.Errorf("play: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	m.ensureWatcher()
	return nil
}

// ensureWatcher starts the idle watcher once.
func (m *MPD) ensureWatcher() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		return
	}
	w, err := mpd.NewWatcher(m.network, m.addr, m.password, "player")
	if err != nil {
		m.logger.Warn().Err(err).Msg("Watcher init failed")
		return
	}
	m.watcher = w

	go func() {
		for err := range w.Error {
			m.logger.Debug().Err(err).Msg("Watcher error")
		}
	}()
	go func() {
		for subsystem := range w.Event {
			m.logger.Debug().Str("subsystem", subsystem).Msg("Idle event")
			m.mu.Lock()
			fn := m.onChange
			m.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}()
}

// SetPaused pauses or resumes playback.
func (m *MPD) SetPaused(paused bool) error {
	return m.do(func(c mpdConn) error { return c.Pause(paused) })
}

// IsPaused reports whether MPD is paused.
func (m *MPD) IsPaused() bool {
	return m.State() == StatePaused
}

// State maps MPD's state attribute.
func (m *MPD) State() PlayState {
	attrs, err := m.status()
	if err != nil {
		return StateStopped
	}
	switch attrs["state"] {
	case "play":
		return StatePlaying
	case "pause":
		return StatePaused
	default:
		return StateStopped
	}
}

// Stop stops playback.
func (m *MPD) Stop() error {
	return m.do(func(c mpdConn) error { return c.Stop() })
}

// Seek moves to an absolute offset.
func (m *MPD) Seek(seconds float64) error {
	d := time.Duration(seconds * float64(time.Second))
	return m.do(func(c mpdConn) error { return c.SeekCur(d, false) })
}

// Time returns the elapsed time of the current song.
func (m *MPD) Time() float64 {
	attrs, err := m.status()
	if err != nil {
		return 0
	}
	elapsed, err := strconv.ParseFloat(attrs["elapsed"], 64)
	if err != nil {
		return 0
	}
	return elapsed
}

// SetVolume sets MPD's mixer volume.
func (m *MPD) SetVolume(percent int) error {
	percent = clampVolume(percent)
	m.mu.Lock()
	m.volume = percent
	m.mu.Unlock()
	return m.do(func(c mpdConn) error { return c.SetVolume(percent) })
}

// Volume returns MPD's mixer volume, or the last requested volume when MPD
// reports none.
func (m *MPD) Volume() int {
	attrs, err := m.status()
	if err == nil {
		if v, err := strconv.Atoi(attrs["volume"]); err == nil && v >= 0 {
			return v
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.volume < 0 {
		return 100
	}
	return m.volume
}

// Samples is not available over the MPD protocol.
func (m *MPD) Samples() []float64 {
	return nil
}

// OnStateChange registers fn to run on player idle events.
func (m *MPD) OnStateChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Close stops the idle watcher.
func (m *MPD) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	m.watcher = nil
	return err
}
