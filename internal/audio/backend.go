package audio

import (
	"context"
	"fmt"
	"strings"
)

// PlayState represents the current playback state of a backend
type PlayState int

const (
	StateStopped PlayState = iota // Nothing loaded
	StatePlaying                  // Track is currently playing
	StatePaused                   // Track is paused
)

// String returns a human-readable representation of the PlayState
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Backend plays one resolved stream at a time.
type Backend interface {
	// LoadTrack replaces the current stream with url and starts playback.
	// A non-nil error means the stream could not be opened.
	LoadTrack(ctx context.Context, url string) error

	// SetPaused pauses or resumes the loaded stream
	SetPaused(paused bool) error

	// IsPaused reports whether playback is paused
	IsPaused() bool

	// State reports the playback state
	State() PlayState

	// Stop unloads the current stream
	Stop() error

	// Seek moves to an absolute offset in seconds
	Seek(seconds float64) error

	// Time returns the playback offset in seconds
	Time() float64

	// SetVolume sets volume in percent (0-100)
	SetVolume(percent int) error

	// Volume returns volume in percent
	Volume() int

	// Samples returns recent output samples for visualization. May be nil.
	Samples() []float64

	// OnStateChange registers a callback fired when playback state changes
	// outside of a direct call (track ended, external client paused).
	OnStateChange(fn func())

	Close() error
}

// Backend identifiers accepted by Switcher.SwitchBackend.
const (
	BackendNative = 0
	BackendMPD    = 1
)

var backendNames = []string{"native", "mpd"}

// ParseBackend maps a backend name to its identifier.
func ParseBackend(name string) (int, error) {
	for id, n := range backendNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown audio backend %q", name)
}

// BackendName returns the name of backend id.
func BackendName(id int) string {
	if id < 0 || id >= len(backendNames) {
		return "unknown"
	}
	return backendNames[id]
}

func clampVolume(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
