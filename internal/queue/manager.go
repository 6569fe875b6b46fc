package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/rs/zerolog"
)

// ErrIndexOutOfRange is returned for an index outside the queue.
var ErrIndexOutOfRange = errors.New("index out of range")

// ErrNoBackendSwitch is returned by SwitchBackend when the backend cannot
// switch implementations.
var ErrNoBackendSwitch = errors.New("audio backend does not support switching")

// Manager owns the queue and drives playback through the backend. The
// queue lock is never held across a catalog fetch: fetches happen first and
// their result is applied in one step.
type Manager struct {
	catalog  AlbumFetcher
	backend  audio.Backend
	resolver *Resolver
	bus      *Bus
	logger   zerolog.Logger

	mu       sync.Mutex
	tracks   []*Track
	position int
	shuffle  bool
	rand     *rand.Rand
}

// NewManager creates an empty queue.
func NewManager(catalog AlbumFetcher, backend audio.Backend, resolver *Resolver, logger zerolog.Logger) *Manager {
	return &Manager{
		catalog:  catalog,
		backend:  backend,
		resolver: resolver,
		bus:      NewBus(),
		logger:   logger.With().Str("component", "queue").Logger(),
		rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Subscribe returns a channel of queue events and its unsubscribe function.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.Subscribe()
}

// Close closes every subscriber channel.
func (m *Manager) Close() {
	m.bus.Close()
}

// OnStateChange registers fn to run when the backend changes state on its
// own, such as at the end of a stream.
func (m *Manager) OnStateChange(fn func()) {
	m.backend.OnStateChange(fn)
}

// EnqueueFromAlbum fetches the album or track page and appends its
// streamable tracks. It returns how many tracks were added. On fetch
// failure the queue is untouched.
func (m *Manager) EnqueueFromAlbum(ctx context.Context, pageURL string) (int, error) {
	album, err := m.catalog.Get(ctx, pageURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch album: %w", err)
	}

	added := m.Enqueue(TracksFromAlbum(album)...)
	m.logger.Info().
		Str("album", album.Title).
		Str("artist", album.Artist).
		Int("added", added).
		Int("skipped", len(album.Tracks)-added).
		Msg("Enqueued album")
	return added, nil
}

// Enqueue appends tracks that carry a stream URL and returns how many were
// added. Tracks without an EntryID are assigned one.
func (m *Manager) Enqueue(tracks ...Track) int {
	m.mu.Lock()
	added := m.insertLocked(tracks)
	m.mu.Unlock()

	if added > 0 {
		m.publish(EventQueueChanged)
	}
	return added
}

// insertLocked is the single insertion path; m.mu must be held.
func (m *Manager) insertLocked(tracks []Track) int {
	added := 0
	for _, t := range tracks {
		if t.StreamURL == "" {
			continue
		}
		t := t
		if t.EntryID == "" {
			t.EntryID = newEntryID()
		}
		m.tracks = append(m.tracks, &t)
		added++
	}
	return added
}

// RemoveAt removes the track at index. Removing the current track stops
// playback first.
func (m *Manager) RemoveAt(index int) error {
	m.mu.Lock()
	n := len(m.tracks)
	if index < 0 || index >= n {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, n)
	}

	if index == m.position {
		m.resolver.Invalidate()
		if err := m.backend.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to stop playback")
		}
	}

	m.tracks = append(m.tracks[:index], m.tracks[index+1:]...)
	switch {
	case index < m.position:
		m.position--
	case m.position >= len(m.tracks):
		m.position = max(len(m.tracks)-1, 0)
	}
	m.mu.Unlock()

	m.publish(EventQueueChanged)
	return nil
}

// Advance moves to the next track and loads it. In shuffle mode the next
// track is drawn uniformly from the whole queue and may repeat. It reports
// false, leaving the position unchanged, at the end of the queue.
func (m *Manager) Advance(ctx context.Context) (bool, error) {
	m.mu.Lock()
	n := len(m.tracks)
	switch {
	case n == 0:
		m.mu.Unlock()
		return false, nil
	case m.shuffle:
		m.position = m.rand.IntN(n)
	case m.position < n-1:
		m.position++
	default:
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	return true, m.LoadCurrent(ctx)
}

// Retreat moves to the previous track and loads it. On the first track it
// restarts the current track instead.
func (m *Manager) Retreat(ctx context.Context) error {
	m.mu.Lock()
	if len(m.tracks) == 0 {
		m.mu.Unlock()
		return nil
	}
	if m.position == 0 {
		m.mu.Unlock()
		return m.Seek(0)
	}
	m.position--
	m.mu.Unlock()

	return m.LoadCurrent(ctx)
}

// Select jumps to index and loads it.
func (m *Manager) Select(ctx context.Context, index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.tracks) {
		n := len(m.tracks)
		m.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, n)
	}
	m.position = index
	m.mu.Unlock()

	return m.LoadCurrent(ctx)
}

// Clear stops playback and empties the queue.
func (m *Manager) Clear() error {
	m.mu.Lock()
	m.resolver.Invalidate()
	err := m.backend.Stop()
	m.tracks = nil
	m.position = 0
	m.mu.Unlock()

	m.publish(EventQueueChanged)
	if err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	return nil
}

// LoadCurrent resolves and starts the current track. A refreshed stream
// link is written back to the queued track.
func (m *Manager) LoadCurrent(ctx context.Context) error {
	m.mu.Lock()
	if len(m.tracks) == 0 {
		m.mu.Unlock()
		return nil
	}
	track := *m.tracks[m.position]
	m.mu.Unlock()

	loaded, err := m.resolver.Resolve(ctx, track)
	if err != nil {
		if errors.Is(err, ErrStale) {
			m.logger.Debug().Str("track", track.Title).Msg("Load superseded")
		} else {
			m.logger.Warn().Err(err).Str("track", track.Title).Msg("Failed to load track")
		}
		return err
	}

	if loaded != track.StreamURL {
		m.updateStream(map[string]string{track.EntryID: loaded})
	}

	m.logger.Info().
		Str("track", track.Title).
		Str("artist", track.Artist).
		Msg("Playing")
	m.publish(EventTrackChanged)
	return nil
}

// RevalidateAll refreshes the stream link of every queued track.
func (m *Manager) RevalidateAll(ctx context.Context) error {
	fresh, err := m.resolver.RevalidateAll(ctx, m.Tracks())
	if n := m.updateStream(fresh); n > 0 {
		m.publish(EventQueueChanged)
	}
	return err
}

// updateStream rewrites the stream URL of tracks still queued, keyed by
// EntryID. It returns how many tracks changed.
func (m *Manager) updateStream(fresh map[string]string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	for _, t := range m.tracks {
		if url, ok := fresh[t.EntryID]; ok && url != t.StreamURL {
			t.StreamURL = url
			changed++
		}
	}
	return changed
}

// SetShuffle enables or disables shuffle mode.
func (m *Manager) SetShuffle(on bool) {
	m.mu.Lock()
	m.shuffle = on
	m.mu.Unlock()
	m.publish(EventPlaybackChanged)
}

// Shuffle reports whether shuffle mode is on.
func (m *Manager) Shuffle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuffle
}

// TogglePause pauses or resumes playback, loading the current track when
// nothing is loaded.
func (m *Manager) TogglePause(ctx context.Context) error {
	if m.backend.State() == audio.StateStopped {
		return m.LoadCurrent(ctx)
	}
	if err := m.backend.SetPaused(!m.backend.IsPaused()); err != nil {
		return fmt.Errorf("failed to toggle pause: %w", err)
	}
	m.publish(EventPlaybackChanged)
	return nil
}

// SetPaused pauses or resumes playback.
func (m *Manager) SetPaused(paused bool) error {
	if err := m.backend.SetPaused(paused); err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}
	m.publish(EventPlaybackChanged)
	return nil
}

// Paused reports whether playback is paused.
func (m *Manager) Paused() bool {
	return m.backend.IsPaused()
}

// State reports the backend's playback state.
func (m *Manager) State() audio.PlayState {
	return m.backend.State()
}

// Stop stops playback, keeping the queue.
func (m *Manager) Stop() error {
	m.resolver.Invalidate()
	if err := m.backend.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	m.publish(EventPlaybackChanged)
	return nil
}

// Seek moves playback of the current track to seconds.
func (m *Manager) Seek(seconds float64) error {
	if err := m.backend.Seek(seconds); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	m.publish(EventPlaybackChanged)
	return nil
}

// Time returns the playback offset of the current track in seconds.
func (m *Manager) Time() float64 {
	return m.backend.Time()
}

// SetVolume sets the volume in percent.
func (m *Manager) SetVolume(percent int) error {
	if err := m.backend.SetVolume(percent); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	m.publish(EventPlaybackChanged)
	return nil
}

// Volume returns the volume in percent.
func (m *Manager) Volume() int {
	return m.backend.Volume()
}

// Samples returns recent output samples for visualization.
func (m *Manager) Samples() []float64 {
	return m.backend.Samples()
}

// SwitchBackend swaps the audio backend and resumes the current track on
// it at the same offset and pause state.
func (m *Manager) SwitchBackend(ctx context.Context, id int) error {
	sw, ok := m.backend.(interface{ SwitchBackend(int) error })
	if !ok {
		return ErrNoBackendSwitch
	}

	offset := m.backend.Time()
	state := m.backend.State()

	if err := sw.SwitchBackend(id); err != nil {
		return err
	}
	m.logger.Info().Str("backend", audio.BackendName(id)).Msg("Switched audio backend")

	if state == audio.StateStopped || m.Len() == 0 {
		m.publish(EventPlaybackChanged)
		return nil
	}
	if err := m.LoadCurrent(ctx); err != nil {
		return err
	}
	if err := m.backend.Seek(offset); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to restore offset")
	}
	if state == audio.StatePaused {
		return m.SetPaused(true)
	}
	return nil
}

// Tracks returns a copy of the queue.
func (m *Manager) Tracks() []Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Track, len(m.tracks))
	for i, t := range m.tracks {
		out[i] = *t
	}
	return out
}

// Current returns the track at the playback position.
func (m *Manager) Current() (Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tracks) == 0 {
		return Track{}, false
	}
	return *m.tracks[m.position], true
}

// Position returns the playback position.
func (m *Manager) Position() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Len returns the number of queued tracks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

func (m *Manager) publish(t EventType) {
	m.mu.Lock()
	e := Event{Type: t, Position: m.position, Len: len(m.tracks)}
	if len(m.tracks) > 0 {
		cur := *m.tracks[m.position]
		e.Track = &cur
	}
	m.mu.Unlock()

	m.bus.Publish(e)
}
