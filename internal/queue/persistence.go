package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jfmyers9/campfire/internal/store"
	"github.com/rs/zerolog"
)

// StateResource is the store resource holding the saved queue.
const StateResource = "queue.json"

// PersistedState is the saved queue.
type PersistedState struct {
	Queue        []Track `json:"queue"`
	Position     int     `json:"position"`
	PlayPosition float64 `json:"play_position"` // Seconds into the current track
}

// Persistence saves and restores a Manager's queue through a store.
type Persistence struct {
	store   store.Store
	manager *Manager
	logger  zerolog.Logger
}

// NewPersistence creates a Persistence for manager.
func NewPersistence(s store.Store, manager *Manager, logger zerolog.Logger) *Persistence {
	return &Persistence{
		store:   s,
		manager: manager,
		logger:  logger.With().Str("component", "persistence").Logger(),
	}
}

// Snapshot captures the manager's queue and playback offset.
func (m *Manager) Snapshot() PersistedState {
	m.mu.Lock()
	state := PersistedState{
		Queue:    make([]Track, len(m.tracks)),
		Position: m.position,
	}
	for i, t := range m.tracks {
		state.Queue[i] = *t
	}
	m.mu.Unlock()

	if len(state.Queue) > 0 {
		state.PlayPosition = m.backend.Time()
	}
	return state
}

// Save writes the queue, position and playback offset.
func (p *Persistence) Save(ctx context.Context) error {
	state := p.manager.Snapshot()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := p.store.Write(ctx, StateResource, data); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}

	p.logger.Debug().
		Int("tracks", len(state.Queue)).
		Int("position", state.Position).
		Float64("play_position", state.PlayPosition).
		Msg("Queue saved")
	return nil
}

// Load reads the saved queue without applying it. A missing or empty
// resource yields an empty state.
func (p *Persistence) Load(ctx context.Context) (PersistedState, error) {
	var state PersistedState

	data, err := p.store.Read(ctx, StateResource)
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(data) == 0) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read saved queue: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to decode saved queue: %w", err)
	}
	return state, nil
}

// Restore appends the saved queue, loads the saved current track, seeks to
// the saved offset and leaves playback paused. A missing or empty saved
// queue is not an error.
func (p *Persistence) Restore(ctx context.Context) error {
	state, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if len(state.Queue) == 0 {
		p.logger.Debug().Msg("No saved queue")
		return nil
	}

	m := p.manager
	m.mu.Lock()
	base := len(m.tracks)
	added := m.insertLocked(state.Queue)
	if added > 0 {
		m.position = base + min(keptBefore(state.Queue, state.Position), added-1)
	}
	m.mu.Unlock()

	if added == 0 {
		return nil
	}
	m.publish(EventQueueChanged)

	p.logger.Info().
		Int("tracks", added).
		Int("position", state.Position).
		Float64("play_position", state.PlayPosition).
		Msg("Restoring queue")

	if err := m.LoadCurrent(ctx); err != nil {
		return fmt.Errorf("failed to load restored track: %w", err)
	}
	if err := m.SetPaused(true); err != nil {
		return err
	}
	if state.PlayPosition > 0 {
		if err := m.Seek(state.PlayPosition); err != nil {
			return err
		}
	}
	return nil
}

// keptBefore maps a saved position onto the restored queue, which drops
// tracks without a stream. A dropped saved track resolves to the next kept
// one.
func keptBefore(tracks []Track, position int) int {
	position = min(max(position, 0), len(tracks)-1)
	kept := 0
	for _, t := range tracks[:position] {
		if t.StreamURL != "" {
			kept++
		}
	}
	return kept
}

// Discard deletes the saved queue.
func (p *Persistence) Discard(ctx context.Context) error {
	if err := p.store.Delete(ctx, StateResource); err != nil {
		return fmt.Errorf("failed to discard saved queue: %w", err)
	}
	return nil
}

// Shutdown saves the queue when persist is set and discards it otherwise.
func (p *Persistence) Shutdown(ctx context.Context, persist bool) error {
	if persist {
		return p.Save(ctx)
	}
	return p.Discard(ctx)
}
