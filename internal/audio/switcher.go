package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownBackend is returned when switching to an unregistered backend.
var ErrUnknownBackend = errors.New("unknown audio backend")

// Switcher is a Backend that forwards to one of several backends and can
// swap between them at runtime.
type Switcher struct {
	mu       sync.RWMutex
	backends []Backend
	active   int
	onChange func()
}

// NewSwitcher creates a switcher over backends, indexed by backend id.
// A nil entry marks an unavailable backend. The first non-nil backend
// starts active.
func NewSwitcher(backends ...Backend) *Switcher {
	s := &Switcher{backends: backends, active: -1}
	for id, b := range backends {
		if b != nil {
			s.active = id
			break
		}
	}
	return s
}

// SwitchBackend stops the current backend and makes backend id active,
// carrying the volume over. Switching to the active backend is a no-op.
func (s *Switcher) SwitchBackend(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= len(s.backends) || s.backends[id] == nil {
		return fmt.Errorf("%w: %d", ErrUnknownBackend, id)
	}
	if id == s.active {
		return nil
	}

	volume := 100
	if cur := s.current(); cur != nil {
		volume = cur.Volume()
		if err := cur.Stop(); err != nil {
			return fmt.Errorf("failed to stop %s backend: %w", BackendName(s.active), err)
		}
		cur.OnStateChange(nil)
	}

	next := s.backends[id]
	next.OnStateChange(s.onChange)
	if err := next.SetVolume(volume); err != nil {
		return fmt.Errorf("failed to set volume on %s backend: %w", BackendName(id), err)
	}
	s.active = id
	return nil
}

// Active returns the active backend id.
func (s *Switcher) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// current must be called with s.mu held.
func (s *Switcher) current() Backend {
	if s.active < 0 {
		return nil
	}
	return s.backends[s.active]
}

func (s *Switcher) get() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current()
}

var errNoBackend = errors.New("no audio backend available")

func (s *Switcher) LoadTrack(ctx context.Context, url string) error {
	b := s.get()
	if b == nil {
		return errNoBackend
	}
	return b.LoadTrack(ctx, url)
}

func (s *Switcher) SetPaused(paused bool) error {
	b := s.get()
	if b == nil {
		return errNoBackend
	}
	return b.SetPaused(paused)
}

func (s *Switcher) IsPaused() bool {
	if b := s.get(); b != nil {
		return b.IsPaused()
	}
	return false
}

func (s *Switcher) State() PlayState {
	if b := s.get(); b != nil {
		return b.State()
	}
	return StateStopped
}

func (s *Switcher) Stop() error {
	if b := s.get(); b != nil {
		return b.Stop()
	}
	return nil
}

func (s *Switcher) Seek(seconds float64) error {
	b := s.get()
	if b == nil {
		return errNoBackend
	}
	return b.Seek(seconds)
}

func (s *Switcher) Time() float64 {
	if b := s.get(); b != nil {
		return b.Time()
	}
	return 0
}

func (s *Switcher) SetVolume(percent int) error {
	b := s.get()
	if b == nil {
		return errNoBackend
	}
	return b.SetVolume(percent)
}

func (s *Switcher) Volume() int {
	if b := s.get(); b != nil {
		return b.Volume()
	}
	return 0
}

func (s *Switcher) Samples() []float64 {
	if b := s.get(); b != nil {
		return b.Samples()
	}
	return nil
}

// OnStateChange registers fn on the active backend and on every backend
// switched to later.
func (s *Switcher) OnStateChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
	if cur := s.current(); cur != nil {
		cur.OnStateChange(fn)
	}
}

// Close closes every backend.
func (s *Switcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, b := range s.backends {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
