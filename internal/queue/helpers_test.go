package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
	"github.com/rs/zerolog"
)

// fakeBackend records calls and fails loads for URLs in failing.
type fakeBackend struct {
	mu      sync.Mutex
	loads   []string
	seeks   []float64
	failing map[string]bool
	state   audio.PlayState
	time    float64
	volume  int
	stops   int

	// hold runs before a load is recorded; an error fails the load.
	hold func(ctx context.Context, url string) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failing: make(map[string]bool), volume: 100}
}

func (f *fakeBackend) LoadTrack(ctx context.Context, url string) error {
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		if err := hold(ctx, url); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, url)
	if f.failing[url] {
		return errors.New("stream expired")
	}
	f.state = audio.StatePlaying
	f.time = 0
	return nil
}

func (f *fakeBackend) SetPaused(paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == audio.StateStopped {
		return nil
	}
	if paused {
		f.state = audio.StatePaused
	} else {
		f.state = audio.StatePlaying
	}
	return nil
}

func (f *fakeBackend) IsPaused() bool { return f.State() == audio.StatePaused }

func (f *fakeBackend) State() audio.PlayState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBackend) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = audio.StateStopped
	f.time = 0
	return nil
}

func (f *fakeBackend) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	f.time = seconds
	return nil
}

func (f *fakeBackend) Time() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.time
}

func (f *fakeBackend) SetVolume(v int) error { f.volume = v; return nil }
func (f *fakeBackend) Volume() int           { return f.volume }
func (f *fakeBackend) Samples() []float64    { return nil }
func (f *fakeBackend) OnStateChange(func())  {}
func (f *fakeBackend) Close() error          { return nil }

func (f *fakeBackend) setHold(hold func(ctx context.Context, url string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
}

func (f *fakeBackend) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeBackend) loaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

// fakeCatalog serves albums by page URL and counts fetches.
type fakeCatalog struct {
	mu     sync.Mutex
	albums map[string]*bandcamp.Album
	calls  map[string]int
	onGet  func(pageURL string)
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		albums: make(map[string]*bandcamp.Album),
		calls:  make(map[string]int),
	}
}

func (c *fakeCatalog) Get(ctx context.Context, pageURL string) (*bandcamp.Album, error) {
	c.mu.Lock()
	c.calls[pageURL]++
	album, ok := c.albums[pageURL]
	hook := c.onGet
	c.mu.Unlock()

	if hook != nil {
		hook(pageURL)
	}
	if !ok {
		return nil, &bandcamp.Error{StatusCode: 404, URL: pageURL}
	}
	return album, nil
}

func (c *fakeCatalog) count(pageURL string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[pageURL]
}

// testAlbum builds an album at pageURL with streamable tracks named
// "<prefix> 1".."<prefix> n".
func testAlbum(pageURL, prefix string, n int) *bandcamp.Album {
	album := &bandcamp.Album{
		Title:  prefix,
		Artist: "Artist",
		ArtID:  1234,
		URL:    pageURL,
	}
	for i := 1; i <= n; i++ {
		album.Tracks = append(album.Tracks, bandcamp.TrackInfo{
			Title:     fmt.Sprintf("%s %d", prefix, i),
			TrackNum:  i,
			Duration:  180,
			File:      &bandcamp.StreamFile{MP3128: fmt.Sprintf("%s/stream/%s-%d", pageURL, prefix, i)},
			TitleLink: pageURL,
		})
	}
	return album
}

type testEnv struct {
	catalog  *fakeCatalog
	backend  *fakeBackend
	resolver *Resolver
	manager  *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	catalog := newFakeCatalog()
	backend := newFakeBackend()
	resolver := NewResolver(catalog, backend, ResolverConfig{}, zerolog.Nop())
	manager := NewManager(catalog, backend, resolver, zerolog.Nop())
	t.Cleanup(manager.Close)
	return &testEnv{catalog: catalog, backend: backend, resolver: resolver, manager: manager}
}

// fill enqueues n tracks from one album.
func (e *testEnv) fill(t *testing.T, n int) []Track {
	t.Helper()
	page := fmt.Sprintf("https://artist.bandcamp.com/album/fill-%d", len(e.catalog.albums))
	e.catalog.albums[page] = testAlbum(page, "Song", n)
	added, err := e.manager.EnqueueFromAlbum(context.Background(), page)
	if err != nil {
		t.Fatalf("EnqueueFromAlbum failed: %v", err)
	}
	if added != n {
		t.Fatalf("EnqueueFromAlbum added %d, want %d", added, n)
	}
	return e.manager.Tracks()
}

// valid reports whether the position is inside the queue.
func (m *Manager) valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tracks) == 0 {
		return m.position == 0
	}
	return m.position >= 0 && m.position < len(m.tracks)
}

func (r *Resolver) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func assertValid(t *testing.T, m *Manager) {
	t.Helper()
	if !m.valid() {
		t.Fatalf("position %d invalid for queue of %d", m.Position(), m.Len())
	}
}
