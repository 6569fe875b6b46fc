package session

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/jfmyers9/campfire/internal/store"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
	"github.com/rs/zerolog"
)

// fakeBackend plays nothing; tests move the clock by hand.
type fakeBackend struct {
	mu       sync.Mutex
	state    audio.PlayState
	time     float64
	loads    []string
	onChange func()
}

func (f *fakeBackend) LoadTrack(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, url)
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
	f.state = audio.StatePlaying
	if paused {
		f.state = audio.StatePaused
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
	f.state = audio.StateStopped
	f.time = 0
	return nil
}

func (f *fakeBackend) Seek(seconds float64) error { f.setTime(seconds); return nil }

func (f *fakeBackend) Time() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.time
}

func (f *fakeBackend) setTime(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.time = seconds
}

func (f *fakeBackend) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeBackend) SetVolume(int) error { return nil }
func (f *fakeBackend) Volume() int         { return 100 }
func (f *fakeBackend) Samples() []float64  { return nil }
func (f *fakeBackend) Close() error        { return nil }

func (f *fakeBackend) OnStateChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

const albumJSON = `{"artist":"Band","art_id":9,"url":"/album/test","current":{"title":"Test"},"trackinfo":[` +
	`{"title":"First","duration":5,"file":{"mp3-128":"https://t4.bcbits.com/stream/first"},"title_link":"/track/first"},` +
	`{"title":"Second","duration":5,"file":{"mp3-128":"https://t4.bcbits.com/stream/second"},"title_link":"/track/second"}]}`

const discoverBlob = `{"appData":{"initialState":{"genres":[{"id":1,"label":"ambient"},{"id":2,"label":"rock"}],"subgenres":[],"locations":[]}}}`

type catalogServer struct {
	*httptest.Server
	tagHits  atomic.Int32
	digPages atomic.Int32
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/album/test", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><script data-tralbum="%s"></script></html>`, html.EscapeString(albumJSON))
	})
	mux.HandleFunc("/discover", func(w http.ResponseWriter, r *http.Request) {
		cs.tagHits.Add(1)
		fmt.Fprintf(w, `<html><div id="DiscoverApp" data-blob="%s"></div></html>`, html.EscapeString(discoverBlob))
	})
	mux.HandleFunc("/api/fuzzysearch/1/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"auto":{"results":[`+
			`{"type":"b","name":"Band","url":"https://band.bandcamp.com"},`+
			`{"type":"a","name":"Test","band_name":"Band","url":"https://band.bandcamp.com/album/test"},`+
			`{"type":"t","name":"First","band_name":"Band","url":"https://band.bandcamp.com/track/first"}]}}`)
	})
	mux.HandleFunc("/api/hub/2/dig_deeper", func(w http.ResponseWriter, r *http.Request) {
		n := cs.digPages.Add(1)
		fmt.Fprintf(w, `{"more_available":%t,"items":[{"title":"p%d","artist":"Band","tralbum_url":"https://band.bandcamp.com/album/p%d"}]}`, n < 2, n, n)
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

type testSession struct {
	*Session
	backend *fakeBackend
	server  *catalogServer
	store   store.Store
}

func newTestSession(t *testing.T, cfg Config, st store.Store) *testSession {
	t.Helper()
	server := newCatalogServer(t)
	client, err := bandcamp.NewClient(bandcamp.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if st == nil {
		st = store.NewFiles(t.TempDir())
	}

	backend := &fakeBackend{}
	resolver := queue.NewResolver(client.Albums(), backend, queue.ResolverConfig{}, zerolog.Nop())
	manager := queue.NewManager(client.Albums(), backend, resolver, zerolog.Nop())
	s := New(cfg, manager, st, client, zerolog.Nop())
	return &testSession{Session: s, backend: backend, server: server, store: st}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTrackFinished(t *testing.T) {
	interval := time.Second
	tests := []struct {
		name string
		prev PlaybackUpdate
		cur  PlaybackUpdate
		want bool
	}{
		{
			name: "playing at end",
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StatePlaying, Time: 200, Duration: 200.7},
			want: true,
		},
		{
			name: "playing before end",
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StatePlaying, Time: 199.9, Duration: 200.7},
		},
		{
			name: "paused at end",
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StatePaused, Time: 200, Duration: 200},
		},
		{
			name: "stopped right after near end sample",
			prev: PlaybackUpdate{EntryID: "a", State: audio.StatePlaying, Time: 198, Duration: 200},
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StateStopped, Duration: 200},
			want: true,
		},
		{
			name: "stopped mid track",
			prev: PlaybackUpdate{EntryID: "a", State: audio.StatePlaying, Time: 60, Duration: 200},
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StateStopped, Duration: 200},
		},
		{
			name: "stopped after another track",
			prev: PlaybackUpdate{EntryID: "b", State: audio.StatePlaying, Time: 199, Duration: 200},
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StateStopped, Duration: 200},
		},
		{
			name: "empty queue",
			cur:  PlaybackUpdate{State: audio.StateStopped},
		},
		{
			name: "unknown duration",
			cur:  PlaybackUpdate{EntryID: "a", State: audio.StatePlaying, Time: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trackFinished(tt.prev, tt.cur, interval); got != tt.want {
				t.Errorf("trackFinished() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_AutoAdvance(t *testing.T) {
	ts := newTestSession(t, Config{PollInterval: 10 * time.Millisecond}, nil)
	m := ts.Manager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ts.Start(ctx, []string{ts.server.URL + "/album/test"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if m.Len() != 2 || ts.backend.State() != audio.StatePlaying {
		t.Fatalf("Len = %d, State = %v after Start", m.Len(), ts.backend.State())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ts.Run(ctx)
	}()

	ts.backend.setTime(5)
	waitFor(t, "second track loaded", func() bool { return ts.backend.loadCount() == 2 })
	if m.Position() != 1 {
		t.Fatalf("Position = %d, want 1", m.Position())
	}

	ts.backend.setTime(5)
	waitFor(t, "stop at end of queue", func() bool { return ts.backend.State() == audio.StateStopped })
	if m.Position() != 1 {
		t.Errorf("Position = %d, want 1 at end", m.Position())
	}

	cancel()
	<-done
}

func TestSession_StartNothingPlayable(t *testing.T) {
	ts := newTestSession(t, Config{}, nil)
	err := ts.Start(context.Background(), []string{ts.server.URL + "/album/missing"})
	if err == nil {
		t.Fatal("expected error when no page could be enqueued")
	}
}

func TestSession_ShutdownPersistence(t *testing.T) {
	ctx := context.Background()
	st := store.NewFiles(t.TempDir())

	first := newTestSession(t, Config{SaveQueueOnExit: true}, st)
	if err := first.Start(ctx, []string{first.server.URL + "/album/test"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first.backend.setTime(3)
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	second := newTestSession(t, Config{SaveQueueOnExit: true}, st)
	if err := second.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if second.Manager().Len() != 2 {
		t.Fatalf("restored %d tracks, want 2", second.Manager().Len())
	}
	if second.backend.State() != audio.StatePaused || second.backend.Time() != 3 {
		t.Errorf("State = %v, Time = %v; want paused at 3", second.backend.State(), second.backend.Time())
	}

	third := newTestSession(t, Config{SaveQueueOnExit: false}, st)
	if err := third.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := st.Read(ctx, queue.StateResource); err != store.ErrNotFound {
		t.Errorf("saved queue not discarded: %v", err)
	}
}

func TestSession_Tags(t *testing.T) {
	ctx := context.Background()
	ts := newTestSession(t, Config{}, nil)

	for i := 0; i < 2; i++ {
		tags, err := ts.Tags(ctx, false)
		if err != nil {
			t.Fatalf("Tags failed: %v", err)
		}
		if len(tags) != 2 || tags[0] != "Ambient" || tags[1] != "Rock" {
			t.Fatalf("tags = %v", tags)
		}
	}
	if hits := ts.server.tagHits.Load(); hits != 1 {
		t.Errorf("discover page fetched %d times, want 1", hits)
	}

	if _, err := ts.Tags(ctx, true); err != nil {
		t.Fatalf("Tags refresh failed: %v", err)
	}
	if hits := ts.server.tagHits.Load(); hits != 2 {
		t.Errorf("refresh fetched %d times in total, want 2", hits)
	}
}

func TestSession_Search(t *testing.T) {
	ts := newTestSession(t, Config{}, nil)
	results, err := ts.Search(context.Background(), "band")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].Type != bandcamp.ResultAlbum || results[1].Type != bandcamp.ResultTrack {
		t.Errorf("results = %+v, want album and track only", results)
	}
}

func TestSession_Discover(t *testing.T) {
	ctx := context.Background()
	ts := newTestSession(t, Config{InitialPages: 3}, nil)

	if err := ts.Discover(ctx, []string{"ambient"}); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if got := ts.server.digPages.Load(); got != 2 {
		t.Errorf("fetched %d pages, want 2 (server ran out)", got)
	}
	if len(ts.Feed().Items()) != 2 || ts.Feed().Page() != 3 {
		t.Errorf("items = %d, page = %d", len(ts.Feed().Items()), ts.Feed().Page())
	}
}

type recordingListener struct {
	mu     sync.Mutex
	events []queue.Event
	closed bool
}

func (r *recordingListener) HandleEvent(ctx context.Context, e queue.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingListener) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingListener) count(t queue.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestSession_Listeners(t *testing.T) {
	ts := newTestSession(t, Config{PollInterval: time.Hour}, nil)
	listener := &recordingListener{}
	ts.AddListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ts.Run(ctx)
	}()

	// Run subscribes asynchronously; retry until an event lands.
	waitFor(t, "listener event", func() bool {
		_ = ts.Manager().SetVolume(50)
		return listener.count(queue.EventPlaybackChanged) > 0
	})

	cancel()
	<-done
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !listener.closed {
		t.Error("listener not closed on shutdown")
	}
}
