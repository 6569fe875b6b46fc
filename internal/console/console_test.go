package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/internal/discover"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/jfmyers9/campfire/internal/store"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
)

type fakeBackend struct {
	mu     sync.Mutex
	loads  []string
	state  audio.PlayState
	time   float64
	volume int
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
	return nil
}

func (f *fakeBackend) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

type fakeCatalog map[string]*bandcamp.Album

func (c fakeCatalog) Get(ctx context.Context, pageURL string) (*bandcamp.Album, error) {
	album, ok := c[pageURL]
	if !ok {
		return nil, &bandcamp.Error{StatusCode: 404, URL: pageURL}
	}
	return album, nil
}

type fakePages struct {
	pages int
}

func (f *fakePages) DigDeeper(ctx context.Context, tags []string, page int) (*bandcamp.DiscoverPage, error) {
	return &bandcamp.DiscoverPage{
		Items: []bandcamp.DiscoverItem{{
			Title:      fmt.Sprintf("Release %d", page),
			Artist:     "Artist",
			Genre:      tags[0],
			TralbumURL: fmt.Sprintf("https://artist.bandcamp.com/album/release-%d", page),
		}},
		MoreAvailable: page < f.pages,
	}, nil
}

type fakeEngine struct {
	manager     *queue.Manager
	feed        *discover.Feed
	persistence *queue.Persistence
	results     []bandcamp.SearchResult
}

func (e *fakeEngine) Manager() *queue.Manager         { return e.manager }
func (e *fakeEngine) Feed() *discover.Feed            { return e.feed }
func (e *fakeEngine) Persistence() *queue.Persistence { return e.persistence }

func (e *fakeEngine) Discover(ctx context.Context, tags []string) error {
	return e.feed.Extend(ctx, tags)
}

func (e *fakeEngine) More(ctx context.Context) error {
	return e.feed.Extend(ctx, e.feed.Tags())
}

func (e *fakeEngine) Search(ctx context.Context, query string) ([]bandcamp.SearchResult, error) {
	return e.results, nil
}

func testAlbum(pageURL string, n int) *bandcamp.Album {
	album := &bandcamp.Album{Title: "Album", Artist: "Artist", URL: pageURL}
	for i := 1; i <= n; i++ {
		album.Tracks = append(album.Tracks, bandcamp.TrackInfo{
			Title:    fmt.Sprintf("Song %d", i),
			Duration: 125,
			File:     &bandcamp.StreamFile{MP3128: fmt.Sprintf("%s/stream/%d", pageURL, i)},
		})
	}
	return album
}

type testConsole struct {
	console *Console
	engine  *fakeEngine
	backend *fakeBackend
	store   store.Store
	out     *bytes.Buffer
}

func newTestConsole(t *testing.T) *testConsole {
	t.Helper()
	catalog := fakeCatalog{
		"https://artist.bandcamp.com/album/one": testAlbum("https://artist.bandcamp.com/album/one", 3),
		"https://artist.bandcamp.com/album/two": testAlbum("https://artist.bandcamp.com/album/two", 2),
	}
	for page := 1; page <= 3; page++ {
		url := fmt.Sprintf("https://artist.bandcamp.com/album/release-%d", page)
		catalog[url] = testAlbum(url, 1)
	}

	backend := &fakeBackend{volume: 100}
	resolver := queue.NewResolver(catalog, backend, queue.ResolverConfig{}, zerolog.Nop())
	manager := queue.NewManager(catalog, backend, resolver, zerolog.Nop())
	t.Cleanup(manager.Close)

	st := store.NewFiles(t.TempDir())
	engine := &fakeEngine{
		manager:     manager,
		feed:        discover.NewFeed(&fakePages{pages: 3}, zerolog.Nop()),
		persistence: queue.NewPersistence(st, manager, zerolog.Nop()),
	}
	out := &bytes.Buffer{}
	return &testConsole{
		console: New(engine, out, zerolog.Nop()),
		engine:  engine,
		backend: backend,
		store:   st,
		out:     out,
	}
}

func (tc *testConsole) exec(t *testing.T, line string) string {
	t.Helper()
	tc.out.Reset()
	if err := tc.console.Exec(context.Background(), line); err != nil {
		t.Fatalf("Exec(%q) error = %v", line, err)
	}
	return tc.out.String()
}

func TestExecRejectsBadInput(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{line: "bogus", want: ErrUnknownCommand},
		{line: "eval 1+1", want: ErrUnknownCommand},
		{line: "rm", want: ErrUsage},
		{line: "rm one", want: ErrUsage},
		{line: "next please", want: ErrUsage},
		{line: "vol 200", want: ErrUsage},
		{line: "shuffle sometimes", want: ErrUsage},
		{line: "seek soon", want: ErrUsage},
		{line: "more", want: ErrUsage},
		{line: "rm 1", want: queue.ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tc := newTestConsole(t)
			err := tc.console.Exec(context.Background(), tt.line)
			if !errors.Is(err, tt.want) {
				t.Errorf("Exec(%q) error = %v, want %v", tt.line, err, tt.want)
			}
		})
	}
}

func TestExecBlankLine(t *testing.T) {
	tc := newTestConsole(t)
	if err := tc.console.Exec(context.Background(), "   "); err != nil {
		t.Errorf("Exec(blank) error = %v", err)
	}
}

func TestAddStartsPlayback(t *testing.T) {
	tc := newTestConsole(t)

	out := tc.exec(t, "add https://artist.bandcamp.com/album/one")
	if !strings.Contains(out, "added 3 track(s)") {
		t.Errorf("output = %q, want added count", out)
	}
	if len(tc.backend.loads) != 1 {
		t.Fatalf("loads = %v, want first track loaded", tc.backend.loads)
	}

	// Adding to a non-empty queue doesn't restart playback.
	tc.exec(t, "ADD https://artist.bandcamp.com/album/two")
	if got := tc.engine.manager.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
	if len(tc.backend.loads) != 1 {
		t.Errorf("loads = %v, want 1", tc.backend.loads)
	}
}

func TestAddUnknownPage(t *testing.T) {
	tc := newTestConsole(t)
	err := tc.console.Exec(context.Background(), "add https://artist.bandcamp.com/album/missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if tc.engine.manager.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tc.engine.manager.Len())
	}
}

func TestAddPartialFailureStillStartsPlayback(t *testing.T) {
	tc := newTestConsole(t)
	err := tc.console.Exec(context.Background(),
		"add https://artist.bandcamp.com/album/one https://artist.bandcamp.com/album/missing")
	if err == nil {
		t.Fatal("expected error for the missing page")
	}
	if got := tc.engine.manager.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if len(tc.backend.loads) != 1 {
		t.Errorf("loads = %v, want first track loaded", tc.backend.loads)
	}
}

func TestListAndRemove(t *testing.T) {
	tc := newTestConsole(t)
	tc.exec(t, "add https://artist.bandcamp.com/album/one")
	tc.exec(t, "jump 2")

	out := tc.exec(t, "list")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("list printed %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], ">  2") {
		t.Errorf("current marker missing: %q", lines[1])
	}
	if !strings.HasSuffix(lines[0], "2:05") {
		t.Errorf("duration missing: %q", lines[0])
	}

	tc.exec(t, "rm 1")
	if got := tc.engine.manager.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if got := tc.engine.manager.Position(); got != 0 {
		t.Errorf("Position() = %d, want 0", got)
	}

	tc.exec(t, "clear")
	if out := tc.exec(t, "list"); out != "queue is empty\n" {
		t.Errorf("list = %q", out)
	}
}

func TestPlaybackCommands(t *testing.T) {
	tc := newTestConsole(t)
	tc.exec(t, "add https://artist.bandcamp.com/album/one")

	tc.exec(t, "pause")
	if got := tc.backend.State(); got != audio.StatePaused {
		t.Errorf("after pause state = %v", got)
	}
	tc.exec(t, "play")
	if got := tc.backend.State(); got != audio.StatePlaying {
		t.Errorf("after play state = %v", got)
	}

	tc.exec(t, "seek 1:30")
	tc.exec(t, "seek -20")
	if got := tc.backend.Time(); got != 70 {
		t.Errorf("Time() = %v, want 70", got)
	}

	tc.exec(t, "vol 40")
	if out := tc.exec(t, "vol"); out != "volume 40%\n" {
		t.Errorf("vol = %q", out)
	}

	if out := tc.exec(t, "shuffle on"); out != "shuffle on\n" {
		t.Errorf("shuffle = %q", out)
	}
	if !tc.engine.manager.Shuffle() {
		t.Error("shuffle not enabled")
	}
	tc.exec(t, "shuffle off")

	tc.exec(t, "next")
	tc.exec(t, "next")
	if out := tc.exec(t, "next"); out != "end of queue\n" {
		t.Errorf("next at end = %q", out)
	}
	tc.exec(t, "prev")
	if got := tc.engine.manager.Position(); got != 1 {
		t.Errorf("Position() = %d, want 1", got)
	}

	tc.exec(t, "stop")
	if got := tc.backend.State(); got != audio.StateStopped {
		t.Errorf("after stop state = %v", got)
	}
}

func TestDiscoverAndAddByNumber(t *testing.T) {
	tc := newTestConsole(t)

	out := tc.exec(t, "discover ambient")
	if !strings.Contains(out, "Release 1 - Artist") {
		t.Errorf("discover output = %q", out)
	}

	out = tc.exec(t, "more")
	if !strings.Contains(out, "  2  Release 2") {
		t.Errorf("more output = %q", out)
	}

	tc.exec(t, "add 2")
	cur, ok := tc.engine.manager.Current()
	if !ok || cur.PageURL != "https://artist.bandcamp.com/album/release-2" {
		t.Errorf("Current() = %+v, %v", cur, ok)
	}

	if err := tc.console.Exec(context.Background(), "add 9"); err == nil {
		t.Error("expected error for missing result number")
	}

	tc.exec(t, "more")
	if out := tc.exec(t, "more"); out != "no more results\n" {
		t.Errorf("exhausted more = %q", out)
	}
}

func TestSearchNumbersResults(t *testing.T) {
	tc := newTestConsole(t)
	tc.engine.results = []bandcamp.SearchResult{
		{Type: bandcamp.ResultAlbum, Name: "Two", BandName: "Artist", URL: "https://artist.bandcamp.com/album/two"},
	}

	out := tc.exec(t, "search two by artist")
	if !strings.Contains(out, "1  [a] Two - Artist") {
		t.Errorf("search output = %q", out)
	}
	tc.exec(t, "add 1")
	if got := tc.engine.manager.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestSave(t *testing.T) {
	tc := newTestConsole(t)
	tc.exec(t, "add https://artist.bandcamp.com/album/two")

	if out := tc.exec(t, "save"); out != "saved 2 track(s)\n" {
		t.Errorf("save = %q", out)
	}
	data, err := tc.store.Read(context.Background(), queue.StateResource)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Contains(data, []byte(`"title": "Song 2"`)) {
		t.Errorf("saved state missing track:\n%s", data)
	}
}

func TestBackendUnsupported(t *testing.T) {
	tc := newTestConsole(t)
	if err := tc.console.Exec(context.Background(), "backend mpd"); !errors.Is(err, queue.ErrNoBackendSwitch) {
		t.Errorf("error = %v, want ErrNoBackendSwitch", err)
	}
	if err := tc.console.Exec(context.Background(), "backend alsa"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestRunStopsAtQuit(t *testing.T) {
	tc := newTestConsole(t)
	in := strings.NewReader("vol 50\nbogus\nquit\nvol 10\n")

	if err := tc.console.Run(context.Background(), in); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := tc.backend.Volume(); got != 50 {
		t.Errorf("Volume() = %d, want 50", got)
	}
	if !strings.Contains(tc.out.String(), "error: unknown command \"bogus\"") {
		t.Errorf("output = %q, want error line", tc.out.String())
	}
}

func TestRunStopsAtEOF(t *testing.T) {
	tc := newTestConsole(t)
	if err := tc.console.Run(context.Background(), strings.NewReader("help\n")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(tc.out.String(), "revoke") {
		t.Errorf("help output missing commands: %q", tc.out.String())
	}
}

func TestParseSeek(t *testing.T) {
	tests := []struct {
		arg     string
		now     float64
		want    float64
		wantErr bool
	}{
		{arg: "42", want: 42},
		{arg: "1:05", want: 65},
		{arg: "+10", now: 30, want: 40},
		{arg: "-10", now: 30, want: 20},
		{arg: "-1:00", now: 30, want: 0},
		{arg: "1:75", wantErr: true},
		{arg: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseSeek(tt.arg, tt.now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSeek(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSeek(%q) = %v, want %v", tt.arg, got, tt.want)
			}
		})
	}
}
