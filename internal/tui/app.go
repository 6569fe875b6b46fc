package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/internal/discover"
	"github.com/jfmyers9/campfire/internal/queue"
)

const (
	maxRecentTracks = 5
	seekStep        = 10 // seconds
	volumeStep      = 5  // percent
	controlTimeout  = 10 * time.Second
)

var errEndOfQueue = errors.New("end of queue")

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 500 * time.Millisecond,
	}
}

// Engine is what the TUI controls. *session.Session satisfies it.
type Engine interface {
	Manager() *queue.Manager
	Feed() *discover.Feed
	More(ctx context.Context) error
}

// RecentTrack stores info about a recently played track
type RecentTrack struct {
	Title    string
	Artist   string
	PlayedAt time.Time
}

// App is the TUI application for the playback queue
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	queue      *tview.TextView
	feed       *tview.TextView
	recent     *tview.TextView
	status     *tview.TextView

	config Config
	engine Engine
	logger zerolog.Logger

	// Mutex protects shared state accessed by both the event consumer
	// goroutine and the ticker goroutine in handleUpdates.
	mu sync.Mutex

	// Current state (guarded by mu)
	lastEntryID string
	lastTrack   *queue.Track
	message     string
	added       map[string]bool // discover results already enqueued

	// Ring buffer for recent tracks
	recentBuf   [maxRecentTracks]RecentTrack
	recentCount int // total tracks added (recentCount % maxRecentTracks = next write index)

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastQueue      string
	lastFeed       string
	lastRecent     string
	lastStatus     string

	// Cached progress bar width to stabilize change detection.
	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New creates a new TUI application
func New(cfg Config, engine Engine, logger zerolog.Logger) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
		engine: engine,
		logger: logger.With().Str("component", "tui").Logger(),
		added:  make(map[string]bool),
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.queue = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.queue.SetBorder(true).
		SetTitle(" Queue ").
		SetTitleAlign(tview.AlignLeft)

	a.feed = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.feed.SetBorder(true).
		SetTitle(" Discover ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	// Top: now playing | recent
	// Middle: progress bar
	// Bottom: queue | discover
	// Footer: status bar
	topRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.nowPlaying, 0, 2, false).
		AddItem(a.recent, 0, 1, false)

	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.queue, 0, 1, false).
		AddItem(a.feed, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 9, 1, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, 0, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	m := a.engine.Manager()
	switch event.Key() {
	case tcell.KeyLeft:
		a.control(func(context.Context) error { return m.Seek(max(m.Time()-seekStep, 0)) })
		return nil
	case tcell.KeyRight:
		a.control(func(context.Context) error { return m.Seek(m.Time() + seekStep) })
		return nil
	}

	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case ' ':
		a.control(m.TogglePause)
		return nil
	case 'n', 'N':
		a.control(func(ctx context.Context) error {
			ok, err := m.Advance(ctx)
			if !ok && err == nil {
				return errEndOfQueue
			}
			return err
		})
		return nil
	case 'p', 'P':
		a.control(m.Retreat)
		return nil
	case 's', 'S':
		m.SetShuffle(!m.Shuffle())
		return nil
	case 'd', 'D':
		a.control(a.loadMore)
		return nil
	case 'a', 'A':
		a.control(a.enqueueFeedHead)
		return nil
	case '+', '=':
		a.control(func(context.Context) error { return m.SetVolume(min(m.Volume()+volumeStep, 100)) })
		return nil
	case '-':
		a.control(func(context.Context) error { return m.SetVolume(max(m.Volume()-volumeStep, 0)) })
		return nil
	}
	return event
}

// control runs fn off the UI goroutine, since loads and fetches block on
// the network, and shows its error in the status bar.
func (a *App) control(fn func(ctx context.Context) error) {
	parent := a.ctx
	if parent == nil {
		parent = context.Background()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parent, controlTimeout)
		defer cancel()
		err := fn(ctx)

		a.mu.Lock()
		a.message = ""
		if err != nil {
			a.logger.Debug().Err(err).Msg("Control failed")
			a.message = err.Error()
		}
		a.mu.Unlock()
	}()
}

// loadMore fetches the next discover page when there is one.
func (a *App) loadMore(ctx context.Context) error {
	feed := a.engine.Feed()
	if len(feed.Tags()) == 0 {
		return fmt.Errorf("no discover tags, run campfire discover <tag>")
	}
	if !feed.More() {
		return fmt.Errorf("no more results")
	}
	return a.engine.More(ctx)
}

// enqueueFeedHead enqueues the oldest discover result not added yet. A
// result whose page fails to load stays available.
func (a *App) enqueueFeedHead(ctx context.Context) error {
	var next string
	a.mu.Lock()
	for _, e := range a.engine.Feed().Items() {
		if !a.added[e.URL] {
			next = e.URL
			a.added[next] = true
			break
		}
	}
	a.mu.Unlock()
	if next == "" {
		return fmt.Errorf("nothing left to add")
	}

	m := a.engine.Manager()
	wasEmpty := m.Len() == 0
	if _, err := m.EnqueueFromAlbum(ctx, next); err != nil {
		a.mu.Lock()
		delete(a.added, next)
		a.mu.Unlock()
		return err
	}
	if wasEmpty {
		return m.Select(ctx, 0)
	}
	return nil
}

// Run starts the TUI and blocks until it exits or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancelFunc = context.WithCancel(ctx)
	defer a.cancelFunc()

	events, unsubscribe := a.engine.Manager().Subscribe()
	defer unsubscribe()

	go a.handleUpdates(a.ctx, events)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// handleUpdates records track changes from queue events; a single ticker
// drives all redraws to prevent queued redraw buildup.
func (a *App) handleUpdates(ctx context.Context, events <-chan queue.Event) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Type != queue.EventTrackChanged || event.Track == nil {
					continue
				}
				a.mu.Lock()
				a.trackChanged(*event.Track, time.Now())
				a.mu.Unlock()
			}
		}
	}()

	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// trackChanged moves the previous track into the recent list.
// Must be called with a.mu held.
func (a *App) trackChanged(track queue.Track, now time.Time) {
	if track.EntryID == a.lastEntryID {
		return
	}
	if a.lastTrack != nil {
		a.addToRecentTracks(*a.lastTrack, now)
	}
	a.lastEntryID = track.EntryID
	a.lastTrack = &track
}

// addToRecentTracks adds a track to the ring buffer of recent tracks.
// Must be called with a.mu held.
func (a *App) addToRecentTracks(track queue.Track, playedAt time.Time) {
	idx := a.recentCount % maxRecentTracks
	a.recentBuf[idx] = RecentTrack{
		Title:    track.Title,
		Artist:   track.Artist,
		PlayedAt: playedAt,
	}
	a.recentCount++
}

// getRecentTracks returns recent tracks in most-recent-first order.
// Must be called with a.mu held.
func (a *App) getRecentTracks() []RecentTrack {
	n := min(a.recentCount, maxRecentTracks)
	result := make([]RecentTrack, n)
	for i := 0; i < n; i++ {
		// Walk backwards from the most recently written slot
		idx := (a.recentCount - 1 - i) % maxRecentTracks
		result[i] = a.recentBuf[idx]
	}
	return result
}

// refresh reads the engine and updates all UI components
func (a *App) refresh() {
	m := a.engine.Manager()
	snap := snapshot{
		tracks:   m.Tracks(),
		position: m.Position(),
		state:    m.State(),
		time:     m.Time(),
		volume:   m.Volume(),
		shuffle:  m.Shuffle(),
		feed:     a.engine.Feed().Items(),
		more:     a.engine.Feed().More(),
	}

	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.setText(a.nowPlaying, &a.lastNowPlaying, renderNowPlaying(snap))
		a.setText(a.progress, &a.lastProgress, a.renderProgress(snap))
		a.setText(a.queue, &a.lastQueue, renderQueue(snap.tracks, snap.position, innerWidth(a.queue)))
		a.setText(a.feed, &a.lastFeed, renderFeed(snap.feed, snap.more, innerWidth(a.feed)))
		a.setText(a.recent, &a.lastRecent, renderRecent(a.getRecentTracks()))
		a.setText(a.status, &a.lastStatus, renderStatus(a.message))
	})
}

func (a *App) setText(view *tview.TextView, last *string, text string) {
	if text != *last {
		*last = text
		view.SetText(text)
	}
}

// snapshot is one read of the engine's state for rendering
type snapshot struct {
	tracks   []queue.Track
	position int
	state    audio.PlayState
	time     float64
	volume   int
	shuffle  bool
	feed     []discover.Entry
	more     bool
}

func (s snapshot) current() *queue.Track {
	if len(s.tracks) == 0 || s.position >= len(s.tracks) {
		return nil
	}
	return &s.tracks[s.position]
}

// renderNowPlaying renders the now playing panel
func renderNowPlaying(s snapshot) string {
	track := s.current()
	if track == nil || s.state == audio.StateStopped {
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(track.Title)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(track.Artist)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(track.Album)))

	stateIcon := "[green]▶[-]" // Play triangle
	if s.state == audio.StatePaused {
		stateIcon = "[yellow]⏸[-]" // Pause icon
	}
	shuffle := ""
	if s.shuffle {
		shuffle = "  [blue]shuffle[-]"
	}
	sb.WriteString(fmt.Sprintf("\n\n%s  vol %d%%%s", stateIcon, s.volume, shuffle))
	return sb.String()
}

// renderProgress renders the progress bar. Must be called with a.mu held.
func (a *App) renderProgress(s snapshot) string {
	track := s.current()
	if track == nil || s.state == audio.StateStopped {
		return ""
	}

	_, _, width, _ := a.progress.GetInnerRect()
	barWidth := width - 14 // Account for time display
	// Only update cached width when GetInnerRect returns a positive value,
	// avoiding flicker from transient zero-width during layout.
	if barWidth > 0 {
		a.lastBarWidth = barWidth
	}
	a.lastBarWidth = max(a.lastBarWidth, 10)

	return fmt.Sprintf("%s %s %s",
		formatDuration(s.time),
		buildProgressBar(s.time, track.Duration, a.lastBarWidth),
		formatDuration(track.Duration))
}

// renderQueue renders one line per queued track, marking the current one
func renderQueue(tracks []queue.Track, position, width int) string {
	if len(tracks) == 0 {
		return "[gray]Queue is empty[-]"
	}
	width = max(width-4, 10)

	var sb strings.Builder
	for i, t := range tracks {
		if i > 0 {
			sb.WriteString("\n")
		}
		line := tview.Escape(fitWidth(t.Title+" - "+t.Artist, width))
		if i == position {
			sb.WriteString(fmt.Sprintf("[green]▶ %s[-]", line))
		} else {
			sb.WriteString(fmt.Sprintf("  [white]%s[-]", line))
		}
	}
	return sb.String()
}

// renderFeed renders the discover results
func renderFeed(items []discover.Entry, more bool, width int) string {
	if len(items) == 0 {
		return "[gray]No results[-]"
	}
	width = max(width-2, 10)

	var sb strings.Builder
	for i, e := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("[white]%s[-]", tview.Escape(fitWidth(e.Title+" - "+e.Artist, width))))
	}
	if more {
		sb.WriteString("\n[gray]d: more[-]")
	}
	return sb.String()
}

// renderRecent renders the recently played tracks
func renderRecent(tracks []RecentTrack) string {
	if len(tracks) == 0 {
		return "[gray]No recent tracks[-]"
	}
	var sb strings.Builder
	for i, t := range tracks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("[white]%s[-]", tview.Escape(fitWidth(t.Title, 20))))
	}
	return sb.String()
}

func renderStatus(message string) string {
	if message != "" {
		return fmt.Sprintf("[red]%s[-]", tview.Escape(message))
	}
	return "[gray]q:quit  space:play/pause  n:next  p:prev  s:shuffle  d:more  a:add  ←→:seek  +/-:vol[-]"
}

func innerWidth(view *tview.TextView) int {
	_, _, width, _ := view.GetInnerRect()
	return width
}

// fitWidth truncates s to width terminal cells
func fitWidth(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration float64, width int) string {
	if duration <= 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := min(max(position/duration, 0), 1)
	filled := int(progress * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}

// formatDuration formats seconds as MM:SS or H:MM:SS for longer durations
func formatDuration(seconds float64) string {
	total := max(int(seconds), 0)

	hours := total / 3600
	minutes := (total / 60) % 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
