// Package session runs a listening session: it restores the saved queue,
// advances through it as tracks end, feeds queue events to listeners and
// saves or discards the queue on shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jfmyers9/campfire/internal/discover"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/jfmyers9/campfire/internal/store"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
	"github.com/rs/zerolog"
)

// Config holds session configuration
type Config struct {
	PollInterval    time.Duration // How often to check for the end of a track
	SaveQueueOnExit bool          // Save the queue on shutdown instead of discarding it
	InitialPages    int           // Discovery pages fetched when a tag search starts
}

// Listener receives queue events, for example to publish now playing
// metadata.
type Listener interface {
	HandleEvent(ctx context.Context, event queue.Event)
	Close() error
}

// Session coordinates the queue, discovery feed, poller and listeners
type Session struct {
	config      Config
	manager     *queue.Manager
	persistence *queue.Persistence
	feed        *discover.Feed
	search      *bandcamp.SearchService
	tags        *TagCache
	poller      *Poller
	listeners   []Listener
	logger      zerolog.Logger
}

// New creates a new Session instance
func New(cfg Config, manager *queue.Manager, st store.Store, catalog *bandcamp.Client, logger zerolog.Logger) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.InitialPages <= 0 {
		cfg.InitialPages = 1
	}

	s := &Session{
		config:      cfg,
		manager:     manager,
		persistence: queue.NewPersistence(st, manager, logger),
		feed:        discover.NewFeed(catalog.Discover(), logger),
		search:      catalog.Search(),
		tags:        NewTagCache(st, catalog.Tags()),
		poller:      NewPoller(manager, cfg.PollInterval, logger),
		logger:      logger.With().Str("component", "session").Logger(),
	}
	manager.OnStateChange(s.poller.Wake)
	return s
}

// AddListener registers l for queue events. Call before Run.
func (s *Session) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Manager returns the session's queue.
func (s *Session) Manager() *queue.Manager {
	return s.manager
}

// Feed returns the session's discovery feed.
func (s *Session) Feed() *discover.Feed {
	return s.feed
}

// Persistence returns the session's queue persistence.
func (s *Session) Persistence() *queue.Persistence {
	return s.persistence
}

// Start restores the saved queue when enabled, then enqueues pageURLs.
// When the queue was empty, playback starts at the first new track.
// Failures to restore or enqueue one page are logged and skipped.
func (s *Session) Start(ctx context.Context, pageURLs []string) error {
	if s.config.SaveQueueOnExit {
		if err := s.persistence.Restore(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to restore saved queue")
		}
	}

	wasEmpty := s.manager.Len() == 0
	added := 0
	for _, pageURL := range pageURLs {
		n, err := s.manager.EnqueueFromAlbum(ctx, pageURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to enqueue")
			continue
		}
		added += n
	}

	if len(pageURLs) > 0 && added == 0 {
		return fmt.Errorf("nothing playable in %d page(s)", len(pageURLs))
	}
	if wasEmpty && added > 0 {
		return s.manager.Select(ctx, 0)
	}
	return nil
}

// Discover starts a tag search, fetching the configured number of pages
// or fewer when the feed runs out.
func (s *Session) Discover(ctx context.Context, tags []string) error {
	for i := 0; i < s.config.InitialPages; i++ {
		if err := s.feed.Extend(ctx, tags); err != nil {
			return err
		}
		if !s.feed.More() {
			break
		}
	}
	return nil
}

// More fetches the next discovery page for the current tags.
func (s *Session) More(ctx context.Context) error {
	return s.feed.Extend(ctx, s.feed.Tags())
}

// Search returns playable catalog matches for query.
func (s *Session) Search(ctx context.Context, query string) ([]bandcamp.SearchResult, error) {
	results, err := s.search.Autocomplete(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	playable := results[:0]
	for _, r := range results {
		if r.Playable() {
			playable = append(playable, r)
		}
	}
	return playable, nil
}

// Tags returns the catalog's tag list from the cache.
func (s *Session) Tags(ctx context.Context, refresh bool) ([]string, error) {
	return s.tags.Tags(ctx, refresh)
}

// Run starts the poller and listeners and blocks until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info().Int("tracks", s.manager.Len()).Msg("Starting session")

	var wg sync.WaitGroup
	updates := make(chan PlaybackUpdate, 1)

	// Start poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.poller.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Poller error")
		}
	}()

	// Auto-advance
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.handleUpdates(ctx, updates)
	}()

	for _, l := range s.listeners {
		events, unsubscribe := s.manager.Subscribe()
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			defer unsubscribe()
			s.forward(ctx, l, events)
		}(l)
	}

	wg.Wait()
	s.logger.Info().Msg("Session stopped")
	return nil
}

// forward delivers events to l until ctx is done or the bus closes
func (s *Session) forward(ctx context.Context, l Listener, events <-chan queue.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			l.HandleEvent(ctx, event)
		}
	}
}

// handleUpdates advances the queue when the current track ends
func (s *Session) handleUpdates(ctx context.Context, updates <-chan PlaybackUpdate) {
	var prev PlaybackUpdate
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if trackFinished(prev, update, s.config.PollInterval) {
				s.logger.Debug().
					Str("entry_id", update.EntryID).
					Float64("time", update.Time).
					Float64("duration", update.Duration).
					Msg("Track finished")
				s.advance(ctx)
				// Drop a sample taken while the next track was loading.
				select {
				case <-updates:
				default:
				}
				prev = PlaybackUpdate{}
				continue
			}
			prev = update
		}
	}
}

// advance moves to the next playable track, skipping unplayable ones, and
// stops at the end of the queue.
func (s *Session) advance(ctx context.Context) {
	for attempts := s.manager.Len(); attempts > 0; attempts-- {
		ok, err := s.manager.Advance(ctx)
		if !ok {
			s.logger.Info().Msg("End of queue")
			if err := s.manager.Stop(); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to stop playback")
			}
			return
		}
		if !errors.Is(err, queue.ErrUnplayable) {
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to advance")
			}
			return
		}
		s.logger.Warn().Err(err).Msg("Skipping unplayable track")
	}
}

// Shutdown saves or discards the queue and releases listeners
func (s *Session) Shutdown(ctx context.Context) error {
	s.logger.Info().Bool("save_queue", s.config.SaveQueueOnExit).Msg("Shutting down session")

	var errs []error
	if err := s.persistence.Shutdown(ctx, s.config.SaveQueueOnExit); err != nil {
		errs = append(errs, err)
	}
	if err := s.manager.Stop(); err != nil {
		errs = append(errs, err)
	}
	for _, l := range s.listeners {
		if err := l.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close listener")
		}
	}
	s.manager.Close()

	return errors.Join(errs...)
}

// NotifyContext returns a context cancelled by the first SIGINT or SIGTERM.
// A second signal forces exit.
func NotifyContext(parent context.Context, logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}
		logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	return ctx, cancel
}
