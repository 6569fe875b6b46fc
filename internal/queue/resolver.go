package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jfmyers9/campfire/pkg/bandcamp"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

var (
	// ErrUnplayable is returned when a track cannot be played even after its
	// stream link was refreshed. Playback of other tracks is unaffected.
	ErrUnplayable = errors.New("track unplayable")

	// ErrStale is returned when a newer selection superseded a resolution
	// before its track started playing.
	ErrStale = errors.New("resolution superseded")

	errSuperseded = errors.New("superseded")
)

// DefaultRevalidateConcurrency bounds concurrent page fetches in
// RevalidateAll.
const DefaultRevalidateConcurrency = 4

// AlbumFetcher fetches and parses an album or track page.
// *bandcamp.AlbumService satisfies it.
type AlbumFetcher interface {
	Get(ctx context.Context, pageURL string) (*bandcamp.Album, error)
}

// StreamLoader starts and stops playback of a stream URL.
type StreamLoader interface {
	LoadTrack(ctx context.Context, url string) error
	Stop() error
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	PreferHTTP  bool // Downgrade stream URLs to plain HTTP before loading
	Concurrency int  // RevalidateAll fetch limit; DefaultRevalidateConcurrency when <= 0
}

// Resolver turns a queued track into a playing stream, refreshing the
// track's stream link once when it no longer loads. It never stores tracks.
type Resolver struct {
	catalog AlbumFetcher
	loader  StreamLoader
	config  ResolverConfig
	logger  zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc // cancels the active selection's loads

	// loadMu serializes backend loads so a superseded load never lands
	// after a newer one.
	loadMu sync.Mutex
}

// NewResolver creates a Resolver.
func NewResolver(catalog AlbumFetcher, loader StreamLoader, cfg ResolverConfig, logger zerolog.Logger) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultRevalidateConcurrency
	}
	return &Resolver{
		catalog: catalog,
		loader:  loader,
		config:  cfg,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// begin starts a new selection, cancelling any in flight. The returned
// context is cancelled once a newer selection begins.
func (r *Resolver) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	return r.gen, ctx, cancel
}

// Invalidate supersedes any resolution in flight.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
}

func (r *Resolver) active(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

// load hands streamURL to the backend while gen is the active selection.
// A load that completes after gen was superseded is stopped; a newer
// selection loads after it.
func (r *Resolver) load(ctx context.Context, gen uint64, streamURL string) error {
	if r.config.PreferHTTP {
		streamURL = bandcamp.Downgrade(streamURL)
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if !r.active(gen) {
		return errSuperseded
	}
	if err := r.loader.LoadTrack(ctx, streamURL); err != nil {
		if !r.active(gen) {
			return errSuperseded
		}
		return err
	}
	if !r.active(gen) {
		if err := r.loader.Stop(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to stop superseded stream")
		}
		return errSuperseded
	}
	return nil
}

// Resolve loads track. When the stream fails to load, the track's page is
// fetched again and the load is retried exactly once with the fresh link.
// It returns the stream URL that was loaded, which differs from
// track.StreamURL when the link was refreshed. ErrStale is returned when a
// newer selection began before the track started playing.
func (r *Resolver) Resolve(ctx context.Context, track Track) (string, error) {
	gen, ctx, cancel := r.begin(ctx)
	defer cancel()

	stale := func() (string, error) {
		r.logger.Debug().Str("entry_id", track.EntryID).Msg("Discarding superseded resolution")
		return "", fmt.Errorf("%s: %w", track.Title, ErrStale)
	}

	err := r.load(ctx, gen, track.StreamURL)
	switch {
	case err == nil:
		return track.StreamURL, nil
	case errors.Is(err, errSuperseded):
		return stale()
	case ctx.Err() != nil:
		return "", ctx.Err()
	}

	r.logger.Info().
		Err(err).
		Str("track", track.Title).
		Str("entry_id", track.EntryID).
		Msg("Stream failed to load, refreshing link")

	fresh, ferr := r.refresh(ctx, track)
	if !r.active(gen) {
		return stale()
	}
	if ferr != nil {
		return "", fmt.Errorf("%s: %w: %w", track.Title, ErrUnplayable, ferr)
	}

	if err := r.load(ctx, gen, fresh); err != nil {
		if errors.Is(err, errSuperseded) {
			return stale()
		}
		return "", fmt.Errorf("%s: %w: %w", track.Title, ErrUnplayable, err)
	}
	return fresh, nil
}

// refresh fetches a current stream URL for track from its page.
func (r *Resolver) refresh(ctx context.Context, track Track) (string, error) {
	album, err := r.catalog.Get(ctx, track.PageURL)
	if err != nil {
		return "", fmt.Errorf("failed to refetch %s: %w", track.PageURL, err)
	}
	fresh := matchStream(album, track.Title)
	if fresh == "" {
		return "", fmt.Errorf("no stream for %q on %s", track.Title, track.PageURL)
	}
	return fresh, nil
}

// matchStream finds title's stream on album, falling back to the first
// streamable entry. A track page carries exactly one entry.
func matchStream(album *bandcamp.Album, title string) string {
	streamable := album.Streamable()
	for _, t := range streamable {
		if strings.EqualFold(t.Title, title) {
			return t.StreamURL()
		}
	}
	if len(streamable) > 0 {
		return streamable[0].StreamURL()
	}
	return ""
}

// RevalidateAll refreshes the stream link of every track without loading
// any of them. Each page is fetched once even when several tracks share it.
// It returns the fresh link per EntryID; tracks whose page failed are left
// out and their errors joined.
func (r *Resolver) RevalidateAll(ctx context.Context, tracks []Track) (map[string]string, error) {
	byPage := make(map[string][]Track)
	var pages []string
	for _, t := range tracks {
		if t.PageURL == "" {
			continue
		}
		if _, ok := byPage[t.PageURL]; !ok {
			pages = append(pages, t.PageURL)
		}
		byPage[t.PageURL] = append(byPage[t.PageURL], t)
	}

	var mu sync.Mutex
	var failed []error
	fresh := make(map[string]string, len(tracks))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.config.Concurrency)
	for _, page := range pages {
		page := page
		p.Go(func(ctx context.Context) error {
			album, err := r.catalog.Get(ctx, page)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, fmt.Errorf("failed to refetch %s: %w", page, err))
				return nil
			}
			for _, t := range byPage[page] {
				if url := matchStream(album, t.Title); url != "" {
					fresh[t.EntryID] = url
				} else {
					failed = append(failed, fmt.Errorf("no stream for %q on %s", t.Title, page))
				}
			}
			return nil
		})
	}
	_ = p.Wait()

	r.logger.Info().
		Int("tracks", len(tracks)).
		Int("pages", len(pages)).
		Int("refreshed", len(fresh)).
		Int("failed", len(failed)).
		Msg("Revalidated queue")

	return fresh, errors.Join(failed...)
}
