// Package discover pages through the catalog's tag-filtered discovery feed.
package discover

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jfmyers9/campfire/pkg/bandcamp"
	"github.com/rs/zerolog"
)

// PageFetcher fetches one page of discovery results.
// *bandcamp.DiscoverService satisfies it.
type PageFetcher interface {
	DigDeeper(ctx context.Context, tags []string, page int) (*bandcamp.DiscoverPage, error)
}

// Entry is a discovered release.
type Entry struct {
	Title  string
	Artist string
	Genre  string
	ArtID  int64
	URL    string // Album or track page, playable with queue.Manager.EnqueueFromAlbum
}

// Feed accumulates discovery results for a set of tags. Extend calls are
// serialized, so pages are appended in order and never twice.
type Feed struct {
	fetcher PageFetcher
	logger  zerolog.Logger

	extendMu sync.Mutex // held across the fetch

	mu    sync.RWMutex
	tags  []string
	page  int
	items []Entry
	more  bool
}

// NewFeed creates an empty feed.
func NewFeed(fetcher PageFetcher, logger zerolog.Logger) *Feed {
	return &Feed{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "discover").Logger(),
		page:    1,
		more:    true,
	}
}

// Extend fetches the next page for tags and appends it. When tags differ
// from the feed's current tags the feed is reset first. On failure the
// feed is unchanged.
func (f *Feed) Extend(ctx context.Context, tags []string) error {
	f.extendMu.Lock()
	defer f.extendMu.Unlock()

	f.mu.Lock()
	if !slices.Equal(f.tags, tags) {
		f.tags = slices.Clone(tags)
		f.page = 1
		f.items = nil
		f.more = true
	}
	page := f.page
	f.mu.Unlock()

	resp, err := f.fetcher.DigDeeper(ctx, tags, page)
	if err != nil {
		return fmt.Errorf("failed to fetch discovery page %d: %w", page, err)
	}

	entries := make([]Entry, 0, len(resp.Items))
	for _, item := range resp.Items {
		entries = append(entries, entryFromItem(item))
	}

	f.mu.Lock()
	f.items = append(f.items, entries...)
	f.page = page + 1
	f.more = resp.MoreAvailable
	total := len(f.items)
	f.mu.Unlock()

	f.logger.Debug().
		Strs("tags", tags).
		Int("page", page).
		Int("items", len(entries)).
		Int("total", total).
		Msg("Feed extended")
	return nil
}

func entryFromItem(item bandcamp.DiscoverItem) Entry {
	artist := item.Artist
	if artist == "" {
		artist = item.BandName
	}
	return Entry{
		Title:  item.Title,
		Artist: artist,
		Genre:  item.Genre,
		ArtID:  item.ArtID,
		URL:    item.TralbumURL,
	}
}

// Clear drops the results and rewinds to page 1, keeping the tags.
func (f *Feed) Clear() {
	f.extendMu.Lock()
	defer f.extendMu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = 1
	f.items = nil
	f.more = true
}

// Items returns a copy of the accumulated results.
func (f *Feed) Items() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.items)
}

// Page returns the next page Extend will fetch.
func (f *Feed) Page() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.page
}

// Tags returns the feed's current tags.
func (f *Feed) Tags() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.tags)
}

// More reports whether the last page said more results are available.
func (f *Feed) More() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.more
}
