package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfmyers9/campfire/internal/store"
)

// TagCacheResource holds the scraped tag list, one tag per line.
const TagCacheResource = "tag.cache"

// TagLister fetches the catalog's tag list.
// *bandcamp.TagService satisfies it.
type TagLister interface {
	List(ctx context.Context) ([]string, error)
}

// TagCache serves the tag list from the store, scraping it on first use.
type TagCache struct {
	store  store.Store
	lister TagLister
}

// NewTagCache creates a TagCache.
func NewTagCache(s store.Store, lister TagLister) *TagCache {
	return &TagCache{store: s, lister: lister}
}

// Tags returns the cached tags, or scrapes and caches them when refresh is
// set or nothing is cached.
func (c *TagCache) Tags(ctx context.Context, refresh bool) ([]string, error) {
	if !refresh {
		data, err := c.store.Read(ctx, TagCacheResource)
		switch {
		case err == nil && len(data) > 0:
			return parseTagCache(data), nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("failed to read tag cache: %w", err)
		}
	}

	tags, err := c.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tags: %w", err)
	}
	data := []byte(strings.Join(tags, "\n") + "\n")
	if err := c.store.Write(ctx, TagCacheResource, data); err != nil {
		return nil, fmt.Errorf("failed to write tag cache: %w", err)
	}
	return tags, nil
}

func parseTagCache(data []byte) []string {
	var tags []string
	for _, line := range bytes.Split(data, []byte("\n")) {
		if tag := strings.TrimSpace(string(line)); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
