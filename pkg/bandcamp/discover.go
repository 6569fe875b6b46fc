package bandcamp

import (
	"context"
	"fmt"
)

// DiscoverService pages through Bandcamp's "dig deeper" discovery feed.
type DiscoverService struct {
	client *Client
}

const digDeeperPath = "/api/hub/2/dig_deeper"

// DigDeeper fetches one page of releases matching tags, sorted by
// popularity. Pages are numbered from 1.
//
// Example:
//
//	page, err := client.Discover().DigDeeper(ctx, []string{"ambient"}, 1)
//	if err != nil {
//	    return err
//	}
//	for _, item := range page.Items {
//	    fmt.Println(item.Artist, "-", item.Title)
//	}
func (s *DiscoverService) DigDeeper(ctx context.Context, tags []string, page int) (*DiscoverPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("bandcamp: page must be >= 1, got %d", page)
	}
	if tags == nil {
		tags = []string{}
	}

	req := discoverRequest{
		Filters: discoverFilters{
			Format:   "all",
			Location: 0,
			Sort:     "pop",
			Tags:     tags,
		},
		Page: page,
	}

	var resp DiscoverPage
	if err := s.client.postJSON(ctx, s.client.endpoint(digDeeperPath), req, &resp); err != nil {
		return nil, fmt.Errorf("bandcamp: dig_deeper page %d: %w", page, err)
	}

	s.client.logDebugf("bandcamp: dig_deeper page %d returned %d items", page, len(resp.Items))
	return &resp, nil
}
