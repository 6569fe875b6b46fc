package bandcamp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// SearchService queries Bandcamp's autocomplete search.
type SearchService struct {
	client *Client
}

const autocompletePath = "/api/fuzzysearch/1/autocomplete"

// Autocomplete returns the matches for query. Results may mix albums,
// tracks and bands; use SearchResult.Playable to keep album and track pages.
func (s *SearchService) Autocomplete(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	target := s.client.endpoint(autocompletePath) + "?" + url.Values{"q": {query}}.Encode()

	var resp searchResponse
	if err := s.client.getJSON(ctx, target, &resp); err != nil {
		return nil, fmt.Errorf("bandcamp: search %q: %w", query, err)
	}

	return resp.Auto.Results, nil
}
