package bandcamp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TagService lists the genre, subgenre and location tags offered on the
// discover page.
type TagService struct {
	client *Client
}

const discoverPagePath = "/discover"

// List scrapes the discover page and returns a sorted, de-duplicated tag
// list. Placeholder entries ("all genres", "from anywhere") are dropped, as
// are labels containing anything but letters and digits.
func (s *TagService) List(ctx context.Context) ([]string, error) {
	page, err := s.client.getPage(ctx, s.client.endpoint(discoverPagePath))
	if err != nil {
		return nil, fmt.Errorf("bandcamp: fetch discover page: %w", err)
	}

	tags, err := ParseTags(page)
	if err != nil {
		return nil, err
	}

	s.client.logDebugf("bandcamp: loaded %d tags", len(tags))
	return tags, nil
}

// ParseTags extracts tags from the DiscoverApp data blob of a discover page.
func ParseTags(page []byte) ([]string, error) {
	blob := findElementAttr(page, "DiscoverApp", "data-blob")
	if blob == "" {
		return nil, ErrNoDiscoverData
	}

	var data discoverBlob
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("bandcamp: decode DiscoverApp blob: %w", err)
	}
	state := data.AppData.InitialState

	var labels []string
	for _, g := range state.Genres {
		if g.ID > 0 {
			labels = append(labels, g.Label)
		}
	}
	for _, g := range state.Subgenres {
		// negative ids are the "all <parent>" rows
		if g.ID >= 0 {
			labels = append(labels, g.Label)
		}
	}
	for _, l := range state.Locations {
		if l.ID > 0 {
			labels = append(labels, l.Label)
		}
	}

	return normalizeTags(labels), nil
}

func normalizeTags(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	tags := make([]string, 0, len(labels))
	for _, l := range labels {
		t := capitalize(l)
		if t == "" || !isAlphanumeric(t) || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + s[size:]
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
