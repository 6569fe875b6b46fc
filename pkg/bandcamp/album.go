package bandcamp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// AlbumService fetches and parses album and track pages.
type AlbumService struct {
	client *Client
}

const (
	tralbumAttr = "data-tralbum"
	legacyStart = "var TralbumData = {"
	legacyStop  = "};"
	maxTokenBuf = 8 << 20
)

var (
	joinedURL   = regexp.MustCompile(`(?P<root>url: ".+)" \+ "(?P<album>.+",)`)
	bareKey     = regexp.MustCompile(`    (?P<property>[a-zA-Z_]+):`)
	lineComment = regexp.MustCompile(`// .*`)
)

// Get fetches an album (or track) page and returns its parsed contents.
//
// Track title links on the page are relative (e.g. "/track/name"); they
// are resolved against the page URL so every returned TrackInfo carries an
// absolute TitleLink that can be fetched again later.
//
// Example:
//
//	album, err := client.Albums().Get(ctx, "https://artist.bandcamp.com/album/name")
//	if err != nil {
//	    return err
//	}
//	for _, t := range album.Streamable() {
//	    fmt.Println(t.Title, t.StreamURL())
//	}
func (s *AlbumService) Get(ctx context.Context, pageURL string) (*Album, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("bandcamp: invalid page URL %q: %w", pageURL, err)
	}

	page, err := s.client.getPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	album, err := ParseAlbum(page, base)
	if err != nil {
		return nil, fmt.Errorf("bandcamp: failed to parse %s: %w", pageURL, err)
	}
	if album.URL == "" {
		album.URL = pageURL
	}

	s.client.logDebugf("bandcamp: parsed %q with %d tracks", album.Title, len(album.Tracks))
	return album, nil
}

// ParseAlbum extracts album JSON from an album page and decodes it. Relative
// track links are resolved against base when base is non-nil.
func ParseAlbum(page []byte, base *url.URL) (*Album, error) {
	raw, err := extractTralbum(page)
	if err != nil {
		return nil, err
	}

	var ta tralbum
	if err := json.Unmarshal(raw, &ta); err != nil {
		return nil, fmt.Errorf("failed to decode album JSON: %w", err)
	}

	album := &Album{
		Title:  ta.Current.Title,
		Artist: ta.Artist,
		ArtID:  ta.ArtID,
		URL:    ta.URL,
		Tracks: ta.TrackInfo,
	}
	if base != nil {
		for i := range album.Tracks {
			album.Tracks[i].TitleLink = resolveLink(base, album.Tracks[i].TitleLink)
		}
		if album.URL != "" {
			album.URL = resolveLink(base, album.URL)
		}
	}
	return album, nil
}

// extractTralbum finds the embedded album JSON. Current pages carry valid
// JSON in a data-tralbum attribute; older pages assign a JavaScript object
// literal to a script variable, which is repaired first.
func extractTralbum(page []byte) ([]byte, error) {
	if raw := findAttr(page, tralbumAttr); raw != "" {
		return []byte(raw), nil
	}

	s := string(page)
	start := strings.Index(s, legacyStart)
	if start < 0 {
		return nil, ErrNoAlbumData
	}
	rest := s[start+len(legacyStart)-1:]
	stop := strings.Index(rest, legacyStop)
	if stop < 0 {
		return nil, ErrNoAlbumData
	}
	return []byte(fixJSON(rest[:stop+1])), nil
}

// findAttr returns the first value of attribute name on any element. The
// tokenizer unescapes entities such as &quot;.
func findAttr(page []byte, name string) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	z.SetMaxBuf(maxTokenBuf)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			if _, hasAttr := z.TagName(); !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == name {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

// findElementAttr returns attribute attr of the first element whose id is id.
func findElementAttr(page []byte, id, attr string) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	z.SetMaxBuf(maxTokenBuf)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			if _, hasAttr := z.TagName(); !hasAttr {
				continue
			}
			var gotID bool
			var value string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "id":
					gotID = string(val) == id
				case attr:
					value = string(val)
				}
				if !more {
					break
				}
			}
			if gotID {
				return value
			}
		}
	}
}

// fixJSON repairs the JavaScript object literal found on legacy pages so it
// decodes as JSON: string concatenation in url fields is joined, bare keys
// are quoted and line comments are dropped. It is not safe on arbitrary JSON:
// string values containing "// " or an indented "word:" are rewritten too.
func fixJSON(data string) string {
	data = joinedURL.ReplaceAllString(data, "${root}${album}")
	data = bareKey.ReplaceAllString(data, `"${property}":`)
	data = lineComment.ReplaceAllString(data, "")
	return data
}

func resolveLink(base *url.URL, link string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
