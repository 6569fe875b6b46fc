// Package bandcamp provides a client library for the public Bandcamp web API
// and album pages.
//
// # Overview
//
// Bandcamp has no documented API for listeners. This package wraps the JSON
// endpoints used by the Bandcamp web site (discovery and autocomplete) and
// parses the album JSON embedded in album and track pages. It provides
// context support, typed errors, and retry logic.
//
// # Installation
//
//	go get github.com/jfmyers9/campfire/pkg/bandcamp
//
// # Quick Start
//
//	client, err := bandcamp.NewClient(bandcamp.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Albums
//
// Album pages embed their track list as JSON, either in a data-tralbum
// attribute or, on older pages, in a TralbumData script variable. Each track
// carries a stream descriptor that may be null (unstreamable tracks) and a
// relative title link that Get resolves to an absolute URL:
//
//	album, err := client.Albums().Get(ctx, "https://artist.bandcamp.com/album/name")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, t := range album.Streamable() {
//	    fmt.Println(t.Title, t.StreamURL())
//	}
//
// Stream URLs are signed and expire. Fetching the track's TitleLink again
// returns a fresh one.
//
// # Discovery
//
// DigDeeper returns one page of popular releases for a tag set:
//
//	page, err := client.Discover().DigDeeper(ctx, []string{"Ambient"}, 1)
//
// # Search and Tags
//
//	results, err := client.Search().Autocomplete(ctx, "boards of canada")
//	tags, err := client.Tags().List(ctx)
//
// # Artwork
//
// ArtworkURL builds image URLs from an art id:
//
//	url := bandcamp.ArtworkURL(album.ArtID, bandcamp.QualityHigh)
//
// # Error Handling
//
// Non-200 responses are returned as *Error:
//
//	var bcErr *bandcamp.Error
//	if errors.As(err, &bcErr) && bcErr.Temporary() {
//	    // retry later
//	}
//
// Server errors (5xx), 429 responses and network errors are retried up to
// three times with exponential backoff.
//
// # Plain HTTP
//
// Some networks break TLS to bandcamp.com. Setting Config.PreferHTTP rewrites
// every request to http://.
package bandcamp
