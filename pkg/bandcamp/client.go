// Package bandcamp provides a client for the public Bandcamp web API and
// album pages.
//
// This package implements discovery, search, tag listing and album page
// parsing. It is designed to be used as a standalone SDK.
//
// Example usage:
//
//	import "github.com/jfmyers9/campfire/pkg/bandcamp"
//
//	client, err := bandcamp.NewClient(bandcamp.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	album, err := client.Albums().Get(ctx, "https://artist.bandcamp.com/album/name")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(album.Title, len(album.Tracks))
package bandcamp

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	HTTPClient *http.Client // Optional: HTTP client (defaults to http.DefaultClient)
	BaseURL    string       // Optional: Base URL for API (defaults to bandcamp.com, used for testing)
	Logger     Logger       // Optional: Logger interface for debug logging
	PreferHTTP bool         // Optional: Rewrite https:// requests to http:// (for TLS-hostile networks)
	UserAgent  string       // Optional: User-Agent header (defaults to campfire/1.0)
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for Bandcamp operations.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     Logger
	preferHTTP bool
	userAgent  string
	backoff    time.Duration

	albums   *AlbumService
	discover *DiscoverService
	search   *SearchService
	tags     *TagService
}

const (
	// DefaultBaseURL is the default Bandcamp endpoint.
	DefaultBaseURL = "https://bandcamp.com"

	defaultUserAgent = "campfire/1.0"
)

// NewClient creates a new Bandcamp client.
//
// Returns an error if BaseURL is set but is not an absolute URL.
func NewClient(cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid BaseURL %q", ErrInvalidConfig, baseURL)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     cfg.Logger,
		preferHTTP: cfg.PreferHTTP,
		userAgent:  userAgent,
		backoff:    1 * time.Second,
	}

	c.albums = &AlbumService{client: c}
	c.discover = &DiscoverService{client: c}
	c.search = &SearchService{client: c}
	c.tags = &TagService{client: c}

	return c, nil
}

// Albums returns the album page service.
func (c *Client) Albums() *AlbumService {
	return c.albums
}

// Discover returns the discovery service.
func (c *Client) Discover() *DiscoverService {
	return c.discover
}

// Search returns the search service.
func (c *Client) Search() *SearchService {
	return c.search
}

// Tags returns the tag listing service.
func (c *Client) Tags() *TagService {
	return c.tags
}

// PreferHTTP reports whether requests are downgraded to plain HTTP.
func (c *Client) PreferHTTP() bool {
	return c.preferHTTP
}

// endpoint joins the base URL and an API path.
func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}

// Downgrade rewrites an https:// URL to http://. Other URLs are returned
// unchanged.
func Downgrade(rawURL string) string {
	if strings.HasPrefix(rawURL, "https://") {
		return "http://" + strings.TrimPrefix(rawURL, "https://")
	}
	return rawURL
}
