package bandcamp

// StreamFile is the stream descriptor attached to a track. Bandcamp only
// offers the 128kbps MP3 rendition to anonymous listeners.
type StreamFile struct {
	MP3128 string `json:"mp3-128"`
}

// TrackInfo is one entry of an album's trackinfo list.
type TrackInfo struct {
	Title     string      `json:"title"`
	TrackNum  int         `json:"track_num"`
	Duration  float64     `json:"duration"`
	File      *StreamFile `json:"file"`      // nil when the track is not streamable
	TitleLink string      `json:"title_link"` // absolute after Albums().Get resolves it
}

// StreamURL returns the track's stream location, or "" when the track has
// no stream descriptor.
func (t TrackInfo) StreamURL() string {
	if t.File == nil {
		return ""
	}
	return t.File.MP3128
}

// Album is the parsed album (or single track) page.
type Album struct {
	Title  string
	Artist string
	ArtID  int64
	URL    string
	Tracks []TrackInfo
}

// Streamable returns the tracks that carry a stream descriptor.
func (a *Album) Streamable() []TrackInfo {
	out := make([]TrackInfo, 0, len(a.Tracks))
	for _, t := range a.Tracks {
		if t.StreamURL() != "" {
			out = append(out, t)
		}
	}
	return out
}

// tralbum mirrors the subset of the embedded album JSON that campfire reads.
type tralbum struct {
	Artist  string `json:"artist"`
	ArtID   int64  `json:"art_id"`
	URL     string `json:"url"`
	Current struct {
		Title string `json:"title"`
	} `json:"current"`
	TrackInfo []TrackInfo `json:"trackinfo"`
}

// DiscoverItem is a single release returned by the discovery feed.
type DiscoverItem struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	BandName   string `json:"band_name"`
	Genre      string `json:"genre"`
	ArtID      int64  `json:"art_id"`
	TralbumURL string `json:"tralbum_url"`
	ItemType   string `json:"item_type"`
}

// DiscoverPage is one page of discovery results.
type DiscoverPage struct {
	Items         []DiscoverItem `json:"items"`
	MoreAvailable bool           `json:"more_available"`
}

// discoverRequest is the dig_deeper request body.
type discoverRequest struct {
	Filters discoverFilters `json:"filters"`
	Page    int             `json:"page"`
}

type discoverFilters struct {
	Format   string   `json:"format"`
	Location int      `json:"location"`
	Sort     string   `json:"sort"`
	Tags     []string `json:"tags"`
}

// Search result types.
const (
	ResultAlbum = "a"
	ResultTrack = "t"
	ResultBand  = "b"
)

// SearchResult is one autocomplete match.
type SearchResult struct {
	Type     string `json:"type"`
	ArtID    int64  `json:"art_id"`
	Name     string `json:"name"`
	BandName string `json:"band_name"`
	URL      string `json:"url"`
}

// Playable reports whether the result points at an album or track page.
func (r SearchResult) Playable() bool {
	return r.Type == ResultAlbum || r.Type == ResultTrack
}

type searchResponse struct {
	Auto struct {
		Results []SearchResult `json:"results"`
	} `json:"auto"`
}

// discoverBlob mirrors the DiscoverApp data-blob.
type discoverBlob struct {
	AppData struct {
		InitialState struct {
			Genres    []tagEntry `json:"genres"`
			Subgenres []tagEntry `json:"subgenres"`
			Locations []tagEntry `json:"locations"`
		} `json:"initialState"`
	} `json:"appData"`
}

type tagEntry struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}
