// Package queue implements the playback queue: an ordered list of tracks,
// the playback position within it, stream resolution with recovery from
// expired stream links, and persistence of the queue across sessions.
package queue

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
)

// Track is a queued, streamable track.
type Track struct {
	EntryID   string  // Assigned when the track enters the queue
	ArtID     int64   // Artwork identifier
	Title     string  // Track title
	Artist    string  // Artist name
	Album     string  // Album title
	PageURL   string  // Album or track page the stream was resolved from
	Duration  float64 // Length in seconds
	StreamURL string  // Stream location; expires independently of the track
}

// trackJSON follows the catalog's trackinfo shape.
type trackJSON struct {
	EntryID   string               `json:"entry_id,omitempty"`
	Title     string               `json:"title"`
	Artist    string               `json:"artist"`
	Album     string               `json:"album"`
	ArtID     int64                `json:"art_id"`
	TitleLink string               `json:"title_link"`
	Duration  float64              `json:"duration"`
	File      *bandcamp.StreamFile `json:"file"`
}

// MarshalJSON encodes the track with its stream under file["mp3-128"].
func (t Track) MarshalJSON() ([]byte, error) {
	tj := trackJSON{
		EntryID:   t.EntryID,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		ArtID:     t.ArtID,
		TitleLink: t.PageURL,
		Duration:  t.Duration,
	}
	if t.StreamURL != "" {
		tj.File = &bandcamp.StreamFile{MP3128: t.StreamURL}
	}
	return json.Marshal(tj)
}

// UnmarshalJSON decodes a track. A null file leaves StreamURL empty.
func (t *Track) UnmarshalJSON(data []byte) error {
	var tj trackJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	*t = Track{
		EntryID:  tj.EntryID,
		ArtID:    tj.ArtID,
		Title:    tj.Title,
		Artist:   tj.Artist,
		Album:    tj.Album,
		PageURL:  tj.TitleLink,
		Duration: tj.Duration,
	}
	if tj.File != nil {
		t.StreamURL = tj.File.MP3128
	}
	return nil
}

// TracksFromAlbum builds tracks for every streamable entry of album.
// Entries without a stream descriptor are skipped.
func TracksFromAlbum(album *bandcamp.Album) []Track {
	tracks := make([]Track, 0, len(album.Tracks))
	for _, info := range album.Tracks {
		if info.StreamURL() == "" {
			continue
		}
		pageURL := info.TitleLink
		if pageURL == "" {
			pageURL = album.URL
		}
		tracks = append(tracks, Track{
			ArtID:     album.ArtID,
			Title:     info.Title,
			Artist:    album.Artist,
			Album:     album.Title,
			PageURL:   pageURL,
			Duration:  info.Duration,
			StreamURL: info.StreamURL(),
		})
	}
	return tracks
}

func newEntryID() string {
	return uuid.NewString()
}
