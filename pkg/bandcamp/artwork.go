package bandcamp

import (
	"fmt"
	"strings"
)

// Quality selects an artwork rendition.
type Quality int

// Artwork renditions, as numbered by the image CDN.
const (
	QualityVeryHigh Quality = 5
	QualityHigh     Quality = 7
	QualityMedium   Quality = 6
	QualityLow      Quality = 42
	QualityVeryLow  Quality = 22
)

const artworkHost = "f4.bcbits.com"

// ParseQuality maps a config value (very_high, high, medium, low,
// very_low) to a Quality.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "very_high":
		return QualityVeryHigh, nil
	case "high", "":
		return QualityHigh, nil
	case "medium":
		return QualityMedium, nil
	case "low":
		return QualityLow, nil
	case "very_low":
		return QualityVeryLow, nil
	default:
		return 0, fmt.Errorf("bandcamp: unknown artwork quality %q", s)
	}
}

// ArtworkURL returns the image URL for artID at quality q. Returns "" for
// a zero artID.
func ArtworkURL(artID int64, q Quality) string {
	if artID == 0 {
		return ""
	}
	return fmt.Sprintf("https://%s/img/a%d_%d.jpg", artworkHost, artID, int(q))
}
