package session

import (
	"path/filepath"
	"strings"
)

// TrackInfo is the "track record" shape returned by status/info/queue.
type TrackInfo struct {
	URI      string   `json:"uri"`
	Title    string   `json:"title"`
	Artist   string   `json:"artist,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// describeTrack derives title/artist from the file stem by splitting on
// the first " - ", per spec section 3.
func describeTrack(uri string) TrackInfo {
	stem := strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri))

	if artist, title, ok := strings.Cut(stem, " - "); ok {
		return TrackInfo{URI: uri, Title: title, Artist: artist}
	}
	return TrackInfo{URI: uri, Title: stem}
}
