package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeTrackSplitsArtistTitle(t *testing.T) {
	info := describeTrack("/music/Miles Davis - So What.flac")
	assert.Equal(t, "Miles Davis", info.Artist)
	assert.Equal(t, "So What", info.Title)
}

func TestDescribeTrackWithoutSeparator(t *testing.T) {
	info := describeTrack("/music/track01.mp3")
	assert.Equal(t, "track01", info.Title)
	assert.Empty(t, info.Artist)
}

func TestDescribeTrackUsesFirstSeparatorOnly(t *testing.T) {
	info := describeTrack("Artist - Title - Remix.ogg")
	assert.Equal(t, "Artist", info.Artist)
	assert.Equal(t, "Title - Remix", info.Title)
}
