package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fav.json")
	tracks := []string{"/music/x.mp3", "/music/y.flac", "/music/z.ogg"}

	require.NoError(t, savePlaylistJSON(path, "fav", tracks))

	got, err := loadPlaylistJSON(path)
	require.NoError(t, err)
	assert.Equal(t, tracks, got)
}

func TestPlaylistM3UFiltersHeaderAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fav.m3u")
	tracks := []string{"/music/x.mp3", "/music/y.flac"}

	require.NoError(t, savePlaylistM3U(path, tracks))

	got, err := loadPlaylistLines(path)
	require.NoError(t, err)
	assert.Equal(t, tracks, got)
}

func TestPlaylistTXTSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fav.txt")
	tracks := []string{"/music/x.mp3", "/music/y.flac"}

	require.NoError(t, savePlaylistTXT(path, tracks))

	got, err := loadPlaylistLines(path)
	require.NoError(t, err)
	assert.Equal(t, tracks, got)
}

func TestLoadPlaylistByNamePrefersJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, savePlaylistJSON(filepath.Join(dir, "fav.json"), "fav", []string{"a"}))
	require.NoError(t, savePlaylistTXT(filepath.Join(dir, "fav.txt"), []string{"b"}))

	path, tracks, err := loadPlaylistByName(dir, "fav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fav.json"), path)
	assert.Equal(t, []string{"a"}, tracks)
}

func TestLoadPlaylistByNameMissing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := loadPlaylistByName(dir, "nope")
	assert.Error(t, err)
}
