package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mellowtone/atkd/internal/atkerr"
)

// playlistFile is the JSON on-disk shape for the json format, per spec
// section 6: `{name, tracks: [...]}`.
type playlistFile struct {
	Name   string   `json:"name"`
	Tracks []string `json:"tracks"`
}

func (c *Controller) playlistsDir() string {
	return filepath.Join(c.dataDir, "playlists")
}

func cmdSave(c *Controller, args map[string]any) (any, error) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return nil, atkerr.Invalid("save: missing name")
	}
	format, _ := stringArg(args, "format")
	if format == "" {
		format = "json"
	}

	dir := c.playlistsDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, atkerr.Internally(fmt.Errorf("playlists dir: %w", err))
	}

	var path string
	var err error
	switch format {
	case "json":
		path = filepath.Join(dir, name+".json")
		err = savePlaylistJSON(path, name, c.q.Tracks())
	case "m3u":
		path = filepath.Join(dir, name+".m3u")
		err = savePlaylistM3U(path, c.q.Tracks())
	case "txt":
		path = filepath.Join(dir, name+".txt")
		err = savePlaylistTXT(path, c.q.Tracks())
	default:
		return nil, atkerr.Invalid("save: unsupported format %q", format)
	}
	if err != nil {
		return nil, atkerr.Internally(err)
	}

	return map[string]any{"saved": path, "track_count": c.q.Len()}, nil
}

func cmdLoad(c *Controller, args map[string]any) (any, error) {
	name, ok := stringArg(args, "name")
	if !ok || name == "" {
		return nil, atkerr.Invalid("load: missing name")
	}

	dir := c.playlistsDir()
	path, tracks, err := loadPlaylistByName(dir, name)
	if err != nil {
		return nil, err
	}

	c.q.Clear()
	for _, t := range tracks {
		c.q.Add(t)
	}
	c.emit("queue_updated", map[string]any{"queue_length": c.q.Len()})

	return map[string]any{"loaded": path, "track_count": len(tracks)}, nil
}

func cmdPlaylists(c *Controller, args map[string]any) (any, error) {
	dir := c.playlistsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{"playlists": []string{}}, nil
		}
		return nil, atkerr.Internally(fmt.Errorf("list playlists: %w", err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch ext {
		case ".json", ".m3u", ".txt":
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)

	return map[string]any{"playlists": names}, nil
}

func savePlaylistJSON(path, name string, tracks []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	return enc.Encode(playlistFile{Name: name, Tracks: append([]string{}, tracks...)})
}

func savePlaylistM3U(path string, tracks []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("#EXTM3U\n"); err != nil {
		return err
	}
	for _, t := range tracks {
		if _, err := w.WriteString(t + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

func savePlaylistTXT(path string, tracks []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, t := range tracks {
		if _, err := w.WriteString(t + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

// loadPlaylistByName tries json, m3u, then txt extensions in that order.
func loadPlaylistByName(dir, name string) (path string, tracks []string, err error) {
	if p := filepath.Join(dir, name+".json"); fileExists(p) {
		tracks, err := loadPlaylistJSON(p)
		return p, tracks, err
	}
	if p := filepath.Join(dir, name+".m3u"); fileExists(p) {
		tracks, err := loadPlaylistLines(p)
		return p, tracks, err
	}
	if p := filepath.Join(dir, name+".txt"); fileExists(p) {
		tracks, err := loadPlaylistLines(p)
		return p, tracks, err
	}
	return "", nil, atkerr.New(atkerr.FileNotFound, fmt.Sprintf("playlist not found: %s", name))
}

func loadPlaylistJSON(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, atkerr.Internally(fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	var pf playlistFile
	if err := json.NewDecoder(f).Decode(&pf); err != nil {
		return nil, atkerr.Internally(fmt.Errorf("decode %s: %w", path, err))
	}
	return pf.Tracks, nil
}

// loadPlaylistLines reads one path per line, skipping blank lines and
// #-prefixed lines — this also skips an m3u file's #EXTM3U header and any
// #EXTINF metadata lines, per spec section 6.
func loadPlaylistLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, atkerr.Internally(fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	var tracks []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tracks = append(tracks, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, atkerr.Internally(fmt.Errorf("scan %s: %w", path, err))
	}
	return tracks, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
