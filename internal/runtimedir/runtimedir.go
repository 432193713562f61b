// Package runtimedir resolves the three directories the daemon writes
// into: runtime (pipes + pid file), data (playlists), and state (logs).
// Out of scope per the spec proper, but every daemon needs somewhere to
// put its files, so this is carried as ambient plumbing in the teacher's
// own minimal style (cmd/root.go resolves flags/paths directly rather
// than pulling in a directories library).
package runtimedir

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Dirs holds the three resolved absolute paths.
type Dirs struct {
	Runtime string
	Data    string
	State   string
}

// Resolve applies env-var overrides, then XDG defaults, then a
// /tmp/atk-${user} fallback for the runtime directory. Every directory is
// created if missing.
func Resolve(runtimeOverride, dataOverride, stateOverride string) (Dirs, error) {
	d := Dirs{
		Runtime: firstNonEmpty(runtimeOverride, os.Getenv("ATKD_RUNTIME_DIR"), xdgRuntime()),
		Data:    firstNonEmpty(dataOverride, os.Getenv("ATKD_DATA_DIR"), xdgData()),
		State:   firstNonEmpty(stateOverride, os.Getenv("ATKD_STATE_DIR"), xdgState()),
	}

	for _, dir := range []string{d.Runtime, d.Data, d.State} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Dirs{}, fmt.Errorf("runtimedir: create %s: %w", dir, err)
		}
	}
	return d, nil
}

func xdgRuntime() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "atk")
	}
	return filepath.Join("/tmp", "atk-"+currentUser())
}

func xdgData() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "atk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "atk-"+currentUser(), "data")
	}
	return filepath.Join(home, ".local", "share", "atk")
}

func xdgState() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "atk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "atk-"+currentUser(), "state")
	}
	return filepath.Join(home, ".local", "state", "atk")
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
