package dullahan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Layout describes the per-UID filesystem layout Dullahan uses for its
// control socket, PID file, and logs (spec.md §6).
type Layout struct {
	Dir        string
	SocketPath string
	PIDPath    string
	LogPath    string
	DebugLogPath string
}

// NewLayout creates (if needed) /tmp/dullahan-<uid>/ with mode 0700 and
// returns the well-known paths within it.
func NewLayout() (*Layout, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("dullahan-%d", os.Getuid()))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("fslayout: mkdir %s: %w", dir, err)
	}
	return &Layout{
		Dir:          dir,
		SocketPath:   filepath.Join(dir, "dullahan.sock"),
		PIDPath:      filepath.Join(dir, "dullahan.pid"),
		LogPath:      filepath.Join(dir, "dullahan.log"),
		DebugLogPath: filepath.Join(dir, "dullahan-dlog.log"),
	}, nil
}

// WritePIDFile writes the current process PID to l.PIDPath.
func (l *Layout) WritePIDFile() error {
	return os.WriteFile(l.PIDPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// LoadLayoutTemplates reads ~/.config/dullahan/layouts.json (spec.md §6),
// a map of template name to pane count for new_window{template}. A
// missing file is not an error; callers get an empty map and fall back
// to the single-pane default.
func LoadLayoutTemplates() (map[string]int, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return map[string]int{}, nil
	}
	path := filepath.Join(home, ".config", "dullahan", "layouts.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("fslayout: read %s: %w", path, err)
	}
	var templates map[string]int
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("fslayout: parse %s: %w", path, err)
	}
	return templates, nil
}
