// Package confsync implements the "external conf writer" collaborator
// from spec.md §4.3: a fire-and-forget sink that persists the daemon's
// last-known monitors configuration as a derived display-configuration
// artifact, for other system components (e.g. a display manager) to
// read.
package confsync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lattice-vm/vdbridged/pkg/wire"
)

// Writer persists a MonitorsConfig snapshot. Write is called
// fire-and-forget from the host-channel handler; a Writer must not block
// the core event loop for long.
type Writer interface {
	Write(wire.MonitorsConfig) error
}

// monitorDoc is the on-disk JSON shape of the derived display
// configuration file.
type monitorDoc struct {
	Flags    uint32            `json:"flags"`
	Monitors []monitorDocEntry `json:"monitors"`
}

type monitorDocEntry struct {
	Height uint32 `json:"height"`
	Width  uint32 `json:"width"`
	Depth  uint32 `json:"depth"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
}

// FileWriter writes the derived display-configuration file to Path,
// atomically (write to a sibling .tmp file, then rename), matching the
// pattern in api/cmd/settings-sync-daemon/main.go's writeSettings.
type FileWriter struct {
	Path string
}

// NewFileWriter returns a FileWriter targeting path. The parent directory
// is created lazily on first Write.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{Path: path}
}

func (w *FileWriter) Write(cfg wire.MonitorsConfig) error {
	if dir := filepath.Dir(w.Path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("confsync: mkdir %s: %w", dir, err)
		}
	}

	doc := monitorDoc{Flags: cfg.Flags}
	for _, m := range cfg.Monitors {
		doc.Monitors = append(doc.Monitors, monitorDocEntry{
			Height: m.Height, Width: m.Width, Depth: m.Depth, X: m.X, Y: m.Y,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("confsync: marshal: %w", err)
	}

	tmp := w.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("confsync: write temp file: %w", err)
	}
	if err := os.Rename(tmp, w.Path); err != nil {
		return fmt.Errorf("confsync: rename into place: %w", err)
	}
	return nil
}
