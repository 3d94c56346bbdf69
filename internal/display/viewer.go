package display

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/util"
)

// Opener hands a file to the desktop's default viewer.
type Opener func(path string) error

// staleRunAge is how long a run directory must have been untouched before a
// later viewer removes it.
const staleRunAge = 10 * time.Minute

// Viewer writes every frame to a scratch file and opens it in the system image
// viewer, one window per frame. The opener returns before the viewer app has
// read the file, so a run's files outlive Close and are pruned by a later run.
type Viewer struct {
	mu     sync.Mutex
	root   string
	dir    string
	open   Opener
	keep   bool
	count  int
	closed bool
}

// ViewerOption configures a Viewer
type ViewerOption func(*Viewer)

// WithOpener replaces the system viewer, mostly for tests.
func WithOpener(open Opener) ViewerOption {
	return func(v *Viewer) { v.open = open }
}

// WithRoot holds the per-run directories in root instead of the user cache directory.
func WithRoot(root string) ViewerOption {
	return func(v *Viewer) { v.root = root }
}

// KeepFiles disables pruning of earlier runs.
func KeepFiles(keep bool) ViewerOption {
	return func(v *Viewer) { v.keep = keep }
}

// NewViewer creates a viewer with a fresh run directory under root.
func NewViewer(opts ...ViewerOption) (*Viewer, error) {
	v := &Viewer{open: browser.OpenFile}
	for _, opt := range opts {
		opt(v)
	}
	if v.root == "" {
		v.root = filepath.Join(xdg.CacheHome, "kvsview", "frames")
	}

	if !v.keep {
		if n, err := pruneRuns(v.root, staleRunAge); err != nil {
			util.GetLogger().Warn("Failed to prune old frame directories", "root", v.root, "error", err)
		} else if n > 0 {
			util.GetLogger().Debug("Pruned old frame directories", "root", v.root, "count", n)
		}
	}

	v.dir = filepath.Join(v.root, uuid.NewString())
	if err := os.MkdirAll(v.dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create frame directory %s", v.dir)
	}
	util.GetLogger().Debug("Viewer frame directory", "dir", v.dir)
	return v, nil
}

// pruneRuns removes run directories under root not modified within maxAge.
func pruneRuns(root string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to list %s", root)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return removed, errors.Wrapf(err, "failed to remove %s", e.Name())
		}
		removed++
	}
	return removed, nil
}

// Dir returns this run's scratch directory
func (v *Viewer) Dir() string {
	return v.dir
}

func (v *Viewer) Show(_ context.Context, frame protocol.Frame, info Info) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.New("viewer is closed")
	}
	v.mu.Unlock()

	ext := info.Extension
	if ext == "" {
		ext = ".img"
	}
	path := filepath.Join(v.dir, fmt.Sprintf("frame-%06d%s", frame.Seq, ext))
	if err := os.WriteFile(path, frame.Image, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write frame %d", frame.Seq)
	}

	v.mu.Lock()
	v.count++
	v.mu.Unlock()

	util.GetLogger().Debug("Opening frame in viewer", "seq", frame.Seq, "path", path)
	if err := v.open(path); err != nil {
		return errors.Wrapf(err, "failed to open viewer for frame %d", frame.Seq)
	}
	return nil
}

// Close stops accepting frames. Files already handed to the viewer stay on
// disk until a later run prunes them.
func (v *Viewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	if v.keep {
		util.GetLogger().Info("Frames kept", "dir", v.dir, "count", v.count)
	}
	return nil
}
