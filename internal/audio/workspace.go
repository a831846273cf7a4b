// Package audio owns the on-disk side of a request: temp files for the
// uploaded recording and the ffmpeg transcode into a container every
// transcription provider accepts.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Workspace tracks the temp files created for one request so they can all be
// removed on every exit path.
type Workspace struct {
	dir   string
	mu    sync.Mutex
	paths []string
}

// NewWorkspace creates a workspace rooted at dir (os.TempDir when empty).
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Path reserves a fresh temp_<hex>.<ext> path. The file is not created but
// will be removed by Cleanup if something writes it.
func (w *Workspace) Path(ext string) string {
	p := filepath.Join(w.dir, fmt.Sprintf("temp_%s.%s", strings.ReplaceAll(uuid.New().String(), "-", ""), ext))
	w.mu.Lock()
	w.paths = append(w.paths, p)
	w.mu.Unlock()
	return p
}

// Save copies r into a new temp file carrying filename's extension.
func (w *Workspace) Save(r io.Reader, filename string) (string, error) {
	p := w.Path(Ext(filename))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return p, nil
}

// Files lists the paths reserved so far.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

// Cleanup removes every reserved path. Missing files are not an error.
func (w *Workspace) Cleanup() error {
	w.mu.Lock()
	paths := w.paths
	w.paths = nil
	w.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ext returns the lower-cased extension of filename without the dot.
// Names without an extension map to "bin".
func Ext(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}
