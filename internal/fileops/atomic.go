// Package fileops provides the atomic file writes and digest checks shared by
// the archive writers and the restorer.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/meigma/parcel/internal/sizing"
)

// TempPattern is the name pattern of temporary files created next to targets.
const TempPattern = ".parcel-*"

// WriteAtomic writes data to a temp file then renames it to target. It
// returns the number of bytes written to the temp file.
func WriteAtomic(target string, data []byte) (uint64, error) {
	return StreamAtomic(target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// StreamAtomic calls fill with a writer backed by a temp file in target's
// directory, then renames the temp file to target. On any error the temp
// file is removed and target is left untouched.
func StreamAtomic(target string, fill func(io.Writer) error) (uint64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), TempPattern)
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	cw := &sizing.CountingWriter{W: tmp}
	if err := fill(cw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cw.N, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cw.N, err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return cw.N, err
	}
	return cw.N, nil
}

// Tracker records files created during one run so they can be removed if
// the run fails. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	paths []string
}

// Add records path.
func (t *Tracker) Add(path string) {
	t.mu.Lock()
	t.paths = append(t.paths, path)
	t.mu.Unlock()
}

// Paths returns the recorded paths in creation order.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.paths)
}

// Len returns the number of recorded paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}

// RemoveAll deletes every recorded path, newest first, and forgets them.
// Missing files are not an error.
func (t *Tracker) RemoveAll() error {
	t.mu.Lock()
	paths := t.paths
	t.paths = nil
	t.mu.Unlock()

	var errs []error
	for i := len(paths) - 1; i >= 0; i-- {
		if err := os.Remove(paths[i]); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", paths[i], err))
		}
	}
	return errors.Join(errs...)
}
