package restore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/meigma/parcel/internal/sizing"
)

// fileSink writes restored files under an os.Root.
//
// Files are written to a temporary file in the same directory and renamed
// to the final path on Commit, so a partially written file is never
// visible at its final path.
type fileSink struct {
	root *os.Root

	// onCreate, if set, is called with the relative path of every file
	// that did not exist before its Commit.
	onCreate func(rel string)
}

// Writer returns a committer staging content for rel.
func (s *fileSink) Writer(rel string, modTime time.Time) (*committer, error) {
	tempFile, tempRel, err := createTempFile(s.root, path.Dir(rel))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &committer{
		root:     s.root,
		destRel:  filepath.FromSlash(rel),
		tempFile: tempFile,
		tempRel:  tempRel,
		modTime:  modTime,
		onCreate: s.onCreate,
		cw:       sizing.CountingWriter{W: tempFile},
	}, nil
}

// committer writes to a temp file and renames on Commit.
type committer struct {
	root     *os.Root
	destRel  string
	tempFile *os.File
	tempRel  string
	modTime  time.Time
	onCreate func(rel string)
	cw       sizing.CountingWriter
}

// Write implements io.Writer.
func (c *committer) Write(p []byte) (int, error) {
	return c.cw.Write(p)
}

// Written returns the number of bytes written so far.
func (c *committer) Written() uint64 { return c.cw.N }

// Commit closes the temp file, applies the modification time and renames
// it to the final path.
func (c *committer) Commit() error {
	if err := c.tempFile.Close(); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if !c.modTime.IsZero() {
		if err := c.root.Chtimes(c.tempRel, c.modTime, c.modTime); err != nil {
			_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	_, statErr := c.root.Lstat(c.destRel)
	fresh := errors.Is(statErr, fs.ErrNotExist)
	if err := c.root.Rename(c.tempRel, c.destRel); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destRel, err)
	}
	if fresh && c.onCreate != nil {
		c.onCreate(c.destRel)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *committer) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.root.Remove(c.tempRel)
}

func createTempFile(root *os.Root, dir string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		rel := filepath.FromSlash(path.Join(dir, ".parcel-"+uuid.NewString()))
		f, err := root.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, rel, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("failed to create unique temp file")
}
