// Package selector enumerates the files and directories eligible for an
// archive.
package selector

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/meigma/parcel/internal/parceltype"
)

// DefaultMaxFileSize is the size cap applied to binary files.
const DefaultMaxFileSize = 10 << 20

// DefaultExcludeDirs are directory names never descended into.
var DefaultExcludeDirs = []string{".git", "node_modules", "__pycache__", ".venv", "venv", ".next"}

// DefaultExcludeGlobs are file patterns never archived.
var DefaultExcludeGlobs = []string{"*.log", "*.tmp", "*.swp", ".env*", ".DS_Store"}

// ClassifyFunc returns the type tag for a slash-separated path.
type ClassifyFunc func(path string) parceltype.TypeTag

// Options configures a Selector.
type Options struct {
	// ExcludeDirs are directory names; any path with such a component is skipped.
	ExcludeDirs []string

	// ExcludeGlobs are matched against both the base name and the relative path.
	ExcludeGlobs []string

	// Include restricts selection to these relative files and directories.
	// Empty selects everything.
	Include []string

	// MaxFileSize caps binary files. Zero disables the cap.
	MaxFileSize uint64

	// Classify decides which files are text. Nil treats every file as binary.
	Classify ClassifyFunc

	Logger *slog.Logger
}

// Entry is a selected file or directory.
type Entry struct {
	Path    string
	Kind    parceltype.Kind
	Tag     parceltype.TypeTag
	Size    uint64
	ModTime time.Time
}

// Result holds the selection.
type Result struct {
	// Dirs and Files are each sorted by path.
	Dirs  []Entry
	Files []Entry

	// Skipped counts files rejected by a glob, the size cap, or because
	// they are not regular files.
	Skipped int
}

// Selector walks a tree and applies inclusion and exclusion rules.
type Selector struct {
	excludeDirs map[string]struct{}
	globs       []glob.Glob
	include     []string
	maxFileSize uint64
	classify    ClassifyFunc
	logger      *slog.Logger
}

// New compiles opts into a Selector.
func New(opts Options) (*Selector, error) {
	s := &Selector{
		excludeDirs: make(map[string]struct{}, len(opts.ExcludeDirs)),
		maxFileSize: opts.MaxFileSize,
		classify:    opts.Classify,
		logger:      opts.Logger,
	}
	for _, d := range opts.ExcludeDirs {
		s.excludeDirs[d] = struct{}{}
	}
	for _, p := range opts.ExcludeGlobs {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		s.globs = append(s.globs, g)
	}
	for _, inc := range opts.Include {
		inc = path.Clean(filepath.ToSlash(inc))
		inc = strings.TrimPrefix(inc, "/")
		if inc == "." || inc == "" {
			s.include = nil
			break
		}
		s.include = append(s.include, inc)
	}
	if s.classify == nil {
		s.classify = func(string) parceltype.TypeTag { return parceltype.TypeBinary }
	}
	return s, nil
}

func (s *Selector) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Select walks root and returns the eligible entries. The root directory
// itself is not reported.
func (s *Selector) Select(ctx context.Context, root *os.Root) (*Result, error) {
	res := &Result{}
	err := fs.WalkDir(root.FS(), ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			return s.visitDir(root, p, d, res)
		}
		return s.visitFile(root, p, d, res)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(res.Dirs, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(res.Files, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return res, nil
}

func (s *Selector) visitDir(root *os.Root, p string, d fs.DirEntry, res *Result) error {
	if _, ok := s.excludeDirs[d.Name()]; ok {
		s.log().Debug("skipped excluded directory", "path", p)
		return fs.SkipDir
	}
	if !s.onIncludePath(p) {
		return fs.SkipDir
	}
	info, err := root.Lstat(filepath.FromSlash(p))
	if err != nil {
		return err
	}
	res.Dirs = append(res.Dirs, Entry{Path: p, Kind: parceltype.KindDir, ModTime: info.ModTime()})
	return nil
}

func (s *Selector) visitFile(root *os.Root, p string, d fs.DirEntry, res *Result) error {
	if !s.included(p) {
		return nil
	}
	if s.excludedByGlob(p) {
		s.log().Debug("skipped excluded file", "path", p)
		res.Skipped++
		return nil
	}

	info, ok, err := resolveEntryInfo(root, filepath.FromSlash(p), d)
	if err != nil {
		return err
	}
	if !ok {
		s.log().Debug("skipped irregular file", "path", p)
		res.Skipped++
		return nil
	}

	size := uint64(info.Size()) //nolint:gosec // regular file sizes are non-negative
	tag := s.classify(p)
	if tag == parceltype.TypeBinary && s.maxFileSize > 0 && size > s.maxFileSize {
		s.log().Debug("skipped oversized binary file", "path", p, "size", size)
		res.Skipped++
		return nil
	}

	res.Files = append(res.Files, Entry{
		Path:    p,
		Kind:    parceltype.KindFile,
		Tag:     tag,
		Size:    size,
		ModTime: info.ModTime(),
	})
	return nil
}

func (s *Selector) excludedByGlob(p string) bool {
	base := path.Base(p)
	for _, g := range s.globs {
		if g.Match(base) || g.Match(p) {
			return true
		}
	}
	return false
}

// included reports whether p is an include path or lies beneath one.
func (s *Selector) included(p string) bool {
	if len(s.include) == 0 {
		return true
	}
	for _, inc := range s.include {
		if p == inc || strings.HasPrefix(p, inc+"/") {
			return true
		}
	}
	return false
}

// onIncludePath reports whether directory p is included or is an ancestor
// of an include path.
func (s *Selector) onIncludePath(p string) bool {
	if s.included(p) {
		return true
	}
	for _, inc := range s.include {
		if strings.HasPrefix(inc, p+"/") {
			return true
		}
	}
	return false
}

// resolveEntryInfo returns the FileInfo for a walked entry, filtering out
// symlinks and non-regular files. ok=false means the entry is skipped.
func resolveEntryInfo(root *os.Root, fsPath string, d fs.DirEntry) (fs.FileInfo, bool, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		return nil, false, nil
	}
	info, err := root.Lstat(fsPath)
	if err != nil {
		return nil, false, err
	}
	if info.Mode()&fs.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return nil, false, nil
	}
	return info, true, nil
}
