// Package restore validates decoded archive records and writes them to disk.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/parcel/internal/fileops"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/pathguard"
	"github.com/meigma/parcel/internal/preprocess"
)

// Record is an alias for parceltype.Record.
type Record = parceltype.Record

// Restorer validates and restores archive records.
type Restorer struct {
	workers  int
	force    bool
	logger   *slog.Logger
	reporter parceltype.ProgressReporter
}

// Option configures a Restorer.
type Option func(*Restorer)

// WithWorkers caps the number of concurrent file workers. Values < 1 use
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(r *Restorer) {
		r.workers = n
	}
}

// WithForce continues past validation errors and allows a non-empty output
// directory.
func WithForce(force bool) Option {
	return func(r *Restorer) {
		r.force = force
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Restorer) {
		r.logger = logger
	}
}

// WithReporter sets the progress reporter.
func WithReporter(reporter parceltype.ProgressReporter) Option {
	return func(r *Restorer) {
		r.reporter = reporter
	}
}

// New creates a Restorer.
func New(opts ...Option) *Restorer {
	r := &Restorer{}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	return r
}

func (r *Restorer) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Entry is a record paired with its validated relative path.
type Entry struct {
	Path   string
	Record *Record
}

// Failure is a per-file problem found during validation or restore.
type Failure struct {
	Path string
	Err  error
}

// Report is the outcome of Validate.
type Report struct {
	Dirs  []Entry
	Files []Entry

	// Failures lists files whose digest or reversed size did not verify.
	Failures []Failure

	// Bytes is the total original size of all files.
	Bytes uint64
}

// Errors returns the number of validation failures.
func (rep *Report) Errors() int { return len(rep.Failures) }

// Validate checks every record before anything is written. A path that
// escapes the root, or two records resolving to the same path, is fatal.
// Digest and size mismatches are collected in the report.
func (r *Restorer) Validate(ctx context.Context, records []Record) (*Report, error) {
	rep := &Report{}
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		rec := &records[i]
		clean, err := pathguard.Normalize(rec.Path)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[clean]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", parceltype.ErrCorruptPayload, clean)
		}
		seen[clean] = struct{}{}
		if rec.IsDir() {
			rep.Dirs = append(rep.Dirs, Entry{Path: clean, Record: rec})
			continue
		}
		rep.Files = append(rep.Files, Entry{Path: clean, Record: rec})
		rep.Bytes += rec.Size
	}
	slices.SortFunc(rep.Dirs, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(rep.Files, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, e := range rep.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, verr := decode(e.Record)

			mu.Lock()
			defer mu.Unlock()
			if verr != nil {
				rep.Failures = append(rep.Failures, Failure{Path: e.Path, Err: verr})
			}
			done++
			parceltype.Report(r.reporter, parceltype.ProgressEvent{
				Stage: parceltype.StageValidating,
				Path:  e.Path,
				Done:  done,
				Total: len(rep.Files),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(rep.Failures, func(a, b Failure) int { return strings.Compare(a.Path, b.Path) })
	for _, f := range rep.Failures {
		r.log().Warn("validation failed", "path", f.Path, "error", f.Err)
	}
	return rep, nil
}

// decode verifies the stored digest and returns the original content.
func decode(rec *Record) ([]byte, error) {
	if err := fileops.VerifyDigest(rec.Digest, rec.Content); err != nil {
		return nil, err
	}
	return preprocess.Reverse(rec.Tag, rec.Content, rec.Size)
}

// Stats summarizes a restore.
type Stats struct {
	Files    int
	Dirs     int
	Bytes    uint64
	Errors   int
	Failures []Failure
}

// Restore writes the validated report to outputDir. Directories are
// created first, then files are written by a bounded worker pool. A
// non-empty outputDir is refused unless forced. Per-file failures are
// counted. A fatal error removes outputDir if this call created it, and
// otherwise removes every directory and new file this call created.
func (r *Restorer) Restore(ctx context.Context, outputDir string, rep *Report) (stats *Stats, err error) {
	created, err := prepareOutput(outputDir, r.force)
	if err != nil {
		return nil, err
	}
	var written fileops.Tracker
	defer func() {
		// The final validation gate leaves restored files in place.
		if err == nil || errors.Is(err, parceltype.ErrValidation) {
			return
		}
		if created {
			if rmErr := os.RemoveAll(outputDir); rmErr != nil {
				r.log().Warn("failed to remove output directory", "dir", outputDir, "error", rmErr)
			}
			return
		}
		if rmErr := written.RemoveAll(); rmErr != nil {
			r.log().Warn("failed to remove partial output", "dir", outputDir, "error", rmErr)
		}
	}()

	root, err := os.OpenRoot(outputDir)
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}
	defer root.Close()

	stats = &Stats{}
	track := func(rel string) { written.Add(filepath.Join(outputDir, rel)) }

	// Phase one: every directory exists before any file worker starts.
	for _, d := range rep.Dirs {
		if err := mkdirAll(root, filepath.FromSlash(d.Path), track); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d.Path, err)
		}
		stats.Dirs++
	}
	for _, f := range rep.Files {
		if dir := filepath.Dir(filepath.FromSlash(f.Path)); dir != "." {
			if err := mkdirAll(root, dir, track); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
	}

	// Phase two: files.
	sink := &fileSink{root: root, onCreate: track}
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, f := range rep.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, ferr := r.restoreFile(sink, f)

			mu.Lock()
			defer mu.Unlock()
			if ferr != nil {
				r.log().Warn("failed to restore file", "path", f.Path, "error", ferr)
				stats.Failures = append(stats.Failures, Failure{Path: f.Path, Err: ferr})
			} else {
				stats.Files++
				stats.Bytes += n
			}
			done++
			parceltype.Report(r.reporter, parceltype.ProgressEvent{
				Stage: parceltype.StageRestoring,
				Path:  f.Path,
				Done:  done,
				Total: len(rep.Files),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Directory times last, deepest first, so file writes don't bump them.
	for i := len(rep.Dirs) - 1; i >= 0; i-- {
		d := rep.Dirs[i]
		if d.Record.ModTime.IsZero() {
			continue
		}
		if err := root.Chtimes(filepath.FromSlash(d.Path), d.Record.ModTime, d.Record.ModTime); err != nil {
			r.log().Debug("failed to set directory time", "path", d.Path, "error", err)
		}
	}

	slices.SortFunc(stats.Failures, func(a, b Failure) int { return strings.Compare(a.Path, b.Path) })
	stats.Errors = len(stats.Failures)
	if stats.Errors > 0 && !r.force {
		return stats, &parceltype.ValidationError{Count: stats.Errors}
	}
	return stats, nil
}

// restoreFile decodes, verifies and writes one file. Under force a file
// whose digest or size does not verify is written as decoded, when it can
// be decoded at all, and still reported.
func (r *Restorer) restoreFile(sink *fileSink, e Entry) (uint64, error) {
	rec := e.Record
	content, verr := decode(rec)
	if verr != nil {
		if !r.force {
			return 0, verr
		}
		raw, err := preprocess.Reverse(rec.Tag, rec.Content, rec.Size)
		if err != nil {
			return 0, verr
		}
		content = raw
	}

	c, err := sink.Writer(e.Path, rec.ModTime)
	if err != nil {
		return 0, err
	}
	if _, err := c.Write(content); err != nil {
		_ = c.Discard() //nolint:errcheck // best-effort cleanup
		return 0, fmt.Errorf("write %s: %w", e.Path, err)
	}
	if c.Written() != rec.Size {
		_ = c.Discard() //nolint:errcheck // best-effort cleanup
		return 0, &parceltype.PartialWriteError{Expected: rec.Size, Written: c.Written()}
	}
	if err := c.Commit(); err != nil {
		return 0, err
	}
	return c.Written(), verr
}

// mkdirAll creates dir and any missing parents under root, calling onCreate
// for each directory it actually made, parents first.
func mkdirAll(root *os.Root, dir string, onCreate func(rel string)) error {
	parts := strings.Split(dir, string(filepath.Separator))
	for i := range parts {
		rel := filepath.Join(parts[:i+1]...)
		err := root.Mkdir(rel, 0o755)
		switch {
		case err == nil:
			onCreate(rel)
		case errors.Is(err, fs.ErrExist):
			info, statErr := root.Stat(rel)
			if statErr != nil {
				return statErr
			}
			if !info.IsDir() {
				return fmt.Errorf("%s: not a directory", rel)
			}
		default:
			return err
		}
	}
	return nil
}

// prepareOutput creates outputDir if needed. An existing non-empty
// directory is refused unless force is set. created reports whether this
// call made the directory.
func prepareOutput(outputDir string, force bool) (created bool, err error) {
	entries, err := os.ReadDir(outputDir)
	switch {
	case err == nil:
		if len(entries) > 0 && !force {
			return false, fmt.Errorf("%w: output directory %s is not empty", parceltype.ErrOutputExists, outputDir)
		}
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return false, fmt.Errorf("create output directory: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("read output directory: %w", err)
	}
}
