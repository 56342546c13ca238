package parcel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/parcel/internal/chunk"
	"github.com/meigma/parcel/internal/codec"
	"github.com/meigma/parcel/internal/dict"
	"github.com/meigma/parcel/internal/fileops"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/parts"
	"github.com/meigma/parcel/internal/payload"
	"github.com/meigma/parcel/internal/platform"
	"github.com/meigma/parcel/internal/preprocess"
	"github.com/meigma/parcel/internal/selector"
)

// Manifest describes a chunk-document archive. It is written as
// {prefix}_manifest.json after every chunk.
type Manifest = chunk.Manifest

// ArchiveStats summarizes the content of an archive run.
type ArchiveStats struct {
	// Files and Dirs count the archived records.
	Files int
	Dirs  int

	// Skipped counts files left out by exclusion rules, the size cap, or
	// because they could not be read.
	Skipped int

	// Errors counts files that could not be read. Each is also in Skipped.
	Errors int

	// Failures holds the read error of every file counted in Errors.
	Failures []*FileAccessError

	// OriginalSize is the total size of the archived files.
	OriginalSize uint64

	// PayloadSize is the size of the serialized payload before encoding.
	PayloadSize int

	// Codec names the codec that won compression.
	Codec string

	// DictionarySize is the size of the shipped dictionary, zero if none.
	DictionarySize int

	// ArchiveID identifies the run. It is stamped on every chunk.
	ArchiveID string
}

// ArchiveResult is returned by Compress.
type ArchiveResult struct {
	ArchiveStats

	// Chunks are the written chunk documents in order.
	Chunks []string

	ManifestPath string
	Manifest     *Manifest
}

// PartsResult is returned by CompressParts.
type PartsResult struct {
	ArchiveStats

	// Parts are the written part files in order.
	Parts []string

	// Checksum is the "sha256:<hex>" digest of the concatenated parts. It
	// is not written anywhere and must be passed to DecompressParts.
	Checksum string
}

// Compress archives root as chunk documents named {outputPrefix}_partNNN.cmpr
// and writes {outputPrefix}_manifest.json last. On failure no output of
// this run is left behind.
func Compress(ctx context.Context, root, outputPrefix string, opts ...ArchiveOption) (*ArchiveResult, error) {
	a := newArchiver(opts)
	a.log().Info("creating archive", "root", root, "prefix", outputPrefix)

	packed, stats, err := a.pack(ctx, root)
	if err != nil {
		return nil, err
	}

	man := Manifest{
		Created:      time.Now().UTC(),
		OriginalSize: stats.OriginalSize,
		FileCount:    stats.Files,
		DirCount:     stats.Dirs,
		SkippedFiles: stats.Skipped,
		Compression:  stats.Codec,
		ArchiveID:    stats.ArchiveID,
	}
	wr, err := chunk.Write(outputPrefix, packed.Data, man, chunk.WriteOptions{
		Size:      a.cfg.chunkSize,
		Overwrite: a.cfg.overwrite,
		OnChunk:   a.onWrite,
		Logger:    a.cfg.logger,
	})
	if err != nil {
		return nil, err
	}

	a.log().Info("archive written",
		"chunks", len(wr.Chunks),
		"files", stats.Files,
		"skipped", stats.Skipped,
		"codec", stats.Codec,
		"payload_size", stats.PayloadSize)

	return &ArchiveResult{
		ArchiveStats: *stats,
		Chunks:       wr.Chunks,
		ManifestPath: wr.ManifestPath,
		Manifest:     wr.Manifest,
	}, nil
}

// CompressParts archives root as raw part files named {stem}_partN{suffix}
// next to dest, where dest's extension is the suffix. The returned checksum
// is required to restore.
func CompressParts(ctx context.Context, root, dest string, opts ...ArchiveOption) (*PartsResult, error) {
	a := newArchiver(opts)
	a.log().Info("creating multipart archive", "root", root, "dest", dest)

	packed, stats, err := a.pack(ctx, root)
	if err != nil {
		return nil, err
	}

	wr, err := parts.Write(dest, packed.Data, parts.WriteOptions{
		MaxPartBytes: a.cfg.maxPartBytes,
		Overwrite:    a.cfg.overwrite,
		OnPart:       a.onWrite,
		Logger:       a.cfg.logger,
	})
	if err != nil {
		return nil, err
	}

	a.log().Info("archive written",
		"parts", len(wr.Parts),
		"files", stats.Files,
		"skipped", stats.Skipped,
		"codec", stats.Codec,
		"checksum", wr.Checksum)

	return &PartsResult{
		ArchiveStats: *stats,
		Parts:        wr.Parts,
		Checksum:     wr.Checksum,
	}, nil
}

// archiver holds state for one archive run.
type archiver struct {
	cfg archiveConfig
}

func newArchiver(opts []ArchiveOption) *archiver {
	a := &archiver{}
	for _, opt := range opts {
		opt(&a.cfg)
	}
	if a.cfg.workers < 1 {
		a.cfg.workers = runtime.GOMAXPROCS(0)
	}
	return a
}

func (a *archiver) log() *slog.Logger {
	if a.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.cfg.logger
}

func (a *archiver) report(stage ProgressStage, path string, done, total int) {
	parceltype.Report(a.cfg.reporter, ProgressEvent{Stage: stage, Path: path, Done: done, Total: total})
}

func (a *archiver) onWrite(path string, done, total int) {
	a.report(StageWriting, path, done, total)
}

// pack selects, preprocesses and compresses the tree at rootDir.
func (a *archiver) pack(ctx context.Context, rootDir string) (*payload.Packed, *ArchiveStats, error) {
	table, err := a.codecTable()
	if err != nil {
		return nil, nil, err
	}

	root, err := os.OpenRoot(rootDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open source directory: %w", err)
	}
	defer root.Close()

	a.report(StageScanning, "", 0, 0)
	sel, err := selector.New(a.selectorOptions())
	if err != nil {
		return nil, nil, err
	}
	picked, err := sel.Select(ctx, root)
	if err != nil {
		return nil, nil, fmt.Errorf("scan source directory: %w", err)
	}
	a.log().Debug("selection complete", "files", len(picked.Files), "dirs", len(picked.Dirs), "skipped", picked.Skipped)

	records, stats, err := a.collect(ctx, root, picked)
	if err != nil {
		return nil, nil, err
	}

	dictionary := a.trainDictionary(records)

	a.report(StageCompressing, "", 0, len(table))
	archiveID := uuid.NewString()
	packed, err := payload.Pack(ctx, table, records, dictionary, archiveID)
	if err != nil {
		return nil, nil, fmt.Errorf("compress payload: %w", err)
	}
	for _, at := range packed.Attempts {
		if at.Err != nil {
			a.log().Debug("codec failed", "codec", at.Name, "error", at.Err)
			continue
		}
		a.log().Debug("codec evaluated", "codec", at.Name, "cost", at.Cost)
	}
	a.report(StageCompressing, "", len(table), len(table))

	stats.PayloadSize = len(packed.Data)
	stats.Codec = packed.Codec
	stats.DictionarySize = packed.DictionarySize
	stats.ArchiveID = archiveID
	return packed, stats, nil
}

// collect reads and preprocesses the selected files with a bounded worker
// pool. Unreadable files are counted and left out.
func (a *archiver) collect(ctx context.Context, root *os.Root, picked *selector.Result) ([]payload.Record, *ArchiveStats, error) {
	stats := &ArchiveStats{
		Dirs:    len(picked.Dirs),
		Skipped: picked.Skipped,
	}

	files := make([]*payload.Record, len(picked.Files))
	var (
		mu   sync.Mutex
		done int
	)
	total := len(picked.Files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.workers)
	for i, e := range picked.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.preprocessFile(root, e)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fae := &FileAccessError{Path: e.Path, Err: err}
				a.log().Warn("skipping unreadable file", "path", e.Path, "error", err)
				stats.Failures = append(stats.Failures, fae)
				stats.Errors++
				stats.Skipped++
			} else {
				files[i] = rec
			}
			done++
			a.report(StagePreprocessing, e.Path, done, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	slices.SortFunc(stats.Failures, func(x, y *FileAccessError) int { return strings.Compare(x.Path, y.Path) })

	records := make([]payload.Record, 0, len(picked.Dirs)+len(files))
	for _, d := range picked.Dirs {
		records = append(records, payload.Record{Path: d.Path, Kind: parceltype.KindDir, ModTime: d.ModTime})
	}
	for _, rec := range files {
		if rec == nil {
			continue
		}
		records = append(records, *rec)
		stats.Files++
		stats.OriginalSize += rec.Size
	}
	return records, stats, nil
}

func (a *archiver) preprocessFile(root *os.Root, e selector.Entry) (*payload.Record, error) {
	raw, err := platform.ReadFile(root, filepath.FromSlash(e.Path), e.Size)
	if err != nil {
		return nil, err
	}
	stored, err := preprocess.Apply(e.Tag, raw)
	if err != nil {
		return nil, err
	}
	return &payload.Record{
		Path:    e.Path,
		Kind:    parceltype.KindFile,
		Tag:     e.Tag,
		Content: stored,
		Digest:  fileops.Digest(stored),
		Size:    e.Size,
		ModTime: e.ModTime,
	}, nil
}

// trainDictionary returns a dictionary for the file contents, or nil when
// training is disabled, there are too few samples, or every strategy fails.
func (a *archiver) trainDictionary(records []payload.Record) []byte {
	if a.cfg.noDictionary {
		return nil
	}
	var samples [][]byte
	for i := range records {
		if len(records[i].Content) > 0 {
			samples = append(samples, records[i].Content)
		}
	}
	if len(samples) < 2 {
		return nil
	}

	a.report(StageTraining, "", 0, 1)
	d, err := dict.Train(a.trainers(), samples)
	a.report(StageTraining, "", 1, 1)
	if err != nil {
		a.log().Warn("dictionary training failed, continuing without dictionary", "error", err)
		return nil
	}
	a.log().Debug("dictionary trained", "size", len(d), "samples", len(samples))
	return d
}

func (a *archiver) trainers() []dict.Trainer {
	if len(a.cfg.trainers) > 0 {
		return a.cfg.trainers
	}
	size := a.cfg.dictSize
	if size <= 0 {
		size = DefaultMaxDictSize
	}
	return dict.Strategies(size)
}

// codecTable returns the default codec table, narrowed to the configured
// names when any are set.
func (a *archiver) codecTable() ([]codec.Codec, error) {
	table := codec.Default()
	if len(a.cfg.codecs) == 0 {
		return table, nil
	}
	for _, name := range a.cfg.codecs {
		if _, ok := codec.Lookup(table, name); !ok {
			return nil, fmt.Errorf("unknown codec %q", name)
		}
	}
	return slices.DeleteFunc(table, func(c codec.Codec) bool {
		return !slices.Contains(a.cfg.codecs, c.Name())
	}), nil
}

func (a *archiver) selectorOptions() selector.Options {
	opts := selector.Options{
		Include:     a.cfg.include,
		MaxFileSize: DefaultMaxFileSize,
		Logger:      a.cfg.logger,
	}
	if !a.cfg.noDefaultExcludes {
		opts.ExcludeDirs = slices.Clone(selector.DefaultExcludeDirs)
		opts.ExcludeGlobs = slices.Clone(selector.DefaultExcludeGlobs)
	}
	opts.ExcludeDirs = append(opts.ExcludeDirs, a.cfg.excludeDirs...)
	opts.ExcludeGlobs = append(opts.ExcludeGlobs, a.cfg.exclude...)

	switch {
	case a.cfg.maxFileSize < 0:
		opts.MaxFileSize = 0
	case a.cfg.maxFileSize > 0:
		opts.MaxFileSize = uint64(a.cfg.maxFileSize)
	}

	exts := preprocess.DefaultTextExtensions
	if a.cfg.textExtensions != nil {
		exts = a.cfg.textExtensions
	}
	opts.Classify = preprocess.NewClassifier(exts).Classify
	return opts
}
