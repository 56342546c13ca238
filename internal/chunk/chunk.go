package chunk

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/meigma/parcel/internal/fileops"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/sizing"
)

// DefaultSize is the default number of encoded characters per chunk.
const DefaultSize = 50_000

// Extension is the file extension of chunk documents.
const Extension = ".cmpr"

var partRe = regexp.MustCompile(`^(.*)_part(\d+)` + regexp.QuoteMeta(Extension) + `$`)

// Doc is one chunk document.
type Doc struct {
	ChunkNumber int    `json:"chunk_number"`
	TotalChunks int    `json:"total_chunks"`
	Content     string `json:"content"`
	ChunkSize   int    `json:"chunk_size"`
	ArchiveID   string `json:"archive_id,omitempty"`
}

// PartPath returns the path of chunk n for prefix.
func PartPath(prefix string, n int) string {
	return fmt.Sprintf("%s_part%03d%s", prefix, n, Extension)
}

// WriteOptions configures Write.
type WriteOptions struct {
	// Size is the maximum number of encoded characters per chunk.
	Size int

	// Overwrite removes existing chunks and manifest for the prefix instead
	// of failing with ErrOutputExists.
	Overwrite bool

	// OnChunk is called after each chunk document is written.
	OnChunk func(path string, done, total int)

	Logger *slog.Logger
}

// WriteResult describes the written archive.
type WriteResult struct {
	Chunks       []string
	ManifestPath string
	Manifest     *Manifest
}

// Write encodes payload, writes the chunk documents for prefix and finally
// the manifest. man supplies the archive statistics; Write fills in the
// chunk fields, encoding and prefix. On failure every file written by this
// call is removed.
func Write(prefix string, payload []byte, man Manifest, opts WriteOptions) (res *WriteResult, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}

	if err := os.MkdirAll(filepath.Dir(prefix), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := clearExisting(prefix, opts.Overwrite, logger); err != nil {
		return nil, err
	}

	text := Encode(payload)
	pieces := Split(text, size)
	total := len(pieces)

	var written fileops.Tracker
	defer func() {
		if err != nil {
			if cleanupErr := written.RemoveAll(); cleanupErr != nil {
				logger.Warn("failed to remove partial output", "error", cleanupErr)
			}
		}
	}()

	var chars uint64
	paths := make([]string, 0, total)
	for i, content := range pieces {
		doc := Doc{
			ChunkNumber: i + 1,
			TotalChunks: total,
			Content:     content,
			ChunkSize:   len(content),
			ArchiveID:   man.ArchiveID,
		}
		data, err := marshalJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("encode chunk %d: %w", doc.ChunkNumber, err)
		}
		p := PartPath(prefix, doc.ChunkNumber)
		if _, err := fileops.WriteAtomic(p, data); err != nil {
			return nil, fmt.Errorf("write chunk %s: %w", p, err)
		}
		written.Add(p)
		next, ok := sizing.AddUint64(chars, uint64(doc.ChunkSize)) //nolint:gosec // lengths are non-negative
		if !ok {
			return nil, parceltype.ErrSizeOverflow
		}
		chars = next
		paths = append(paths, p)
		logger.Debug("wrote chunk", "path", p, "chunk", doc.ChunkNumber, "total", total)
		if opts.OnChunk != nil {
			opts.OnChunk(p, doc.ChunkNumber, total)
		}
	}
	if chars != uint64(len(text)) {
		return nil, &parceltype.PartialWriteError{Expected: uint64(len(text)), Written: chars}
	}

	man.Version = ManifestVersion
	man.ChunkCount = total
	man.ChunkSize = size
	man.HashAlgorithm = HashAlgorithm
	man.OutputPrefix = filepath.Base(prefix)
	man.Encoding = EncodingName
	man.CompressedSize = uint64(len(payload))

	data, err := marshalJSON(man)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	mp := ManifestPath(prefix)
	if _, err := fileops.WriteAtomic(mp, data); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return &WriteResult{Chunks: paths, ManifestPath: mp, Manifest: &man}, nil
}

// clearExisting fails if chunks or a manifest already exist for prefix,
// unless overwrite is set, in which case they are removed.
func clearExisting(prefix string, overwrite bool, logger *slog.Logger) error {
	existing, err := matchParts(fileops.EscapeGlob(prefix) + "_part*" + Extension)
	if err != nil {
		return err
	}
	mp := ManifestPath(prefix)
	if info, err := os.Stat(mp); err == nil && info.Mode().IsRegular() {
		existing = append(existing, mp)
	}
	if len(existing) == 0 {
		return nil
	}
	if !overwrite {
		return fmt.Errorf("%w: %s", parceltype.ErrOutputExists, existing[0])
	}
	for _, p := range existing {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale output %s: %w", p, err)
		}
		logger.Debug("removed stale output", "path", p)
	}
	return nil
}

// Located is the result of Locate.
type Located struct {
	// Parts are the chunk files ordered by their numeric part index.
	Parts []string

	// ManifestPath is the manifest inferred next to the first part.
	ManifestPath string
}

// Locate finds chunk documents. pattern is a glob; a pattern without glob
// metacharacters is treated as an output prefix.
func Locate(pattern string) (*Located, error) {
	if !fileops.HasGlobMeta(pattern) {
		pattern = fileops.EscapeGlob(pattern) + "_part*" + Extension
	}
	parts, err := matchParts(pattern)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s", parceltype.ErrNoParts, pattern)
	}
	m := partRe.FindStringSubmatch(parts[0])
	return &Located{Parts: parts, ManifestPath: ManifestPath(m[1])}, nil
}

// matchParts globs pattern and keeps chunk files, sorted by part index.
func matchParts(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk pattern %q: %w", pattern, err)
	}
	type part struct {
		path string
		n    int
	}
	parts := make([]part, 0, len(matches))
	for _, p := range matches {
		m := partRe.FindStringSubmatch(p)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		parts = append(parts, part{path: p, n: n})
	}
	slices.SortFunc(parts, func(a, b part) int {
		if a.n != b.n {
			return a.n - b.n
		}
		return strings.Compare(a.path, b.path)
	})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.path
	}
	return out, nil
}

// Combine reads the chunk documents in order, verifies the sequence and
// returns the decoded payload. man may be nil; when set its chunk count is
// the expected total and its archive id must match every chunk. limit
// bounds the decoded payload; zero disables it.
func Combine(parts []string, man *Manifest, limit uint64, onChunk func(path string, done, total int)) ([]byte, error) {
	expected := len(parts)
	if man != nil {
		expected = man.ChunkCount
	}
	if man != nil && limit > 0 && man.CompressedSize > limit {
		return nil, fmt.Errorf("%w: manifest declares %d payload bytes", parceltype.ErrSizeOverflow, man.CompressedSize)
	}
	textLimit := EncodedLimit(limit)

	var text strings.Builder
	for i, p := range parts {
		doc, err := readDoc(p)
		if err != nil {
			return nil, err
		}
		pos := i + 1
		name := filepath.Base(p)
		if doc.ChunkNumber != pos {
			return nil, &parceltype.ChunkSequenceError{Part: name, Expected: pos, Got: doc.ChunkNumber, Reason: "chunk out of sequence"}
		}
		if doc.TotalChunks != expected {
			return nil, &parceltype.ChunkSequenceError{Part: name, Expected: expected, Got: doc.TotalChunks, Reason: "total chunks mismatch"}
		}
		if doc.ChunkSize != len(doc.Content) {
			return nil, &parceltype.ChunkSequenceError{Part: name, Expected: doc.ChunkSize, Got: len(doc.Content), Reason: "chunk size mismatch"}
		}
		if man != nil && man.ArchiveID != "" && doc.ArchiveID != "" && doc.ArchiveID != man.ArchiveID {
			return nil, &parceltype.ChunkSequenceError{Part: name, Expected: pos, Got: doc.ChunkNumber, Reason: "chunk belongs to archive " + doc.ArchiveID}
		}
		if limit > 0 && uint64(text.Len())+uint64(len(doc.Content)) > textLimit {
			return nil, parceltype.ErrSizeOverflow
		}
		text.WriteString(doc.Content)
		if onChunk != nil {
			onChunk(p, pos, expected)
		}
	}
	if len(parts) != expected {
		return nil, &parceltype.ChunkSequenceError{Expected: expected, Got: len(parts), Reason: "missing chunks"}
	}

	payload, err := Decode(text.String(), limit)
	if err != nil {
		return nil, err
	}
	if man != nil && man.CompressedSize != uint64(len(payload)) {
		return nil, fmt.Errorf("%w: payload is %d bytes, manifest says %d", parceltype.ErrCorruptPayload, len(payload), man.CompressedSize)
	}
	return payload, nil
}

func readDoc(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", path, err)
	}
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &parceltype.ChunkSequenceError{Part: filepath.Base(path), Reason: "unreadable chunk document: " + err.Error()}
	}
	return &doc, nil
}
