// Package parts implements discrete multipart mode: the raw payload is
// sliced into numbered part files and verified with an out-of-band digest.
package parts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/parcel/internal/fileops"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/sizing"
)

// DefaultMaxPartBytes is the default size bound of one part file.
const DefaultMaxPartBytes = 8 << 20

// Name splits dest into the stem and suffix used to name its parts:
// "out/site.parcel" yields "out/site" and ".parcel".
func Name(dest string) (stem, suffix string) {
	suffix = filepath.Ext(dest)
	return strings.TrimSuffix(dest, suffix), suffix
}

// PartPath returns the path of part n for dest.
func PartPath(dest string, n int) string {
	stem, suffix := Name(dest)
	return stem + "_part" + strconv.Itoa(n) + suffix
}

// WriteOptions configures Write.
type WriteOptions struct {
	// MaxPartBytes bounds each part file.
	MaxPartBytes int

	// Overwrite removes existing parts for dest instead of failing.
	Overwrite bool

	// OnPart is called after each part file is written.
	OnPart func(path string, done, total int)

	Logger *slog.Logger
}

// WriteResult describes the written parts.
type WriteResult struct {
	Parts []string

	// Checksum is the "sha256:<hex>" digest of the whole payload. It is not
	// stored anywhere; callers must keep it for Read.
	Checksum string

	Size uint64
}

// Write slices payload into part files next to dest. On failure every part
// written by this call is removed.
func Write(dest string, payload []byte, opts WriteOptions) (res *WriteResult, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxPart := opts.MaxPartBytes
	if maxPart <= 0 {
		maxPart = DefaultMaxPartBytes
	}

	checksum := digest.SHA256.FromBytes(payload)

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := clearExisting(dest, opts.Overwrite, logger); err != nil {
		return nil, err
	}

	var written fileops.Tracker
	defer func() {
		if err != nil {
			if cleanupErr := written.RemoveAll(); cleanupErr != nil {
				logger.Warn("failed to remove partial output", "error", cleanupErr)
			}
		}
	}()

	total := max(1, (len(payload)+maxPart-1)/maxPart)
	paths := make([]string, 0, total)
	var count uint64
	for i := range total {
		start := i * maxPart
		end := min(start+maxPart, len(payload))
		p := PartPath(dest, i+1)

		n, err := fileops.WriteAtomic(p, payload[start:end])
		if err != nil {
			return nil, fmt.Errorf("write part %s: %w", p, err)
		}
		written.Add(p)
		next, ok := sizing.AddUint64(count, n)
		if !ok {
			return nil, parceltype.ErrSizeOverflow
		}
		count = next
		paths = append(paths, p)
		logger.Debug("wrote part", "path", p, "bytes", n)
		if opts.OnPart != nil {
			opts.OnPart(p, i+1, total)
		}
	}
	if count != uint64(len(payload)) {
		return nil, &parceltype.PartialWriteError{Expected: uint64(len(payload)), Written: count}
	}

	return &WriteResult{Parts: paths, Checksum: checksum.String(), Size: count}, nil
}

func clearExisting(dest string, overwrite bool, logger *slog.Logger) error {
	existing, err := find(dest)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	if !overwrite {
		return fmt.Errorf("%w: %s", parceltype.ErrOutputExists, existing[0].path)
	}
	for _, p := range existing {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale part %s: %w", p.path, err)
		}
		logger.Debug("removed stale part", "path", p.path)
	}
	return nil
}

type part struct {
	path string
	n    int
}

// find returns the part files of dest sorted by part number.
func find(dest string) ([]part, error) {
	stem, suffix := Name(dest)
	matches, err := filepath.Glob(fileops.EscapeGlob(stem) + "_part*" + fileops.EscapeGlob(suffix))
	if err != nil {
		return nil, fmt.Errorf("invalid part pattern for %q: %w", dest, err)
	}
	re, err := regexp.Compile("^" + regexp.QuoteMeta(stem) + `_part(\d+)` + regexp.QuoteMeta(suffix) + "$")
	if err != nil {
		return nil, err
	}
	found := make([]part, 0, len(matches))
	for _, m := range matches {
		sub := re.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			continue
		}
		found = append(found, part{path: m, n: n})
	}
	slices.SortFunc(found, func(a, b part) int {
		if a.n != b.n {
			return a.n - b.n
		}
		return strings.Compare(a.path, b.path)
	})
	return found, nil
}

// Locate returns the part files for dest. The part numbers must form the
// contiguous sequence 1..n.
func Locate(dest string) ([]string, error) {
	found, err := find(dest)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", parceltype.ErrNoParts, PartPath(dest, 1))
	}
	paths := make([]string, len(found))
	for i, p := range found {
		if p.n != i+1 {
			reason := "missing part"
			if p.n < i+1 {
				reason = "duplicate part"
			}
			return nil, &parceltype.ChunkSequenceError{Part: filepath.Base(p.path), Expected: i + 1, Got: p.n, Reason: reason}
		}
		paths[i] = p.path
	}
	return paths, nil
}

// ParseChecksum accepts "sha256:<hex>" or a bare hex sha256 digest.
func ParseChecksum(s string) (digest.Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("checksum is required")
	}
	if !strings.Contains(s, ":") {
		s = string(digest.SHA256) + ":" + strings.ToLower(s)
	}
	d, err := digest.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	return d, nil
}

// Read concatenates parts in order and verifies the result against
// checksum. limit bounds the total size; zero disables it.
func Read(paths []string, checksum string, limit uint64, onPart func(path string, done, total int)) ([]byte, error) {
	want, err := ParseChecksum(checksum)
	if err != nil {
		return nil, err
	}

	var buf []byte
	verifier := want.Verifier()
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", p, err)
		}
		if limit > 0 && uint64(len(buf))+uint64(len(data)) > limit {
			return nil, parceltype.ErrSizeOverflow
		}
		buf = append(buf, data...)
		_, _ = verifier.Write(data) //nolint:errcheck // hash writes never fail
		if onPart != nil {
			onPart(p, i+1, len(paths))
		}
	}
	if !verifier.Verified() {
		actual := want.Algorithm().FromBytes(buf)
		return nil, &parceltype.ChecksumMismatchError{Expected: want.String(), Actual: actual.String()}
	}
	return buf, nil
}
