// Package sizing provides overflow-safe size arithmetic and bounded reads.
package sizing

import (
	"io"
	"math"

	"github.com/meigma/parcel/internal/parceltype"
)

// ToInt converts a uint64 to int, returning ErrSizeOverflow if it doesn't fit.
func ToInt(size uint64) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, parceltype.ErrSizeOverflow
	}
	return int(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns ErrSizeOverflow if more than maxSize bytes are available.
// A maxSize of zero disables the limit.
func ReadAllWithLimit(r io.Reader, maxSize uint64) ([]byte, error) {
	if maxSize == 0 {
		return io.ReadAll(r)
	}
	if maxSize > uint64(math.MaxInt64-1) {
		return nil, parceltype.ErrSizeOverflow
	}
	lr := &io.LimitedReader{R: r, N: int64(maxSize) + 1} //nolint:gosec // checked above
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize {
		return nil, parceltype.ErrSizeOverflow
	}
	return data, nil
}

// ReadAtMost reads from r and returns ErrSizeOverflow as soon as more than
// n bytes are available. Unlike ReadAllWithLimit, n == 0 allows no data.
func ReadAtMost(r io.Reader, n uint64) ([]byte, error) {
	if n > uint64(math.MaxInt64-1) {
		return nil, parceltype.ErrSizeOverflow
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(n)+1)) //nolint:gosec // checked above
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > n {
		return nil, parceltype.ErrSizeOverflow
	}
	return data, nil
}

// CountingWriter wraps a writer and counts bytes written.
type CountingWriter struct {
	W io.Writer
	N uint64
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		next, ok := AddUint64(cw.N, uint64(n)) //nolint:gosec // n is non-negative per io.Writer
		if !ok {
			return n, parceltype.ErrSizeOverflow
		}
		cw.N = next
	}
	return n, err
}
