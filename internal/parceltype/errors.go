package parceltype

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive and restore operations.
var (
	// ErrFileAccess is returned when a source file cannot be read.
	ErrFileAccess = errors.New("parcel: file access failed")

	// ErrValidation is returned when restored content fails size or hash checks.
	ErrValidation = errors.New("parcel: validation failed")

	// ErrManifest is returned when a manifest is missing fields or unusable.
	ErrManifest = errors.New("parcel: invalid manifest")

	// ErrChunkSequence is returned when chunks are missing, misordered or inconsistent.
	ErrChunkSequence = errors.New("parcel: chunk sequence broken")

	// ErrPathTraversal is returned when a record path resolves outside the restore root.
	ErrPathTraversal = errors.New("parcel: path traversal")

	// ErrChecksumMismatch is returned when reassembled parts do not match their checksum.
	ErrChecksumMismatch = errors.New("parcel: checksum mismatch")

	// ErrPartialWrite is returned when fewer bytes were written than expected.
	ErrPartialWrite = errors.New("parcel: partial write")

	// ErrNoCodec is returned when every compression strategy failed.
	ErrNoCodec = errors.New("parcel: no codec succeeded")

	// ErrCorruptPayload is returned when a payload cannot be decoded.
	ErrCorruptPayload = errors.New("parcel: corrupt payload")

	// ErrOutputExists is returned when output artifacts already exist.
	ErrOutputExists = errors.New("parcel: output exists")

	// ErrNoParts is returned when no chunk or part files match.
	ErrNoParts = errors.New("parcel: no parts found")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("parcel: size overflow")
)

// FileAccessError describes a source file that could not be read.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("parcel: read %s: %v", e.Path, e.Err)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *FileAccessError) Unwrap() []error { return []error{ErrFileAccess, e.Err} }

// ValidationError reports the number of records that failed verification.
type ValidationError struct {
	Count int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parcel: validation failed with %d errors", e.Count)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ManifestError describes a manifest problem.
type ManifestError struct {
	Path   string
	Reason string
}

func (e *ManifestError) Error() string {
	if e.Path == "" {
		return "parcel: manifest: " + e.Reason
	}
	return fmt.Sprintf("parcel: manifest %s: %s", e.Path, e.Reason)
}

func (e *ManifestError) Unwrap() error { return ErrManifest }

// ChunkSequenceError describes a break in the chunk or part sequence.
type ChunkSequenceError struct {
	Part     string
	Expected int
	Got      int
	Reason   string
}

func (e *ChunkSequenceError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("parcel: chunk sequence: %s (expected %d, got %d)", e.Reason, e.Expected, e.Got)
	}
	return fmt.Sprintf("parcel: chunk sequence: %s: %s (expected %d, got %d)", e.Part, e.Reason, e.Expected, e.Got)
}

func (e *ChunkSequenceError) Unwrap() error { return ErrChunkSequence }

// PathTraversalError describes a record path that escapes the restore root.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("parcel: path traversal attempt: %q", e.Path)
}

func (e *PathTraversalError) Unwrap() error { return ErrPathTraversal }

// ChecksumMismatchError reports the expected and actual payload digests.
type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("parcel: checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

// PartialWriteError reports a short write of archive output.
type PartialWriteError struct {
	Expected uint64
	Written  uint64
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("parcel: write verification failed (expected %d bytes, wrote %d)", e.Expected, e.Written)
}

func (e *PartialWriteError) Unwrap() error { return ErrPartialWrite }
