package parcel

import "github.com/meigma/parcel/internal/parceltype"

// Errors re-exported from parceltype.
var (
	// ErrFileAccess is returned when a source file cannot be read.
	ErrFileAccess = parceltype.ErrFileAccess

	// ErrValidation is returned when restored content fails size or hash checks.
	ErrValidation = parceltype.ErrValidation

	// ErrManifest is returned when a manifest is missing fields or unusable.
	ErrManifest = parceltype.ErrManifest

	// ErrChunkSequence is returned when chunks are missing, misordered or inconsistent.
	ErrChunkSequence = parceltype.ErrChunkSequence

	// ErrPathTraversal is returned when a record path resolves outside the output directory.
	ErrPathTraversal = parceltype.ErrPathTraversal

	// ErrChecksumMismatch is returned when reassembled parts do not match their checksum.
	ErrChecksumMismatch = parceltype.ErrChecksumMismatch

	// ErrPartialWrite is returned when fewer bytes were written than expected.
	ErrPartialWrite = parceltype.ErrPartialWrite

	// ErrNoCodec is returned when every compression codec failed.
	ErrNoCodec = parceltype.ErrNoCodec

	// ErrCorruptPayload is returned when a payload cannot be decoded.
	ErrCorruptPayload = parceltype.ErrCorruptPayload

	// ErrOutputExists is returned when archive output already exists and
	// overwrite was not requested.
	ErrOutputExists = parceltype.ErrOutputExists

	// ErrNoParts is returned when no chunk or part files are found.
	ErrNoParts = parceltype.ErrNoParts

	// ErrSizeOverflow is returned when a size exceeds a configured limit.
	ErrSizeOverflow = parceltype.ErrSizeOverflow
)

// Typed errors re-exported from parceltype. Each unwraps to its sentinel.
type (
	FileAccessError       = parceltype.FileAccessError
	ValidationError       = parceltype.ValidationError
	ManifestError         = parceltype.ManifestError
	ChunkSequenceError    = parceltype.ChunkSequenceError
	PathTraversalError    = parceltype.PathTraversalError
	ChecksumMismatchError = parceltype.ChecksumMismatchError
	PartialWriteError     = parceltype.PartialWriteError
)
