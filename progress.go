package parcel

import "github.com/meigma/parcel/internal/parceltype"

// Re-export progress types from parceltype.
type (
	// ProgressEvent represents a progress update during archive or restore operations.
	ProgressEvent = parceltype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = parceltype.ProgressStage

	// ProgressReporter receives progress updates.
	// Implementations must be safe for concurrent calls.
	ProgressReporter = parceltype.ProgressReporter

	// ProgressFunc adapts a function to a ProgressReporter.
	ProgressFunc = parceltype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageScanning indicates the source tree is being walked.
	StageScanning = parceltype.StageScanning

	// StagePreprocessing indicates files are being read, transformed and hashed.
	StagePreprocessing = parceltype.StagePreprocessing

	// StageTraining indicates a compression dictionary is being trained.
	StageTraining = parceltype.StageTraining

	// StageCompressing indicates codecs are being evaluated on the payload.
	StageCompressing = parceltype.StageCompressing

	// StageWriting indicates chunks or parts are being written.
	StageWriting = parceltype.StageWriting

	// StageLoading indicates chunks or parts are being read and verified.
	StageLoading = parceltype.StageLoading

	// StageValidating indicates records are being checked before restore.
	StageValidating = parceltype.StageValidating

	// StageRestoring indicates files are being written to the output directory.
	StageRestoring = parceltype.StageRestoring
)
