package parceltype

// ProgressEvent represents a progress update during archive or restore operations.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the file or part currently being processed, if applicable.
	Path string

	// Done is the number of units completed in the current stage.
	Done int

	// Total is the number of units in the current stage.
	// Zero indicates the total is unknown (e.g., during scanning).
	Total int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for archive and restore operations.
const (
	// StageScanning indicates the source tree is being walked.
	StageScanning ProgressStage = iota

	// StagePreprocessing indicates files are being read, transformed and hashed.
	StagePreprocessing

	// StageTraining indicates a compression dictionary is being trained.
	StageTraining

	// StageCompressing indicates codecs are being evaluated on the payload.
	StageCompressing

	// StageWriting indicates chunks or parts are being written.
	StageWriting

	// StageLoading indicates chunks or parts are being read and verified.
	StageLoading

	// StageValidating indicates records are being checked before restore.
	StageValidating

	// StageRestoring indicates files are being written to the output directory.
	StageRestoring
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StagePreprocessing:
		return "preprocessing"
	case StageTraining:
		return "training"
	case StageCompressing:
		return "compressing"
	case StageWriting:
		return "writing"
	case StageLoading:
		return "loading"
	case StageValidating:
		return "validating"
	case StageRestoring:
		return "restoring"
	default:
		return "unknown"
	}
}

// ProgressReporter receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressReporter interface {
	Progress(ProgressEvent)
}

// ProgressFunc adapts a function to a ProgressReporter.
type ProgressFunc func(ProgressEvent)

// Progress calls f(ev).
func (f ProgressFunc) Progress(ev ProgressEvent) { f(ev) }

// Report delivers ev to r. A nil reporter is ignored and a panicking
// reporter is recovered, so reporting never affects the operation.
func Report(r ProgressReporter, ev ProgressEvent) {
	if r == nil {
		return
	}
	defer func() { _ = recover() }()
	r.Progress(ev)
}
