package parcel

import "log/slog"

// DefaultMaxPayloadSize bounds the reassembled and decompressed payload when
// no RestoreWithMaxPayloadSize option is set.
const DefaultMaxPayloadSize = 4 << 30

// RestoreOption configures Decompress and DecompressParts.
type RestoreOption func(*restoreConfig)

type restoreConfig struct {
	logger         *slog.Logger
	reporter       ProgressReporter
	workers        int
	force          bool
	verifyOnly     bool
	maxPayloadSize int64
}

// RestoreWithLogger sets the logger for restore operations.
// If not set, logging is disabled.
func RestoreWithLogger(logger *slog.Logger) RestoreOption {
	return func(cfg *restoreConfig) {
		cfg.logger = logger
	}
}

// RestoreWithReporter sets the progress reporter.
// The reporter may be invoked concurrently and must be safe for concurrent use.
func RestoreWithReporter(r ProgressReporter) RestoreOption {
	return func(cfg *restoreConfig) {
		cfg.reporter = r
	}
}

// RestoreWithWorkers sets the number of files verified and written
// concurrently. Values below one use runtime.GOMAXPROCS(0).
func RestoreWithWorkers(n int) RestoreOption {
	return func(cfg *restoreConfig) {
		cfg.workers = n
	}
}

// RestoreWithForce restores into a non-empty output directory and writes
// files even when some records fail verification. Failures are still
// counted in the result.
func RestoreWithForce(force bool) RestoreOption {
	return func(cfg *restoreConfig) {
		cfg.force = force
	}
}

// RestoreWithVerifyOnly checks the archive and every record without writing
// anything to disk.
func RestoreWithVerifyOnly(verify bool) RestoreOption {
	return func(cfg *restoreConfig) {
		cfg.verifyOnly = verify
	}
}

// RestoreWithMaxPayloadSize bounds the reassembled chunk or part payload
// and the decompressed record set. Zero uses DefaultMaxPayloadSize; negative
// disables the bound.
func RestoreWithMaxPayloadSize(n int64) RestoreOption {
	return func(cfg *restoreConfig) {
		cfg.maxPayloadSize = n
	}
}

func (cfg *restoreConfig) payloadLimit() uint64 {
	switch {
	case cfg.maxPayloadSize == 0:
		return DefaultMaxPayloadSize
	case cfg.maxPayloadSize < 0:
		return 0
	default:
		return uint64(cfg.maxPayloadSize)
	}
}

func (cfg *restoreConfig) log() *slog.Logger {
	if cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cfg.logger
}
