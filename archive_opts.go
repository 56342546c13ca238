package parcel

import (
	"log/slog"

	"github.com/meigma/parcel/internal/dict"
)

// DefaultMaxFileSize is the size cap applied to binary files when no
// ArchiveWithMaxFileSize option is set. Text files are never capped.
const DefaultMaxFileSize = 10 << 20

// DefaultMaxDictSize is the dictionary size used when no
// ArchiveWithDictionarySize option is set.
const DefaultMaxDictSize = dict.DefaultMaxSize

// DictionaryTrainer derives a compression dictionary from sample content.
type DictionaryTrainer = dict.Trainer

// DictionaryTrainerFunc adapts a function to a DictionaryTrainer.
type DictionaryTrainerFunc = dict.TrainerFunc

// ArchiveOption configures Compress and CompressParts.
type ArchiveOption func(*archiveConfig)

type archiveConfig struct {
	logger   *slog.Logger
	reporter ProgressReporter
	workers  int

	chunkSize    int
	maxPartBytes int
	overwrite    bool

	noDefaultExcludes bool
	excludeDirs       []string
	exclude           []string
	include           []string
	maxFileSize       int64
	textExtensions    []string

	noDictionary bool
	dictSize     int
	trainers     []DictionaryTrainer
	codecs       []string
}

// ArchiveWithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func ArchiveWithLogger(logger *slog.Logger) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.logger = logger
	}
}

// ArchiveWithReporter sets the progress reporter.
// The reporter may be invoked concurrently and must be safe for concurrent use.
func ArchiveWithReporter(r ProgressReporter) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.reporter = r
	}
}

// ArchiveWithWorkers sets the number of files read and preprocessed
// concurrently. Values below one use runtime.GOMAXPROCS(0).
func ArchiveWithWorkers(n int) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.workers = n
	}
}

// ArchiveWithChunkSize sets the maximum number of encoded characters per
// chunk document. Zero uses the default of 50 000.
func ArchiveWithChunkSize(n int) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.chunkSize = n
	}
}

// ArchiveWithMaxPartBytes sets the maximum size of each multipart file.
// Zero uses the default of 8 MiB.
func ArchiveWithMaxPartBytes(n int) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.maxPartBytes = n
	}
}

// ArchiveWithOverwrite replaces chunk or part files left by an earlier run
// with the same prefix. Without it such files abort the run with
// ErrOutputExists.
func ArchiveWithOverwrite(overwrite bool) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.overwrite = overwrite
	}
}

// ArchiveWithExcludeDirs adds directory names to skip. Any path with a
// matching component is excluded.
func ArchiveWithExcludeDirs(names ...string) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.excludeDirs = append(cfg.excludeDirs, names...)
	}
}

// ArchiveWithExclude adds glob patterns matched against each file's base
// name and its slash-separated relative path. "**" matches across
// directories.
func ArchiveWithExclude(patterns ...string) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.exclude = append(cfg.exclude, patterns...)
	}
}

// ArchiveWithoutDefaultExcludes drops the built-in directory and glob
// exclusions (.git, node_modules, *.log and similar).
func ArchiveWithoutDefaultExcludes() ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.noDefaultExcludes = true
	}
}

// ArchiveWithInclude restricts the archive to the given relative files and
// directories.
func ArchiveWithInclude(paths ...string) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.include = append(cfg.include, paths...)
	}
}

// ArchiveWithMaxFileSize caps the size of binary files. A binary file of
// exactly n bytes is included. Zero uses DefaultMaxFileSize; negative
// disables the cap.
func ArchiveWithMaxFileSize(n int64) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.maxFileSize = n
	}
}

// ArchiveWithTextExtensions replaces the set of extensions treated as text.
func ArchiveWithTextExtensions(exts ...string) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.textExtensions = append([]string{}, exts...)
	}
}

// ArchiveWithNoDictionary disables dictionary training.
func ArchiveWithNoDictionary() ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.noDictionary = true
	}
}

// ArchiveWithDictionarySize sets the maximum trained dictionary size.
// Zero uses DefaultMaxDictSize.
func ArchiveWithDictionarySize(n int) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.dictSize = n
	}
}

// ArchiveWithDictionaryTrainers replaces the training strategies. They are
// tried in order and the first success wins. A run whose trainers all fail
// continues without a dictionary.
func ArchiveWithDictionaryTrainers(trainers ...DictionaryTrainer) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.trainers = append([]DictionaryTrainer{}, trainers...)
	}
}

// ArchiveWithCodecs restricts compression to the named codecs ("zstd-dict",
// "zstd", "brotli", "xz", "lz4"). Priority order is kept regardless of the
// argument order.
func ArchiveWithCodecs(names ...string) ArchiveOption {
	return func(cfg *archiveConfig) {
		cfg.codecs = append([]string{}, names...)
	}
}
