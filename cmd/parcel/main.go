// Command parcel archives a project directory into verifiable chunk or part
// files and restores it again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meigma/parcel"
	"github.com/meigma/parcel/internal/config"
)

const defaultOutputPrefix = "compressed_project"

const usage = `usage:
  parcel compress [flags] <root>
  parcel decompress [flags] <pattern>

Run "parcel <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "compress":
		err = runCompress(ctx, args[1:], stdout, stderr)
	case "decompress":
		err = runDecompress(ctx, args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

var errUsage = errors.New("usage error")

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// setFlags returns the names of flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type compressFlags struct {
	output       string
	chunkSize    int
	maxPartBytes int
	maxFileSize  int64
	mode         string
	exclude      stringList
	excludeDirs  stringList
	include      stringList
	noDict       bool
	overwrite    bool
	workers      int
	configPath   string
	verbose      bool
}

func runCompress(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var f compressFlags
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.output, "o", defaultOutputPrefix, "output prefix (chunks) or destination file (parts)")
	fs.IntVar(&f.chunkSize, "c", 0, "maximum characters per chunk document (0 = 50000)")
	fs.IntVar(&f.maxPartBytes, "max-part-bytes", 0, "maximum bytes per part file (0 = 8 MiB)")
	fs.Int64Var(&f.maxFileSize, "max-file-size", 0, "skip binary files larger than this (0 = 10 MiB, -1 = no limit)")
	fs.StringVar(&f.mode, "mode", config.ModeChunks, "output layout: chunks or parts")
	fs.Var(&f.exclude, "exclude", "glob pattern to exclude (repeatable)")
	fs.Var(&f.excludeDirs, "exclude-dir", "directory name to exclude (repeatable)")
	fs.Var(&f.include, "include", "relative file or directory to include (repeatable)")
	fs.BoolVar(&f.noDict, "no-dict", false, "disable dictionary training")
	fs.BoolVar(&f.overwrite, "overwrite", false, "replace existing output for the same prefix")
	fs.IntVar(&f.workers, "workers", 0, "concurrent file workers (0 = GOMAXPROCS)")
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "compress requires exactly one root directory")
		fs.Usage()
		return errUsage
	}
	root := fs.Arg(0)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	mergeCompress(&f, cfg, setFlags(fs))
	if f.mode != config.ModeChunks && f.mode != config.ModeParts {
		return fmt.Errorf("invalid mode %q", f.mode)
	}

	logger := newLogger(stderr, f.verbose)
	opts := []parcel.ArchiveOption{
		parcel.ArchiveWithLogger(logger),
		parcel.ArchiveWithReporter(newReporter(logger)),
		parcel.ArchiveWithWorkers(f.workers),
		parcel.ArchiveWithChunkSize(f.chunkSize),
		parcel.ArchiveWithMaxPartBytes(f.maxPartBytes),
		parcel.ArchiveWithMaxFileSize(f.maxFileSize),
		parcel.ArchiveWithOverwrite(f.overwrite),
		parcel.ArchiveWithExclude(f.exclude...),
		parcel.ArchiveWithExcludeDirs(f.excludeDirs...),
		parcel.ArchiveWithInclude(f.include...),
	}
	if f.noDict {
		opts = append(opts, parcel.ArchiveWithNoDictionary())
	}
	if cfg.Compress.MaxDictSize > 0 {
		opts = append(opts, parcel.ArchiveWithDictionarySize(cfg.Compress.MaxDictSize))
	}
	if len(cfg.Compress.TextExtensions) > 0 {
		opts = append(opts, parcel.ArchiveWithTextExtensions(cfg.Compress.TextExtensions...))
	}

	if f.mode == config.ModeParts {
		res, err := parcel.CompressParts(ctx, root, f.output, opts...)
		if err != nil {
			return err
		}
		printArchiveStats(stdout, &res.ArchiveStats)
		fmt.Fprintln(stdout, "\nOutput files:")
		for _, p := range res.Parts {
			fmt.Fprintf(stdout, "- %s\n", p)
		}
		fmt.Fprintf(stdout, "\nChecksum (required to restore): %s\n", res.Checksum)
		return nil
	}

	res, err := parcel.Compress(ctx, root, f.output, opts...)
	if err != nil {
		return err
	}
	printArchiveStats(stdout, &res.ArchiveStats)
	fmt.Fprintln(stdout, "\nOutput files:")
	for _, p := range res.Chunks {
		fmt.Fprintf(stdout, "- %s\n", p)
	}
	fmt.Fprintf(stdout, "- %s\n", res.ManifestPath)
	return nil
}

// mergeCompress fills flags that were not given on the command line from
// the config file.
func mergeCompress(f *compressFlags, cfg *config.Config, set map[string]bool) {
	c := cfg.Compress
	if !set["o"] && c.Output != "" {
		f.output = c.Output
	}
	if !set["c"] && c.ChunkSize > 0 {
		f.chunkSize = c.ChunkSize
	}
	if !set["max-part-bytes"] && c.MaxPartBytes > 0 {
		f.maxPartBytes = c.MaxPartBytes
	}
	if !set["max-file-size"] && c.MaxFileSize > 0 {
		f.maxFileSize = int64(c.MaxFileSize) //nolint:gosec // config sizes are far below MaxInt64
	}
	if !set["mode"] && cfg.Mode != "" {
		f.mode = cfg.Mode
	}
	if !set["exclude"] {
		f.exclude = append(f.exclude, c.Exclude...)
	}
	if !set["exclude-dir"] {
		f.excludeDirs = append(f.excludeDirs, c.ExcludeDirs...)
	}
	if !set["include"] {
		f.include = append(f.include, c.Include...)
	}
	if !set["no-dict"] {
		f.noDict = c.NoDictionary
	}
	if !set["overwrite"] {
		f.overwrite = c.Overwrite
	}
	if !set["workers"] && cfg.Workers > 0 {
		f.workers = cfg.Workers
	}
	if !set["v"] {
		f.verbose = cfg.Verbose
	}
}

type decompressFlags struct {
	output     string
	verify     bool
	force      bool
	checksum   string
	mode       string
	workers    int
	configPath string
	verbose    bool
}

func runDecompress(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var f decompressFlags
	fs := flag.NewFlagSet("decompress", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.output, "o", "", "output directory (default {base}_restored)")
	fs.BoolVar(&f.verify, "verify", false, "verify integrity without writing files")
	fs.BoolVar(&f.force, "force", false, "restore into a non-empty directory and despite validation errors")
	fs.StringVar(&f.checksum, "checksum", "", "sha256 checksum printed by compress (parts mode)")
	fs.StringVar(&f.mode, "mode", config.ModeChunks, "input layout: chunks or parts")
	fs.IntVar(&f.workers, "workers", 0, "concurrent file workers (0 = GOMAXPROCS)")
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "decompress requires exactly one chunk pattern or part destination")
		fs.Usage()
		return errUsage
	}
	pattern := fs.Arg(0)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	mergeDecompress(&f, cfg, setFlags(fs))
	if f.output == "" {
		f.output = defaultRestoreDir(pattern, f.mode)
	}

	logger := newLogger(stderr, f.verbose)
	opts := []parcel.RestoreOption{
		parcel.RestoreWithLogger(logger),
		parcel.RestoreWithReporter(newReporter(logger)),
		parcel.RestoreWithWorkers(f.workers),
		parcel.RestoreWithForce(f.force),
		parcel.RestoreWithVerifyOnly(f.verify),
	}

	var res *parcel.RestoreResult
	switch f.mode {
	case config.ModeChunks:
		res, err = parcel.Decompress(ctx, pattern, f.output, opts...)
	case config.ModeParts:
		if f.checksum == "" {
			return errors.New("parts mode requires -checksum")
		}
		res, err = parcel.DecompressParts(ctx, pattern, f.checksum, f.output, opts...)
	default:
		return fmt.Errorf("invalid mode %q", f.mode)
	}
	if res != nil {
		printRestoreStats(stdout, res, f.output)
	}
	if err != nil {
		var valErr *parcel.ValidationError
		if errors.As(err, &valErr) && !f.force && !f.verify {
			return fmt.Errorf("%w (use -force to override)", err)
		}
		return err
	}
	return nil
}

func mergeDecompress(f *decompressFlags, cfg *config.Config, set map[string]bool) {
	if !set["o"] && cfg.Decompress.Output != "" {
		f.output = cfg.Decompress.Output
	}
	if !set["force"] {
		f.force = cfg.Decompress.Force
	}
	if !set["mode"] && cfg.Mode != "" {
		f.mode = cfg.Mode
	}
	if !set["workers"] && cfg.Workers > 0 {
		f.workers = cfg.Workers
	}
	if !set["v"] {
		f.verbose = cfg.Verbose
	}
}

// defaultRestoreDir derives "{base}_restored" from a chunk pattern or part
// destination.
func defaultRestoreDir(pattern, mode string) string {
	base := filepath.Base(pattern)
	if i := strings.Index(base, "_part"); i >= 0 {
		base = base[:i]
	} else if mode == config.ModeParts {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	base = strings.TrimRight(base, "*?[")
	if base == "" || base == "." {
		base = "parcel"
	}
	return filepath.Join(filepath.Dir(pattern), base+"_restored")
}

func printArchiveStats(w io.Writer, s *parcel.ArchiveStats) {
	fmt.Fprintln(w, "Archive complete:")
	fmt.Fprintf(w, "  Files:        %d\n", s.Files)
	fmt.Fprintf(w, "  Directories:  %d\n", s.Dirs)
	fmt.Fprintf(w, "  Skipped:      %d\n", s.Skipped)
	if s.Errors > 0 {
		fmt.Fprintf(w, "  Read errors:  %d\n", s.Errors)
	}
	fmt.Fprintf(w, "  Original:     %s\n", formatSize(s.OriginalSize))
	fmt.Fprintf(w, "  Payload:      %s\n", formatSize(uint64(s.PayloadSize))) //nolint:gosec // sizes are non-negative
	fmt.Fprintf(w, "  Compression:  %s\n", s.Codec)
	if s.DictionarySize > 0 {
		fmt.Fprintf(w, "  Dictionary:   %s\n", formatSize(uint64(s.DictionarySize))) //nolint:gosec // sizes are non-negative
	}
	fmt.Fprintf(w, "  Archive ID:   %s\n", s.ArchiveID)
}

func printRestoreStats(w io.Writer, res *parcel.RestoreResult, output string) {
	if res.Verified {
		fmt.Fprintln(w, "Verification complete:")
	} else {
		fmt.Fprintf(w, "Restore to %s complete:\n", output)
	}
	fmt.Fprintf(w, "  Files:        %d\n", res.Files)
	fmt.Fprintf(w, "  Directories:  %d\n", res.Dirs)
	fmt.Fprintf(w, "  Size:         %s\n", formatSize(res.Bytes))
	fmt.Fprintf(w, "  Compression:  %s\n", res.Codec)
	fmt.Fprintf(w, "  Errors:       %d\n", res.Errors)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "    %s: %v\n", f.Path, f.Err)
	}
}

// newReporter logs stage transitions and every tenth unit at debug level.
func newReporter(logger *slog.Logger) parcel.ProgressReporter {
	var (
		mu   sync.Mutex
		last = parcel.ProgressStage(255)
	)
	return parcel.ProgressFunc(func(ev parcel.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Stage != last {
			last = ev.Stage
			logger.Info(ev.Stage.String())
		}
		if ev.Total > 0 && (ev.Done == ev.Total || ev.Done%10 == 0) {
			logger.Debug("progress", "stage", ev.Stage.String(), "done", ev.Done, "total", ev.Total, "path", ev.Path)
		}
	})
}

// formatSize returns a human-readable size string.
func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
