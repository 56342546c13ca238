package parcel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/meigma/parcel/internal/chunk"
	"github.com/meigma/parcel/internal/codec"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/parts"
	"github.com/meigma/parcel/internal/payload"
	"github.com/meigma/parcel/internal/restore"
)

// Failure is a per-file problem found while verifying or restoring.
type Failure = restore.Failure

// RestoreResult summarizes a restore or verification run.
type RestoreResult struct {
	// Files and Dirs count the records restored, or the records checked
	// when verifying only.
	Files int
	Dirs  int

	// Bytes is the total size of the restored files.
	Bytes uint64

	// Errors counts files that failed verification or could not be written.
	Errors int

	// Failures describes each file counted in Errors, sorted by path.
	Failures []Failure

	// Codec names the codec that decoded the payload.
	Codec string

	// ArchiveID is the id recorded in the payload, if any.
	ArchiveID string

	// Manifest is the loaded manifest. Nil in multipart mode or when the
	// archive had no manifest.
	Manifest *Manifest

	// Verified is true when the run stopped after verification.
	Verified bool
}

// Decompress restores chunk documents matching chunkPattern into outputDir.
// chunkPattern is a glob such as "backup/app_part*.cmpr" or, without glob
// metacharacters, the output prefix given to Compress. A manifest next to
// the first chunk is loaded when present and governs the expected chunk
// count.
//
// Every chunk and record is verified before anything is written. Records
// that fail verification abort the run with a ValidationError unless
// RestoreWithForce is set.
func Decompress(ctx context.Context, chunkPattern, outputDir string, opts ...RestoreOption) (*RestoreResult, error) {
	cfg := newRestoreConfig(opts)
	cfg.log().Info("restoring archive", "pattern", chunkPattern, "output", outputDir)

	loc, err := chunk.Locate(chunkPattern)
	if err != nil {
		return nil, err
	}

	man, err := loadManifest(cfg, loc.ManifestPath)
	if err != nil {
		return nil, err
	}
	if man != nil && man.ChunkCount != len(loc.Parts) {
		cfg.log().Warn("chunk count differs from manifest", "found", len(loc.Parts), "manifest", man.ChunkCount)
	}

	data, err := chunk.Combine(loc.Parts, man, cfg.payloadLimit(), cfg.onLoad)
	if err != nil {
		return nil, err
	}

	res, err := cfg.restorePayload(ctx, data, outputDir, man)
	if res != nil {
		res.Manifest = man
	}
	return res, err
}

// DecompressParts restores the multipart archive written for dest into
// outputDir. checksum is the value returned by CompressParts, either
// "sha256:<hex>" or bare hex.
func DecompressParts(ctx context.Context, dest, checksum, outputDir string, opts ...RestoreOption) (*RestoreResult, error) {
	cfg := newRestoreConfig(opts)
	cfg.log().Info("restoring multipart archive", "dest", dest, "output", outputDir)

	paths, err := parts.Locate(dest)
	if err != nil {
		return nil, err
	}
	data, err := parts.Read(paths, checksum, cfg.payloadLimit(), cfg.onLoad)
	if err != nil {
		return nil, err
	}
	return cfg.restorePayload(ctx, data, outputDir, nil)
}

func newRestoreConfig(opts []RestoreOption) *restoreConfig {
	cfg := &restoreConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (cfg *restoreConfig) onLoad(path string, done, total int) {
	parceltype.Report(cfg.reporter, ProgressEvent{Stage: StageLoading, Path: path, Done: done, Total: total})
}

// loadManifest loads the manifest at path. A missing manifest is not an
// error; an unusable one is.
func loadManifest(cfg *restoreConfig, path string) (*Manifest, error) {
	man, err := chunk.LoadManifest(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		cfg.log().Warn("manifest not found, using chunk count", "path", path)
		return nil, nil
	default:
		return nil, err
	}
	if man.Version != chunk.ManifestVersion {
		cfg.log().Warn("manifest version mismatch", "path", path, "version", man.Version, "expected", chunk.ManifestVersion)
	}
	return man, nil
}

// restorePayload decodes the payload, validates every record and, unless
// verifying only, writes the tree to outputDir.
func (cfg *restoreConfig) restorePayload(ctx context.Context, data []byte, outputDir string, man *Manifest) (*RestoreResult, error) {
	up, err := payload.Unpack(codec.Default(), data, cfg.payloadLimit())
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if man != nil && man.ArchiveID != "" && up.Envelope.ArchiveID != "" && man.ArchiveID != up.Envelope.ArchiveID {
		return nil, &ManifestError{
			Reason: fmt.Sprintf("archive id %s does not match payload archive id %s", man.ArchiveID, up.Envelope.ArchiveID),
		}
	}
	if man != nil && man.Compression != "" && man.Compression != up.Codec {
		cfg.log().Warn("payload codec differs from manifest", "manifest", man.Compression, "payload", up.Codec)
	}
	cfg.log().Debug("payload decoded", "codec", up.Codec, "records", len(up.Records))

	r := restore.New(
		restore.WithWorkers(cfg.workers),
		restore.WithForce(cfg.force),
		restore.WithLogger(cfg.logger),
		restore.WithReporter(cfg.reporter),
	)
	rep, err := r.Validate(ctx, up.Records)
	if err != nil {
		return nil, err
	}

	res := &RestoreResult{
		Files:     len(rep.Files),
		Dirs:      len(rep.Dirs),
		Bytes:     rep.Bytes,
		Errors:    rep.Errors(),
		Failures:  rep.Failures,
		Codec:     up.Codec,
		ArchiveID: up.Envelope.ArchiveID,
	}

	if cfg.verifyOnly {
		res.Verified = true
		cfg.log().Info("verification complete", "files", res.Files, "dirs", res.Dirs, "errors", res.Errors)
		if res.Errors > 0 {
			return res, &ValidationError{Count: res.Errors}
		}
		return res, nil
	}
	if res.Errors > 0 && !cfg.force {
		return res, &ValidationError{Count: res.Errors}
	}

	stats, err := r.Restore(ctx, outputDir, rep)
	if stats == nil {
		return nil, err
	}
	res.Files = stats.Files
	res.Dirs = stats.Dirs
	res.Bytes = stats.Bytes
	res.Errors = stats.Errors
	res.Failures = stats.Failures
	if err != nil {
		return res, err
	}

	cfg.log().Info("archive restored", "files", res.Files, "dirs", res.Dirs, "errors", res.Errors)
	return res, nil
}
