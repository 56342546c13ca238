package parcel

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/parcel/internal/chunk"
	"github.com/meigma/parcel/internal/codec"
	"github.com/meigma/parcel/internal/fileops"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/payload"
	"github.com/meigma/parcel/internal/preprocess"
	"github.com/meigma/parcel/internal/testutil"
)

// compressTree archives projectTree into at least three chunks and returns
// the prefix and result.
func compressTree(t *testing.T) (string, *ArchiveResult) {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, projectTree())
	prefix := filepath.Join(t.TempDir(), "project")
	res, err := Compress(context.Background(), src, prefix, ArchiveWithChunkSize(64))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Chunks), 3)
	return prefix, res
}

// writeRecords packs records directly and writes them as chunk documents,
// bypassing the selector.
func writeRecords(t *testing.T, records []payload.Record) string {
	t.Helper()
	packed, err := payload.Pack(context.Background(), codec.Default(), records, nil, "test-archive")
	require.NoError(t, err)
	prefix := filepath.Join(t.TempDir(), "crafted")
	_, err = chunk.Write(prefix, packed.Data, chunk.Manifest{
		Compression: packed.Codec,
		ArchiveID:   "test-archive",
		FileCount:   len(records),
	}, chunk.WriteOptions{})
	require.NoError(t, err)
	return prefix
}

func textRecord(t *testing.T, path, content string) payload.Record {
	t.Helper()
	stored, err := preprocess.Apply(parceltype.TypeText, []byte(content))
	require.NoError(t, err)
	return payload.Record{
		Path:    path,
		Kind:    parceltype.KindFile,
		Tag:     parceltype.TypeText,
		Content: stored,
		Digest:  fileops.Digest(stored),
		Size:    uint64(len(content)),
		ModTime: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func rewriteChunk(t *testing.T, path string, edit func(doc map[string]any)) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	edit(doc)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestDecompressWithGlobPattern(t *testing.T) {
	t.Parallel()

	prefix, res := compressTree(t)

	out := filepath.Join(t.TempDir(), "restored")
	rres, err := Decompress(context.Background(), prefix+"_part*.cmpr", out)
	require.NoError(t, err)
	assert.Equal(t, res.Files, rres.Files)

	files, _ := testutil.ReadTree(t, out)
	assert.Equal(t, archivedFiles(projectTree()), files)
}

func TestDecompressWithoutManifest(t *testing.T) {
	t.Parallel()

	prefix, res := compressTree(t)
	require.NoError(t, os.Remove(res.ManifestPath))

	out := filepath.Join(t.TempDir(), "restored")
	rres, err := Decompress(context.Background(), prefix, out)
	require.NoError(t, err)
	assert.Nil(t, rres.Manifest)
	assert.Equal(t, res.Files, rres.Files)
}

func TestDecompressChunkFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		corrupt func(t *testing.T, res *ArchiveResult)
		want    error
	}{
		{
			name: "missing last chunk",
			corrupt: func(t *testing.T, res *ArchiveResult) {
				require.NoError(t, os.Remove(res.Chunks[len(res.Chunks)-1]))
			},
			want: ErrChunkSequence,
		},
		{
			name: "chunks out of order",
			corrupt: func(t *testing.T, res *ArchiveResult) {
				first, err := os.ReadFile(res.Chunks[0])
				require.NoError(t, err)
				second, err := os.ReadFile(res.Chunks[1])
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(res.Chunks[0], second, 0o644))
				require.NoError(t, os.WriteFile(res.Chunks[1], first, 0o644))
			},
			want: ErrChunkSequence,
		},
		{
			name: "mismatched total",
			corrupt: func(t *testing.T, res *ArchiveResult) {
				rewriteChunk(t, res.Chunks[1], func(doc map[string]any) {
					doc["total_chunks"] = 99
				})
			},
			want: ErrChunkSequence,
		},
		{
			name: "chunk size mismatch",
			corrupt: func(t *testing.T, res *ArchiveResult) {
				rewriteChunk(t, res.Chunks[0], func(doc map[string]any) {
					doc["chunk_size"] = 1
				})
			},
			want: ErrChunkSequence,
		},
		{
			name: "foreign archive id",
			corrupt: func(t *testing.T, res *ArchiveResult) {
				rewriteChunk(t, res.Chunks[0], func(doc map[string]any) {
					doc["archive_id"] = "someone-else"
				})
			},
			want: ErrChunkSequence,
		},
		{
			name: "manifest missing field",
			corrupt: func(t *testing.T, res *ArchiveResult) {
				data, err := os.ReadFile(res.ManifestPath)
				require.NoError(t, err)
				var doc map[string]any
				require.NoError(t, json.Unmarshal(data, &doc))
				delete(doc, "hash_algorithm")
				data, err = json.Marshal(doc)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(res.ManifestPath, data, 0o644))
			},
			want: ErrManifest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prefix, res := compressTree(t)
			tt.corrupt(t, res)

			out := filepath.Join(t.TempDir(), "restored")
			_, err := Decompress(context.Background(), prefix, out)
			require.ErrorIs(t, err, tt.want)
			assert.NoDirExists(t, out)
		})
	}
}

func TestDecompressMissingChunkReportsSequenceError(t *testing.T) {
	t.Parallel()

	prefix, res := compressTree(t)
	require.NoError(t, os.Remove(res.Chunks[len(res.Chunks)-1]))

	_, err := Decompress(context.Background(), prefix, filepath.Join(t.TempDir(), "out"))
	var seqErr *ChunkSequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, len(res.Chunks), seqErr.Expected)
}

func TestDecompressNoChunks(t *testing.T) {
	t.Parallel()

	_, err := Decompress(context.Background(), filepath.Join(t.TempDir(), "nothing"), t.TempDir())
	require.ErrorIs(t, err, ErrNoParts)
}

func TestDecompressRejectsTraversalBeforeWriting(t *testing.T) {
	t.Parallel()

	prefix := writeRecords(t, []payload.Record{
		textRecord(t, "ok.txt", "fine"),
		textRecord(t, "../../etc/passwd", "root:x:0:0"),
	})

	out := filepath.Join(t.TempDir(), "restored")
	_, err := Decompress(context.Background(), prefix, out)

	var travErr *PathTraversalError
	require.ErrorAs(t, err, &travErr)
	assert.Equal(t, "../../etc/passwd", travErr.Path)
	assert.NoDirExists(t, out)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(out), "etc", "passwd"))
}

func TestDecompressLegacyAbsolutePath(t *testing.T) {
	t.Parallel()

	prefix := writeRecords(t, []payload.Record{
		textRecord(t, "/home/dev/project/src/main.ts", "export {};"),
	})

	out := filepath.Join(t.TempDir(), "restored")
	_, err := Decompress(context.Background(), prefix, out)
	require.NoError(t, err)

	files, _ := testutil.ReadTree(t, out)
	assert.Equal(t, map[string][]byte{"project/src/main.ts": []byte("export {};")}, files)
}

func TestDecompressValidationFailure(t *testing.T) {
	t.Parallel()

	bad := textRecord(t, "bad.txt", "will not verify")
	bad.Digest = fileops.Digest([]byte("something else"))
	records := []payload.Record{textRecord(t, "good.txt", "verified"), bad}

	t.Run("aborts before writing", func(t *testing.T) {
		t.Parallel()

		prefix := writeRecords(t, records)
		out := filepath.Join(t.TempDir(), "restored")
		res, err := Decompress(context.Background(), prefix, out)

		var valErr *ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, 1, valErr.Count)
		require.NotNil(t, res)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "bad.txt", res.Failures[0].Path)
		assert.NoDirExists(t, out)
	})

	t.Run("force writes and counts", func(t *testing.T) {
		t.Parallel()

		prefix := writeRecords(t, records)
		out := filepath.Join(t.TempDir(), "restored")
		res, err := Decompress(context.Background(), prefix, out, RestoreWithForce(true))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Errors)
		assert.Equal(t, 1, res.Files)

		files, _ := testutil.ReadTree(t, out)
		assert.Equal(t, []byte("verified"), files["good.txt"])
		assert.Equal(t, []byte("will not verify"), files["bad.txt"])
	})
}

func TestDecompressVerifyOnlyWritesNothing(t *testing.T) {
	t.Parallel()

	prefix, res := compressTree(t)

	out := filepath.Join(t.TempDir(), "restored")
	rres, err := Decompress(context.Background(), prefix, out, RestoreWithVerifyOnly(true))
	require.NoError(t, err)
	assert.True(t, rres.Verified)
	assert.Equal(t, res.Files, rres.Files)
	assert.Zero(t, rres.Errors)
	assert.NoDirExists(t, out)
}

func TestDecompressRefusesNonEmptyOutput(t *testing.T) {
	t.Parallel()

	prefix, _ := compressTree(t)
	out := t.TempDir()
	testutil.WriteTree(t, out, map[string][]byte{"keep.txt": []byte("keep")})

	_, err := Decompress(context.Background(), prefix, out)
	require.ErrorIs(t, err, ErrOutputExists)

	files, _ := testutil.ReadTree(t, out)
	assert.Equal(t, map[string][]byte{"keep.txt": []byte("keep")}, files)
}

func TestDecompressPartsRoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	tree := projectTree()
	testutil.WriteTree(t, src, tree)

	dest := filepath.Join(t.TempDir(), "bundle.bin")
	res, err := CompressParts(context.Background(), src, dest, ArchiveWithMaxPartBytes(128))
	require.NoError(t, err)
	assert.Greater(t, len(res.Parts), 1)
	assert.True(t, strings.HasPrefix(res.Checksum, "sha256:"))
	for i, p := range res.Parts {
		assert.Equal(t, filepath.Join(filepath.Dir(dest), "bundle_part"+strconv.Itoa(i+1)+".bin"), p)
	}

	bare := strings.TrimPrefix(res.Checksum, "sha256:")
	out := filepath.Join(t.TempDir(), "restored")
	rres, err := DecompressParts(context.Background(), dest, strings.ToUpper(bare), out)
	require.NoError(t, err)
	assert.Equal(t, res.Files, rres.Files)
	assert.Nil(t, rres.Manifest)

	files, _ := testutil.ReadTree(t, out)
	assert.Equal(t, archivedFiles(tree), files)
}

func TestDecompressPartsFailures(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (string, *PartsResult) {
		t.Helper()
		src := t.TempDir()
		testutil.WriteTree(t, src, projectTree())
		dest := filepath.Join(t.TempDir(), "bundle.bin")
		res, err := CompressParts(context.Background(), src, dest, ArchiveWithMaxPartBytes(128))
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(res.Parts), 3)
		return dest, res
	}

	t.Run("corrupted byte", func(t *testing.T) {
		t.Parallel()

		dest, res := setup(t)
		data, err := os.ReadFile(res.Parts[1])
		require.NoError(t, err)
		data[len(data)/2] ^= 0xFF
		require.NoError(t, os.WriteFile(res.Parts[1], data, 0o644))

		out := filepath.Join(t.TempDir(), "restored")
		_, err = DecompressParts(context.Background(), dest, res.Checksum, out)
		var sumErr *ChecksumMismatchError
		require.ErrorAs(t, err, &sumErr)
		assert.Equal(t, res.Checksum, sumErr.Expected)
		assert.NoDirExists(t, out)
	})

	t.Run("missing middle part", func(t *testing.T) {
		t.Parallel()

		dest, res := setup(t)
		require.NoError(t, os.Remove(res.Parts[1]))

		_, err := DecompressParts(context.Background(), dest, res.Checksum, filepath.Join(t.TempDir(), "out"))
		require.ErrorIs(t, err, ErrChunkSequence)
	})

	t.Run("payload limit", func(t *testing.T) {
		t.Parallel()

		dest, res := setup(t)
		_, err := DecompressParts(context.Background(), dest, res.Checksum, filepath.Join(t.TempDir(), "out"),
			RestoreWithMaxPayloadSize(16))
		require.ErrorIs(t, err, ErrSizeOverflow)
	})
}

func TestDecompressChunkPayloadLimit(t *testing.T) {
	t.Parallel()

	t.Run("with manifest", func(t *testing.T) {
		t.Parallel()

		prefix, _ := compressTree(t)
		out := filepath.Join(t.TempDir(), "out")
		_, err := Decompress(context.Background(), prefix, out, RestoreWithMaxPayloadSize(16))
		require.ErrorIs(t, err, ErrSizeOverflow)
		assert.NoDirExists(t, out)
	})

	t.Run("without manifest", func(t *testing.T) {
		t.Parallel()

		prefix, res := compressTree(t)
		require.NoError(t, os.Remove(res.ManifestPath))
		out := filepath.Join(t.TempDir(), "out")
		_, err := Decompress(context.Background(), prefix, out, RestoreWithMaxPayloadSize(16))
		require.ErrorIs(t, err, ErrSizeOverflow)
		assert.NoDirExists(t, out)
	})
}

func TestDecompressReportsProgress(t *testing.T) {
	t.Parallel()

	prefix, res := compressTree(t)

	var events []ProgressEvent
	reporter := ProgressFunc(func(ev ProgressEvent) {
		if ev.Stage == StageLoading {
			events = append(events, ev)
		}
		if ev.Stage == StageRestoring {
			panic("reporter bug")
		}
	})

	_, err := Decompress(context.Background(), prefix, filepath.Join(t.TempDir(), "out"),
		RestoreWithReporter(reporter), RestoreWithWorkers(1))
	require.NoError(t, err)
	require.Len(t, events, len(res.Chunks))
	last := events[len(events)-1]
	assert.Equal(t, len(res.Chunks), last.Done)
	assert.Equal(t, len(res.Chunks), last.Total)
}
