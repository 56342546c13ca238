package restore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/parcel/internal/fileops"
	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/preprocess"
	"github.com/meigma/parcel/internal/testutil"
)

func fileRecord(t *testing.T, path string, tag parceltype.TypeTag, raw []byte, mtime time.Time) Record {
	t.Helper()
	stored, err := preprocess.Apply(tag, raw)
	require.NoError(t, err)
	return Record{
		Path:    path,
		Kind:    parceltype.KindFile,
		Tag:     tag,
		Content: stored,
		Digest:  fileops.Digest(stored),
		Size:    uint64(len(raw)),
		ModTime: mtime,
	}
}

func sampleRecords(t *testing.T) []Record {
	t.Helper()
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{Path: "src", Kind: parceltype.KindDir, ModTime: mtime},
		{Path: "empty", Kind: parceltype.KindDir},
		fileRecord(t, "src/app.js", parceltype.TypeText, bytes.Repeat([]byte("let a = 1;\n"), 50), mtime),
		fileRecord(t, "logo.png", parceltype.TypeBinary, []byte{0x89, 'P', 'N', 'G'}, time.Time{}),
		fileRecord(t, "deep/nested/notes.md", parceltype.TypeText, []byte("# notes"), mtime),
	}
}

func TestRestoreWritesTree(t *testing.T) {
	t.Parallel()

	records := sampleRecords(t)
	r := New(WithWorkers(2))

	rep, err := r.Validate(context.Background(), records)
	require.NoError(t, err)
	assert.Zero(t, rep.Errors())
	assert.Len(t, rep.Files, 3)
	assert.Len(t, rep.Dirs, 2)

	out := filepath.Join(t.TempDir(), "restored")
	stats, err := r.Restore(context.Background(), out, rep)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Dirs)
	assert.Zero(t, stats.Errors)

	files, dirs := testutil.ReadTree(t, out)
	assert.Equal(t, bytes.Repeat([]byte("let a = 1;\n"), 50), files["src/app.js"])
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, files["logo.png"])
	assert.Equal(t, []byte("# notes"), files["deep/nested/notes.md"])
	assert.Equal(t, []string{"deep", "deep/nested", "empty", "src"}, dirs)

	info, err := os.Stat(filepath.Join(out, "src", "app.js"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	info, err = os.Stat(filepath.Join(out, "src"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestValidateRejectsTraversal(t *testing.T) {
	t.Parallel()

	records := append(sampleRecords(t), fileRecord(t, "../../etc/passwd", parceltype.TypeBinary, []byte("root"), time.Time{}))
	_, err := New().Validate(context.Background(), records)
	require.ErrorIs(t, err, parceltype.ErrPathTraversal)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	t.Parallel()

	records := []Record{
		fileRecord(t, "a/b.txt", parceltype.TypeBinary, []byte("1"), time.Time{}),
		fileRecord(t, "a//b.txt", parceltype.TypeBinary, []byte("2"), time.Time{}),
	}
	_, err := New().Validate(context.Background(), records)
	require.ErrorIs(t, err, parceltype.ErrCorruptPayload)
}

func TestValidateCountsMismatches(t *testing.T) {
	t.Parallel()

	records := sampleRecords(t)
	records[2].Content = append([]byte(nil), records[2].Content...)
	records[2].Content[0] ^= 0xff
	records[3].Size++

	rep, err := New().Validate(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Errors())
	assert.Equal(t, "logo.png", rep.Failures[0].Path)
	assert.Equal(t, "src/app.js", rep.Failures[1].Path)
	require.ErrorIs(t, rep.Failures[0].Err, parceltype.ErrValidation)
	require.ErrorIs(t, rep.Failures[1].Err, parceltype.ErrValidation)
}

func TestRestoreCountsFailures(t *testing.T) {
	t.Parallel()

	records := sampleRecords(t)
	records[3].Digest = fileops.Digest([]byte("something else"))

	r := New()
	rep, err := r.Validate(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Errors())

	out := t.TempDir()
	stats, err := r.Restore(context.Background(), out, rep)
	var vErr *parceltype.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, vErr.Count)
	assert.Equal(t, 2, stats.Files)
	assert.NoFileExists(t, filepath.Join(out, "logo.png"))
	assert.FileExists(t, filepath.Join(out, "src", "app.js"))
}

func TestRestoreForceWritesMismatched(t *testing.T) {
	t.Parallel()

	records := sampleRecords(t)
	records[3].Digest = fileops.Digest([]byte("something else"))

	r := New(WithForce(true))
	rep, err := r.Validate(context.Background(), records)
	require.NoError(t, err)

	out := t.TempDir()
	stats, err := r.Restore(context.Background(), out, rep)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.FileExists(t, filepath.Join(out, "logo.png"))
}

func TestRestoreRefusesNonEmpty(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	testutil.WriteTree(t, out, map[string][]byte{"keep.txt": []byte("mine")})

	r := New()
	rep, err := r.Validate(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	_, err = r.Restore(context.Background(), out, rep)
	require.ErrorIs(t, err, parceltype.ErrOutputExists)

	got, err := os.ReadFile(filepath.Join(out, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mine"), got)

	_, err = New(WithForce(true)).Restore(context.Background(), out, rep)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "keep.txt"))
	assert.FileExists(t, filepath.Join(out, "logo.png"))
}

func TestRestoreFatalRemovesCreatedDir(t *testing.T) {
	t.Parallel()

	r := New()
	rep, err := r.Validate(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "new")
	_, err = r.Restore(ctx, out, rep)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, out)
}

func TestRestoreFatalRemovesOwnOutputFromExistingDir(t *testing.T) {
	t.Parallel()

	records := []Record{
		{Path: "a", Kind: parceltype.KindDir},
		{Path: "a/b", Kind: parceltype.KindDir},
		{Path: strings.Repeat("n", 300), Kind: parceltype.KindDir},
	}
	r := New()
	rep, err := r.Validate(context.Background(), records)
	require.NoError(t, err)

	out := t.TempDir()
	_, err = r.Restore(context.Background(), out, rep)
	require.Error(t, err)
	assert.NotErrorIs(t, err, parceltype.ErrValidation)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreFatalKeepsExistingContent(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	testutil.WriteTree(t, out, map[string][]byte{
		"keep.txt":   []byte("mine"),
		"src/old.js": []byte("old"),
	})

	r := New(WithForce(true))
	rep, err := r.Validate(context.Background(), sampleRecords(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Restore(ctx, out, rep)
	require.ErrorIs(t, err, context.Canceled)

	files, dirs := testutil.ReadTree(t, out)
	assert.Equal(t, map[string][]byte{"keep.txt": []byte("mine"), "src/old.js": []byte("old")}, files)
	assert.Equal(t, []string{"src"}, dirs)
}

func TestRestoreFileDirConflictIsPerFile(t *testing.T) {
	t.Parallel()

	records := []Record{
		fileRecord(t, "a", parceltype.TypeBinary, []byte("file"), time.Time{}),
		{Path: "a/b", Kind: parceltype.KindDir},
		fileRecord(t, "c", parceltype.TypeBinary, []byte("ok"), time.Time{}),
	}
	r := New()
	rep, err := r.Validate(context.Background(), records)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "new")
	stats, err := r.Restore(context.Background(), out, rep)
	var vErr *parceltype.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, "a", stats.Failures[0].Path)
	assert.FileExists(t, filepath.Join(out, "c"))
}

func TestProgressReported(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		stages = map[parceltype.ProgressStage]int{}
	)
	reporter := parceltype.ProgressFunc(func(ev parceltype.ProgressEvent) {
		mu.Lock()
		stages[ev.Stage]++
		mu.Unlock()
		panic("reporter failures are swallowed")
	})

	r := New(WithReporter(reporter))
	rep, err := r.Validate(context.Background(), sampleRecords(t))
	require.NoError(t, err)
	_, err = r.Restore(context.Background(), filepath.Join(t.TempDir(), "out"), rep)
	require.NoError(t, err)

	assert.Equal(t, 3, stages[parceltype.StageValidating])
	assert.Equal(t, 3, stages[parceltype.StageRestoring])
}
