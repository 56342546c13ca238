package fileops

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/parcel/internal/parceltype"
)

func TestWriteAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	n, err := WriteAtomic(target, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStreamAtomicFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	boom := errors.New("boom")

	_, err := StreamAtomic(target, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrackerRemoveAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var tr Tracker
	for _, name := range []string{"a", "b"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		tr.Add(p)
	}
	tr.Add(filepath.Join(dir, "never-created"))
	assert.Equal(t, 3, tr.Len())

	require.NoError(t, tr.RemoveAll())
	assert.Zero(t, tr.Len())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVerifyDigest(t *testing.T) {
	t.Parallel()

	data := []byte("content")
	d := Digest(data)
	assert.Equal(t, "sha256:ed7002b439e9ac845f22357d822bac1444730fbdb6016d3ec9432297b9ec9f73", d)

	require.NoError(t, VerifyDigest(d, data))
	require.ErrorIs(t, VerifyDigest(d, []byte("tampered")), parceltype.ErrValidation)
	require.ErrorIs(t, VerifyDigest("md5:abc", data), parceltype.ErrValidation)
	require.ErrorIs(t, VerifyDigest("", data), parceltype.ErrValidation)
}
