package parts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/parcel/internal/parceltype"
)

func payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

func TestName(t *testing.T) {
	t.Parallel()

	stem, suffix := Name("out/site.parcel")
	assert.Equal(t, "out/site", stem)
	assert.Equal(t, ".parcel", suffix)
	assert.Equal(t, "out/site_part3.parcel", PartPath("out/site.parcel", 3))
	assert.Equal(t, "bundle_part1", PartPath("bundle", 1))
}

func TestWriteRead(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "nested", "site.parcel")
	data := payload(2500)

	res, err := Write(dest, data, WriteOptions{MaxPartBytes: 1000})
	require.NoError(t, err)
	require.Len(t, res.Parts, 3)
	assert.Equal(t, uint64(2500), res.Size)
	assert.True(t, strings.HasPrefix(res.Checksum, "sha256:"))

	info, err := os.Stat(res.Parts[2])
	require.NoError(t, err)
	assert.Equal(t, int64(500), info.Size())

	paths, err := Locate(dest)
	require.NoError(t, err)
	assert.Equal(t, res.Parts, paths)

	got, err := Read(paths, res.Checksum, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Bare hex is accepted too.
	got, err = Read(paths, strings.TrimPrefix(res.Checksum, "sha256:"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadCorruptedByte(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "site.parcel")
	res, err := Write(dest, payload(3000), WriteOptions{MaxPartBytes: 1000})
	require.NoError(t, err)

	for i := range res.Parts {
		raw, err := os.ReadFile(res.Parts[i])
		require.NoError(t, err)
		raw[len(raw)/2] ^= 0x01
		require.NoError(t, os.WriteFile(res.Parts[i], raw, 0o644))

		_, err = Read(res.Parts, res.Checksum, 0, nil)
		var csErr *parceltype.ChecksumMismatchError
		require.ErrorAs(t, err, &csErr)
		require.ErrorIs(t, err, parceltype.ErrChecksumMismatch)
		assert.Equal(t, res.Checksum, csErr.Expected)
		assert.NotEqual(t, csErr.Expected, csErr.Actual)

		raw[len(raw)/2] ^= 0x01
		require.NoError(t, os.WriteFile(res.Parts[i], raw, 0o644))
	}
}

func TestLocateGap(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "site.parcel")
	res, err := Write(dest, payload(3000), WriteOptions{MaxPartBytes: 1000})
	require.NoError(t, err)
	require.NoError(t, os.Remove(res.Parts[1]))

	_, err = Locate(dest)
	var seqErr *parceltype.ChunkSequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, 2, seqErr.Expected)
	assert.Equal(t, 3, seqErr.Got)
}

func TestLocateNone(t *testing.T) {
	t.Parallel()

	_, err := Locate(filepath.Join(t.TempDir(), "site.parcel"))
	require.ErrorIs(t, err, parceltype.ErrNoParts)
}

func TestWriteExisting(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "site.parcel")
	_, err := Write(dest, payload(3000), WriteOptions{MaxPartBytes: 1000})
	require.NoError(t, err)

	_, err = Write(dest, payload(10), WriteOptions{MaxPartBytes: 1000})
	require.ErrorIs(t, err, parceltype.ErrOutputExists)

	res, err := Write(dest, payload(10), WriteOptions{MaxPartBytes: 1000, Overwrite: true})
	require.NoError(t, err)

	paths, err := Locate(dest)
	require.NoError(t, err)
	assert.Equal(t, res.Parts, paths)
	assert.Len(t, paths, 1)
}

func TestReadLimit(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "site.parcel")
	res, err := Write(dest, payload(3000), WriteOptions{MaxPartBytes: 1000})
	require.NoError(t, err)

	_, err = Read(res.Parts, res.Checksum, 2999, nil)
	require.ErrorIs(t, err, parceltype.ErrSizeOverflow)
}

func TestParseChecksum(t *testing.T) {
	t.Parallel()

	_, err := ParseChecksum("")
	require.Error(t, err)
	_, err = ParseChecksum("sha256:xyz")
	require.Error(t, err)

	d, err := ParseChecksum(" E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855 ")
	require.NoError(t, err)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.String())
}
