package payload

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/parcel/internal/codec"
	"github.com/meigma/parcel/internal/parceltype"
)

func testRecords() []Record {
	mtime := time.Unix(1_700_000_000, 123)
	return []Record{
		{Path: "src/b.js", Kind: parceltype.KindFile, Tag: parceltype.TypeText, Content: []byte("zlib-ish"), Digest: "sha256:bb", Size: 42, ModTime: mtime},
		{Path: "src", Kind: parceltype.KindDir, ModTime: mtime},
		{Path: "a.bin", Kind: parceltype.KindFile, Tag: parceltype.TypeBinary, Content: []byte{0, 1, 2}, Digest: "sha256:aa", Size: 3},
		{Path: "empty.txt", Kind: parceltype.KindFile, Tag: parceltype.TypeBinary, Content: []byte{}, Digest: "sha256:ee"},
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	in := testRecords()
	buf := EncodeRecords(in)
	require.True(t, IsRecordSet(buf))

	out, err := DecodeRecords(buf)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// Sorted by path, input untouched.
	assert.Equal(t, "src/b.js", in[0].Path)
	assert.Equal(t, []string{"a.bin", "empty.txt", "src", "src/b.js"},
		[]string{out[0].Path, out[1].Path, out[2].Path, out[3].Path})

	assert.Equal(t, parceltype.KindDir, out[2].Kind)
	assert.Empty(t, out[2].Content)
	assert.Empty(t, out[2].Digest)

	b := out[3]
	assert.Equal(t, parceltype.TypeText, b.Tag)
	assert.Equal(t, []byte("zlib-ish"), b.Content)
	assert.Equal(t, "sha256:bb", b.Digest)
	assert.Equal(t, uint64(42), b.Size)
	assert.True(t, b.ModTime.Equal(time.Unix(1_700_000_000, 123)))

	assert.True(t, out[0].ModTime.IsZero())
	assert.Empty(t, out[1].Content)
}

func TestEncodeRecordsDeterministic(t *testing.T) {
	t.Parallel()

	a := testRecords()
	b := testRecords()
	b[0], b[3] = b[3], b[0]
	assert.Equal(t, EncodeRecords(a), EncodeRecords(b))
}

func TestDecodeRecordsRejectsDuplicates(t *testing.T) {
	t.Parallel()

	recs := []Record{
		{Path: "x", Kind: parceltype.KindFile},
		{Path: "x", Kind: parceltype.KindFile},
	}
	_, err := DecodeRecords(EncodeRecords(recs))
	require.ErrorIs(t, err, parceltype.ErrCorruptPayload)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	valid := EncodeRecords(testRecords())
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 2, 3}},
		{"wrong identifier", append([]byte{8, 0, 0, 0}, []byte("NOPE0000")...)},
		{"truncated", valid[:len(valid)/3]},
		{"bad root offset", append([]byte{0xff, 0xff, 0xff, 0x7f}, valid[4:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.NotPanics(t, func() {
				_, err := DecodeRecords(tt.data)
				require.ErrorIs(t, err, parceltype.ErrCorruptPayload)
			})
			assert.NotPanics(t, func() {
				_, err := DecodeEnvelope(tt.data)
				require.ErrorIs(t, err, parceltype.ErrCorruptPayload)
			})
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	in := &Envelope{
		Version:    Version,
		Codec:      codec.NameZstdDict,
		Dictionary: []byte("dictionary bytes"),
		Body:       []byte("compressed body"),
		ArchiveID:  "6f1c2d9e-0000-4000-8000-000000000000",
	}
	out, err := DecodeEnvelope(EncodeEnvelope(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPackUnpack(t *testing.T) {
	t.Parallel()

	records := make([]Record, 0, 50)
	for i := range 50 {
		content := bytes.Repeat([]byte{byte('a' + i%26)}, 200+i)
		records = append(records, Record{
			Path:    string(rune('a'+i%26)) + "/file" + string(rune('0'+i%10)) + string(rune('A'+i/10)),
			Kind:    parceltype.KindFile,
			Content: content,
			Size:    uint64(len(content)),
		})
	}

	packed, err := Pack(context.Background(), codec.Default(), records, nil, "id-1")
	require.NoError(t, err)
	assert.NotEqual(t, codec.NameZstdDict, packed.Codec)
	assert.Zero(t, packed.DictionarySize)
	assert.Less(t, len(packed.Data), packed.RecordSetSize)

	un, err := Unpack(codec.Default(), packed.Data, 0)
	require.NoError(t, err)
	assert.Equal(t, packed.Codec, un.Codec)
	assert.Equal(t, "id-1", un.Envelope.ArchiveID)
	require.Len(t, un.Records, len(records))
}

func TestUnpackWithoutCodecName(t *testing.T) {
	t.Parallel()

	body := EncodeRecords(testRecords())
	lz, ok := codec.Lookup(codec.Default(), codec.NameLZ4)
	require.True(t, ok)
	compressed, err := lz.Encode(body, nil)
	require.NoError(t, err)

	data := EncodeEnvelope(&Envelope{Version: Version, Body: compressed})
	un, err := Unpack(codec.Default(), data, 0)
	require.NoError(t, err)
	assert.Equal(t, codec.NameLZ4, un.Codec)
	assert.Len(t, un.Records, 4)
}

func TestUnpackUnknownCodec(t *testing.T) {
	t.Parallel()

	data := EncodeEnvelope(&Envelope{Version: Version, Codec: "rar", Body: []byte("x")})
	_, err := Unpack(codec.Default(), data, 0)
	require.ErrorIs(t, err, parceltype.ErrCorruptPayload)
}
