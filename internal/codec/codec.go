// Package codec implements the payload compression strategies and the
// smallest-output selection between them.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/sizing"
)

// Codec names as recorded in manifests and envelopes.
const (
	NameZstdDict = "zstd-dict"
	NameZstd     = "zstd"
	NameBrotli   = "brotli"
	NameXZ       = "xz"
	NameLZ4      = "lz4"
)

// Codec is one compression strategy.
type Codec interface {
	// Name identifies the codec in manifests and envelopes.
	Name() string

	// NeedsDict reports whether the codec only runs with a dictionary.
	NeedsDict() bool

	// Encode compresses src. dict is ignored by codecs that don't use one.
	Encode(src, dict []byte) ([]byte, error)

	// Decode decompresses src. Output larger than limit bytes is an error;
	// a zero limit disables the check.
	Decode(src, dict []byte, limit uint64) ([]byte, error)
}

// Default returns the strategy table in priority order. Earlier entries win
// ties in Smallest and are tried first by DecodeAny.
func Default() []Codec {
	return []Codec{
		zstdCodec{dict: true},
		zstdCodec{},
		brotliCodec{},
		xzCodec{},
		lz4Codec{},
	}
}

// Lookup returns the codec in table with the given name.
func Lookup(table []Codec, name string) (Codec, bool) {
	for _, c := range table {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

type zstdCodec struct {
	dict bool
}

func (c zstdCodec) Name() string {
	if c.dict {
		return NameZstdDict
	}
	return NameZstd
}

func (c zstdCodec) NeedsDict() bool { return c.dict }

func (c zstdCodec) Encode(src, dict []byte) ([]byte, error) {
	opts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderConcurrency(1),
	}
	if c.dict {
		if len(dict) == 0 {
			return nil, fmt.Errorf("%s: no dictionary", c.Name())
		}
		opts = append(opts, zstd.WithEncoderDict(dict))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func (c zstdCodec) Decode(src, dict []byte, limit uint64) ([]byte, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if limit > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(limit))
	}
	if c.dict {
		if len(dict) == 0 {
			return nil, fmt.Errorf("%s: no dictionary", c.Name())
		}
		opts = append(opts, zstd.WithDecoderDicts(dict))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(src, nil)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
		return nil, fmt.Errorf("%w: %v", parceltype.ErrSizeOverflow, err)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && uint64(len(out)) > limit {
		return nil, parceltype.ErrSizeOverflow
	}
	return out, nil
}

type brotliCodec struct{}

func (brotliCodec) Name() string    { return NameBrotli }
func (brotliCodec) NeedsDict() bool { return false }

func (brotliCodec) Encode(src, _ []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	return finish(&buf, w, src)
}

func (brotliCodec) Decode(src, _ []byte, limit uint64) ([]byte, error) {
	return sizing.ReadAllWithLimit(brotli.NewReader(bytes.NewReader(src)), limit)
}

type xzCodec struct{}

func (xzCodec) Name() string    { return NameXZ }
func (xzCodec) NeedsDict() bool { return false }

func (xzCodec) Encode(src, _ []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create xz writer: %w", err)
	}
	return finish(&buf, w, src)
}

func (xzCodec) Decode(src, _ []byte, limit uint64) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	return sizing.ReadAllWithLimit(r, limit)
}

type lz4Codec struct{}

func (lz4Codec) Name() string    { return NameLZ4 }
func (lz4Codec) NeedsDict() bool { return false }

func (lz4Codec) Encode(src, _ []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
		return nil, fmt.Errorf("configure lz4 writer: %w", err)
	}
	return finish(&buf, w, src)
}

func (lz4Codec) Decode(src, _ []byte, limit uint64) ([]byte, error) {
	return sizing.ReadAllWithLimit(lz4.NewReader(bytes.NewReader(src)), limit)
}

// finish writes src through w, closes it and returns the buffered output.
func finish(buf *bytes.Buffer, w io.WriteCloser, src []byte) ([]byte, error) {
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
