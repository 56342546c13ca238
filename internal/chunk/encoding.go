// Package chunk implements chunk-document mode: the payload is ascii85
// encoded, split into JSON chunk documents and described by a manifest.
package chunk

import (
	"encoding/ascii85"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/sizing"
)

// EncodingName is recorded in manifests.
const EncodingName = "ascii85"

// Encode returns the ascii85 text of data.
func Encode(data []byte) string {
	dst := make([]byte, ascii85.MaxEncodedLen(len(data)))
	n := ascii85.Encode(dst, data)
	return string(dst[:n])
}

// Decode reverses Encode. limit bounds the decoded size; zero disables it.
func Decode(text string, limit uint64) ([]byte, error) {
	out, err := sizing.ReadAllWithLimit(ascii85.NewDecoder(strings.NewReader(text)), limit)
	if err != nil {
		if errors.Is(err, parceltype.ErrSizeOverflow) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: ascii85: %v", parceltype.ErrCorruptPayload, err)
	}
	return out, nil
}

// EncodedLimit returns the longest text Encode can produce for n bytes.
// Zero stays zero, meaning no limit.
func EncodedLimit(n uint64) uint64 {
	if n > (math.MaxUint64-4)/5 {
		return math.MaxUint64
	}
	return (n + 3) / 4 * 5
}

// Split cuts text into slices of at most size characters. An empty text
// yields a single empty slice so every archive has at least one chunk.
func Split(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	out := make([]string, 0, (len(text)+size-1)/size)
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	return append(out, text)
}
