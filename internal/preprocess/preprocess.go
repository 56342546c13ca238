// Package preprocess implements the reversible, type-aware transforms applied
// to file content before payload compression.
package preprocess

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/parcel/internal/parceltype"
	"github.com/meigma/parcel/internal/sizing"
)

// TypeTag is an alias for parceltype.TypeTag.
type TypeTag = parceltype.TypeTag

// Transform is a reversible content transform.
type Transform interface {
	Apply(raw []byte) ([]byte, error)
	Reverse(stored []byte, size uint64) ([]byte, error)
}

// transforms maps every type tag to its transform. The table is closed:
// a tag without an entry cannot be produced or restored.
var transforms = map[TypeTag]Transform{
	parceltype.TypeBinary: identity{},
	parceltype.TypeText:   zlibText{},
}

// For returns the transform for tag.
func For(tag TypeTag) (Transform, error) {
	t, ok := transforms[tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type tag %d", parceltype.ErrCorruptPayload, tag)
	}
	return t, nil
}

// Apply runs the transform for tag over raw.
func Apply(tag TypeTag, raw []byte) ([]byte, error) {
	t, err := For(tag)
	if err != nil {
		return nil, err
	}
	return t.Apply(raw)
}

// Reverse undoes the transform for tag. size is the expected original size;
// output larger than size is rejected.
func Reverse(tag TypeTag, stored []byte, size uint64) ([]byte, error) {
	t, err := For(tag)
	if err != nil {
		return nil, err
	}
	return t.Reverse(stored, size)
}

// DefaultTextExtensions lists extensions treated as text-like.
var DefaultTextExtensions = []string{
	".css", ".csv", ".html", ".js", ".json", ".jsx", ".md", ".prisma",
	".scss", ".ts", ".tsx", ".txt", ".xml", ".yaml", ".yml",
}

// Classifier decides the type tag for a path from its extension.
type Classifier struct {
	text map[string]struct{}
}

// NewClassifier returns a classifier for the given text extensions.
// Extensions are matched case-insensitively and may omit the leading dot.
func NewClassifier(exts []string) *Classifier {
	c := &Classifier{text: make(map[string]struct{}, len(exts))}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.text[ext] = struct{}{}
	}
	return c
}

// Classify returns TypeText for text-like extensions and TypeBinary otherwise.
func (c *Classifier) Classify(path string) TypeTag {
	if _, ok := c.text[strings.ToLower(filepath.Ext(path))]; ok {
		return parceltype.TypeText
	}
	return parceltype.TypeBinary
}

type identity struct{}

func (identity) Apply(raw []byte) ([]byte, error) { return raw, nil }

func (identity) Reverse(stored []byte, size uint64) ([]byte, error) {
	if uint64(len(stored)) != size {
		return nil, fmt.Errorf("%w: size mismatch (expected %d, got %d)", parceltype.ErrValidation, size, len(stored))
	}
	return stored, nil
}

// zlibText pre-compresses text at the highest zlib level. Redundant text
// compresses further and trains better dictionaries after this pass.
type zlibText struct{}

func (zlibText) Apply(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create zlib writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibText) Reverse(stored []byte, size uint64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", parceltype.ErrValidation, err)
	}
	defer zr.Close()

	out, err := sizing.ReadAtMost(zr, size)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %w", parceltype.ErrValidation, err)
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("%w: size mismatch (expected %d, got %d)", parceltype.ErrValidation, size, len(out))
	}
	return out, nil
}
