package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/meigma/parcel/internal/parceltype"
)

// ManifestVersion is the manifest format written by this package.
const ManifestVersion = "2.0"

// HashAlgorithm is the only digest algorithm used by archives.
const HashAlgorithm = "sha256"

// requiredFields must be present in every manifest.
var requiredFields = []string{
	"version",
	"original_size",
	"compressed_size",
	"file_count",
	"chunk_count",
	"hash_algorithm",
}

// Manifest describes a chunk-document archive.
type Manifest struct {
	Version string    `json:"version"`
	Created time.Time `json:"created"`

	// OriginalSize is the total size of the archived files before any
	// transform.
	OriginalSize uint64 `json:"original_size"`

	// CompressedSize is the size of the binary payload before encoding.
	CompressedSize uint64 `json:"compressed_size"`

	FileCount     int    `json:"file_count"`
	DirCount      int    `json:"dir_count"`
	SkippedFiles  int    `json:"skipped_files"`
	ChunkCount    int    `json:"chunk_count"`
	ChunkSize     int    `json:"chunk_size"`
	HashAlgorithm string `json:"hash_algorithm"`
	OutputPrefix  string `json:"output_prefix"`
	Compression   string `json:"compression"`
	Encoding      string `json:"encoding,omitempty"`
	ArchiveID     string `json:"archive_id,omitempty"`
}

// ManifestPath returns the manifest path for an output prefix.
func ManifestPath(prefix string) string {
	return prefix + "_manifest.json"
}

// ParseManifest decodes and validates a manifest document. path is only
// used in errors.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &parceltype.ManifestError{Path: path, Reason: "invalid JSON: " + err.Error()}
	}
	var missing []string
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &parceltype.ManifestError{Path: path, Reason: "missing required fields: " + strings.Join(missing, ", ")}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &parceltype.ManifestError{Path: path, Reason: err.Error()}
	}
	if !strings.EqualFold(m.HashAlgorithm, HashAlgorithm) {
		return nil, &parceltype.ManifestError{Path: path, Reason: fmt.Sprintf("unsupported hash algorithm %q", m.HashAlgorithm)}
	}
	if m.ChunkCount <= 0 {
		return nil, &parceltype.ManifestError{Path: path, Reason: fmt.Sprintf("invalid chunk count %d", m.ChunkCount)}
	}
	return &m, nil
}

// LoadManifest reads and validates the manifest at path. A missing file
// returns an error wrapping os.ErrNotExist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, &parceltype.ManifestError{Path: path, Reason: err.Error()}
	}
	return ParseManifest(path, data)
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
