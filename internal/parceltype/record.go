package parceltype

import "time"

// Kind distinguishes file records from directory records.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// TypeTag records which preprocessing transform was applied to a file.
type TypeTag uint8

const (
	// TypeBinary content is stored as read.
	TypeBinary TypeTag = iota

	// TypeText content was passed through the text pre-compression transform.
	TypeText
)

// String returns the human-readable name of the type tag.
func (t TypeTag) String() string {
	switch t {
	case TypeBinary:
		return "binary"
	case TypeText:
		return "text"
	default:
		return "unknown"
	}
}

// Record is a single file or directory in an archive.
type Record struct {
	// Path is the slash-separated path relative to the archive root.
	Path string

	// Kind is KindFile or KindDir.
	Kind Kind

	// Tag identifies the preprocessing transform applied to Content.
	Tag TypeTag

	// Content is the preprocessed file content. Empty for directories.
	Content []byte

	// Digest is the "sha256:<hex>" digest of Content. Empty for directories.
	Digest string

	// Size is the original (pre-transform) size in bytes.
	Size uint64

	// ModTime is the source modification time. The zero value means unknown.
	ModTime time.Time
}

// IsDir reports whether the record describes a directory.
func (r *Record) IsDir() bool { return r.Kind == KindDir }
