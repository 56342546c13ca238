// Package payload serializes archive records into FlatBuffers and wraps the
// compressed result in an envelope.
package payload

import (
	"fmt"
	"slices"
	"strings"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/parcel/internal/fb"
	"github.com/meigma/parcel/internal/parceltype"
)

// Version is the payload format version written to record sets and envelopes.
const Version = 1

// FlatBuffers file identifiers follow the root offset.
const (
	identifierOffset = flatbuffers.SizeUOffsetT
	identifierLength = 4
)

// Record is an alias for parceltype.Record.
type Record = parceltype.Record

// EncodeRecords serializes records sorted by path. The input slice is not
// modified.
func EncodeRecords(records []Record) []byte {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int { return strings.Compare(a.Path, b.Path) })

	size := 1024
	for i := range sorted {
		size += len(sorted[i].Content) + len(sorted[i].Path) + 128
	}
	builder := flatbuffers.NewBuilder(size)

	// Build records in reverse order (FlatBuffers requirement)
	offsets := make([]flatbuffers.UOffsetT, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		r := &sorted[i]

		pathOffset := builder.CreateString(r.Path)
		var hashOffset, contentOffset flatbuffers.UOffsetT
		if r.Digest != "" {
			hashOffset = builder.CreateString(r.Digest)
		}
		if !r.IsDir() {
			contentOffset = builder.CreateByteVector(r.Content)
		}

		var mtime int64
		if !r.ModTime.IsZero() {
			mtime = r.ModTime.UnixNano()
		}

		fb.RecordStart(builder)
		fb.RecordAddPath(builder, pathOffset)
		fb.RecordAddKind(builder, fb.Kind(r.Kind))
		fb.RecordAddTag(builder, fb.TypeTag(r.Tag))
		fb.RecordAddSize(builder, r.Size)
		fb.RecordAddMtimeNs(builder, mtime)
		if hashOffset != 0 {
			fb.RecordAddHash(builder, hashOffset)
		}
		if contentOffset != 0 {
			fb.RecordAddContent(builder, contentOffset)
		}
		offsets[i] = fb.RecordEnd(builder)
	}

	fb.RecordSetStartRecordsVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	recordsOffset := builder.EndVector(len(offsets))

	fb.RecordSetStart(builder)
	fb.RecordSetAddVersion(builder, Version)
	fb.RecordSetAddRecords(builder, recordsOffset)
	fb.FinishRecordSetBuffer(builder, fb.RecordSetEnd(builder))
	return builder.FinishedBytes()
}

// IsRecordSet reports whether buf carries the record set identifier.
func IsRecordSet(buf []byte) bool {
	return hasIdentifier(buf, fb.RecordSetIdentifier)
}

// DecodeRecords parses a serialized record set. Content slices alias buf.
func DecodeRecords(buf []byte) (records []Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("%w: record set: %v", parceltype.ErrCorruptPayload, r)
		}
	}()
	if !IsRecordSet(buf) {
		return nil, fmt.Errorf("%w: missing record set identifier", parceltype.ErrCorruptPayload)
	}

	set := fb.GetRootAsRecordSet(buf, 0)
	if v := set.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported record set version %d", parceltype.ErrCorruptPayload, v)
	}

	n := set.RecordsLength()
	records = make([]Record, 0, n)
	seen := make(map[string]struct{}, n)
	var rec fb.Record
	for i := range n {
		if !set.Records(&rec, i) {
			return nil, fmt.Errorf("%w: record %d unreadable", parceltype.ErrCorruptPayload, i)
		}
		r, err := decodeRecord(&rec)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", parceltype.ErrCorruptPayload, r.Path)
		}
		seen[r.Path] = struct{}{}
		records = append(records, r)
	}
	return records, nil
}

func decodeRecord(rec *fb.Record) (Record, error) {
	r := Record{
		Path:    string(rec.Path()),
		Size:    rec.Size(),
		Digest:  string(rec.Hash()),
		Content: rec.ContentBytes(),
	}
	if r.Path == "" {
		return Record{}, fmt.Errorf("%w: record without path", parceltype.ErrCorruptPayload)
	}

	switch rec.Kind() {
	case fb.KindFile:
		r.Kind = parceltype.KindFile
	case fb.KindDir:
		r.Kind = parceltype.KindDir
	default:
		return Record{}, fmt.Errorf("%w: %s: unknown kind %s", parceltype.ErrCorruptPayload, r.Path, rec.Kind())
	}

	switch rec.Tag() {
	case fb.TypeTagBinary:
		r.Tag = parceltype.TypeBinary
	case fb.TypeTagText:
		r.Tag = parceltype.TypeText
	default:
		return Record{}, fmt.Errorf("%w: %s: unknown type tag %s", parceltype.ErrCorruptPayload, r.Path, rec.Tag())
	}

	if ns := rec.MtimeNs(); ns != 0 {
		r.ModTime = time.Unix(0, ns)
	}
	return r, nil
}

func hasIdentifier(buf []byte, id string) bool {
	if len(buf) < identifierOffset+identifierLength {
		return false
	}
	return string(buf[identifierOffset:identifierOffset+identifierLength]) == id
}
