package payload

import (
	"context"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/parcel/internal/codec"
	"github.com/meigma/parcel/internal/fb"
	"github.com/meigma/parcel/internal/parceltype"
)

// Envelope is the decoded outer container of an archive payload.
type Envelope struct {
	Version uint32

	// Codec names the codec that compressed Body. Empty means unknown and
	// decoding falls back to trying every codec.
	Codec string

	// Dictionary is the optional zstd dictionary for Body.
	Dictionary []byte

	// Body is the compressed record set.
	Body []byte

	ArchiveID string
}

// EncodeEnvelope serializes e.
func EncodeEnvelope(e *Envelope) []byte {
	builder := flatbuffers.NewBuilder(len(e.Body) + len(e.Dictionary) + 256)

	bodyOffset := builder.CreateByteVector(e.Body)
	var dictOffset, codecOffset, idOffset flatbuffers.UOffsetT
	if len(e.Dictionary) > 0 {
		dictOffset = builder.CreateByteVector(e.Dictionary)
	}
	if e.Codec != "" {
		codecOffset = builder.CreateString(e.Codec)
	}
	if e.ArchiveID != "" {
		idOffset = builder.CreateString(e.ArchiveID)
	}

	fb.EnvelopeStart(builder)
	fb.EnvelopeAddVersion(builder, e.Version)
	if codecOffset != 0 {
		fb.EnvelopeAddCodec(builder, codecOffset)
	}
	if dictOffset != 0 {
		fb.EnvelopeAddDictionary(builder, dictOffset)
	}
	fb.EnvelopeAddBody(builder, bodyOffset)
	if idOffset != 0 {
		fb.EnvelopeAddArchiveId(builder, idOffset)
	}
	fb.FinishEnvelopeBuffer(builder, fb.EnvelopeEnd(builder))
	return builder.FinishedBytes()
}

// DecodeEnvelope parses an envelope. The returned slices alias buf.
func DecodeEnvelope(buf []byte) (env *Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			env = nil
			err = fmt.Errorf("%w: envelope: %v", parceltype.ErrCorruptPayload, r)
		}
	}()
	if !hasIdentifier(buf, fb.EnvelopeIdentifier) {
		return nil, fmt.Errorf("%w: missing envelope identifier", parceltype.ErrCorruptPayload)
	}

	root := fb.GetRootAsEnvelope(buf, 0)
	env = &Envelope{
		Version: root.Version(),
		// The dictionary is read before anything touches the body.
		Dictionary: root.DictionaryBytes(),
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", parceltype.ErrCorruptPayload, env.Version)
	}
	env.Codec = string(root.Codec())
	env.ArchiveID = string(root.ArchiveId())
	env.Body = root.BodyBytes()
	if len(env.Body) == 0 {
		return nil, fmt.Errorf("%w: empty envelope body", parceltype.ErrCorruptPayload)
	}
	return env, nil
}

// Packed is the result of Pack.
type Packed struct {
	// Data is the serialized envelope.
	Data []byte

	// Codec is the name of the winning codec.
	Codec string

	// RecordSetSize is the uncompressed record set size.
	RecordSetSize int

	// DictionarySize is the size of the shipped dictionary, zero if none.
	DictionarySize int

	Attempts []codec.Attempt
}

// Pack serializes records, compresses them with the cheapest codec in table
// and wraps the result in an envelope. The dictionary ships only when the
// winning codec depends on it.
func Pack(ctx context.Context, table []codec.Codec, records []Record, dict []byte, archiveID string) (*Packed, error) {
	body := EncodeRecords(records)
	res, err := codec.Smallest(ctx, table, body, dict)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Version:   Version,
		Codec:     res.Codec.Name(),
		Body:      res.Data,
		ArchiveID: archiveID,
	}
	if res.Codec.NeedsDict() {
		env.Dictionary = dict
	}
	return &Packed{
		Data:           EncodeEnvelope(env),
		Codec:          env.Codec,
		RecordSetSize:  len(body),
		DictionarySize: len(env.Dictionary),
		Attempts:       res.Attempts,
	}, nil
}

// Unpacked is the result of Unpack.
type Unpacked struct {
	Envelope *Envelope
	Records  []Record

	// Codec is the codec that decoded the body. It differs from
	// Envelope.Codec only when the envelope recorded none.
	Codec string
}

// Unpack reverses Pack. limit bounds the decompressed record set size; zero
// disables the bound.
func Unpack(table []codec.Codec, data []byte, limit uint64) (*Unpacked, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	var (
		used codec.Codec
		body []byte
	)
	if env.Codec == "" {
		used, body, err = codec.DecodeAny(table, env.Body, env.Dictionary, limit, IsRecordSet)
		if err != nil {
			return nil, err
		}
	} else {
		c, ok := codec.Lookup(table, env.Codec)
		if !ok {
			return nil, fmt.Errorf("%w: unknown codec %q", parceltype.ErrCorruptPayload, env.Codec)
		}
		body, err = c.Decode(env.Body, env.Dictionary, limit)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", parceltype.ErrCorruptPayload, env.Codec, err)
		}
		used = c
	}

	records, err := DecodeRecords(body)
	if err != nil {
		return nil, err
	}
	return &Unpacked{Envelope: env, Records: records, Codec: used.Name()}, nil
}
