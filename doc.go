//go:generate flatc --go --go-namespace fb -o internal schema/records.fbs schema/envelope.fbs

// Package parcel archives a project tree into a compact, verifiable set of
// files and restores it again.
//
// An archive run selects eligible files, applies a reversible type-aware
// transform to each one, serializes the records into a FlatBuffers payload
// and compresses it with whichever codec produces the smallest output. A
// zstd dictionary trained on the files themselves is tried alongside the
// plain codecs. The result is written in one of two layouts:
//
//   - Chunk documents: the payload is ascii85-encoded and split into JSON
//     documents named {prefix}_partNNN.cmpr, followed by a
//     {prefix}_manifest.json describing the archive.
//   - Multipart: the payload is sliced into raw {stem}_partN{suffix} files.
//     The sha256 checksum is returned to the caller and must be supplied
//     again on restore.
//
// # Quick Start
//
// Archive a directory as chunk documents:
//
//	res, err := parcel.Compress(ctx, "./myproject", "backup/myproject")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Manifest.Compression, len(res.Chunks))
//
// Restore it:
//
//	_, err = parcel.Decompress(ctx, "backup/myproject", "./restored")
//
// Restores validate every record before anything is written. Record paths
// are confined to the output directory; a record that escapes it aborts the
// run.
//
// # Progress
//
// Pass [ArchiveWithReporter] or [RestoreWithReporter] to observe the run.
// Reporters may be called concurrently. A panicking reporter does not affect
// the operation.
package parcel
