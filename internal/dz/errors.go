package dz

import (
	"errors"
	"fmt"
)

// Sentinel errors for failures that carry no parameters. Parameterized
// failures below wrap these where it helps callers match broadly with
// errors.Is while still getting the details via errors.As.
var (
	// ErrBadMagic means the first four bytes of the main volume were not 'DTRZ'.
	ErrBadMagic = errors.New("bad archive magic")

	// ErrTruncated means a header table extended past the end of the metadata.
	ErrTruncated = errors.New("truncated archive")

	// ErrCancelled is returned when an operation stops at a cancellation check.
	ErrCancelled = errors.New("operation cancelled")
)

// UnsupportedVersionError reports a settings-structure version this
// implementation does not understand.
type UnsupportedVersionError struct {
	Version uint8
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported archive version %d (want %d)", e.Version, Version)
}

// TruncatedError wraps ErrTruncated with the table being read when the
// input ran out.
type TruncatedError struct {
	Section string
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated archive: unexpected end of input in %s", e.Section)
}

func (e *TruncatedError) Unwrap() error { return ErrTruncated }

// CorruptIndexError reports the first index-table invariant violation found
// while resolving the archive, naming the offending value.
type CorruptIndexError struct {
	Kind     string // what kind of index is out of range or inconsistent
	Offender int    // the offending value
	Limit    int    // the bound it violated, where one applies
}

func (e *CorruptIndexError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("corrupt index: %s %d out of range (limit %d)", e.Kind, e.Offender, e.Limit)
	}
	return fmt.Sprintf("corrupt index: %s (offender %d)", e.Kind, e.Offender)
}

// BadChunkFlagsError reports a chunk whose flag field selects zero or more
// than one compression method.
type BadChunkFlagsError struct {
	ChunkID int
	Flags   Flags
}

func (e *BadChunkFlagsError) Error() string {
	return fmt.Sprintf("chunk %d: bad flags %#04x: compression bits must name exactly one method", e.ChunkID, uint16(e.Flags))
}

// UnsupportedCodecError reports a chunk whose compression method has no
// registered codec.
type UnsupportedCodecError struct {
	ChunkID int
	Flag    Flags
}

func (e *UnsupportedCodecError) Error() string {
	return fmt.Sprintf("chunk %d: unsupported codec %s", e.ChunkID, e.Flag)
}

// CodecFailureError wraps a compression or decompression failure with the
// chunk it happened on.
type CodecFailureError struct {
	ChunkID int
	Err     error
}

func (e *CodecFailureError) Error() string {
	return fmt.Sprintf("chunk %d: codec failure: %v", e.ChunkID, e.Err)
}

func (e *CodecFailureError) Unwrap() error { return e.Err }

// PathTraversalError reports a logical path rejected before any I/O because
// it could escape the extraction root.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("unsafe path %q", e.Path)
}

// VolumeMissingError reports a chunk whose physical-file index names a
// volume the source does not have.
type VolumeMissingError struct {
	Index uint16
}

func (e *VolumeMissingError) Error() string {
	return fmt.Sprintf("archive volume %d missing", e.Index)
}

// SizeMismatchError reports a decompressed payload whose length differs from
// the chunk table's decompressed_length.
type SizeMismatchError struct {
	ChunkID  int
	Expected uint32
	Got      uint32
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("chunk %d: size mismatch: expected %d decompressed bytes, got %d", e.ChunkID, e.Expected, e.Got)
}
