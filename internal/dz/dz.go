// Package dz implements the on-disk DZ ("DTRZ") resource archive format:
// fixed-layout settings structs, string tables, the user-file to chunk
// mapping stream, and the chunk table. All multi-byte fields are
// little-endian with no padding; structures are read and written
// field-by-field and never rely on host struct layout.
package dz

// Magic identifies a DZ archive. It is the first four bytes of the main volume.
var Magic = [4]byte{'D', 'T', 'R', 'Z'}

const (
	// Version is the only settings-structure version this package understands.
	Version uint8 = 0

	// MapTerminator ends each user file's chunk list in the mapping stream.
	MapTerminator uint16 = 0xFFFF

	// Fixed on-disk sizes.
	ArchiveSettingsSize = 9
	ChunkSettingsSize   = 4
	ChunkEntrySize      = 16
	RangeSettingsSize   = 10
)

// ArchiveSettings is the 9-byte archive header: the 'DTRZ' magic, the
// user-file and directory counts, and the settings version byte.
type ArchiveSettings struct {
	NumUserFiles   uint16
	NumDirectories uint16
	Version        uint8
}

// ChunkSettings describes how the archive payload is physically stored.
type ChunkSettings struct {
	NumArchiveFiles uint16 // physical volumes, including the main file
	NumChunks       uint16
}

// Chunk is one 16-byte chunk table entry.
//
// CompressedLength is known to be unreliable in legacy archives; consumers
// recompute the effective payload size from neighboring offsets and treat
// this field as diagnostic only.
type Chunk struct {
	Offset             uint32
	CompressedLength   uint32
	DecompressedLength uint32
	Flags              Flags
	File               uint16 // physical volume index, 0 = main file
}

// RangeSettings is the 10-byte decoder settings block for the proprietary
// range coder (CHUNK_DZ). This implementation carries it opaquely: it is
// parsed, surfaced, and re-emitted, never interpreted.
type RangeSettings struct {
	WinSize            uint8
	Flags              uint8
	OffsetTableSize    uint8
	OffsetTables       uint8
	OffsetContexts     uint8
	RefLengthTableSize uint8
	RefLengthTables    uint8
	RefOffsetTableSize uint8
	RefOffsetTables    uint8
	BigMinMatch        uint8
}

// FileMapEntry is one user file's record in the mapping stream: the index of
// its directory followed by the chunk indices that make up its contents, in
// order of occurrence within the file.
type FileMapEntry struct {
	DirIndex uint16
	ChunkIDs []uint16
}

// Metadata is everything in the archive before the payload bytes.
type Metadata struct {
	Settings      ArchiveSettings
	UserFiles     []string
	Directories   []string
	MapEntries    []FileMapEntry
	ChunkSettings ChunkSettings
	Chunks        []Chunk
	SplitNames    []string       // extra volume names; index 0 (the main file) is unnamed
	Range         *RangeSettings // present only when some chunk carries FlagDZ
}
