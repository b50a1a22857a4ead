package config

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
)

// Document is the TOML description of an archive's layout. Unpack emits one
// next to the extracted files; pack consumes one to rebuild the archive.
type Document struct {
	Archive      ArchiveInfo  `toml:"archive"`
	ArchiveFiles []string     `toml:"archive_files,omitempty"`
	Range        *RangeInfo   `toml:"range_settings,omitempty"`
	Files        []FileRecord `toml:"files"`
	Chunks       []ChunkRecord `toml:"chunks"`
}

// ArchiveInfo carries the archive-wide counts and version.
type ArchiveInfo struct {
	Version          uint8  `toml:"version"`
	TotalFiles       uint16 `toml:"total_files"`
	TotalDirectories uint16 `toml:"total_directories"`
	TotalChunks      uint16 `toml:"total_chunks"`
}

// RangeInfo mirrors the opaque 10-byte range-coder settings block so a
// repack can re-emit it unchanged.
type RangeInfo struct {
	WinSize            uint8 `toml:"win_size"`
	Flags              uint8 `toml:"flags"`
	OffsetTableSize    uint8 `toml:"offset_table_size"`
	OffsetTables       uint8 `toml:"offset_tables"`
	OffsetContexts     uint8 `toml:"offset_contexts"`
	RefLengthTableSize uint8 `toml:"ref_length_table_size"`
	RefLengthTables    uint8 `toml:"ref_length_tables"`
	RefOffsetTableSize uint8 `toml:"ref_offset_table_size"`
	RefOffsetTables    uint8 `toml:"ref_offset_tables"`
	BigMinMatch        uint8 `toml:"big_min_match"`
}

// FileRecord describes one user file. Size is the file's decompressed byte
// length; pack needs it to slice source data into chunks, and it is what
// makes shared-chunk boundaries recoverable on a later unpack.
type FileRecord struct {
	Path      string   `toml:"path"`
	Directory string   `toml:"directory"`
	Filename  string   `toml:"filename"`
	Size      uint64   `toml:"size"`
	Chunks    []uint16 `toml:"chunks"`
}

// ChunkRecord describes one chunk table entry. Offset and SizeCompressed
// are diagnostic on the pack side; the writer assigns fresh values.
type ChunkRecord struct {
	ID               uint16   `toml:"id"`
	Offset           uint32   `toml:"offset"`
	SizeCompressed   uint32   `toml:"size_compressed"`
	SizeDecompressed uint32   `toml:"size_decompressed"`
	Flags            []string `toml:"flags"`
	ArchiveFileIndex uint16   `toml:"archive_file_index"`
}

// LoadDocument parses a TOML archive description.
func LoadDocument(r io.Reader) (*Document, error) {
	doc := &Document{}
	if err := toml.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to parse archive config: %w", err)
	}
	return doc, nil
}

// Save writes the document as TOML.
func (d *Document) Save(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(d); err != nil {
		return fmt.Errorf("failed to write archive config: %w", err)
	}
	return nil
}
