package dz

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ReadMetadata parses everything in a DZ archive before the payload bytes:
// the archive settings, both string tables, the mapping stream, the chunk
// settings and chunk table, the extra volume names, and the range-coder
// settings block when any chunk carries FlagDZ.
//
// Input is read through a buffer, so r may be consumed past the end of the
// metadata region. Payload offsets recorded in the chunk table are absolute
// within their volume, so callers re-read payloads through positioned reads
// rather than continuing from r.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	br := bufio.NewReader(r)
	m := &Metadata{}

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", ErrBadMagic)
	}
	if magic != Magic {
		return nil, fmt.Errorf("invalid archive magic %q: %w", magic, ErrBadMagic)
	}

	if err := readLE(br, "archive settings", &m.Settings.NumUserFiles); err != nil {
		return nil, err
	}
	if err := readLE(br, "archive settings", &m.Settings.NumDirectories); err != nil {
		return nil, err
	}
	if err := readLE(br, "archive settings", &m.Settings.Version); err != nil {
		return nil, err
	}
	if m.Settings.Version != Version {
		return nil, &UnsupportedVersionError{Version: m.Settings.Version}
	}

	var err error
	if m.UserFiles, err = readStrings(br, "user file list", int(m.Settings.NumUserFiles)); err != nil {
		return nil, err
	}
	if m.Directories, err = readStrings(br, "directory list", int(m.Settings.NumDirectories)); err != nil {
		return nil, err
	}

	m.MapEntries = make([]FileMapEntry, m.Settings.NumUserFiles)
	for i := range m.MapEntries {
		if err := readLE(br, "mapping stream", &m.MapEntries[i].DirIndex); err != nil {
			return nil, err
		}
		for {
			var v uint16
			if err := readLE(br, "mapping stream", &v); err != nil {
				return nil, err
			}
			if v == MapTerminator {
				break
			}
			m.MapEntries[i].ChunkIDs = append(m.MapEntries[i].ChunkIDs, v)
		}
	}

	if err := readLE(br, "chunk settings", &m.ChunkSettings.NumArchiveFiles); err != nil {
		return nil, err
	}
	if err := readLE(br, "chunk settings", &m.ChunkSettings.NumChunks); err != nil {
		return nil, err
	}

	m.Chunks = make([]Chunk, m.ChunkSettings.NumChunks)
	hasDZ := false
	for i := range m.Chunks {
		c := &m.Chunks[i]
		if err := readLE(br, "chunk table", &c.Offset); err != nil {
			return nil, err
		}
		if err := readLE(br, "chunk table", &c.CompressedLength); err != nil {
			return nil, err
		}
		if err := readLE(br, "chunk table", &c.DecompressedLength); err != nil {
			return nil, err
		}
		if err := readLE(br, "chunk table", &c.Flags); err != nil {
			return nil, err
		}
		if err := readLE(br, "chunk table", &c.File); err != nil {
			return nil, err
		}
		if _, err := c.Flags.Compression(); err != nil {
			return nil, &BadChunkFlagsError{ChunkID: i, Flags: c.Flags}
		}
		if c.Flags.Has(FlagDZ) {
			hasDZ = true
		}
	}

	if m.ChunkSettings.NumArchiveFiles > 1 {
		if m.SplitNames, err = readStrings(br, "volume name list", int(m.ChunkSettings.NumArchiveFiles)-1); err != nil {
			return nil, err
		}
	}

	if hasDZ {
		rs := &RangeSettings{}
		fields := []*uint8{
			&rs.WinSize, &rs.Flags,
			&rs.OffsetTableSize, &rs.OffsetTables, &rs.OffsetContexts,
			&rs.RefLengthTableSize, &rs.RefLengthTables,
			&rs.RefOffsetTableSize, &rs.RefOffsetTables,
			&rs.BigMinMatch,
		}
		for _, f := range fields {
			if err := readLE(br, "range settings", f); err != nil {
				return nil, err
			}
		}
		m.Range = rs
	}

	return m, nil
}

// readLE reads one little-endian value, mapping EOF onto a TruncatedError
// naming the table being read.
func readLE(r io.Reader, section string, v any) error {
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &TruncatedError{Section: section}
		}
		return fmt.Errorf("failed to read %s: %w", section, err)
	}
	return nil
}

// readStrings reads count null-terminated strings.
func readStrings(br *bufio.Reader, section string, count int) ([]string, error) {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, err := br.ReadString(0)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &TruncatedError{Section: section}
			}
			return nil, fmt.Errorf("failed to read %s: %w", section, err)
		}
		out = append(out, s[:len(s)-1])
	}
	return out, nil
}
