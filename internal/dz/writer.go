package dz

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodedSize returns the number of bytes WriteMetadata will emit for m.
// Pack uses it once the payloads are written, to shift volume 0 chunk offsets
// past the metadata that precedes the payload in the main volume.
func (m *Metadata) EncodedSize() int {
	n := ArchiveSettingsSize
	for _, s := range m.UserFiles {
		n += len(s) + 1
	}
	for _, s := range m.Directories {
		n += len(s) + 1
	}
	for _, e := range m.MapEntries {
		n += 2 + 2*len(e.ChunkIDs) + 2
	}
	n += ChunkSettingsSize
	n += ChunkEntrySize * len(m.Chunks)
	for _, s := range m.SplitNames {
		n += len(s) + 1
	}
	if m.Range != nil {
		n += RangeSettingsSize
	}
	return n
}

// WriteMetadata serializes the archive metadata field-by-field in
// little-endian order with no padding. The counts in m.Settings and
// m.ChunkSettings must agree with the table slices.
func WriteMetadata(w io.Writer, m *Metadata) error {
	if err := checkCounts(m); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)

	if _, err := bw.Write(Magic[:]); err != nil {
		return fmt.Errorf("failed to write magic: %w", err)
	}
	if err := writeLE(bw, m.Settings.NumUserFiles); err != nil {
		return err
	}
	if err := writeLE(bw, m.Settings.NumDirectories); err != nil {
		return err
	}
	if err := writeLE(bw, m.Settings.Version); err != nil {
		return err
	}

	if err := writeStrings(bw, m.UserFiles); err != nil {
		return err
	}
	if err := writeStrings(bw, m.Directories); err != nil {
		return err
	}

	for _, e := range m.MapEntries {
		if err := writeLE(bw, e.DirIndex); err != nil {
			return err
		}
		for _, id := range e.ChunkIDs {
			if err := writeLE(bw, id); err != nil {
				return err
			}
		}
		if err := writeLE(bw, MapTerminator); err != nil {
			return err
		}
	}

	if err := writeLE(bw, m.ChunkSettings.NumArchiveFiles); err != nil {
		return err
	}
	if err := writeLE(bw, m.ChunkSettings.NumChunks); err != nil {
		return err
	}

	for _, c := range m.Chunks {
		if err := writeLE(bw, c.Offset); err != nil {
			return err
		}
		if err := writeLE(bw, c.CompressedLength); err != nil {
			return err
		}
		if err := writeLE(bw, c.DecompressedLength); err != nil {
			return err
		}
		if err := writeLE(bw, uint16(c.Flags)); err != nil {
			return err
		}
		if err := writeLE(bw, c.File); err != nil {
			return err
		}
	}

	if err := writeStrings(bw, m.SplitNames); err != nil {
		return err
	}

	if m.Range != nil {
		rs := m.Range
		for _, b := range []uint8{
			rs.WinSize, rs.Flags,
			rs.OffsetTableSize, rs.OffsetTables, rs.OffsetContexts,
			rs.RefLengthTableSize, rs.RefLengthTables,
			rs.RefOffsetTableSize, rs.RefOffsetTables,
			rs.BigMinMatch,
		} {
			if err := bw.WriteByte(b); err != nil {
				return fmt.Errorf("failed to write range settings: %w", err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush metadata: %w", err)
	}
	return nil
}

func checkCounts(m *Metadata) error {
	if int(m.Settings.NumUserFiles) != len(m.UserFiles) {
		return fmt.Errorf("user file count %d does not match %d names", m.Settings.NumUserFiles, len(m.UserFiles))
	}
	if int(m.Settings.NumDirectories) != len(m.Directories) {
		return fmt.Errorf("directory count %d does not match %d names", m.Settings.NumDirectories, len(m.Directories))
	}
	if len(m.MapEntries) != len(m.UserFiles) {
		return fmt.Errorf("mapping stream has %d entries for %d user files", len(m.MapEntries), len(m.UserFiles))
	}
	if int(m.ChunkSettings.NumChunks) != len(m.Chunks) {
		return fmt.Errorf("chunk count %d does not match %d entries", m.ChunkSettings.NumChunks, len(m.Chunks))
	}
	if int(m.ChunkSettings.NumArchiveFiles) != len(m.SplitNames)+1 {
		return fmt.Errorf("archive file count %d does not match %d split names", m.ChunkSettings.NumArchiveFiles, len(m.SplitNames))
	}
	return nil
}

func writeLE(w io.Writer, v any) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("failed to write metadata field: %w", err)
	}
	return nil
}

func writeStrings(bw *bufio.Writer, strs []string) error {
	for _, s := range strs {
		if _, err := bw.WriteString(s); err != nil {
			return fmt.Errorf("failed to write string table: %w", err)
		}
		if err := bw.WriteByte(0); err != nil {
			return fmt.Errorf("failed to write string table: %w", err)
		}
	}
	return nil
}
