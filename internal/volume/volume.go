// Package volume abstracts the physical storage of a DZ archive behind
// index-addressed ports. The core references volumes only by index; mapping
// index 0 onto the main file and higher indices onto .dNN split files is the
// concern of the implementations here.
package volume

import (
	"fmt"
	"io"
	"strings"
)

// UnpackSource is positioned, concurrency-safe read access to the volumes of
// an existing archive. ReadAt may be called from multiple goroutines.
type UnpackSource interface {
	// VolumeCount returns the number of volumes available, including the
	// main file.
	VolumeCount() uint16

	// VolumeLength returns the byte length of one volume.
	VolumeLength(volume uint16) (uint64, error)

	// ReadAt reads exactly n bytes from the given volume at offset.
	ReadAt(volume uint16, offset uint64, n int) ([]byte, error)
}

// UnpackSink receives extracted user files. Logical paths crossing this
// boundary are pre-sanitized forward-slash paths; translating separators for
// the host is the sink's concern.
type UnpackSink interface {
	// CreateDir creates a directory and any missing parents. It is
	// idempotent.
	CreateDir(logicalPath string) error

	// CreateFile creates a user file for writing, creating parent
	// directories as needed.
	CreateFile(logicalPath string) (io.WriteCloser, error)

	// Finalize is called exactly once when the operation ends, whether it
	// succeeded, failed, or was cancelled, so the sink may commit or
	// discard partial output.
	Finalize() error
}

// PackSource is read access to the user files being packed. ReadRange may be
// called from multiple goroutines.
type PackSource interface {
	// FileLength returns the byte length of a source file.
	FileLength(logicalPath string) (uint64, error)

	// ReadRange reads exactly n bytes of a source file starting at offset.
	ReadRange(logicalPath string, offset uint64, n int) ([]byte, error)
}

// PackSink receives the volumes of an archive being written. A single writer
// owns the sink; only one volume is active at a time.
type PackSink interface {
	// OpenVolume makes volume i the active output and returns its
	// sequential writer. Volumes are opened in ascending order starting
	// at 0.
	OpenVolume(volume uint16) (io.Writer, error)

	// CurrentVolumeOffset returns the number of payload bytes written to
	// the active volume so far.
	CurrentVolumeOffset() uint64

	// VolumeName returns the name recorded in the archive for volume i.
	// Volume 0 is the main file and is unnamed in the metadata.
	VolumeName(volume uint16) string

	// Finalize commits the archive: the metadata bytes are placed at the
	// start of the main volume, ahead of the payload bytes written
	// through OpenVolume(0), and all volumes become visible atomically.
	Finalize(metadata []byte) error

	// Abort discards everything written so far. No partial volume
	// remains visible.
	Abort() error
}

// SplitVolumeName maps a main archive name and a volume index onto the split
// file name convention: name.dz, name.d01, name.d02, and so on.
func SplitVolumeName(mainName string, volume uint16) string {
	if volume == 0 {
		return mainName
	}
	base := mainName
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%s.d%02d", base, volume)
}

// MetadataReader adapts an UnpackSource volume to a sequential io.Reader for
// parsing the metadata region.
type MetadataReader struct {
	src    UnpackSource
	volume uint16
	offset uint64
}

// NewMetadataReader returns a sequential reader over one volume of src,
// starting at offset 0.
func NewMetadataReader(src UnpackSource, volume uint16) *MetadataReader {
	return &MetadataReader{src: src, volume: volume}
}

func (r *MetadataReader) Read(p []byte) (int, error) {
	length, err := r.src.VolumeLength(r.volume)
	if err != nil {
		return 0, err
	}
	if r.offset >= length {
		return 0, io.EOF
	}
	n := len(p)
	if remaining := length - r.offset; uint64(n) > remaining {
		n = int(remaining)
	}
	buf, err := r.src.ReadAt(r.volume, r.offset, n)
	if err != nil {
		return 0, err
	}
	copy(p, buf)
	r.offset += uint64(len(buf))
	return len(buf), nil
}
