package archive

import (
	"io"

	"github.com/ossyrian/dzip/internal/dz"
	"github.com/ossyrian/dzip/internal/model"
)

// ListEntry summarizes one user file of an archive.
type ListEntry struct {
	// Path is the sanitized forward-slash logical path.
	Path string

	// Size is the sum of the decompressed lengths of the file's chunks.
	// For files that share chunks or slice a combined-buffer stream this
	// overstates the true file size, which version 0 archives do not store.
	Size uint64

	// Chunks is the number of chunk references the file carries.
	Chunks int
}

// List parses the metadata at r and returns one entry per user file. Unlike
// Unpack it never needs payload access or expected file lengths, so it works
// on any archive whose tables are intact.
func List(r io.Reader) ([]ListEntry, error) {
	meta, err := dz.ReadMetadata(r)
	if err != nil {
		return nil, err
	}

	dirs := meta.Directories
	if len(dirs) == 0 {
		dirs = []string{""}
	}
	cleanDirs := make([]string, len(dirs))
	for i, d := range dirs {
		clean, err := model.SanitizePath(d)
		if err != nil {
			return nil, err
		}
		cleanDirs[i] = clean
	}

	entries := make([]ListEntry, len(meta.MapEntries))
	for i, e := range meta.MapEntries {
		if int(e.DirIndex) >= len(cleanDirs) {
			return nil, &dz.CorruptIndexError{Kind: "directory index", Offender: int(e.DirIndex), Limit: len(cleanDirs)}
		}
		name, err := model.SanitizePath(meta.UserFiles[i])
		if err != nil {
			return nil, err
		}
		var size uint64
		for _, id := range e.ChunkIDs {
			if int(id) >= len(meta.Chunks) {
				return nil, &dz.CorruptIndexError{Kind: "chunk index", Offender: int(id), Limit: len(meta.Chunks)}
			}
			size += uint64(meta.Chunks[id].DecompressedLength)
		}
		entries[i] = ListEntry{
			Path:   model.JoinLogical(cleanDirs[e.DirIndex], name),
			Size:   size,
			Chunks: len(e.ChunkIDs),
		}
	}
	return entries, nil
}
