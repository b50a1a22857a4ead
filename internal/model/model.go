// Package model builds the in-memory representation of a DZ archive: which
// chunks make up which user files, how shared and combined-buffer chunks are
// sliced between files, and whether the parsed tables satisfy the format's
// index invariants.
package model

import (
	"fmt"
	"sort"

	"github.com/ossyrian/dzip/internal/dz"
)

// Consumer records that bytes [ChunkStart, ChunkEnd) of a chunk's
// decompressed data land at offset FileStart of user file FileIndex.
type Consumer struct {
	FileIndex  int
	ChunkStart uint64
	ChunkEnd   uint64
	FileStart  uint64
}

// ChunkPlan is the resolved view of one chunk table entry.
type ChunkPlan struct {
	ID                     int
	Volume                 uint16
	Offset                 uint64
	RawCompressedLen       uint32
	EffectiveCompressedLen uint32
	DecompressedLen        uint32
	Flags                  dz.Flags
	Consumers              []Consumer
}

// ResolvedFile is the resolved view of one user file.
type ResolvedFile struct {
	DirIndex       int
	Name           string
	LogicalPath    string
	ChunkRefs      []int
	ExpectedLength uint64
}

// Model is the fully resolved archive. After Resolve returns, only
// ComputeEffectiveLengths modifies it, filling in each chunk's effective
// compressed length.
type Model struct {
	Files       []ResolvedFile
	Directories []string
	Chunks      []ChunkPlan
	Warnings    []string
}

// Resolve walks the parsed metadata tables, validates the index invariants,
// and builds the file and chunk views.
//
// expected optionally supplies each user file's decompressed length. Version
// 0 archives do not store file lengths, so when a chunk is shared between
// files (or a combined-buffer stream is split mid-chunk) the byte boundaries
// are only recoverable with expected lengths supplied, typically from the
// config document of a previous unpack. Without them, archives in which no
// chunk is shared between files resolve fine as long as combined-buffer
// references follow stream order; a shared chunk fails with a corrupt-index
// error naming the chunk.
func Resolve(meta *dz.Metadata, expected []uint64) (*Model, error) {
	numFiles := len(meta.MapEntries)
	numChunks := len(meta.Chunks)

	if numFiles < 1 {
		return nil, &dz.CorruptIndexError{Kind: "user file count", Offender: numFiles}
	}
	if expected != nil && len(expected) != numFiles {
		return nil, fmt.Errorf("expected %d file lengths, got %d", numFiles, len(expected))
	}

	m := &Model{}

	dirs := meta.Directories
	if len(dirs) == 0 {
		dirs = []string{""}
		m.Warnings = append(m.Warnings, "archive stores no directories; synthesized empty root directory")
	}
	m.Directories = make([]string, len(dirs))
	for i, d := range dirs {
		clean, err := SanitizePath(d)
		if err != nil {
			return nil, err
		}
		m.Directories[i] = clean
	}

	m.Chunks = make([]ChunkPlan, numChunks)
	for i, c := range meta.Chunks {
		if int(c.File) >= int(meta.ChunkSettings.NumArchiveFiles) {
			return nil, &dz.CorruptIndexError{Kind: "archive file index", Offender: int(c.File), Limit: int(meta.ChunkSettings.NumArchiveFiles)}
		}
		m.Chunks[i] = ChunkPlan{
			ID:               i,
			Volume:           c.File,
			Offset:           uint64(c.Offset),
			RawCompressedLen: c.CompressedLength,
			DecompressedLen:  c.DecompressedLength,
			Flags:            c.Flags,
		}
	}

	m.Files = make([]ResolvedFile, numFiles)
	consumers := make([][]int, numChunks)
	for i, entry := range meta.MapEntries {
		if int(entry.DirIndex) >= len(m.Directories) {
			return nil, &dz.CorruptIndexError{Kind: "directory index", Offender: int(entry.DirIndex), Limit: len(m.Directories)}
		}
		name, err := SanitizePath(meta.UserFiles[i])
		if err != nil {
			return nil, err
		}
		refs := make([]int, len(entry.ChunkIDs))
		for j, id := range entry.ChunkIDs {
			if int(id) >= numChunks {
				return nil, &dz.CorruptIndexError{Kind: "chunk index", Offender: int(id), Limit: numChunks}
			}
			refs[j] = int(id)
			consumers[id] = append(consumers[id], i)
		}
		m.Files[i] = ResolvedFile{
			DirIndex:    int(entry.DirIndex),
			Name:        name,
			LogicalPath: JoinLogical(m.Directories[entry.DirIndex], name),
			ChunkRefs:   refs,
		}
	}

	// Shared chunks must be consumed by a contiguous run of files.
	for cid, files := range consumers {
		for j := 1; j < len(files); j++ {
			if files[j] != files[j-1]+1 {
				return nil, &dz.CorruptIndexError{Kind: "shared chunk consumers", Offender: cid}
			}
		}
	}

	combufIDs, streamOffsets, streamLen := combufStream(m.Chunks)

	if expected == nil {
		for cid, files := range consumers {
			if len(files) > 1 {
				return nil, &dz.CorruptIndexError{Kind: "shared chunk without known file lengths", Offender: cid}
			}
		}
	}

	if err := assignConsumers(m, meta, consumers, expected, combufIDs, streamOffsets, streamLen); err != nil {
		return nil, err
	}

	return m, nil
}

// combufStream returns the combined-buffer chunk ids in index order, each
// chunk's offset within the logical concatenated stream, and the stream's
// total decompressed length.
func combufStream(chunks []ChunkPlan) ([]int, map[int]uint64, uint64) {
	var ids []int
	offsets := make(map[int]uint64)
	var total uint64
	for i := range chunks {
		if chunks[i].Flags.Has(dz.FlagCombuf) {
			ids = append(ids, i)
			offsets[i] = total
			total += uint64(chunks[i].DecompressedLen)
		}
	}
	return ids, offsets, total
}

// assignConsumers walks every file's chunk references in order, assigning
// each reference a byte range of its chunk and a position in the file.
// Shared chunks give each non-final consumer exactly the bytes the file
// still needs; the final consumer takes the remainder. Combined-buffer
// chunks are consumed from a single cursor over the concatenated stream, so
// one reference may slice across several chunks.
func assignConsumers(m *Model, meta *dz.Metadata, consumers [][]int, expected []uint64, combufIDs []int, streamOffsets map[int]uint64, streamLen uint64) error {
	assigned := make([]uint64, len(m.Files))
	consumed := make([]uint64, len(m.Chunks))
	var streamCursor uint64
	streamUsed := false

	for i := range m.Files {
		refs := m.Files[i].ChunkRefs
		combufDone := false
		for ri, cid := range refs {
			plan := &m.Chunks[cid]
			dlen := uint64(plan.DecompressedLen)
			switch {
			case plan.Flags.Has(dz.FlagCombuf):
				streamUsed = true
				if expected == nil {
					// Every chunk is solo here; the reference must line
					// up with the stream cursor or the boundaries are
					// unrecoverable.
					if streamCursor != streamOffsets[cid] {
						return &dz.CorruptIndexError{Kind: "combuf reference out of stream order", Offender: cid}
					}
					plan.Consumers = append(plan.Consumers, Consumer{
						FileIndex: i, ChunkStart: 0, ChunkEnd: dlen, FileStart: assigned[i],
					})
					streamCursor += dlen
					assigned[i] += dlen
					continue
				}
				if combufDone {
					continue
				}
				combufDone = true
				rem, err := remainingSolo(m, consumers, refs[ri+1:])
				if err != nil {
					return err
				}
				if expected[i] < assigned[i]+rem {
					return &dz.CorruptIndexError{Kind: "file length mismatch", Offender: i}
				}
				take := expected[i] - assigned[i] - rem
				if streamCursor+take > streamLen {
					return &dz.CorruptIndexError{Kind: "combuf stream overrun", Offender: cid}
				}
				if err := sliceStream(m, combufIDs, streamOffsets, streamCursor, take, i, assigned[i]); err != nil {
					return err
				}
				assigned[i] += take
				streamCursor += take

			case len(consumers[cid]) <= 1:
				plan.Consumers = append(plan.Consumers, Consumer{
					FileIndex: i, ChunkStart: 0, ChunkEnd: dlen, FileStart: assigned[i],
				})
				consumed[cid] = dlen
				assigned[i] += dlen

			default:
				pos := consumerPos(consumers[cid], i)
				var take uint64
				if pos == len(consumers[cid])-1 {
					take = dlen - consumed[cid]
				} else {
					// A shared chunk spans into the next file, so for
					// every consumer but the last it must be the file's
					// final reference.
					if ri != len(refs)-1 {
						return &dz.CorruptIndexError{Kind: "shared chunk consumers", Offender: cid}
					}
					take = expected[i] - assigned[i]
					if consumed[cid]+take > dlen {
						return &dz.CorruptIndexError{Kind: "shared chunk length", Offender: cid}
					}
				}
				if pos > 0 && ri != 0 {
					return &dz.CorruptIndexError{Kind: "shared chunk consumers", Offender: cid}
				}
				plan.Consumers = append(plan.Consumers, Consumer{
					FileIndex: i, ChunkStart: consumed[cid], ChunkEnd: consumed[cid] + take, FileStart: assigned[i],
				})
				consumed[cid] += take
				assigned[i] += take
			}
		}

		if expected != nil {
			if assigned[i] != expected[i] {
				return &dz.CorruptIndexError{Kind: "file length mismatch", Offender: i}
			}
			m.Files[i].ExpectedLength = expected[i]
		} else {
			m.Files[i].ExpectedLength = assigned[i]
		}
	}

	for cid, files := range consumers {
		if len(files) > 1 && !m.Chunks[cid].Flags.Has(dz.FlagCombuf) && consumed[cid] != uint64(m.Chunks[cid].DecompressedLen) {
			return &dz.CorruptIndexError{Kind: "shared chunk length", Offender: cid}
		}
	}
	if streamUsed && streamCursor != streamLen {
		return &dz.CorruptIndexError{Kind: "combuf stream underrun", Offender: int(streamCursor)}
	}
	return nil
}

// remainingSolo sums the decompressed lengths of the solo, non-combuf
// references that follow a combuf reference within the same file. Further
// combuf references are skipped, since the file's single stream slice covers
// them; a shared reference after that point would make the file's combuf
// share underdetermined and is rejected.
func remainingSolo(m *Model, consumers [][]int, rest []int) (uint64, error) {
	var sum uint64
	for _, cid := range rest {
		if m.Chunks[cid].Flags.Has(dz.FlagCombuf) {
			continue
		}
		if len(consumers[cid]) > 1 {
			return 0, &dz.CorruptIndexError{Kind: "shared chunk after combuf reference", Offender: cid}
		}
		sum += uint64(m.Chunks[cid].DecompressedLen)
	}
	return sum, nil
}

// sliceStream maps take bytes of the combuf stream starting at cursor onto
// per-chunk consumer ranges for file fileIdx.
func sliceStream(m *Model, combufIDs []int, streamOffsets map[int]uint64, cursor, take uint64, fileIdx int, fileStart uint64) error {
	for take > 0 {
		k := sort.Search(len(combufIDs), func(k int) bool {
			cid := combufIDs[k]
			return streamOffsets[cid]+uint64(m.Chunks[cid].DecompressedLen) > cursor
		})
		if k == len(combufIDs) {
			return &dz.CorruptIndexError{Kind: "combuf stream overrun", Offender: int(cursor)}
		}
		cid := combufIDs[k]
		plan := &m.Chunks[cid]
		off := cursor - streamOffsets[cid]
		portion := uint64(plan.DecompressedLen) - off
		if portion > take {
			portion = take
		}
		plan.Consumers = append(plan.Consumers, Consumer{
			FileIndex: fileIdx, ChunkStart: off, ChunkEnd: off + portion, FileStart: fileStart,
		})
		cursor += portion
		fileStart += portion
		take -= portion
	}
	return nil
}

func consumerPos(files []int, fileIdx int) int {
	for p, f := range files {
		if f == fileIdx {
			return p
		}
	}
	return -1
}
