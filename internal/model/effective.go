package model

import (
	"sort"

	"github.com/ossyrian/dzip/internal/dz"
)

// ComputeEffectiveLengths fills in each chunk's effective compressed length.
// The compressed-length field in legacy archive headers is unreliable, so
// the true payload size is recomputed as the gap to the next chunk offset
// within the same volume, or to the end of the volume for its last chunk.
// When the neighboring offset would make the gap negative the header field
// is kept as a fallback.
//
// It also verifies that every chunk offset lands inside its volume.
func ComputeEffectiveLengths(chunks []ChunkPlan, volumeLength func(uint16) (uint64, error)) error {
	byVolume := make(map[uint16][]int)
	for i := range chunks {
		byVolume[chunks[i].Volume] = append(byVolume[chunks[i].Volume], i)
	}

	for volume, indices := range byVolume {
		length, err := volumeLength(volume)
		if err != nil {
			return err
		}
		sort.Slice(indices, func(a, b int) bool {
			return chunks[indices[a]].Offset < chunks[indices[b]].Offset
		})
		for k, idx := range indices {
			c := &chunks[idx]
			if c.Offset > length {
				return &dz.CorruptIndexError{Kind: "chunk offset", Offender: int(c.Offset), Limit: int(length)}
			}
			next := length
			if k < len(indices)-1 {
				next = chunks[indices[k+1]].Offset
			}
			if next < c.Offset {
				c.EffectiveCompressedLen = c.RawCompressedLen
			} else {
				c.EffectiveCompressedLen = uint32(next - c.Offset)
			}
		}
	}
	return nil
}
