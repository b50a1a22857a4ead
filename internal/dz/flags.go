package dz

import (
	"fmt"
	"strings"
)

// Flags is the 16-bit chunk flag field. Exactly one compression bit must be
// set per chunk; COMBUF and RANDOMACCESS are hints that may accompany it.
type Flags uint16

const (
	// FlagCombuf marks a combined-buffer chunk. All combuf chunks are
	// concatenated in chunk-index order into one logical stream before
	// consumer files slice their bytes out of it.
	FlagCombuf Flags = 0x001

	// FlagDZ marks a chunk encoded with the proprietary range coder.
	FlagDZ Flags = 0x004

	// FlagZlib marks a zlib (deflate) chunk.
	FlagZlib Flags = 0x008

	// FlagBzip marks a bzip2 chunk.
	FlagBzip Flags = 0x010

	// FlagMP3 marks an mp3 chunk, stored opaquely.
	FlagMP3 Flags = 0x020

	// FlagJPEG marks a JPEG chunk, stored opaquely.
	FlagJPEG Flags = 0x040

	// FlagZero marks a chunk of synthesized zero bytes with no payload.
	FlagZero Flags = 0x080

	// FlagCopy marks a stored (uncompressed) chunk.
	FlagCopy Flags = 0x100

	// FlagLZMA marks a legacy LZMA chunk with a 13-byte header.
	FlagLZMA Flags = 0x200

	// FlagRandomAccess hints that the decoder should buffer the whole chunk.
	FlagRandomAccess Flags = 0x400
)

// CompressionMask covers every bit that selects a compression method.
const CompressionMask = FlagDZ | FlagZlib | FlagBzip | FlagMP3 | FlagJPEG |
	FlagZero | FlagCopy | FlagLZMA

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagCombuf, "COMBUF"},
	{FlagDZ, "DZ"},
	{FlagZlib, "ZLIB"},
	{FlagBzip, "BZIP"},
	{FlagMP3, "MP3"},
	{FlagJPEG, "JPEG"},
	{FlagZero, "ZERO"},
	{FlagCopy, "COPY"},
	{FlagLZMA, "LZMA"},
	{FlagRandomAccess, "RANDOMACCESS"},
}

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Compression returns the single compression bit set in f. It returns an
// error when zero or more than one compression bit is set; the caller maps
// that onto BadChunkFlags with the chunk id attached.
func (f Flags) Compression() (Flags, error) {
	c := f & CompressionMask
	if c == 0 {
		return 0, fmt.Errorf("no compression bit set in %#04x", uint16(f))
	}
	if c&(c-1) != 0 {
		return 0, fmt.Errorf("multiple compression bits set in %#04x", uint16(f))
	}
	return c, nil
}

// Names returns the symbolic names of all set bits, in bit order. Unknown
// bits are rendered as hexadecimal so nothing is silently dropped.
func (f Flags) Names() []string {
	var names []string
	rest := f
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("%#04x", uint16(rest)))
	}
	return names
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	return strings.Join(f.Names(), "|")
}

// ParseFlagNames reassembles a Flags value from symbolic names as produced
// by Names. Matching is case-insensitive and accepts COPYCOMP for COPY.
func ParseFlagNames(names []string) (Flags, error) {
	var f Flags
	for _, name := range names {
		n := strings.ToUpper(strings.TrimSpace(name))
		if n == "COPYCOMP" {
			n = "COPY"
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == n {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown chunk flag name %q", name)
		}
	}
	return f, nil
}
