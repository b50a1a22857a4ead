// Package codec maps chunk compression flags onto concrete compressor
// implementations. Each codec is a pair of whole-buffer operations; the
// pipeline owns streaming, parallelism, and size verification.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"

	"github.com/ossyrian/dzip/internal/dz"
)

// Codec compresses and decompresses one chunk payload.
type Codec interface {
	// Compress encodes data into the codec's on-disk framing.
	Compress(data []byte) ([]byte, error)

	// Decompress decodes data. decompressedLen is the length recorded in
	// the chunk table; codecs may use it to size buffers but the caller
	// verifies the result length.
	Decompress(data []byte, decompressedLen int) ([]byte, error)
}

// Registry indexes codecs by their chunk flag bit.
type Registry struct {
	codecs map[dz.Flags]Codec
}

// NewRegistry returns a registry with the supported codecs registered:
// ZLIB, BZIP, LZMA (legacy 13-byte header framing), and COPY. ZERO chunks
// carry no payload and are synthesized by the pipeline; MP3, JPEG, and DZ
// chunks have no codec and surface as unsupported.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[dz.Flags]Codec)}
	r.Register(dz.FlagZlib, zlibCodec{})
	r.Register(dz.FlagBzip, bzipCodec{})
	r.Register(dz.FlagLZMA, lzmaCodec{})
	r.Register(dz.FlagCopy, copyCodec{})
	return r
}

// Register binds a codec to a compression flag bit, replacing any existing
// registration.
func (r *Registry) Register(flag dz.Flags, c Codec) {
	r.codecs[flag] = c
}

// Lookup returns the codec registered for the given compression flag bit.
func (r *Registry) Lookup(flag dz.Flags) (Codec, bool) {
	c, ok := r.codecs[flag]
	return c, ok
}

type zlibCodec struct{}

func (zlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(data []byte, decompressedLen int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	defer zr.Close()
	return readAll(zr, decompressedLen, "zlib")
}

type bzipCodec struct{}

func (bzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return nil, fmt.Errorf("bzip2 compress: %w", err)
	}
	if _, err := bw.Write(data); err != nil {
		return nil, fmt.Errorf("bzip2 compress: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("bzip2 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (bzipCodec) Decompress(data []byte, decompressedLen int) ([]byte, error) {
	br, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("bzip2 decompress: %w", err)
	}
	out, err := readAll(br, decompressedLen, "bzip2")
	if cerr := br.Close(); cerr != nil && err == nil {
		return nil, fmt.Errorf("bzip2 decompress: %w", cerr)
	}
	return out, err
}

// lzmaCodec handles the legacy LZMA framing: a 13-byte header of 5 property
// bytes plus a 64-bit little-endian decompressed size, followed by the raw
// stream. On encode the size field carries the true decompressed length
// rather than the unknown-size marker.
type lzmaCodec struct{}

func (lzmaCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		Size:         int64(len(data)),
		SizeInHeader: true,
	}
	lw, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if _, err := lw.Write(data); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if err := lw.Close(); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lzmaCodec) Decompress(data []byte, decompressedLen int) ([]byte, error) {
	lr, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("lzma decompress: %w", err)
	}
	return readAll(lr, decompressedLen, "lzma")
}

type copyCodec struct{}

func (copyCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (copyCodec) Decompress(data []byte, decompressedLen int) ([]byte, error) {
	return data, nil
}

// readAll drains r into a buffer presized to the expected decompressed
// length. Streams may legally be shorter or longer than expected; the
// pipeline compares lengths and reports the mismatch.
func readAll(r io.Reader, decompressedLen int, name string) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, decompressedLen))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("%s decompress: %w", name, err)
	}
	return buf.Bytes(), nil
}
