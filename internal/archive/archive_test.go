package archive_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/ossyrian/dzip/internal/archive"
	"github.com/ossyrian/dzip/internal/codec"
	"github.com/ossyrian/dzip/internal/config"
	"github.com/ossyrian/dzip/internal/dz"
	"github.com/ossyrian/dzip/internal/volume"
)

// compress encodes data with the registered codec for flag.
func compress(t *testing.T, flag dz.Flags, data []byte) []byte {
	t.Helper()
	c, ok := codec.NewRegistry().Lookup(flag)
	if !ok {
		t.Fatalf("no codec for %v", flag)
	}
	out, err := c.Compress(data)
	if err != nil {
		t.Fatalf("compress with %v failed: %v", flag, err)
	}
	return out
}

// writeArchive serializes meta and writes the archive volumes to fs. Chunk
// offsets in meta are payload-relative; volume 0 offsets are shifted past the
// metadata before serialization, matching the on-disk layout.
func writeArchive(t *testing.T, fs afero.Fs, path string, meta *dz.Metadata, payloads [][]byte) {
	t.Helper()

	metaSize := meta.EncodedSize()
	for i := range meta.Chunks {
		if meta.Chunks[i].File == 0 {
			meta.Chunks[i].Offset += uint32(metaSize)
		}
	}

	var buf bytes.Buffer
	if err := dz.WriteMetadata(&buf, meta); err != nil {
		t.Fatalf("WriteMetadata() failed: %v", err)
	}
	if len(payloads) > 0 {
		buf.Write(payloads[0])
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing archive failed: %v", err)
	}
	for v := 1; v < len(payloads); v++ {
		split := volume.SplitVolumeName(path, uint16(v))
		if err := afero.WriteFile(fs, split, payloads[v], 0o644); err != nil {
			t.Fatalf("writing split %s failed: %v", split, err)
		}
	}
}

func openSource(t *testing.T, fs afero.Fs, path string) *volume.FileSource {
	t.Helper()
	src, err := volume.NewFileSource(fs, path)
	if err != nil {
		t.Fatalf("NewFileSource() failed: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func readFile(t *testing.T, fs afero.Fs, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("reading %s failed: %v", path, err)
	}
	return data
}

func TestUnpackSingleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte("hello world")
	meta := &dz.Metadata{
		Settings:      dz.ArchiveSettings{NumUserFiles: 1, NumDirectories: 1},
		UserFiles:     []string{"greeting.txt"},
		Directories:   []string{""},
		MapEntries:    []dz.FileMapEntry{{DirIndex: 0, ChunkIDs: []uint16{0}}},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 1},
		Chunks: []dz.Chunk{
			// garbage compressed length: the true size comes from offsets
			{Offset: 0, CompressedLength: 0xDEADBEEF, DecompressedLength: uint32(len(content)), Flags: dz.FlagZlib},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{compress(t, dz.FlagZlib, content)})

	src := openSource(t, fs, "/world.dz")
	doc, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}

	if got := readFile(t, fs, "/out/greeting.txt"); !bytes.Equal(got, content) {
		t.Errorf("extracted file = %q, want %q", got, content)
	}
	if doc.Archive.TotalFiles != 1 || doc.Archive.TotalChunks != 1 {
		t.Errorf("document counts = %+v, want 1 file and 1 chunk", doc.Archive)
	}
	if doc.Files[0].Size != uint64(len(content)) {
		t.Errorf("document size = %d, want %d", doc.Files[0].Size, len(content))
	}
	if want := []string{"ZLIB"}; !reflect.DeepEqual(doc.Chunks[0].Flags, want) {
		t.Errorf("document flags = %v, want %v", doc.Chunks[0].Flags, want)
	}
}

func TestUnpackTwoVolumes(t *testing.T) {
	fs := afero.NewMemMapFs()
	meta := &dz.Metadata{
		Settings:      dz.ArchiveSettings{NumUserFiles: 1, NumDirectories: 1},
		UserFiles:     []string{"joined.bin"},
		Directories:   []string{""},
		MapEntries:    []dz.FileMapEntry{{DirIndex: 0, ChunkIDs: []uint16{0, 1}}},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 2, NumChunks: 2},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 6, Flags: dz.FlagCopy, File: 0},
			{Offset: 0, DecompressedLength: 4, Flags: dz.FlagCopy, File: 1},
		},
		SplitNames: []string{"world.d01"},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{[]byte("first-"), []byte("half")})

	src := openSource(t, fs, "/world.dz")
	doc, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}

	if got := readFile(t, fs, "/out/joined.bin"); !bytes.Equal(got, []byte("first-half")) {
		t.Errorf("extracted file = %q, want %q", got, "first-half")
	}
	if want := []string{"world.d01"}; !reflect.DeepEqual(doc.ArchiveFiles, want) {
		t.Errorf("document archive files = %v, want %v", doc.ArchiveFiles, want)
	}
	if doc.Chunks[1].ArchiveFileIndex != 1 {
		t.Errorf("chunk 1 volume = %d, want 1", doc.Chunks[1].ArchiveFileIndex)
	}
}

func TestUnpackSharedChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	meta := &dz.Metadata{
		Settings:    dz.ArchiveSettings{NumUserFiles: 2, NumDirectories: 1},
		UserFiles:   []string{"a.bin", "b.bin"},
		Directories: []string{""},
		MapEntries: []dz.FileMapEntry{
			{DirIndex: 0, ChunkIDs: []uint16{0}},
			{DirIndex: 0, ChunkIDs: []uint16{0}},
		},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 1},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 10, Flags: dz.FlagCopy},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{[]byte("HELLOWORLD")})

	t.Run("without expected lengths", func(t *testing.T) {
		src := openSource(t, fs, "/world.dz")
		_, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/none"), archive.UnpackOptions{})
		var cie *dz.CorruptIndexError
		if !errors.As(err, &cie) {
			t.Fatalf("Unpack() error = %v, want a corrupt-index error", err)
		}
	})

	t.Run("with expected lengths", func(t *testing.T) {
		src := openSource(t, fs, "/world.dz")
		_, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{
			ExpectedLengths: []uint64{5, 5},
		})
		if err != nil {
			t.Fatalf("Unpack() failed: %v", err)
		}
		if got := readFile(t, fs, "/out/a.bin"); !bytes.Equal(got, []byte("HELLO")) {
			t.Errorf("a.bin = %q, want %q", got, "HELLO")
		}
		if got := readFile(t, fs, "/out/b.bin"); !bytes.Equal(got, []byte("WORLD")) {
			t.Errorf("b.bin = %q, want %q", got, "WORLD")
		}
	})
}

func TestUnpackChunkSharedByThreeFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	meta := &dz.Metadata{
		Settings:    dz.ArchiveSettings{NumUserFiles: 3, NumDirectories: 1},
		UserFiles:   []string{"a.bin", "b.bin", "c.bin"},
		Directories: []string{""},
		MapEntries: []dz.FileMapEntry{
			{DirIndex: 0, ChunkIDs: []uint16{0}},
			{DirIndex: 0, ChunkIDs: []uint16{0}},
			{DirIndex: 0, ChunkIDs: []uint16{0}},
		},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 1},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 10, Flags: dz.FlagCopy},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{[]byte("AAABBCCCCC")})

	src := openSource(t, fs, "/world.dz")
	_, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{
		ExpectedLengths: []uint64{3, 2, 5},
	})
	if err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	for _, tt := range []struct {
		path string
		want string
	}{
		{"/out/a.bin", "AAA"},
		{"/out/b.bin", "BB"},
		{"/out/c.bin", "CCCCC"},
	} {
		if got := readFile(t, fs, tt.path); !bytes.Equal(got, []byte(tt.want)) {
			t.Errorf("%s = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUnpackCombinedBufferSlice(t *testing.T) {
	// Two COMBUF chunks form the stream "AAAABBBB"; the middle file's slice
	// [2,6) crosses the chunk boundary.
	fs := afero.NewMemMapFs()
	meta := &dz.Metadata{
		Settings:    dz.ArchiveSettings{NumUserFiles: 3, NumDirectories: 1},
		UserFiles:   []string{"head.bin", "mid.bin", "tail.bin"},
		Directories: []string{""},
		MapEntries: []dz.FileMapEntry{
			{DirIndex: 0, ChunkIDs: []uint16{0}},
			{DirIndex: 0, ChunkIDs: []uint16{0, 1}},
			{DirIndex: 0, ChunkIDs: []uint16{1}},
		},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 2},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 4, Flags: dz.FlagCombuf | dz.FlagCopy},
			{Offset: 4, DecompressedLength: 4, Flags: dz.FlagCombuf | dz.FlagCopy},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{[]byte("AAAABBBB")})

	src := openSource(t, fs, "/world.dz")
	_, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{
		ExpectedLengths: []uint64{2, 4, 2},
	})
	if err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if got := readFile(t, fs, "/out/mid.bin"); !bytes.Equal(got, []byte("AABB")) {
		t.Errorf("mid.bin = %q, want %q", got, "AABB")
	}
	if got := readFile(t, fs, "/out/head.bin"); !bytes.Equal(got, []byte("AA")) {
		t.Errorf("head.bin = %q, want %q", got, "AA")
	}
	if got := readFile(t, fs, "/out/tail.bin"); !bytes.Equal(got, []byte("BB")) {
		t.Errorf("tail.bin = %q, want %q", got, "BB")
	}
}

func TestUnpackZeroChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	meta := &dz.Metadata{
		Settings:      dz.ArchiveSettings{NumUserFiles: 1, NumDirectories: 1},
		UserFiles:     []string{"blank.bin"},
		Directories:   []string{""},
		MapEntries:    []dz.FileMapEntry{{DirIndex: 0, ChunkIDs: []uint16{0}}},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 1},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 4, Flags: dz.FlagZero},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{nil})

	src := openSource(t, fs, "/world.dz")
	if _, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{}); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if got := readFile(t, fs, "/out/blank.bin"); !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("blank.bin = %v, want four zero bytes", got)
	}
}

func TestUnpackKeepRaw(t *testing.T) {
	rawPayload := []byte{9, 9, 9}
	build := func(fs afero.Fs) {
		meta := &dz.Metadata{
			Settings:      dz.ArchiveSettings{NumUserFiles: 1, NumDirectories: 1},
			UserFiles:     []string{"mystery.bin"},
			Directories:   []string{""},
			MapEntries:    []dz.FileMapEntry{{DirIndex: 0, ChunkIDs: []uint16{0}}},
			ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 1},
			Chunks: []dz.Chunk{
				{Offset: 0, DecompressedLength: 3, Flags: dz.FlagDZ},
			},
			Range: &dz.RangeSettings{WinSize: 15},
		}
		writeArchive(t, fs, "/world.dz", meta, [][]byte{rawPayload})
	}

	t.Run("fails without keep-raw", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		build(fs)
		src := openSource(t, fs, "/world.dz")
		_, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{})
		var uce *dz.UnsupportedCodecError
		if !errors.As(err, &uce) {
			t.Fatalf("Unpack() error = %v, want an unsupported-codec error", err)
		}
	})

	t.Run("sidecar with keep-raw", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		build(fs)
		src := openSource(t, fs, "/world.dz")
		doc, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{
			KeepRaw: true,
		})
		if err != nil {
			t.Fatalf("Unpack() failed: %v", err)
		}
		if got := readFile(t, fs, "/out/mystery.bin.chunk0.raw"); !bytes.Equal(got, rawPayload) {
			t.Errorf("sidecar = %v, want the raw payload %v", got, rawPayload)
		}
		if got := readFile(t, fs, "/out/mystery.bin"); len(got) != 0 {
			t.Errorf("mystery.bin = %v, want empty since its only chunk was kept raw", got)
		}
		if doc.Range == nil || doc.Range.WinSize != 15 {
			t.Errorf("document range = %+v, want the mirrored settings", doc.Range)
		}
	})
}

func TestUnpackCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := bytes.Repeat([]byte("x"), 256)
	meta := &dz.Metadata{
		Settings:      dz.ArchiveSettings{NumUserFiles: 1, NumDirectories: 1},
		UserFiles:     []string{"a.bin"},
		Directories:   []string{""},
		MapEntries:    []dz.FileMapEntry{{DirIndex: 0, ChunkIDs: []uint16{0}}},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 1},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 256, Flags: dz.FlagCopy},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{content})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := openSource(t, fs, "/world.dz")
	_, err := archive.Unpack(ctx, src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{})
	if !errors.Is(err, dz.ErrCancelled) {
		t.Fatalf("Unpack() error = %v, want %v", err, dz.ErrCancelled)
	}
}

func TestList(t *testing.T) {
	fs := afero.NewMemMapFs()
	meta := &dz.Metadata{
		Settings:    dz.ArchiveSettings{NumUserFiles: 2, NumDirectories: 2},
		UserFiles:   []string{"a.img", "b.img"},
		Directories: []string{"", "data"},
		MapEntries: []dz.FileMapEntry{
			{DirIndex: 0, ChunkIDs: []uint16{0}},
			{DirIndex: 1, ChunkIDs: []uint16{0, 1}},
		},
		ChunkSettings: dz.ChunkSettings{NumArchiveFiles: 1, NumChunks: 2},
		Chunks: []dz.Chunk{
			{Offset: 0, DecompressedLength: 10, Flags: dz.FlagCopy},
			{Offset: 10, DecompressedLength: 20, Flags: dz.FlagZlib},
		},
	}
	writeArchive(t, fs, "/world.dz", meta, [][]byte{nil})

	f, err := fs.Open("/world.dz")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	entries, err := archive.List(f)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	want := []archive.ListEntry{
		{Path: "a.img", Size: 10, Chunks: 1},
		{Path: "data/b.img", Size: 30, Chunks: 2},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("List() = %+v, want %+v", entries, want)
	}
}

func TestPackRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	aContent := bytes.Repeat([]byte("alpha-"), 40) // 240 bytes
	bContent := bytes.Repeat([]byte("b"), 100)
	afero.WriteFile(fs, "/src/data/a.bin", aContent, 0o644)
	afero.WriteFile(fs, "/src/data/b.bin", bContent, 0o644)

	doc := &config.Document{
		Files: []config.FileRecord{
			{Path: "data/a.bin", Directory: "data", Filename: "a.bin", Size: uint64(len(aContent)), Chunks: []uint16{0}},
			{Path: "data/b.bin", Directory: "data", Filename: "b.bin", Size: uint64(len(bContent)), Chunks: []uint16{1}},
		},
		Chunks: []config.ChunkRecord{
			{ID: 0, SizeDecompressed: uint32(len(aContent)), Flags: []string{"ZLIB"}},
			{ID: 1, SizeDecompressed: uint32(len(bContent)), Flags: []string{"BZIP"}},
		},
	}

	err := archive.Pack(context.Background(), doc, volume.NewDirSource(fs, "/src"), volume.NewFileSink(fs, "/build/world.dz"), archive.PackOptions{})
	if err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	src := openSource(t, fs, "/build/world.dz")
	back, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() after Pack() failed: %v", err)
	}

	if got := readFile(t, fs, "/out/data/a.bin"); !bytes.Equal(got, aContent) {
		t.Errorf("a.bin did not survive the round trip")
	}
	if got := readFile(t, fs, "/out/data/b.bin"); !bytes.Equal(got, bContent) {
		t.Errorf("b.bin did not survive the round trip")
	}
	if back.Archive.TotalFiles != 2 || back.Archive.TotalChunks != 2 {
		t.Errorf("document counts = %+v, want 2 files and 2 chunks", back.Archive)
	}
}

func TestPackSplitsVolumes(t *testing.T) {
	fs := afero.NewMemMapFs()
	aContent := bytes.Repeat([]byte{0xAB}, 100)
	bContent := bytes.Repeat([]byte{0xCD}, 50)
	afero.WriteFile(fs, "/src/a.bin", aContent, 0o644)
	afero.WriteFile(fs, "/src/b.bin", bContent, 0o644)

	doc := &config.Document{
		Files: []config.FileRecord{
			{Path: "a.bin", Directory: "", Filename: "a.bin", Size: 100, Chunks: []uint16{0}},
			{Path: "b.bin", Directory: "", Filename: "b.bin", Size: 50, Chunks: []uint16{1}},
		},
		Chunks: []config.ChunkRecord{
			{ID: 0, SizeDecompressed: 100, Flags: []string{"COPY"}},
			{ID: 1, SizeDecompressed: 50, Flags: []string{"COPY"}},
		},
	}

	err := archive.Pack(context.Background(), doc, volume.NewDirSource(fs, "/src"), volume.NewFileSink(fs, "/build/world.dz"), archive.PackOptions{
		SplitSize: 64,
	})
	if err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	if ok, _ := afero.Exists(fs, "/build/world.d01"); !ok {
		t.Fatal("split volume world.d01 was not written")
	}
	if got := readFile(t, fs, "/build/world.d01"); !bytes.Equal(got, bContent) {
		t.Errorf("split volume holds %d bytes, want chunk 1's 50-byte payload", len(got))
	}

	src := openSource(t, fs, "/build/world.dz")
	back, err := archive.Unpack(context.Background(), src, volume.NewDirSink(fs, "/out"), archive.UnpackOptions{})
	if err != nil {
		t.Fatalf("Unpack() after split Pack() failed: %v", err)
	}
	if got := readFile(t, fs, "/out/a.bin"); !bytes.Equal(got, aContent) {
		t.Errorf("a.bin did not survive the split round trip")
	}
	if got := readFile(t, fs, "/out/b.bin"); !bytes.Equal(got, bContent) {
		t.Errorf("b.bin did not survive the split round trip")
	}
	if want := []string{"world.d01"}; !reflect.DeepEqual(back.ArchiveFiles, want) {
		t.Errorf("document archive files = %v, want %v", back.ArchiveFiles, want)
	}
}

func TestPackAbortsOnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/src/a.bin", []byte("short"), 0o644)

	doc := &config.Document{
		Files: []config.FileRecord{
			{Path: "a.bin", Directory: "", Filename: "a.bin", Size: 999, Chunks: []uint16{0}},
		},
		Chunks: []config.ChunkRecord{
			{ID: 0, SizeDecompressed: 999, Flags: []string{"COPY"}},
		},
	}

	err := archive.Pack(context.Background(), doc, volume.NewDirSource(fs, "/src"), volume.NewFileSink(fs, "/build/world.dz"), archive.PackOptions{})
	if err == nil {
		t.Fatal("Pack() succeeded with a source length mismatch, wanted error")
	}

	for _, leftover := range []string{"/build/world.dz", "/build/world.dz.part", "/build/world.dz.tmp"} {
		if ok, _ := afero.Exists(fs, leftover); ok {
			t.Errorf("%s survived a failed pack", leftover)
		}
	}
}

func TestPackRejectsBadDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/src/a.bin", []byte("data"), 0o644)

	tests := []struct {
		name string
		doc  *config.Document
	}{
		{
			name: "no files",
			doc:  &config.Document{},
		},
		{
			name: "duplicate chunk id",
			doc: &config.Document{
				Files: []config.FileRecord{{Path: "a.bin", Filename: "a.bin", Size: 4, Chunks: []uint16{0}}},
				Chunks: []config.ChunkRecord{
					{ID: 0, SizeDecompressed: 4, Flags: []string{"COPY"}},
					{ID: 0, SizeDecompressed: 4, Flags: []string{"COPY"}},
				},
			},
		},
		{
			name: "unknown flag name",
			doc: &config.Document{
				Files:  []config.FileRecord{{Path: "a.bin", Filename: "a.bin", Size: 4, Chunks: []uint16{0}}},
				Chunks: []config.ChunkRecord{{ID: 0, SizeDecompressed: 4, Flags: []string{"SNAPPY"}}},
			},
		},
		{
			name: "dz chunk without range settings",
			doc: &config.Document{
				Files:  []config.FileRecord{{Path: "a.bin", Filename: "a.bin", Size: 4, Chunks: []uint16{0}}},
				Chunks: []config.ChunkRecord{{ID: 0, SizeDecompressed: 4, Flags: []string{"DZ"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := archive.Pack(context.Background(), tt.doc, volume.NewDirSource(fs, "/src"), volume.NewFileSink(fs, "/build/world.dz"), archive.PackOptions{})
			if err == nil {
				t.Fatal("Pack() succeeded, wanted error")
			}
		})
	}
}
