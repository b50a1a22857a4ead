package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ossyrian/dzip/internal/codec"
	"github.com/ossyrian/dzip/internal/config"
	"github.com/ossyrian/dzip/internal/dz"
	"github.com/ossyrian/dzip/internal/model"
	"github.com/ossyrian/dzip/internal/volume"
)

// PackOptions tunes a pack operation.
type PackOptions struct {
	// SplitSize is the volume rollover threshold in payload bytes. A chunk
	// that would push the active volume's payload past it opens the next
	// volume instead, unless the active volume holds no payload yet.
	// Zero disables splitting.
	SplitSize uint64

	// Workers bounds the compression pool. Zero means one per CPU.
	Workers int

	Observer Observer
	Codecs   *codec.Registry
}

// Pack rebuilds an archive from the config document doc and the user files
// in src, writing volumes to sink.
//
// Chunk compression runs in parallel and unordered; compressed payloads are
// committed to the sink by a single writer in ascending chunk-id order, with
// at most a bounded number of out-of-order results buffered. On any failure
// the sink is aborted, so no partial volume remains.
func Pack(ctx context.Context, doc *config.Document, src volume.PackSource, sink volume.PackSink, opts PackOptions) (err error) {
	committed := false
	defer func() {
		if !committed {
			if aerr := sink.Abort(); aerr != nil && err == nil {
				err = aerr
			}
		}
	}()

	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	reg := opts.Codecs
	if reg == nil {
		reg = codec.NewRegistry()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	meta, expected, err := metadataFromDocument(doc)
	if err != nil {
		return err
	}

	m, err := model.Resolve(meta, expected)
	if err != nil {
		return err
	}
	for _, w := range m.Warnings {
		obs.Warn(w)
	}

	for i := range m.Files {
		f := &m.Files[i]
		n, err := src.FileLength(f.LogicalPath)
		if err != nil {
			return err
		}
		if n != f.ExpectedLength {
			return fmt.Errorf("source file %s is %d bytes, config document says %d", f.LogicalPath, n, f.ExpectedLength)
		}
	}
	for i := range m.Chunks {
		plan := &m.Chunks[i]
		if len(plan.Consumers) == 0 && plan.DecompressedLen > 0 && !plan.Flags.Has(dz.FlagZero) {
			return &dz.CorruptIndexError{Kind: "chunk referenced by no file", Offender: plan.ID}
		}
	}

	obs.Start(len(m.Chunks))

	type encoded struct {
		id      int
		payload []byte
	}
	results := make(chan encoded, 2*workers)
	// slots bounds how many chunks may be dispatched but not yet committed
	// by the writer, which in turn bounds the reorder buffer below.
	slots := make(chan struct{}, 2*workers)

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(gctx)
	g.SetLimit(workers)
	go func() {
		for i := range m.Chunks {
			plan := &m.Chunks[i]
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return dz.ErrCancelled
				}
				payload, err := encodeChunk(m, src, reg, plan)
				if err != nil {
					return err
				}
				select {
				case results <- encoded{id: plan.ID, payload: payload}:
					return nil
				case <-gctx.Done():
					return dz.ErrCancelled
				}
			})
		}
		g.Wait()
		close(results)
	}()

	w := &volumeWriter{sink: sink, threshold: opts.SplitSize, chunks: meta.Chunks}
	if err := w.open(); err != nil {
		cancel()
		for range results {
		}
		return err
	}

	pending := make(map[int][]byte, 2*workers)
	next := 0
	for res := range results {
		pending[res.id] = res.payload
		for {
			payload, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if werr := w.writeChunk(&m.Chunks[next], payload); werr != nil {
				cancel()
				for range results {
				}
				return werr
			}
			<-slots
			obs.Inc(1)
			next++
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if next != len(m.Chunks) {
		return fmt.Errorf("writer committed %d of %d chunks", next, len(m.Chunks))
	}

	meta.ChunkSettings.NumArchiveFiles = w.volume + 1
	meta.SplitNames = w.splitNames

	// Payload offsets in volume 0 were recorded relative to the payload
	// region; the metadata that precedes it has a known size only now.
	rebase := meta.EncodedSize()
	for i := range meta.Chunks {
		c := &meta.Chunks[i]
		if c.File != 0 {
			continue
		}
		off := uint64(c.Offset) + uint64(rebase)
		if off > math.MaxUint32 {
			return fmt.Errorf("chunk %d offset %d overflows the 32-bit offset field", i, off)
		}
		c.Offset = uint32(off)
	}

	var buf bytes.Buffer
	if err := dz.WriteMetadata(&buf, meta); err != nil {
		return err
	}
	if err := sink.Finalize(buf.Bytes()); err != nil {
		return err
	}
	committed = true

	obs.Finish(fmt.Sprintf("wrote %d chunks across %d volumes", len(m.Chunks), w.volume+1))
	return nil
}

// metadataFromDocument builds the metadata skeleton for a pack: every table
// the document describes, with chunk offsets, compressed lengths, and volume
// indices left as placeholders for the writer to assign. The second return
// value is each user file's decompressed length in file order.
func metadataFromDocument(doc *config.Document) (*dz.Metadata, []uint64, error) {
	if len(doc.Files) == 0 {
		return nil, nil, fmt.Errorf("config document describes no files")
	}
	if len(doc.Files) > math.MaxUint16 {
		return nil, nil, fmt.Errorf("config document describes %d files; the format stores at most %d", len(doc.Files), math.MaxUint16)
	}
	if len(doc.Chunks) >= int(dz.MapTerminator) {
		return nil, nil, fmt.Errorf("config document describes %d chunks; the format stores at most %d", len(doc.Chunks), dz.MapTerminator-1)
	}

	chunks := make([]dz.Chunk, len(doc.Chunks))
	seen := make([]bool, len(doc.Chunks))
	hasDZ := false
	for _, rec := range doc.Chunks {
		if int(rec.ID) >= len(chunks) || seen[rec.ID] {
			return nil, nil, &dz.CorruptIndexError{Kind: "chunk id", Offender: int(rec.ID), Limit: len(chunks)}
		}
		seen[rec.ID] = true
		flags, err := dz.ParseFlagNames(rec.Flags)
		if err != nil {
			return nil, nil, err
		}
		if _, err := flags.Compression(); err != nil {
			return nil, nil, &dz.BadChunkFlagsError{ChunkID: int(rec.ID), Flags: flags}
		}
		if flags.Has(dz.FlagDZ) {
			hasDZ = true
		}
		chunks[rec.ID] = dz.Chunk{
			DecompressedLength: rec.SizeDecompressed,
			Flags:              flags,
		}
	}

	var dirs []string
	dirIndex := make(map[string]uint16)
	files := make([]string, len(doc.Files))
	entries := make([]dz.FileMapEntry, len(doc.Files))
	expected := make([]uint64, len(doc.Files))
	for i, f := range doc.Files {
		di, ok := dirIndex[f.Directory]
		if !ok {
			di = uint16(len(dirs))
			dirIndex[f.Directory] = di
			dirs = append(dirs, f.Directory)
		}
		files[i] = f.Filename
		expected[i] = f.Size
		refs := make([]uint16, len(f.Chunks))
		copy(refs, f.Chunks)
		entries[i] = dz.FileMapEntry{DirIndex: di, ChunkIDs: refs}
	}

	meta := &dz.Metadata{
		Settings: dz.ArchiveSettings{
			NumUserFiles:   uint16(len(files)),
			NumDirectories: uint16(len(dirs)),
			Version:        dz.Version,
		},
		UserFiles:   files,
		Directories: dirs,
		MapEntries:  entries,
		ChunkSettings: dz.ChunkSettings{
			NumArchiveFiles: 1,
			NumChunks:       uint16(len(chunks)),
		},
		Chunks: chunks,
	}
	if hasDZ {
		if doc.Range == nil {
			return nil, nil, fmt.Errorf("archive uses DZ chunks but the config document carries no range settings")
		}
		r := doc.Range
		meta.Range = &dz.RangeSettings{
			WinSize:            r.WinSize,
			Flags:              r.Flags,
			OffsetTableSize:    r.OffsetTableSize,
			OffsetTables:       r.OffsetTables,
			OffsetContexts:     r.OffsetContexts,
			RefLengthTableSize: r.RefLengthTableSize,
			RefLengthTables:    r.RefLengthTables,
			RefOffsetTableSize: r.RefOffsetTableSize,
			RefOffsetTables:    r.RefOffsetTables,
			BigMinMatch:        r.BigMinMatch,
		}
	}
	return meta, expected, nil
}

// encodeChunk assembles a chunk's decompressed input from its consumer
// ranges and compresses it.
func encodeChunk(m *model.Model, src volume.PackSource, reg *codec.Registry, plan *model.ChunkPlan) ([]byte, error) {
	flag, _ := plan.Flags.Compression()
	if flag == dz.FlagZero {
		return nil, nil
	}

	input := make([]byte, plan.DecompressedLen)
	for _, c := range plan.Consumers {
		data, err := src.ReadRange(m.Files[c.FileIndex].LogicalPath, c.FileStart, int(c.ChunkEnd-c.ChunkStart))
		if err != nil {
			return nil, err
		}
		copy(input[c.ChunkStart:c.ChunkEnd], data)
	}

	c, ok := reg.Lookup(flag)
	if !ok {
		return nil, &dz.UnsupportedCodecError{ChunkID: plan.ID, Flag: flag}
	}
	payload, err := c.Compress(input)
	if err != nil {
		return nil, &dz.CodecFailureError{ChunkID: plan.ID, Err: err}
	}
	return payload, nil
}

// volumeWriter owns the sink and assigns each chunk its offset and volume
// index as payloads arrive in id order.
type volumeWriter struct {
	sink       volume.PackSink
	threshold  uint64
	chunks     []dz.Chunk
	cur        io.Writer
	volume     uint16
	splitNames []string
}

func (w *volumeWriter) open() error {
	out, err := w.sink.OpenVolume(w.volume)
	if err != nil {
		return err
	}
	w.cur = out
	return nil
}

func (w *volumeWriter) writeChunk(plan *model.ChunkPlan, payload []byte) error {
	off := w.sink.CurrentVolumeOffset()
	if w.threshold > 0 && off > 0 && off+uint64(len(payload)) > w.threshold {
		if w.volume == math.MaxUint16 {
			return fmt.Errorf("archive needs more than %d volumes", math.MaxUint16+1)
		}
		w.volume++
		if err := w.open(); err != nil {
			return err
		}
		w.splitNames = append(w.splitNames, w.sink.VolumeName(w.volume))
		off = w.sink.CurrentVolumeOffset()
	}
	if w.volume > 0 && off > math.MaxUint32 {
		return fmt.Errorf("chunk %d offset %d overflows the 32-bit offset field", plan.ID, off)
	}

	if len(payload) > 0 {
		if _, err := w.cur.Write(payload); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", plan.ID, err)
		}
	}

	w.chunks[plan.ID] = dz.Chunk{
		Offset:             uint32(off),
		CompressedLength:   uint32(len(payload)),
		DecompressedLength: plan.DecompressedLen,
		Flags:              plan.Flags,
		File:               w.volume,
	}
	return nil
}
