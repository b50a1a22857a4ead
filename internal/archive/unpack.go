package archive

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ossyrian/dzip/internal/codec"
	"github.com/ossyrian/dzip/internal/config"
	"github.com/ossyrian/dzip/internal/dz"
	"github.com/ossyrian/dzip/internal/model"
	"github.com/ossyrian/dzip/internal/volume"
)

// UnpackOptions tunes an unpack operation.
type UnpackOptions struct {
	// KeepRaw demotes per-chunk decode failures and unsupported codecs to
	// warnings; the raw compressed bytes are written to a sidecar file
	// next to the chunk's first consumer.
	KeepRaw bool

	// ExpectedLengths optionally supplies each user file's decompressed
	// length, ordered like the archive's file list. Required to resolve
	// archives whose chunks are shared between files; see model.Resolve.
	ExpectedLengths []uint64

	// Workers bounds the decompression pool. Zero means one per CPU.
	Workers int

	Observer Observer
	Codecs   *codec.Registry
}

// Unpack extracts every user file of the archive in src into sink and
// returns the config document describing what was parsed.
//
// Chunk decompression runs in parallel and unordered; each output file's
// bytes are written in order. The sink's Finalize is invoked on every exit
// path, including cancellation, so it may commit or discard partial output.
func Unpack(ctx context.Context, src volume.UnpackSource, sink volume.UnpackSink, opts UnpackOptions) (doc *config.Document, err error) {
	defer func() {
		if ferr := sink.Finalize(); ferr != nil && err == nil {
			doc, err = nil, ferr
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

	meta, err := dz.ReadMetadata(volume.NewMetadataReader(src, 0))
	if err != nil {
		return nil, err
	}

	m, err := model.Resolve(meta, opts.ExpectedLengths)
	if err != nil {
		return nil, err
	}
	for _, w := range m.Warnings {
		obs.Warn(w)
	}

	if err := model.ComputeEffectiveLengths(m.Chunks, src.VolumeLength); err != nil {
		return nil, err
	}

	obs.Start(len(m.Files))

	for _, d := range m.Directories {
		if d == "" {
			continue
		}
		if err := sink.CreateDir(d); err != nil {
			return nil, err
		}
	}

	results := make([][]byte, len(m.Chunks))
	rawKept := make([]bool, len(m.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range m.Chunks {
		plan := &m.Chunks[i]
		if len(plan.Consumers) == 0 {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return dz.ErrCancelled
			}
			data, raw, err := decodeChunk(src, reg, plan, opts.KeepRaw, obs)
			if err != nil {
				return err
			}
			results[plan.ID] = data
			rawKept[plan.ID] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeSidecars(sink, m, results, rawKept); err != nil {
		return nil, err
	}

	segments := fileSegments(m)
	g2, gctx2 := errgroup.WithContext(ctx)
	g2.SetLimit(workers)
	for fi := range m.Files {
		g2.Go(func() error {
			if gctx2.Err() != nil {
				return dz.ErrCancelled
			}
			if err := writeFile(sink, m.Files[fi].LogicalPath, segments[fi], results, rawKept); err != nil {
				return err
			}
			obs.Inc(1)
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return nil, err
	}

	obs.Finish(fmt.Sprintf("extracted %d files", len(m.Files)))
	return buildDocument(meta, m), nil
}

// decodeChunk reads one chunk's compressed bytes and decodes them. With
// keepRaw set, decode failures and unsupported codecs return the raw
// payload and raw=true instead of an error.
func decodeChunk(src volume.UnpackSource, reg *codec.Registry, plan *model.ChunkPlan, keepRaw bool, obs Observer) (data []byte, raw bool, err error) {
	flag, ferr := plan.Flags.Compression()
	if ferr != nil {
		return nil, false, &dz.BadChunkFlagsError{ChunkID: plan.ID, Flags: plan.Flags}
	}

	if flag == dz.FlagZero {
		return make([]byte, plan.DecompressedLen), false, nil
	}

	payload, err := src.ReadAt(plan.Volume, plan.Offset, int(plan.EffectiveCompressedLen))
	if err != nil {
		return nil, false, err
	}

	c, ok := reg.Lookup(flag)
	if !ok {
		uerr := &dz.UnsupportedCodecError{ChunkID: plan.ID, Flag: flag}
		if keepRaw {
			obs.Warn(fmt.Sprintf("%v; keeping raw payload", uerr))
			return payload, true, nil
		}
		return nil, false, uerr
	}

	out, derr := c.Decompress(payload, int(plan.DecompressedLen))
	if derr != nil {
		cerr := &dz.CodecFailureError{ChunkID: plan.ID, Err: derr}
		if keepRaw {
			obs.Warn(fmt.Sprintf("%v; keeping raw payload", cerr))
			return payload, true, nil
		}
		return nil, false, cerr
	}
	if len(out) != int(plan.DecompressedLen) {
		return nil, false, &dz.SizeMismatchError{
			ChunkID:  plan.ID,
			Expected: plan.DecompressedLen,
			Got:      uint32(len(out)),
		}
	}
	return out, false, nil
}

// writeSidecars routes raw-kept chunk payloads to sidecar files named after
// the chunk's first consumer.
func writeSidecars(sink volume.UnpackSink, m *model.Model, results [][]byte, rawKept []bool) error {
	for i := range m.Chunks {
		if !rawKept[i] {
			continue
		}
		plan := &m.Chunks[i]
		name := fmt.Sprintf("chunk%d.raw", plan.ID)
		if len(plan.Consumers) > 0 {
			name = fmt.Sprintf("%s.chunk%d.raw", m.Files[plan.Consumers[0].FileIndex].LogicalPath, plan.ID)
		}
		w, err := sink.CreateFile(name)
		if err != nil {
			return err
		}
		if _, err := w.Write(results[i]); err != nil {
			w.Close()
			return fmt.Errorf("failed to write sidecar %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to close sidecar %s: %w", name, err)
		}
	}
	return nil
}

type segment struct {
	chunk      int
	start, end uint64
	fileStart  uint64
}

// fileSegments inverts the per-chunk consumer lists into each file's ordered
// list of chunk byte ranges.
func fileSegments(m *model.Model) [][]segment {
	segs := make([][]segment, len(m.Files))
	for ci := range m.Chunks {
		for _, c := range m.Chunks[ci].Consumers {
			segs[c.FileIndex] = append(segs[c.FileIndex], segment{
				chunk:     ci,
				start:     c.ChunkStart,
				end:       c.ChunkEnd,
				fileStart: c.FileStart,
			})
		}
	}
	for _, s := range segs {
		sort.Slice(s, func(a, b int) bool { return s[a].fileStart < s[b].fileStart })
	}
	return segs
}

func writeFile(sink volume.UnpackSink, logicalPath string, segs []segment, results [][]byte, rawKept []bool) error {
	w, err := sink.CreateFile(logicalPath)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if rawKept[seg.chunk] {
			continue
		}
		if _, err := w.Write(results[seg.chunk][seg.start:seg.end]); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s: %w", logicalPath, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", logicalPath, err)
	}
	return nil
}

func buildDocument(meta *dz.Metadata, m *model.Model) *config.Document {
	doc := &config.Document{
		Archive: config.ArchiveInfo{
			Version:          meta.Settings.Version,
			TotalFiles:       uint16(len(m.Files)),
			TotalDirectories: uint16(len(m.Directories)),
			TotalChunks:      uint16(len(m.Chunks)),
		},
		ArchiveFiles: meta.SplitNames,
	}
	if meta.Range != nil {
		rs := meta.Range
		doc.Range = &config.RangeInfo{
			WinSize:            rs.WinSize,
			Flags:              rs.Flags,
			OffsetTableSize:    rs.OffsetTableSize,
			OffsetTables:       rs.OffsetTables,
			OffsetContexts:     rs.OffsetContexts,
			RefLengthTableSize: rs.RefLengthTableSize,
			RefLengthTables:    rs.RefLengthTables,
			RefOffsetTableSize: rs.RefOffsetTableSize,
			RefOffsetTables:    rs.RefOffsetTables,
			BigMinMatch:        rs.BigMinMatch,
		}
	}
	for i := range m.Files {
		f := &m.Files[i]
		refs := make([]uint16, len(f.ChunkRefs))
		for j, r := range f.ChunkRefs {
			refs[j] = uint16(r)
		}
		doc.Files = append(doc.Files, config.FileRecord{
			Path:      f.LogicalPath,
			Directory: m.Directories[f.DirIndex],
			Filename:  f.Name,
			Size:      f.ExpectedLength,
			Chunks:    refs,
		})
	}
	for i := range m.Chunks {
		c := &m.Chunks[i]
		doc.Chunks = append(doc.Chunks, config.ChunkRecord{
			ID:               uint16(c.ID),
			Offset:           uint32(c.Offset),
			SizeCompressed:   c.RawCompressedLen,
			SizeDecompressed: c.DecompressedLen,
			Flags:            c.Flags.Names(),
			ArchiveFileIndex: c.Volume,
		})
	}
	return doc
}
