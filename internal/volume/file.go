package volume

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/ossyrian/dzip/internal/dz"
)

// FileSource reads archive volumes from a filesystem. Split volumes are
// discovered next to the main file by the .dNN suffix convention.
type FileSource struct {
	files []afero.File
	sizes []uint64
}

// NewFileSource opens the main archive file and every .dNN split found next
// to it, in index order.
func NewFileSource(fs afero.Fs, mainPath string) (*FileSource, error) {
	s := &FileSource{}
	for i := uint16(0); ; i++ {
		path := SplitVolumeName(mainPath, i)
		if i > 0 {
			ok, err := afero.Exists(fs, path)
			if err != nil {
				return nil, fmt.Errorf("failed to probe volume %s: %w", path, err)
			}
			if !ok {
				break
			}
		}
		f, err := fs.Open(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open volume %s: %w", path, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			s.Close()
			return nil, fmt.Errorf("failed to stat volume %s: %w", path, err)
		}
		s.files = append(s.files, f)
		s.sizes = append(s.sizes, uint64(info.Size()))
	}
	return s, nil
}

func (s *FileSource) VolumeCount() uint16 {
	return uint16(len(s.files))
}

func (s *FileSource) VolumeLength(volume uint16) (uint64, error) {
	if int(volume) >= len(s.files) {
		return 0, &dz.VolumeMissingError{Index: volume}
	}
	return s.sizes[volume], nil
}

func (s *FileSource) ReadAt(volume uint16, offset uint64, n int) ([]byte, error) {
	if int(volume) >= len(s.files) {
		return nil, &dz.VolumeMissingError{Index: volume}
	}
	buf := make([]byte, n)
	if _, err := s.files[volume].ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at %d from volume %d: %w", n, offset, volume, err)
	}
	return buf, nil
}

// Close closes all open volume handles.
func (s *FileSource) Close() error {
	var first error
	for _, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DirSink extracts user files under a root directory.
type DirSink struct {
	fs   afero.Fs
	root string
}

// NewDirSink returns a sink writing extracted files under root.
func NewDirSink(fs afero.Fs, root string) *DirSink {
	return &DirSink{fs: fs, root: root}
}

func (s *DirSink) CreateDir(logicalPath string) error {
	if err := s.fs.MkdirAll(s.hostPath(logicalPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", logicalPath, err)
	}
	return nil
}

func (s *DirSink) CreateFile(logicalPath string) (io.WriteCloser, error) {
	host := s.hostPath(logicalPath)
	if err := s.fs.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent of %s: %w", logicalPath, err)
	}
	f, err := s.fs.Create(host)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", logicalPath, err)
	}
	return f, nil
}

func (s *DirSink) Finalize() error {
	return nil
}

func (s *DirSink) hostPath(logicalPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(logicalPath))
}

// DirSource reads pack input files from under a root directory.
type DirSource struct {
	fs   afero.Fs
	root string
}

// NewDirSource returns a source reading user files from under root.
func NewDirSource(fs afero.Fs, root string) *DirSource {
	return &DirSource{fs: fs, root: root}
}

func (s *DirSource) FileLength(logicalPath string) (uint64, error) {
	info, err := s.fs.Stat(s.hostPath(logicalPath))
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", logicalPath, err)
	}
	return uint64(info.Size()), nil
}

func (s *DirSource) ReadRange(logicalPath string, offset uint64, n int) ([]byte, error) {
	f, err := s.fs.Open(s.hostPath(logicalPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", logicalPath, err)
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at %d from %s: %w", n, offset, logicalPath, err)
	}
	return buf, nil
}

func (s *DirSource) hostPath(logicalPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(logicalPath))
}

// FileSink writes archive volumes to a filesystem. All volumes are staged as
// temporary files; Finalize assembles the main volume from the metadata plus
// the staged payload and renames everything into place, so a failed or
// aborted pack leaves no partial volume behind.
type FileSink struct {
	fs       afero.Fs
	mainPath string

	mu        sync.Mutex
	staged    []afero.File // staged payload file per opened volume
	active    afero.File
	activeOff uint64
}

// NewFileSink returns a sink writing the archive to mainPath, with split
// volumes named by the .dNN convention.
func NewFileSink(fs afero.Fs, mainPath string) *FileSink {
	return &FileSink{fs: fs, mainPath: mainPath}
}

func (s *FileSink) OpenVolume(volume uint16) (io.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(volume) != len(s.staged) {
		return nil, fmt.Errorf("volume %d opened out of order (next is %d)", volume, len(s.staged))
	}
	f, err := s.fs.Create(s.stagePath(volume))
	if err != nil {
		return nil, fmt.Errorf("failed to stage volume %d: %w", volume, err)
	}
	s.staged = append(s.staged, f)
	s.active = f
	s.activeOff = 0
	return sinkWriter{s}, nil
}

func (s *FileSink) CurrentVolumeOffset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeOff
}

func (s *FileSink) VolumeName(volume uint16) string {
	return filepath.Base(SplitVolumeName(s.mainPath, volume))
}

func (s *FileSink) Finalize(metadata []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.staged {
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close staged volume: %w", err)
		}
	}

	main, err := s.fs.Create(s.mainPath + ".tmp")
	if err != nil {
		return fmt.Errorf("failed to create main volume: %w", err)
	}
	if _, err := main.Write(metadata); err != nil {
		main.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if len(s.staged) > 0 {
		payload, err := s.fs.Open(s.stagePath(0))
		if err != nil {
			main.Close()
			return fmt.Errorf("failed to reopen staged payload: %w", err)
		}
		if _, err := io.Copy(main, payload); err != nil {
			payload.Close()
			main.Close()
			return fmt.Errorf("failed to append payload: %w", err)
		}
		payload.Close()
	}
	if err := main.Close(); err != nil {
		return fmt.Errorf("failed to close main volume: %w", err)
	}
	if err := s.fs.Rename(s.mainPath+".tmp", s.mainPath); err != nil {
		return fmt.Errorf("failed to commit main volume: %w", err)
	}
	s.fs.Remove(s.stagePath(0))

	for i := 1; i < len(s.staged); i++ {
		final := SplitVolumeName(s.mainPath, uint16(i))
		if err := s.fs.Rename(s.stagePath(uint16(i)), final); err != nil {
			return fmt.Errorf("failed to commit volume %d: %w", i, err)
		}
	}
	s.staged = nil
	s.active = nil
	return nil
}

func (s *FileSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for i, f := range s.staged {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		if err := s.fs.Remove(s.stagePath(uint16(i))); err != nil && first == nil {
			first = err
		}
	}
	s.fs.Remove(s.mainPath + ".tmp")
	s.staged = nil
	s.active = nil
	return first
}

func (s *FileSink) stagePath(volume uint16) string {
	return SplitVolumeName(s.mainPath, volume) + ".part"
}

type sinkWriter struct {
	s *FileSink
}

func (w sinkWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	n, err := w.s.active.Write(p)
	w.s.activeOff += uint64(n)
	return n, err
}
