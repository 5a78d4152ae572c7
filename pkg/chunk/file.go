package chunk

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a whole asset file in memory. Large files are mapped read-only
// rather than copied.
type File struct {
	path   string
	data   []byte
	mapped bool
}

// Open loads the asset file at path. A non-empty file too short to hold a
// single chunk header is rejected with ErrChunkTruncated. Close releases the
// mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("chunk: stat %s: %w", path, err)
	}
	size := st.Size()
	switch {
	case size == 0:
		return &File{path: path}, nil
	case size < HeaderSize:
		return nil, fmt.Errorf("%w: %s holds %d bytes, less than one header", ErrChunkTruncated, path, size)
	case size > int64(int(^uint(0)>>1)):
		return nil, fmt.Errorf("chunk: %s is too large to map (%d bytes)", path, size)
	}

	if data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED); err == nil {
		return &File{path: path, data: data, mapped: true}, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrChunkTruncated, path, err)
	}
	return &File{path: path, data: data}, nil
}

// Path returns the path the file was opened from.
func (f *File) Path() string { return f.path }

// Size returns the file length in bytes.
func (f *File) Size() int64 { return int64(len(f.data)) }

// Reader returns a chunk Reader over the whole file, positioned at the first
// top-level header. It must not be used after Close.
func (f *File) Reader() *Reader {
	n := int64(len(f.data))
	return &Reader{
		rs:      bytes.NewReader(f.data),
		size:    n,
		limit:   n,
		version: DefaultVersion,
		build:   DefaultBuild,
	}
}

// Close unmaps the file. It is safe to call more than once.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mapped {
		err = unix.Munmap(f.data)
	}
	f.data, f.mapped = nil, false
	return err
}
