package chunkuploader

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Source is the upload source shared by all group uploaders of an upload.
// Every read seeks and reads under one lock, so concurrent groups never interleave.
type Source struct {
	reader io.ReadSeeker
	size   int64
	closer io.Closer
	mu     sync.Mutex
}

// NewSource wraps a reader of known size.
func NewSource(reader io.ReadSeeker, size int64) *Source {
	return &Source{reader: reader, size: size}
}

// OpenFileSource opens the file at path as a Source.
func OpenFileSource(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return &Source{reader: file, size: info.Size(), closer: file}, nil
}

// Size returns the total size of the source.
func (s *Source) Size() int64 {
	return s.size
}

// ReadRange reads the bytes [start, end).
func (s *Source) ReadRange(start, end int64) ([]byte, error) {
	if start < 0 || end < start || end > s.size {
		return nil, &SourceReadError{Err: fmt.Errorf("range [%d, %d) out of bounds for size %d", start, end, s.size)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reader.Seek(start, io.SeekStart); err != nil {
		return nil, &SourceReadError{Err: fmt.Errorf("seek to position %d: %w", start, err)}
	}

	data := make([]byte, end-start)
	if _, err := io.ReadFull(s.reader, data); err != nil {
		return nil, &SourceReadError{Err: fmt.Errorf("read %d bytes at %d: %w", end-start, start, err)}
	}
	return data, nil
}

// ReadAll reads the whole source.
func (s *Source) ReadAll() ([]byte, error) {
	return s.ReadRange(0, s.size)
}

// Close closes the underlying file if the source was opened with OpenFileSource.
func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
