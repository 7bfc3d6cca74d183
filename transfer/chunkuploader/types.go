// Package chunkuploader splits large files into parts and uploads groups of parts
// through a multipart session of a network.Client.
package chunkuploader

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIncompleteChecksums is returned when a checksum list is requested before every
// part recorded its checksum.
var ErrIncompleteChecksums = errors.New("checksum table has unfilled slots")

// SourceReadError wraps an I/O failure while reading the upload source.
type SourceReadError struct {
	Err error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read source: %s", e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// ChecksumTable holds the hex SHA-1 of every part of a session, indexed by part number - 1.
// Safe for concurrent use by the group uploaders.
type ChecksumTable struct {
	mu   sync.Mutex
	sums []string
}

// NewChecksumTable creates a table with n empty slots.
func NewChecksumTable(n int) *ChecksumTable {
	return &ChecksumTable{sums: make([]string, n)}
}

// Len returns the number of slots.
func (t *ChecksumTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sums)
}

// Set records the checksum of the part at index.
func (t *ChecksumTable) Set(index int, sum string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.sums) {
		return fmt.Errorf("checksum index %d out of range [0, %d)", index, len(t.sums))
	}
	t.sums[index] = sum
	return nil
}

// List returns the checksums in part order.
func (t *ChecksumTable) List() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, sum := range t.sums {
		if sum == "" {
			return nil, fmt.Errorf("%w: part %d", ErrIncompleteChecksums, i+1)
		}
	}
	return append([]string(nil), t.sums...), nil
}
