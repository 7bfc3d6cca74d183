package chunkuploader

import (
	"sync"
	"time"
)

// Stats tracks part upload durations for reporting.
type Stats struct {
	sum           time.Duration
	bytes         int64
	finishedParts int64
	busyResponses int64
	mu            sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful part upload.
func (s *Stats) Update(d time.Duration, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.bytes += size
	s.finishedParts++
}

// AddBusy records a part attempt rejected as busy.
func (s *Stats) AddBusy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyResponses++
}

// Average returns the average upload duration of finished parts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedParts == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedParts)
}

// FinishedCount returns the number of uploaded parts.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedParts
}

// BusyCount returns the number of busy responses.
func (s *Stats) BusyCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyResponses
}

// Bytes returns the size of all uploaded parts.
func (s *Stats) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
