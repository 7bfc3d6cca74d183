// Package progress tracks the number of transferred bytes of an upload and derives
// throughput, ETA and completion percentage from it.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
)

const (
	sampleCapacity = 5000
	sampleMaxAge   = 10 * time.Second
)

// Snapshot is the state of a transfer at one point in time.
type Snapshot struct {
	// BytesPerSecond is the recent throughput.
	BytesPerSecond float64
	// ETA is the estimated time left.
	ETA time.Duration
	// Percentage is the completed fraction, between 0 and 1.
	Percentage float64
	Done       int64
	Total      int64
	Elapsed    time.Duration
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Speed: %s/s | ETA: %s | Progress: %s/%s (%.2f%%) | Elapsed: %s",
		units.BytesSize(s.BytesPerSecond),
		s.ETA.Round(time.Second),
		units.BytesSize(float64(s.Done)),
		units.BytesSize(float64(s.Total)),
		s.Percentage*100,
		s.Elapsed.Round(time.Second))
}

// Tracker counts completed bytes. It is safe for concurrent use.
type Tracker struct {
	total int64
	done  atomic.Int64

	mu        sync.Mutex
	samples   *RollingTimeSeries
	startTime time.Time
	now       func() time.Time
}

// NewTracker creates a Tracker for a transfer of total bytes.
func NewTracker(total int64) *Tracker {
	return &Tracker{
		total:     total,
		samples:   NewRollingTimeSeries(sampleCapacity, sampleMaxAge),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Total returns the size of the transfer.
func (t *Tracker) Total() int64 {
	return t.total
}

// Done returns the number of completed bytes.
func (t *Tracker) Done() int64 {
	return t.done.Load()
}

// AddDoneBytes credits n transferred bytes and records a throughput sample.
func (t *Tracker) AddDoneBytes(n int64) {
	t.done.Add(n)

	t.mu.Lock()
	t.samples.AddValue(n)
	t.mu.Unlock()
}

// SubDoneBytes takes back n bytes credited by an attempt that has to be repeated.
// Throughput samples are kept: the bytes did go over the wire.
func (t *Tracker) SubDoneBytes(n int64) {
	t.done.Add(-n)
}

// Reset sets the completed bytes back to zero.
func (t *Tracker) Reset() {
	t.done.Store(0)
}

// Start marks the beginning of the transfer; Elapsed is measured from here.
func (t *Tracker) Start() {
	t.mu.Lock()
	t.startTime = t.now()
	t.mu.Unlock()
}

// BytesPerSecond returns the throughput over the recent samples, or zero without
// recent samples.
func (t *Tracker) BytesPerSecond() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytesPerSecond()
}

// Snapshot computes the current state of the transfer.
func (t *Tracker) Snapshot() Snapshot {
	done := t.done.Load()

	t.mu.Lock()
	bps := t.bytesPerSecond()
	elapsed := t.now().Sub(t.startTime)
	t.mu.Unlock()

	etaRate := bps
	if etaRate == 0 {
		etaRate = 1
	}
	eta := float64(t.total-done) / etaRate
	if eta < 0 {
		eta = 0
	}

	percentage := 1.0
	if t.total > 0 {
		percentage = float64(done) / float64(t.total)
	}

	return Snapshot{
		BytesPerSecond: bps,
		ETA:            time.Duration(eta * float64(time.Second)),
		Percentage:     percentage,
		Done:           done,
		Total:          t.total,
		Elapsed:        elapsed,
	}
}

func (t *Tracker) bytesPerSecond() float64 {
	points := t.samples.ValidPoints()
	if len(points) == 0 {
		return 0
	}

	now := t.now()
	var sum int64
	var oldest time.Duration
	for _, p := range points {
		sum += p.Value
		if age := now.Sub(p.Time); age > oldest {
			oldest = age
		}
	}

	if oldest <= 0 {
		return 0
	}
	return float64(sum) / oldest.Seconds()
}
