// Package throttle implements a fixed-window rate limiter.
//
// A Throttle counts units (usually bytes) inside a window of fixed length. Once the
// count reaches the maximum, the next advance blocks until the window ends and a new
// one starts. Bursts at window boundaries are expected: this is not a sliding window
// or a token bucket.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Throttle is safe for concurrent use. Advances are serialized, including the wait
// for an exhausted window, so concurrent callers queue behind each other.
type Throttle struct {
	maxPerPeriod int64
	period       time.Duration

	mu           sync.Mutex
	countStart   time.Time
	currentCount int64
}

// New creates a Throttle allowing maxPerPeriod units in every period.
func New(maxPerPeriod int64, period time.Duration) *Throttle {
	return &Throttle{
		maxPerPeriod: maxPerPeriod,
		period:       period,
		countStart:   time.Now(),
	}
}

// PerSecond is New(maxPerPeriod, time.Second).
func PerSecond(maxPerPeriod int64) *Throttle {
	return New(maxPerPeriod, time.Second)
}

// PerMinute is New(maxPerPeriod, time.Minute).
func PerMinute(maxPerPeriod int64) *Throttle {
	return New(maxPerPeriod, time.Minute)
}

// Max returns the number of units allowed per period.
func (t *Throttle) Max() int64 {
	return t.maxPerPeriod
}

// Period returns the window length.
func (t *Throttle) Period() time.Duration {
	return t.period
}

// Advance is AdvanceBy(ctx, 1).
func (t *Throttle) Advance(ctx context.Context) (int64, error) {
	return t.AdvanceBy(ctx, 1)
}

// AdvanceBy adds n units to the current window, waiting for the next window first if
// the current one is already exhausted. It returns the capacity left in the window,
// which is zero once the count went over the maximum.
// The wait returns early with the context's error if ctx is done.
func (t *Throttle) AdvanceBy(ctx context.Context, n int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.countStart) >= t.period {
		t.resetWindow()
	}

	if t.currentCount >= t.maxPerPeriod {
		if err := sleep(ctx, t.period-time.Since(t.countStart)); err != nil {
			return 0, err
		}
		t.resetWindow()
	}

	t.currentCount += n

	if t.currentCount > t.maxPerPeriod {
		return 0, nil
	}
	return t.maxPerPeriod - t.currentCount, nil
}

// WaitIfExhausted blocks until the current window ends if it is exhausted, otherwise
// it returns immediately. It does not change the count.
func (t *Throttle) WaitIfExhausted(ctx context.Context) error {
	t.mu.Lock()
	elapsed := time.Since(t.countStart)
	exhausted := elapsed < t.period && t.currentCount >= t.maxPerPeriod
	t.mu.Unlock()

	if !exhausted {
		return nil
	}
	return sleep(ctx, t.period-elapsed)
}

// Remaining returns the capacity left in the current window.
func (t *Throttle) Remaining() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.countStart) >= t.period {
		return t.maxPerPeriod
	}
	if t.currentCount > t.maxPerPeriod {
		return 0
	}
	return t.maxPerPeriod - t.currentCount
}

// Clone returns a Throttle with the same limits and a fresh window.
func (t *Throttle) Clone() *Throttle {
	return New(t.maxPerPeriod, t.period)
}

func (t *Throttle) resetWindow() {
	t.currentCount = 0
	t.countStart = time.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
