package transfer

import "time"

const (
	defaultConstantRetryCount = 3
	defaultConstantRetryWait  = time.Second
	defaultDynamicRetryCount  = 5
)

// RetryStrategy decides how many times an upload is attempted and how long to wait
// between attempts.
type RetryStrategy interface {
	// Attempts is the total number of attempts, including the first one.
	Attempts() int
	// Wait is the pause before the given attempt. The first retry is attempt 2, so
	// the smallest value Wait is called with is 2.
	Wait(attempt int) time.Duration
}

// ConstantRetry waits the same duration after every failed attempt.
type ConstantRetry struct {
	Count int
	Delay time.Duration
}

// DefaultConstantRetry makes 3 attempts, 1 second apart.
func DefaultConstantRetry() ConstantRetry {
	return ConstantRetry{Count: defaultConstantRetryCount, Delay: defaultConstantRetryWait}
}

func (r ConstantRetry) Attempts() int {
	return r.Count
}

func (r ConstantRetry) Wait(int) time.Duration {
	return r.Delay
}

// DynamicRetry computes the wait from the number of the attempt about to start.
type DynamicRetry struct {
	Count int
	Func  func(attempt int) time.Duration
}

func (r DynamicRetry) Attempts() int {
	return r.Count
}

func (r DynamicRetry) Wait(attempt int) time.Duration {
	if r.Func == nil {
		return 0
	}
	return r.Func(attempt)
}

// DefaultRetryStrategy makes 5 attempts with a linearly growing wait, starting at
// 3.33 seconds before the second attempt.
func DefaultRetryStrategy() RetryStrategy {
	return DynamicRetry{
		Count: defaultDynamicRetryCount,
		Func: func(attempt int) time.Duration {
			return time.Duration(float64(attempt) * 2 / 1.2 * float64(time.Second))
		},
	}
}
