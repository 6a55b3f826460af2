// Package retry computes reconnection delays from a consecutive failure count.
//
// The backoff window grows linearly with each failure and is capped:
//
//	failures  window (ms)
//	0         0
//	1         250 .. 2500
//	2         2000 .. 4500
//	3         4000 .. 6500
//	...
//	>= 13     24000 .. 25000
//
// A delay is drawn uniformly from the window so many clients reconnecting at
// once spread out over the whole window.
package retry

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Backoff window constants in milliseconds.
const (
	MaxDelayMs = 25000
	floorMs    = 250
	stepMs     = 2000
	headroomMs = 500
)

// Strategy tracks consecutive connection failures and derives the next delay.
// It is safe for concurrent use.
type Strategy struct {
	failures atomic.Int64
	rand     func(n int64) int64
}

// NewStrategy returns a Strategy with zero recorded failures.
func NewStrategy() *Strategy {
	return &Strategy{rand: rand.Int64N}
}

// ConsecutiveFailures returns the current failure count.
func (s *Strategy) ConsecutiveFailures() int {
	return int(s.failures.Load())
}

// IncrementConsecutiveFailures records one more failed attempt.
func (s *Strategy) IncrementConsecutiveFailures() {
	s.failures.Add(1)
}

// ResetConsecutiveFailures clears the failure count after a successful connection.
func (s *Strategy) ResetConsecutiveFailures() {
	s.failures.Store(0)
}

// NextRetryDelay returns the delay before the next attempt. The first retry
// (no failures yet) is immediate.
func (s *Strategy) NextRetryDelay() time.Duration {
	n := s.failures.Load()
	if n == 0 {
		return 0
	}

	lo, hi := Window(int(n))
	ms := lo
	if hi > lo {
		ms = lo + s.rand(hi-lo+1)
	}
	return time.Duration(ms) * time.Millisecond
}

// Window returns the inclusive [min, max] delay bounds in milliseconds for n
// consecutive failures. n must be >= 1.
func Window(n int) (minMs, maxMs int64) {
	maxMs = min(headroomMs+int64(n)*stepMs, MaxDelayMs)
	minMs = min(max(floorMs, int64(n-1)*stepMs), MaxDelayMs)
	return minMs, maxMs
}
