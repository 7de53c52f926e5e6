// Package retry computes backoff delays for failed uploads.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// jitterFraction bounds the random spread applied to each delay.
const jitterFraction = 0.2

// Scheduler produces capped exponential backoff delays with jitter. Attempt 1
// waits base, attempt 2 waits 2*base, and so on, never exceeding max. The
// jitter spreads retries from items that failed together so they do not
// hammer the remote in lockstep.
type Scheduler struct {
	base time.Duration
	max  time.Duration

	// rand.Rand is not safe for concurrent use and every worker shares
	// this scheduler, so draws go through the mutex.
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler builds a Scheduler. A nil rng uses a time-seeded source; tests
// inject a fixed seed for reproducible delays.
func NewScheduler(base, max time.Duration, rng *rand.Rand) *Scheduler {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{base: base, max: max, rng: rng}
}

// Delay returns the wait before the given retry. attempt counts failures so
// far, starting at 1 for the first retry.
func (s *Scheduler) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := s.base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.max {
			delay = s.max
			break
		}
	}
	if delay > s.max {
		delay = s.max
	}

	// Spread within [delay*(1-jitter), delay*(1+jitter)], clamped to the cap.
	s.mu.Lock()
	draw := s.rng.Float64()
	s.mu.Unlock()
	spread := float64(delay) * jitterFraction
	jittered := float64(delay) + (draw*2-1)*spread
	result := time.Duration(jittered)
	if result < s.base {
		result = s.base
	}
	if result > s.max {
		result = s.max
	}
	return result
}

// NextEligibleTime returns when an item that just recorded its attempt-th
// failure becomes claimable again.
func (s *Scheduler) NextEligibleTime(now time.Time, attempt int) time.Time {
	return now.Add(s.Delay(attempt))
}
