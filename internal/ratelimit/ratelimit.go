// Package ratelimit caps upload attempts with a sliding time window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most max attempts per rolling window. A denied attempt
// never charges the window; only TryAdmit consumes capacity, and it does so
// before the caller performs the attempt so concurrent workers cannot
// overshoot the cap.
type Limiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	now        func() time.Time
	admissions []time.Time
}

// NewLimiter builds a Limiter. A nil now func uses time.Now; tests inject a
// fake clock.
func NewLimiter(max int, window time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{max: max, window: window, now: now}
}

// Seed restores admissions recorded before a restart so the cap carries over
// a daemon crash. Entries outside the current window are discarded.
func (l *Limiter) Seed(times []time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	l.admissions = l.admissions[:0]
	for _, ts := range times {
		if ts.After(cutoff) {
			l.admissions = append(l.admissions, ts)
		}
	}
}

// Peek reports whether an attempt would be admitted right now, without
// charging the window. When denied it returns the earliest time capacity
// frees up. Enqueue uses this to warn about saturation without spending
// quota the workers need.
func (l *Limiter) Peek() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.admissions) < l.max {
		return true, now
	}
	return false, l.retryTimeLocked(now)
}

// TryAdmit charges the window and admits the attempt, or denies it leaving
// the window untouched. On denial the returned time is when to try again.
func (l *Limiter) TryAdmit() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.admissions) >= l.max {
		return false, l.retryTimeLocked(now)
	}
	l.admissions = append(l.admissions, now)
	return true, now
}

// retryTimeLocked reports when capacity frees up. With a zero cap there is
// no admission to age out, so the answer is simply one window away.
func (l *Limiter) retryTimeLocked(now time.Time) time.Time {
	if len(l.admissions) == 0 {
		return now.Add(l.window)
	}
	return l.admissions[0].Add(l.window)
}

// Admissions returns a copy of the timestamps currently charged against the
// window, for persistence.
func (l *Limiter) Admissions() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	out := make([]time.Time, len(l.admissions))
	copy(out, l.admissions)
	return out
}

// InFlight reports how much of the window is currently charged.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	return len(l.admissions)
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for _, ts := range l.admissions {
		if ts.After(cutoff) {
			l.admissions[keep] = ts
			keep++
		}
	}
	l.admissions = l.admissions[:keep]
}
