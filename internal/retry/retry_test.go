package retry

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func newTestScheduler(base, max time.Duration) *Scheduler {
	return NewScheduler(base, max, rand.New(rand.NewSource(42)))
}

func TestDelayGrowsUntilCap(t *testing.T) {
	s := newTestScheduler(2*time.Second, 300*time.Second)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := s.Delay(attempt)
		if d < 2*time.Second || d > 300*time.Second {
			t.Fatalf("attempt %d delay %v outside [base, max]", attempt, d)
		}
		// Exponential growth dominates jitter until the cap.
		nominal := 2 * time.Second << (attempt - 1)
		if nominal < 300*time.Second && attempt > 1 && d <= prev/2 {
			t.Fatalf("attempt %d delay %v collapsed below previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelayStaysWithinJitterBounds(t *testing.T) {
	s := newTestScheduler(4*time.Second, time.Hour)

	for i := 0; i < 200; i++ {
		d := s.Delay(3)
		nominal := 16 * time.Second
		lo := time.Duration(float64(nominal) * (1 - jitterFraction))
		hi := time.Duration(float64(nominal) * (1 + jitterFraction))
		if d < lo || d > hi {
			t.Fatalf("delay %v outside jitter bounds [%v, %v]", d, lo, hi)
		}
	}
}

func TestDelayNeverExceedsMax(t *testing.T) {
	s := newTestScheduler(2*time.Second, 10*time.Second)

	for attempt := 1; attempt <= 30; attempt++ {
		if d := s.Delay(attempt); d > 10*time.Second {
			t.Fatalf("attempt %d delay %v exceeded cap", attempt, d)
		}
	}
}

func TestDelayHandlesBadAttempt(t *testing.T) {
	s := newTestScheduler(time.Second, time.Minute)
	if d := s.Delay(0); d < time.Second {
		t.Fatalf("attempt 0 delay %v below base", d)
	}
	if d := s.Delay(-3); d < time.Second {
		t.Fatalf("negative attempt delay %v below base", d)
	}
}

func TestConcurrentDelaysStayWithinBounds(t *testing.T) {
	s := newTestScheduler(2*time.Second, 300*time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Workers share one scheduler; concurrent draws must be safe and every
	// result must still land inside [base, max].
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 1; attempt <= 50; attempt++ {
				next := s.NextEligibleTime(now, attempt%6+1)
				if !next.After(now) {
					t.Errorf("eligible time %v not after %v", next, now)
					return
				}
				if next.After(now.Add(300 * time.Second)) {
					t.Errorf("eligible time %v beyond cap", next)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNextEligibleTimeIsInTheFuture(t *testing.T) {
	s := newTestScheduler(time.Second, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next := s.NextEligibleTime(now, 1)
	if !next.After(now) {
		t.Fatalf("expected eligible time after %v, got %v", now, next)
	}
}

func TestNewSchedulerNormalizesArguments(t *testing.T) {
	s := NewScheduler(0, -1, nil)
	if d := s.Delay(1); d < time.Second {
		t.Fatalf("expected fallback base of one second, got %v", d)
	}
}
