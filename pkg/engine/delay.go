package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/duration"
)

// DelayPolicy decides the pause taken before a worker's nth dispatch.
// Policies are pure functions of n: no clock reads, no shared state, so
// tests can evaluate an entire schedule without waiting.
type DelayPolicy func(n int) time.Duration

// FixedDelay pauses the same amount before every dispatch.
func FixedDelay(d time.Duration) DelayPolicy {
	if d < 0 {
		d = 0
	}
	return func(int) time.Duration { return d }
}

// HumanDelay approximates a person pausing between actions: normally
// distributed around mean with the given spread, clamped at zero.
// The same seed always yields the same schedule.
func HumanDelay(mean, stddev time.Duration, seed int64) DelayPolicy {
	return func(n int) time.Duration {
		rng := rand.New(rand.NewSource(seed ^ int64(uint64(n)*0x9e3779b97f4a7c15)))
		d := time.Duration(rng.NormFloat64()*float64(stddev) + float64(mean))
		if d < 0 {
			return 0
		}
		return d
	}
}

// DefaultHumanDelay is the standard think-time policy.
func DefaultHumanDelay(seed int64) DelayPolicy {
	return HumanDelay(duration.ThinkTimeMean, duration.ThinkTimeStdDev, seed)
}

// Clock abstracts waiting so engine tests run without real time passing.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
