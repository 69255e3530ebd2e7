package paint

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Timing holds every wait used by a run.
type Timing struct {
	PaceMin           time.Duration
	PaceMax           time.Duration
	CooldownDefault   time.Duration
	CooldownJitterMin time.Duration
	CooldownJitterMax time.Duration
	TransientMin      time.Duration
	TransientMax      time.Duration
	ChallengePoll     time.Duration
	BackoffMax        time.Duration
	BackoffJitterMin  time.Duration
	BackoffJitterMax  time.Duration
	ResumeDelay       time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		PaceMin:           150 * time.Millisecond,
		PaceMax:           450 * time.Millisecond,
		CooldownDefault:   DefaultCooldown,
		CooldownJitterMin: 100 * time.Millisecond,
		CooldownJitterMax: 800 * time.Millisecond,
		TransientMin:      800 * time.Millisecond,
		TransientMax:      2500 * time.Millisecond,
		ChallengePoll:     8 * time.Second,
		BackoffMax:        60 * time.Second,
		BackoffJitterMin:  500 * time.Millisecond,
		BackoffJitterMax:  1500 * time.Millisecond,
		ResumeDelay:       1200 * time.Millisecond,
	}
}

// Validate rejects inverted ranges and non-positive intervals.
func (t Timing) Validate() error {
	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"pace", t.PaceMin, t.PaceMax},
		{"cooldown jitter", t.CooldownJitterMin, t.CooldownJitterMax},
		{"transient backoff", t.TransientMin, t.TransientMax},
		{"challenge jitter", t.BackoffJitterMin, t.BackoffJitterMax},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("paint: invalid %s range [%s, %s]", r.name, r.min, r.max)
		}
	}
	if t.CooldownDefault <= 0 || t.ChallengePoll <= 0 || t.BackoffMax <= 0 {
		return fmt.Errorf("paint: cooldown, challenge poll and backoff cap must be positive")
	}
	return nil
}

// Jitter draws random durations.
type Jitter interface {
	// Between returns a duration uniform in [lo, hi].
	Between(lo, hi time.Duration) time.Duration
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type randJitter struct{}

// RandomJitter draws from math/rand/v2.
func RandomJitter() Jitter { return randJitter{} }

func (randJitter) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
