package paint

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrRecoveryCancelled = errors.New("paint: challenge recovery cancelled")

// Phase is the challenge monitor state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseCleared
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseCleared:
		return "cleared"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ChallengeState is what observers see of an episode.
type ChallengeState struct {
	Active  bool
	Phase   Phase
	Backoff time.Duration
}

// ClearChecker probes whether a challenge has been cleared.
type ClearChecker interface {
	Cleared(ctx context.Context) bool
}

// Monitor waits out a verification challenge, polling with a capped,
// jittered geometric backoff so an active challenge does not turn into a
// request storm.
type Monitor struct {
	checker ClearChecker
	timing  Timing
	rand    Jitter
	sleep   Sleeper
	log     *slog.Logger
	notify  func(ChallengeState)

	phase   Phase
	backoff time.Duration
}

func NewMonitor(c ClearChecker, t Timing, j Jitter, s Sleeper, log *slog.Logger, notify func(ChallengeState)) *Monitor {
	if notify == nil {
		notify = func(ChallengeState) {}
	}
	return &Monitor{checker: c, timing: t, rand: j, sleep: s, log: orDiscard(log), notify: notify}
}

func (m *Monitor) State() ChallengeState {
	return ChallengeState{Active: m.phase == PhaseActive, Phase: m.phase, Backoff: m.backoff}
}

func (m *Monitor) Active() bool { return m.phase == PhaseActive }

// Activate marks a challenge as detected. Repeated calls are no-ops.
func (m *Monitor) Activate() {
	if m.phase == PhaseActive {
		return
	}
	m.phase = PhaseActive
	m.backoff = 0
	m.log.Warn("challenge required, pausing until it is cleared")
	m.notify(m.State())
}

// Await blocks until the challenge clears or ctx is cancelled. It returns
// nil immediately when no challenge is active.
func (m *Monitor) Await(ctx context.Context) error {
	for m.phase == PhaseActive {
		if ctx.Err() != nil {
			return m.cancel()
		}
		if m.checker.Cleared(ctx) {
			m.phase = PhaseCleared
			m.backoff = 0
			m.log.Info("challenge cleared, resuming")
			m.notify(m.State())
			// a stop during the pause is seen by the caller's loop
			_ = m.sleep(ctx, m.timing.ResumeDelay)
			return nil
		}
		m.backoff = m.nextBackoff()
		m.log.Debug("challenge still active", "backoff", m.backoff)
		m.notify(m.State())
		if err := m.sleep(ctx, m.backoff); err != nil {
			return m.cancel()
		}
	}
	return nil
}

func (m *Monitor) cancel() error {
	m.phase = PhaseCancelled
	m.notify(m.State())
	return ErrRecoveryCancelled
}

func (m *Monitor) nextBackoff() time.Duration {
	if m.backoff == 0 {
		return min(m.timing.ChallengePoll, m.timing.BackoffMax)
	}
	grown := m.backoff + m.backoff/2 + m.rand.Between(m.timing.BackoffJitterMin, m.timing.BackoffJitterMax)
	return min(grown, m.timing.BackoffMax)
}
