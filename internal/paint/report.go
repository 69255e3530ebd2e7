package paint

import (
	"fmt"
	"time"

	"github.com/jask/canvaspaint/internal/remote"
)

// Status is how a run ended.
type Status int

const (
	Completed Status = iota + 1
	Stopped
	Aborted
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Report is the terminal summary of a run.
type Report struct {
	Status   Status
	Painted  int
	Rejected int
	Total    int
	Cursor   Cursor
	Elapsed  time.Duration
}

// Progress is emitted after the initial charge query and each painted cell.
type Progress struct {
	Painted int
	Total   int
	ETA     time.Duration
	Charges ChargeState
	Cursor  Cursor
}

// Percent is Painted/Total rounded down, 0 for an empty job.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return p.Painted * 100 / p.Total
}

// Attempt is one finished write.
type Attempt struct {
	Cell    Cell
	At      Point
	Outcome remote.Outcome
	Err     error
}

type WaitReason int

const (
	WaitCooldown WaitReason = iota + 1
	WaitTransient
)

func (r WaitReason) String() string {
	switch r {
	case WaitCooldown:
		return "cooldown"
	case WaitTransient:
		return "transient error"
	default:
		return "unknown"
	}
}

// Wait announces a pause before it starts.
type Wait struct {
	Reason   WaitReason
	Duration time.Duration
}

// Reporter receives run events synchronously on the run goroutine.
// Implementations must not block for long.
type Reporter interface {
	Progress(Progress)
	Attempt(Attempt)
	Wait(Wait)
	Challenge(ChallengeState)
}

type NopReporter struct{}

func (NopReporter) Progress(Progress)        {}
func (NopReporter) Attempt(Attempt)          {}
func (NopReporter) Wait(Wait)                {}
func (NopReporter) Challenge(ChallengeState) {}

// Reporters fans events out in order.
type Reporters []Reporter

func (rs Reporters) Progress(p Progress) {
	for _, r := range rs {
		r.Progress(p)
	}
}

func (rs Reporters) Attempt(a Attempt) {
	for _, r := range rs {
		r.Attempt(a)
	}
}

func (rs Reporters) Wait(w Wait) {
	for _, r := range rs {
		r.Wait(w)
	}
}

func (rs Reporters) Challenge(c ChallengeState) {
	for _, r := range rs {
		r.Challenge(c)
	}
}

// FormatDuration renders d as "1d 2h 3m 4s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	s := total % 60
	m := (total / 60) % 60
	h := (total / 3600) % 24
	days := total / 86400

	out := ""
	if days > 0 {
		out += fmt.Sprintf("%dd ", days)
	}
	if h > 0 || days > 0 {
		out += fmt.Sprintf("%dh ", h)
	}
	if m > 0 || h > 0 || days > 0 {
		out += fmt.Sprintf("%dm ", m)
	}
	return out + fmt.Sprintf("%ds", s)
}
