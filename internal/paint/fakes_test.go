package paint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jask/canvaspaint/internal/remote"
)

type chargeReply struct {
	charges remote.Charges
	err     error
}

type writeCall struct {
	Region remote.Point
	X, Y   int
	Color  int
}

// fakeCanvas replays queued replies. The last element of each queue repeats.
type fakeCanvas struct {
	mu       sync.Mutex
	charges  []chargeReply
	outcomes []remote.Outcome
	cleared  []bool
	writes   []writeCall
	log      *eventLog
}

func pop[T any](q *[]T, fallback T) T {
	if len(*q) == 0 {
		return fallback
	}
	v := (*q)[0]
	if len(*q) > 1 {
		*q = (*q)[1:]
	}
	return v
}

func (f *fakeCanvas) Charges(context.Context) (remote.Charges, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := pop(&f.charges, chargeReply{charges: remote.Charges{Count: 100, Cooldown: 30 * time.Second}})
	f.log.add("charges")
	return r.charges, r.err
}

func (f *fakeCanvas) Cleared(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := pop(&f.cleared, true)
	f.log.add(fmt.Sprintf("cleared=%v", ok))
	return ok
}

func (f *fakeCanvas) WritePixel(_ context.Context, region remote.Point, x, y, color int) remote.WriteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeCall{Region: region, X: x, Y: y, Color: color})
	out := pop(&f.outcomes, remote.Painted)
	f.log.add(fmt.Sprintf("write %d,%d", x, y))
	res := remote.WriteResult{Outcome: out, StatusCode: 200}
	if out == remote.TransientError {
		res.Err = fmt.Errorf("boom")
	}
	return res
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// fakeClock records sleeps instead of blocking. When cancelAt is positive
// the cancel func is called on that sleep and the sleep reports ctx.Err.
type fakeClock struct {
	sleeps   []time.Duration
	log      *eventLog
	cancelAt int
	cancel   context.CancelFunc
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.log.add(fmt.Sprintf("sleep %s", d))
	if c.cancelAt > 0 && len(c.sleeps) == c.cancelAt {
		c.cancel()
	}
	return ctx.Err()
}

// edgeJitter always returns one end of the range.
type edgeJitter struct{ high bool }

func (j edgeJitter) Between(lo, hi time.Duration) time.Duration {
	if j.high {
		return hi
	}
	return lo
}

type recordingReporter struct {
	progress   []Progress
	attempts   []Attempt
	waits      []Wait
	challenges []ChallengeState
}

func (r *recordingReporter) Progress(p Progress)        { r.progress = append(r.progress, p) }
func (r *recordingReporter) Attempt(a Attempt)          { r.attempts = append(r.attempts, a) }
func (r *recordingReporter) Wait(w Wait)                { r.waits = append(r.waits, w) }
func (r *recordingReporter) Challenge(c ChallengeState) { r.challenges = append(r.challenges, c) }
